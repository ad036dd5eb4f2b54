package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSearchRepository is a mock implementation of SearchRepositoryInterface
type MockSearchRepository struct {
	mock.Mock
}

func (m *MockSearchRepository) Search(ctx context.Context, input SearchInput) ([]*SearchResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*SearchResult), args.Error(1)
}

func TestSearch_EmptyQueryReturnsNothing(t *testing.T) {
	repo := new(MockSearchRepository)

	results, err := NewSearchService(repo).Search(context.Background(), SearchInput{Query: "   "})
	require.NoError(t, err)
	assert.Nil(t, results)
	repo.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestSearch_TrimsAndDefaultsLimit(t *testing.T) {
	repo := new(MockSearchRepository)
	repo.On("Search", mock.Anything, SearchInput{Query: "flaky test", Limit: defaultSearchLimit}).
		Return([]*SearchResult{{SegmentID: "seg-1"}}, nil)

	results, err := NewSearchService(repo).Search(context.Background(), SearchInput{Query: "  flaky test  "})
	require.NoError(t, err)
	require.Len(t, results, 1)
	repo.AssertExpectations(t)
}
