package service

import (
	"context"
	"strings"

	"github.com/pauldavis/2brain/internal/domain"
	"github.com/pauldavis/2brain/internal/telemetry"
)

// SearchInput is a full-text query over segment plaintext.
type SearchInput struct {
	Query        string
	SourceSystem domain.SourceSystem
	SourceRole   domain.SourceRole
	DocumentID   string
	Limit        int
}

// SearchResult is one matching segment with its document context.
type SearchResult struct {
	SegmentID     string
	DocumentID    string
	DocumentTitle string
	SourceSystem  domain.SourceSystem
	Headline      string
	Rank          float64
}

// SearchRepositoryInterface defines the repository interface for full-text
// search over non-noise segments.
type SearchRepositoryInterface interface {
	Search(ctx context.Context, input SearchInput) ([]*SearchResult, error)
}

// SearchService is a thin layer over the repository's tsvector query; the
// pipeline's job ends at keeping plaintext and noise flags consistent for it.
type SearchService struct {
	repo SearchRepositoryInterface
}

// NewSearchService creates a new SearchService instance
func NewSearchService(repo SearchRepositoryInterface) *SearchService {
	return &SearchService{repo: repo}
}

const defaultSearchLimit = 20

// Search runs a full-text query. Empty queries return no results rather
// than erroring.
func (s *SearchService) Search(ctx context.Context, input SearchInput) ([]*SearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "SearchService.Search", telemetry.SpanAttributes{
		SourceSystem: string(input.SourceSystem),
		Operation:    "search",
	})
	defer span.End()

	input.Query = strings.TrimSpace(input.Query)
	if input.Query == "" {
		return nil, nil
	}
	if input.Limit <= 0 {
		input.Limit = defaultSearchLimit
	}
	return s.repo.Search(ctx, input)
}
