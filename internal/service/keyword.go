package service

import (
	"context"
	"strings"

	"github.com/pauldavis/2brain/internal/domain"
)

// KeywordRepositoryInterface defines the repository interface for the
// controlled keyword vocabulary.
type KeywordRepositoryInterface interface {
	UpsertKeyword(ctx context.Context, k *domain.Keyword) (*domain.Keyword, error)
	LinkDocument(ctx context.Context, documentID, keywordID string) error
	UnlinkDocument(ctx context.Context, documentID, keywordID string) error
	ListByDocument(ctx context.Context, documentID string) ([]*domain.Keyword, error)
	ListAll(ctx context.Context) ([]*domain.Keyword, error)
}

// KeywordService manages the keyword vocabulary and document tagging.
type KeywordService struct {
	repo    KeywordRepositoryInterface
	uuidGen UUIDGenerator
}

// NewKeywordService creates a new KeywordService instance
func NewKeywordService(repo KeywordRepositoryInterface) *KeywordService {
	return &KeywordService{repo: repo, uuidGen: &DefaultUUIDGenerator{}}
}

// NewKeywordServiceWithUUIDGen creates a new KeywordService with a custom
// UUID generator (for testing)
func NewKeywordServiceWithUUIDGen(repo KeywordRepositoryInterface, uuidGen UUIDGenerator) *KeywordService {
	return &KeywordService{repo: repo, uuidGen: uuidGen}
}

// TagDocument links the given terms to a document, creating vocabulary
// entries as needed. Terms are lowercased; blanks are ignored.
func (s *KeywordService) TagDocument(ctx context.Context, documentID string, terms []string) ([]*domain.Keyword, error) {
	var tagged []*domain.Keyword
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}

		keyword, err := s.repo.UpsertKeyword(ctx, &domain.Keyword{
			ID:   s.uuidGen.NewString(),
			Term: term,
		})
		if err != nil {
			return nil, err
		}
		if err := s.repo.LinkDocument(ctx, documentID, keyword.ID); err != nil {
			return nil, err
		}
		tagged = append(tagged, keyword)
	}
	return tagged, nil
}

// UntagDocument removes one term from a document.
func (s *KeywordService) UntagDocument(ctx context.Context, documentID, keywordID string) error {
	return s.repo.UnlinkDocument(ctx, documentID, keywordID)
}

// ListDocumentKeywords lists a document's keywords.
func (s *KeywordService) ListDocumentKeywords(ctx context.Context, documentID string) ([]*domain.Keyword, error) {
	return s.repo.ListByDocument(ctx, documentID)
}

// ListVocabulary lists the whole controlled vocabulary.
func (s *KeywordService) ListVocabulary(ctx context.Context) ([]*domain.Keyword, error) {
	return s.repo.ListAll(ctx)
}
