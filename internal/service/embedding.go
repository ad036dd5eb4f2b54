package service

import (
	"context"
	"fmt"

	"github.com/pauldavis/2brain/internal/domain"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingSegmentRepository defines the repository interface for embedding
// backfill over segments.
type EmbeddingSegmentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Segment, error)
	ListPending(ctx context.Context, limit int) ([]*domain.Segment, error)
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
	UpdateStatus(ctx context.Context, id string, status domain.EmbeddingStatus) error
}

// EmbeddingService generates and stores embeddings for pending segments.
// Noise segments are skipped permanently, not retried.
type EmbeddingService struct {
	client EmbeddingClient
	repo   EmbeddingSegmentRepository
}

// NewEmbeddingService creates a new EmbeddingService instance
func NewEmbeddingService(client EmbeddingClient, repo EmbeddingSegmentRepository) *EmbeddingService {
	return &EmbeddingService{client: client, repo: repo}
}

// EmbedSegment generates and stores the embedding for one segment. Called by
// the background worker.
func (s *EmbeddingService) EmbedSegment(ctx context.Context, segmentID string) error {
	segment, err := s.repo.GetByID(ctx, segmentID)
	if err != nil {
		return err
	}

	if segment.IsNoise || NormalizeMarkdown(segment.Plaintext) == "" {
		return s.repo.UpdateStatus(ctx, segmentID, domain.EmbeddingStatusSkipped)
	}

	embedding, err := s.client.GenerateEmbedding(ctx, segment.Plaintext)
	if err != nil {
		if statusErr := s.repo.UpdateStatus(ctx, segmentID, domain.EmbeddingStatusFailed); statusErr != nil {
			return fmt.Errorf("mark embedding failed: %w (after: %v)", statusErr, err)
		}
		return fmt.Errorf("failed to generate embedding: %w", err)
	}

	if err := s.repo.UpdateEmbedding(ctx, segmentID, embedding); err != nil {
		return fmt.Errorf("failed to update embedding: %w", err)
	}
	return nil
}

// EmbedPending processes up to limit pending segments and returns how many
// were attempted.
func (s *EmbeddingService) EmbedPending(ctx context.Context, limit int) (int, error) {
	segments, err := s.repo.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}

	for i, segment := range segments {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := s.EmbedSegment(ctx, segment.ID); err != nil {
			// Failed segments are already marked; keep draining the batch.
			continue
		}
	}
	return len(segments), nil
}
