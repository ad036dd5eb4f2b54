package jobs

import (
	"context"
	"fmt"
	"log"
)

const (
	// BatchSize caps how many pending segments one poll drains.
	BatchSize = 50
)

// SegmentEmbedder generates embeddings for segments awaiting vectorization.
type SegmentEmbedder interface {
	EmbedPending(ctx context.Context, limit int) (int, error)
}

// EmbeddingWorker drains the pending-segment embedding queue on each poll.
// Segments enter the queue at ingest time with embedding_status 'pending';
// noise segments are marked skipped up front, so the worker only sees
// embeddable content.
type EmbeddingWorker struct {
	embedder SegmentEmbedder
}

// NewEmbeddingWorker creates a new EmbeddingWorker instance
func NewEmbeddingWorker(embedder SegmentEmbedder) *EmbeddingWorker {
	return &EmbeddingWorker{embedder: embedder}
}

// ProcessJobs implements the JobProcessor interface
func (w *EmbeddingWorker) ProcessJobs(ctx context.Context) error {
	embedded, err := w.embedder.EmbedPending(ctx, BatchSize)
	if err != nil {
		return fmt.Errorf("failed to embed pending segments: %w", err)
	}

	if embedded > 0 {
		log.Printf("Embedded %d pending segments", embedded)
	}
	return nil
}
