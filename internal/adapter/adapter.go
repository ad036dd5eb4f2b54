// Package adapter parses source-specific chat exports (ChatGPT, Claude,
// Google AI Studio) into a source-agnostic intermediate representation.
// Adapters preserve source order and tree shape via node ids; they never
// assign sequence numbers or compute checksums; that is the ingestion
// pipeline's job.
package adapter

import (
	"time"

	"github.com/pauldavis/2brain/internal/domain"
)

// ParsedDocument holds the source-agnostic document attributes extracted
// from one conversation in an export.
type ParsedDocument struct {
	SourceSystem domain.SourceSystem
	ExternalID   string
	Title        string
	Summary      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	RawMetadata  map[string]any
	SourcePath   string
	RawPayload   any
}

// BlockInput is a fine-grained sub-unit of a segment before persistence.
type BlockInput struct {
	BlockType domain.BlockType
	Language  string
	Body      string
	RawData   any
}

// AssetInput references an attachment. SourceReference is recorded even when
// no local file was resolved; unresolved references are backfilled later and
// must not fail ingestion.
type AssetInput struct {
	AssetType       domain.AssetType
	SourceReference string
	FileName        string
	MimeType        string
	SizeBytes       int64
	LocalPath       string
}

// AnnotationInput is a free-form note attached to a segment.
type AnnotationInput struct {
	AnnotationType string
	Payload        map[string]any
}

// SegmentInput is one ordered content unit before normalization. NodeID and
// ParentNodeID carry the source tree shape; the pipeline resolves them to
// persisted parent links and assigns sequences in emission order.
type SegmentInput struct {
	NodeID          string
	ParentNodeID    string
	SourceRole      domain.SourceRole
	SegmentType     domain.SegmentType
	ContentMarkdown string
	Plaintext       string
	ContentJSON     any
	StartedAt       *time.Time
	EndedAt         *time.Time
	RawReference    string
	Blocks          []BlockInput
	Assets          []AssetInput
	Annotations     []AnnotationInput

	// Optional quality hints. When set they override the pipeline's
	// default heuristic.
	QualityScore *float64
	IsNoise      *bool
}

// Conversation is the parse result for one document. A non-nil Err means
// this document failed to parse; sibling documents in the same export are
// unaffected.
type Conversation struct {
	Document ParsedDocument
	Segments []SegmentInput
	Err      error
}

// Adapter parses one export directory into conversations.
type Adapter interface {
	Source() domain.SourceSystem
	Parse(exportPath string) ([]Conversation, error)
}
