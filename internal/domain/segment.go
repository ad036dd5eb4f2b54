package domain

import (
	"fmt"
	"time"
)

// SourceRole is the author role of a segment. Source formats keep inventing
// new roles, so anything unrecognized degrades to RoleOther instead of
// failing ingestion.
type SourceRole string

const (
	RoleSystem    SourceRole = "system"
	RoleUser      SourceRole = "user"
	RoleAssistant SourceRole = "assistant"
	RoleTool      SourceRole = "tool"
	RoleOther     SourceRole = "other"
)

// SegmentType classifies an ordered content unit within a version.
type SegmentType string

const (
	SegmentTypeMessage     SegmentType = "message"
	SegmentTypeMessagePart SegmentType = "message_part"
	SegmentTypeMetadata    SegmentType = "metadata"
	SegmentTypeAttachment  SegmentType = "attachment"
)

// BlockType classifies a sequenced sub-unit of a segment.
type BlockType string

const (
	BlockTypeMarkdown   BlockType = "markdown"
	BlockTypeCode       BlockType = "code"
	BlockTypeToolCall   BlockType = "tool_call"
	BlockTypeToolResult BlockType = "tool_result"
	BlockTypeCitation   BlockType = "citation"
)

// EmbeddingStatus tracks the external vectorizer's progress on a segment.
type EmbeddingStatus string

const (
	EmbeddingStatusPending EmbeddingStatus = "pending"
	EmbeddingStatusReady   EmbeddingStatus = "ready"
	EmbeddingStatusFailed  EmbeddingStatus = "failed"
	EmbeddingStatusSkipped EmbeddingStatus = "skipped"
)

// Segment is the atomic ordered content unit within a document version.
// Immutable once persisted; re-ingestion creates a fresh version with a
// fresh segment set instead of mutating.
type Segment struct {
	ID                string
	DocumentVersionID string
	ParentSegmentID   *string
	Sequence          int
	SourceRole        SourceRole
	SegmentType       SegmentType
	ContentMarkdown   string
	// Plaintext is the search-indexable projection of the markdown. It is
	// always non-nil, empty content included.
	Plaintext    string
	ContentJSON  any
	StartedAt    *time.Time
	EndedAt      *time.Time
	RawReference string
	// ContentChecksum is diagnostic only. Duplicate non-empty content is
	// legitimate and must never block ingestion.
	ContentChecksum []byte
	QualityScore    float64
	IsNoise         bool
	EmbeddingStatus EmbeddingStatus
}

// SegmentBlock is a fine-grained sub-unit of a segment (a fenced code block,
// tool call, tool result, citation) ordered by Sequence within the segment.
type SegmentBlock struct {
	ID        string
	SegmentID string
	Sequence  int
	BlockType BlockType
	Language  string
	Body      string
	RawData   any
}

// SegmentAnnotation is a free-form note or summary attached to a segment.
// Not subject to the pipeline's ordering invariants.
type SegmentAnnotation struct {
	ID             string
	SegmentID      string
	AnnotationType string
	Payload        map[string]any
	CreatedAt      time.Time
}

// NormalizeRole maps a raw role string onto a known role with an "other"
// fallback.
func NormalizeRole(role string) SourceRole {
	switch SourceRole(role) {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return SourceRole(role)
	}
	return RoleOther
}

// ValidateSegment validates a Segment instance
func ValidateSegment(s *Segment) error {
	if s == nil {
		return fmt.Errorf("segment cannot be nil")
	}

	if s.ID == "" {
		return fmt.Errorf("segment ID is required")
	}

	if s.DocumentVersionID == "" {
		return fmt.Errorf("segment DocumentVersionID is required")
	}

	if s.Sequence <= 0 {
		return fmt.Errorf("segment Sequence must be greater than 0, got %d", s.Sequence)
	}

	if !isValidSegmentType(s.SegmentType) {
		return fmt.Errorf("segment SegmentType is invalid: %s", s.SegmentType)
	}

	if !isValidSourceRole(s.SourceRole) {
		return fmt.Errorf("segment SourceRole is invalid: %s", s.SourceRole)
	}

	return nil
}

// ValidateSegmentBlock validates a SegmentBlock instance
func ValidateSegmentBlock(b *SegmentBlock) error {
	if b == nil {
		return fmt.Errorf("segment block cannot be nil")
	}

	if b.SegmentID == "" {
		return fmt.Errorf("segment block SegmentID is required")
	}

	if b.Sequence <= 0 {
		return fmt.Errorf("segment block Sequence must be greater than 0, got %d", b.Sequence)
	}

	return nil
}

// isValidSegmentType checks if a SegmentType is valid
func isValidSegmentType(t SegmentType) bool {
	switch t {
	case SegmentTypeMessage, SegmentTypeMessagePart, SegmentTypeMetadata, SegmentTypeAttachment:
		return true
	}
	return false
}

// isValidSourceRole checks if a SourceRole is valid
func isValidSourceRole(r SourceRole) bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool, RoleOther:
		return true
	}
	return false
}
