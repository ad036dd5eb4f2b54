package domain

import (
	"fmt"
	"time"
)

// SourceSystem identifies the chat platform a document was exported from.
type SourceSystem string

const (
	SourceSystemChatGPT  SourceSystem = "chatgpt"
	SourceSystemClaude   SourceSystem = "claude"
	SourceSystemAIStudio SourceSystem = "aistudio"
	SourceSystemOther    SourceSystem = "other"
)

// Document represents one logical conversation, identified by
// (source_system, external_id). Mutable fields are refreshed on re-ingest;
// documents are never deleted by the pipeline.
type Document struct {
	ID           string
	SourceSystem SourceSystem
	ExternalID   string
	Title        string
	Summary      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	RawMetadata  map[string]any
}

// DocumentVersion is an immutable snapshot of one ingestion event.
// Uniqueness of (DocumentID, Checksum) makes byte-identical re-ingests a no-op.
type DocumentVersion struct {
	ID            string
	DocumentID    string
	IngestedAt    time.Time
	SourcePath    string
	Checksum      []byte
	RawPayload    any
	IngestBatchID string
	IngestedBy    string
	IngestSource  string
	IngestVersion string
}

// IngestMetadata carries provenance for one ingestion run. It is explicit
// input at the pipeline entry point, never ambient state.
type IngestMetadata struct {
	BatchID  string
	Operator string
	Source   string
	Version  string
}

// NormalizeSourceSystem maps a raw source string onto a known system,
// falling back to "other" so unrecognized exports still ingest.
func NormalizeSourceSystem(s string) SourceSystem {
	switch SourceSystem(s) {
	case SourceSystemChatGPT, SourceSystemClaude, SourceSystemAIStudio:
		return SourceSystem(s)
	}
	return SourceSystemOther
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.SourceSystem == "" {
		return fmt.Errorf("document SourceSystem is required")
	}

	if d.ExternalID == "" {
		return fmt.Errorf("document ExternalID is required")
	}

	if d.Title == "" {
		return fmt.Errorf("document Title is required")
	}

	return nil
}

// ValidateDocumentVersion validates a DocumentVersion instance
func ValidateDocumentVersion(v *DocumentVersion) error {
	if v == nil {
		return fmt.Errorf("document version cannot be nil")
	}

	if v.ID == "" {
		return fmt.Errorf("document version ID is required")
	}

	if v.DocumentID == "" {
		return fmt.Errorf("document version DocumentID is required")
	}

	if len(v.Checksum) == 0 {
		return fmt.Errorf("document version Checksum is required")
	}

	return nil
}
