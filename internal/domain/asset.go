package domain

import (
	"fmt"
	"time"
)

// AssetType distinguishes broad attachment categories.
type AssetType string

const (
	AssetTypeImage AssetType = "image"
	AssetTypeFile  AssetType = "file"
)

// SegmentAsset is a reference from a segment to attachment storage.
// SourceReference (an asset pointer, Drive id, or attachment record) is
// always recorded even when no local or remote copy has been resolved yet,
// so unresolved references can be backfilled later.
type SegmentAsset struct {
	ID              string
	SegmentID       string
	AssetType       AssetType
	FileName        string
	MimeType        string
	SizeBytes       int64
	LocalPath       string
	SourceReference string
	// SHA256 and StorageKey are populated once the binary is uploaded to
	// shared content-addressable storage. Multiple segments may point at
	// the same StorageKey.
	SHA256     string
	StorageKey string
	CreatedAt  time.Time
}

// ValidateSegmentAsset validates a SegmentAsset instance
func ValidateSegmentAsset(a *SegmentAsset) error {
	if a == nil {
		return fmt.Errorf("segment asset cannot be nil")
	}

	if a.SegmentID == "" {
		return fmt.Errorf("segment asset SegmentID is required")
	}

	if a.AssetType == "" {
		return fmt.Errorf("segment asset AssetType is required")
	}

	if a.SourceReference == "" && a.FileName == "" {
		return fmt.Errorf("segment asset requires a SourceReference or FileName")
	}

	return nil
}
