package service

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeMarkdown collapses all whitespace runs to single spaces and trims
// the result. Checksums are computed over this form so formatting-only
// differences between export runs do not register as content changes.
func NormalizeMarkdown(markdown string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(markdown, " "))
}

// SegmentChecksum returns the SHA-256 of the normalized markdown, or nil when
// the segment has no content. Segment checksums are diagnostic only; they are
// never used for uniqueness because legitimate duplicate messages exist.
func SegmentChecksum(markdown string) []byte {
	normalized := NormalizeMarkdown(markdown)
	if normalized == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(normalized))
	return sum[:]
}

// PayloadChecksum returns the SHA-256 of the payload's canonical JSON
// serialization. The payload must be a decoded JSON value (maps, slices,
// primitives); encoding/json emits map keys sorted, which makes the
// serialization stable across ingestion runs regardless of source key order.
func PayloadChecksum(payload any) ([]byte, error) {
	if payload == nil {
		return nil, fmt.Errorf("payload is nil")
	}
	canonical, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("serialize payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return sum[:], nil
}
