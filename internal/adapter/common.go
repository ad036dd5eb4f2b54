package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pauldavis/2brain/internal/domain"
)

// loadConversationsFile reads <dir>/conversations.json as a raw array so each
// conversation can be decoded (and fail) independently.
func loadConversationsFile(exportDir string) ([]json.RawMessage, error) {
	path := filepath.Join(exportDir, "conversations.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("no conversations.json under %s: %w", exportDir, err)
	}

	var conversations []json.RawMessage
	if err := json.Unmarshal(data, &conversations); err != nil {
		return nil, fmt.Errorf("conversations.json is not a JSON array: %w", err)
	}
	return conversations, nil
}

// decodePayload round-trips raw JSON into a generic value so the payload can
// be persisted and checksummed without a closed schema.
func decodePayload(raw json.RawMessage) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("conversation is not a JSON object: %w", err)
	}
	return payload, nil
}

// objectKeys returns the keys of a JSON object in file order. Decoding into a
// Go map loses ordering, which matters when source order is the only
// deterministic ordering an export provides.
func objectKeys(data json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", keyTok)
		}

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// epochToTime converts a Unix epoch (possibly fractional) to UTC time.
func epochToTime(epoch *float64) *time.Time {
	if epoch == nil {
		return nil
	}
	sec, frac := math.Modf(*epoch)
	t := time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
	return &t
}

// parseTimestamp parses an RFC 3339 timestamp, tolerating the trailing-Z
// variant Claude exports use. Returns nil for empty or unparseable values.
func parseTimestamp(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func timeOrNow(t *time.Time) time.Time {
	if t != nil {
		return *t
	}
	return time.Now().UTC()
}

// imageExtensions drives attachment classification by file name.
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".svg": true, ".heic": true, ".bmp": true,
}

func assetTypeForFileName(fileName string) domain.AssetType {
	if fileName == "" {
		return domain.AssetTypeFile
	}
	if imageExtensions[strings.ToLower(filepath.Ext(fileName))] {
		return domain.AssetTypeImage
	}
	return domain.AssetTypeFile
}

// joinNonEmpty joins the non-empty elements with sep.
func joinNonEmpty(parts []string, sep string) string {
	filtered := parts[:0:0]
	for _, part := range parts {
		if part != "" {
			filtered = append(filtered, part)
		}
	}
	return strings.Join(filtered, sep)
}

func parseFailure(sourcePath string, err error) Conversation {
	return Conversation{
		Document: ParsedDocument{SourcePath: sourcePath},
		Err:      domain.NewParseError(sourcePath, err),
	}
}
