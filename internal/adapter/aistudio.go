package adapter

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/pauldavis/2brain/internal/domain"
)

// aistudioAttachmentKeys lists chunk-level Drive reference keys and their
// asset types, in emission order. Referenced files usually have no local
// match in the archive; the reference is still recorded for later backfill.
var aistudioAttachmentKeys = []struct {
	key       string
	assetType domain.AssetType
}{
	{"driveDocument", domain.AssetTypeFile},
	{"driveImage", domain.AssetTypeImage},
	{"driveVideo", domain.AssetTypeFile},
	{"driveAudio", domain.AssetTypeFile},
}

type aistudioChunk struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	IsThought bool   `json:"isThought"`
}

// AIStudioAdapter parses a Google AI Studio archive: a directory tree mixing
// loose files with embedded conversation JSON, recognized by the presence of
// both runSettings and chunkedPrompt keys.
type AIStudioAdapter struct{}

func NewAIStudioAdapter() *AIStudioAdapter {
	return &AIStudioAdapter{}
}

func (a *AIStudioAdapter) Source() domain.SourceSystem {
	return domain.SourceSystemAIStudio
}

func (a *AIStudioAdapter) Parse(exportPath string) ([]Conversation, error) {
	info, err := os.Stat(exportPath)
	if err != nil || !info.IsDir() {
		return nil, domain.NewParseError(exportPath, fmt.Errorf("export directory not found"))
	}

	var conversations []Conversation
	walkErr := filepath.WalkDir(exportPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		payload, ok := readAIStudioConversation(path)
		if !ok {
			return nil
		}
		conversations = append(conversations, a.parseConversation(exportPath, path, payload))
		return nil
	})
	if walkErr != nil {
		return nil, domain.NewParseError(exportPath, walkErr)
	}
	return conversations, nil
}

// readAIStudioConversation returns the decoded payload when the file is an
// AI Studio conversation blob. Unreadable or non-matching files are skipped
// silently; the archive mixes arbitrary loose files with conversations.
func readAIStudioConversation(path string) (map[string]any, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, false
	}
	if _, ok := payload["chunkedPrompt"]; !ok {
		return nil, false
	}
	if _, ok := payload["runSettings"]; !ok {
		return nil, false
	}
	return payload, true
}

func (a *AIStudioAdapter) parseConversation(root, path string, payload map[string]any) Conversation {
	externalID := normalizeExternalID(root, path)
	conversationID := slugify(externalID)

	modTime := time.Now().UTC()
	if info, err := os.Stat(path); err == nil {
		modTime = info.ModTime().UTC()
	}

	chunkedPrompt, _ := payload["chunkedPrompt"].(map[string]any)

	rawMetadata := map[string]any{
		"export_path":       externalID,
		"runSettings":       payload["runSettings"],
		"systemInstruction": payload["systemInstruction"],
	}
	if chunkedPrompt != nil {
		rawMetadata["pendingInputs"] = chunkedPrompt["pendingInputs"]
	}

	return Conversation{
		Document: ParsedDocument{
			SourceSystem: domain.SourceSystemAIStudio,
			ExternalID:   externalID,
			Title:        filepath.Base(path),
			CreatedAt:    modTime,
			UpdatedAt:    modTime,
			RawMetadata:  rawMetadata,
			SourcePath:   path,
			RawPayload:   payload,
		},
		Segments: buildAIStudioSegments(chunkedPrompt, conversationID),
	}
}

func buildAIStudioSegments(chunkedPrompt map[string]any, conversationID string) []SegmentInput {
	if chunkedPrompt == nil {
		return nil
	}
	chunks, _ := chunkedPrompt["chunks"].([]any)

	segments := make([]SegmentInput, 0, len(chunks))
	for index, rawChunk := range chunks {
		chunkMap, ok := rawChunk.(map[string]any)
		if !ok {
			continue
		}

		var chunk aistudioChunk
		if data, err := json.Marshal(chunkMap); err == nil {
			_ = json.Unmarshal(data, &chunk)
		}

		var assets []AssetInput
		var placeholders []string
		for _, attachment := range aistudioAttachmentKeys {
			key, assetType := attachment.key, attachment.assetType
			entry, ok := chunkMap[key]
			if !ok {
				continue
			}
			driveID := "unknown"
			if entryMap, ok := entry.(map[string]any); ok {
				if id, ok := entryMap["id"].(string); ok && id != "" {
					driveID = id
				}
			}
			assets = append(assets, AssetInput{
				AssetType:       assetType,
				SourceReference: fmt.Sprintf("%s:%s", key, driveID),
			})
			placeholders = append(placeholders,
				fmt.Sprintf("[%s attachment: %s]", strings.ToUpper(string(assetType)), driveID))
		}

		markdown := chunk.Text
		if markdown == "" && len(placeholders) > 0 {
			markdown = strings.Join(placeholders, "\n")
		}

		segmentType := domain.SegmentTypeMessage
		if chunk.IsThought {
			segmentType = domain.SegmentTypeMetadata
		}
		if len(assets) > 0 && chunk.Text == "" {
			segmentType = domain.SegmentTypeAttachment
		}

		segment := SegmentInput{
			NodeID:          fmt.Sprintf("%s-%d", conversationID, index+1),
			SourceRole:      aistudioRole(chunk.Role),
			SegmentType:     segmentType,
			ContentMarkdown: markdown,
			Plaintext:       markdown,
			ContentJSON:     chunkMap,
			RawReference:    fmt.Sprintf("%d", index+1),
			Assets:          assets,
		}
		if chunk.IsThought {
			noise := true
			segment.IsNoise = &noise
		}
		segments = append(segments, segment)
	}
	return segments
}

func aistudioRole(role string) domain.SourceRole {
	lowered := strings.ToLower(role)
	if lowered == "model" {
		return domain.RoleAssistant
	}
	return domain.NormalizeRole(lowered)
}

// normalizeExternalID produces a stable, slash-normalized path relative to
// the archive root; it doubles as the document external id.
func normalizeExternalID(root, path string) string {
	relative, err := filepath.Rel(root, path)
	if err != nil {
		relative = path
	}
	return filepath.ToSlash(relative)
}

func slugify(text string) string {
	var builder strings.Builder
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune('-')
		}
	}
	slug := strings.Trim(builder.String(), "-")
	if slug == "" {
		return "conversation"
	}
	return slug
}
