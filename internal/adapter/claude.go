package adapter

import (
	"encoding/json"
	"fmt"
	"mime"
	"path/filepath"

	"github.com/pauldavis/2brain/internal/domain"
)

type claudeConversation struct {
	UUID         string            `json:"uuid"`
	Name         string            `json:"name"`
	Summary      string            `json:"summary"`
	CreatedAt    string            `json:"created_at"`
	UpdatedAt    string            `json:"updated_at"`
	ChatMessages []json.RawMessage `json:"chat_messages"`
}

type claudeMessage struct {
	UUID        string            `json:"uuid"`
	Sender      string            `json:"sender"`
	Text        string            `json:"text"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
	Content     []json.RawMessage `json:"content"`
	Attachments []claudeFile      `json:"attachments"`
	Files       []claudeFile      `json:"files"`
}

type claudeFile struct {
	FileName         string `json:"file_name"`
	FileSize         int64  `json:"file_size"`
	FileType         string `json:"file_type"`
	ExtractedContent string `json:"extracted_content"`
}

type claudeContentBlock struct {
	Type     string            `json:"type"`
	Text     string            `json:"text"`
	Thinking string            `json:"thinking"`
	Title    string            `json:"title"`
	Name     string            `json:"name"`
	Input    json.RawMessage   `json:"input"`
	Content  []json.RawMessage `json:"content"`
}

// ClaudeAdapter parses an unzipped Claude export directory. Conversations
// are flat chronological chat_messages arrays; each message becomes one
// root-level segment and its heterogeneous content blocks become ordered
// sub-blocks.
type ClaudeAdapter struct{}

func NewClaudeAdapter() *ClaudeAdapter {
	return &ClaudeAdapter{}
}

func (a *ClaudeAdapter) Source() domain.SourceSystem {
	return domain.SourceSystemClaude
}

func (a *ClaudeAdapter) Parse(exportPath string) ([]Conversation, error) {
	rawConversations, err := loadConversationsFile(exportPath)
	if err != nil {
		return nil, domain.NewParseError(exportPath, err)
	}

	sourceFile := filepath.Join(exportPath, "conversations.json")
	conversations := make([]Conversation, 0, len(rawConversations))
	for _, raw := range rawConversations {
		conversations = append(conversations, a.ParseConversation(raw, sourceFile))
	}
	return conversations, nil
}

// ParseConversation converts one raw conversation object.
func (a *ClaudeAdapter) ParseConversation(raw json.RawMessage, sourceFile string) Conversation {
	var conv claudeConversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return parseFailure(sourceFile, err)
	}
	if conv.UUID == "" {
		return parseFailure(sourceFile, fmt.Errorf("conversation has no uuid"))
	}

	payload, err := decodePayload(raw)
	if err != nil {
		return parseFailure(sourceFile, err)
	}

	segments := make([]SegmentInput, 0, len(conv.ChatMessages))
	for _, rawMessage := range conv.ChatMessages {
		var message claudeMessage
		if err := json.Unmarshal(rawMessage, &message); err != nil {
			continue
		}
		segments = append(segments, buildClaudeSegment(message, rawMessage))
	}

	createdAt := timeOrNow(parseTimestamp(conv.CreatedAt))
	updatedAt := createdAt
	if t := parseTimestamp(conv.UpdatedAt); t != nil {
		updatedAt = *t
	}

	title := conv.Name
	if title == "" {
		title = "Untitled conversation"
	}

	rawMetadata := map[string]any{}
	if account, ok := payload["account"]; ok {
		rawMetadata["account"] = account
	}

	return Conversation{
		Document: ParsedDocument{
			SourceSystem: domain.SourceSystemClaude,
			ExternalID:   conv.UUID,
			Title:        title,
			Summary:      conv.Summary,
			CreatedAt:    createdAt,
			UpdatedAt:    updatedAt,
			RawMetadata:  rawMetadata,
			SourcePath:   sourceFile + "#" + conv.UUID,
			RawPayload:   payload,
		},
		Segments: segments,
	}
}

func claudeSenderRole(sender string) domain.SourceRole {
	switch sender {
	case "assistant":
		return domain.RoleAssistant
	case "human":
		return domain.RoleUser
	case "tool":
		return domain.RoleTool
	}
	return domain.RoleOther
}

func buildClaudeSegment(message claudeMessage, rawMessage json.RawMessage) SegmentInput {
	var markdownParts, plaintextParts []string
	var blocks []BlockInput

	appendPart := func(markdown, plaintext string) {
		if markdown != "" {
			markdownParts = append(markdownParts, markdown)
		}
		if plaintext != "" {
			plaintextParts = append(plaintextParts, plaintext)
		}
	}

	for _, rawBlock := range message.Content {
		var block claudeContentBlock
		if err := json.Unmarshal(rawBlock, &block); err != nil {
			continue
		}
		var rawData any
		_ = json.Unmarshal(rawBlock, &rawData)

		switch block.Type {
		case "text":
			appendPart(block.Text, block.Text)
			blocks = append(blocks, BlockInput{
				BlockType: domain.BlockTypeMarkdown,
				Body:      block.Text,
				RawData:   rawData,
			})
		case "thinking":
			appendPart(block.Thinking, block.Thinking)
			blocks = append(blocks, BlockInput{
				BlockType: domain.BlockTypeMarkdown,
				Body:      block.Thinking,
				RawData:   rawData,
			})
		case "voice_note":
			text := block.Text
			if text == "" {
				title := block.Title
				if title == "" {
					title = "untitled"
				}
				text = fmt.Sprintf("[voice note: %s]", title)
			}
			appendPart(text, text)
			blocks = append(blocks, BlockInput{
				BlockType: domain.BlockTypeMarkdown,
				Body:      text,
				RawData:   rawData,
			})
		case "tool_use":
			body := "{}"
			if len(block.Input) > 0 {
				if pretty, err := json.MarshalIndent(json.RawMessage(block.Input), "", "  "); err == nil {
					body = string(pretty)
				}
			}
			markdown := fmt.Sprintf("Tool call: %s\n\n```json\n%s\n```", block.Name, body)
			appendPart(markdown, fmt.Sprintf("[tool call %s]", block.Name))
			blocks = append(blocks, BlockInput{
				BlockType: domain.BlockTypeToolCall,
				Language:  "json",
				Body:      markdown,
				RawData:   rawData,
			})
		case "token_budget":
			// Budget markers carry no prose; the transcript gets a
			// placeholder while the block keeps the raw JSON.
			const placeholder = "[token budget]"
			appendPart(placeholder, placeholder)
			body := string(rawBlock)
			if pretty, err := json.MarshalIndent(json.RawMessage(rawBlock), "", "  "); err == nil {
				body = string(pretty)
			}
			blocks = append(blocks, BlockInput{
				BlockType: domain.BlockTypeMarkdown,
				Body:      body,
				RawData:   rawData,
			})
		case "tool_result":
			text := claudeToolResultText(block.Content)
			appendPart(text, text)
			body := text
			if body == "" {
				body = "[tool result]"
			}
			blocks = append(blocks, BlockInput{
				BlockType: domain.BlockTypeToolResult,
				Body:      body,
				RawData:   rawData,
			})
		default:
			// Unknown block types round-trip as pretty-printed JSON rather
			// than failing parsing.
			pretty, err := json.MarshalIndent(json.RawMessage(rawBlock), "", "  ")
			if err != nil {
				pretty = rawBlock
			}
			appendPart(string(pretty), string(pretty))
			blocks = append(blocks, BlockInput{
				BlockType: domain.BlockTypeMarkdown,
				Body:      string(pretty),
				RawData:   rawData,
			})
		}
	}

	var assets []AssetInput
	for _, group := range [][]claudeFile{message.Attachments, message.Files} {
		for _, file := range group {
			reference, _ := json.Marshal(file)
			assets = append(assets, AssetInput{
				AssetType:       assetTypeForFileName(file.FileName),
				SourceReference: string(reference),
				FileName:        file.FileName,
				MimeType:        mime.TypeByExtension(filepath.Ext(file.FileName)),
				SizeBytes:       file.FileSize,
			})
		}
	}

	if len(markdownParts) == 0 && message.Text != "" {
		markdownParts = append(markdownParts, message.Text)
		plaintextParts = append(plaintextParts, message.Text)
	}

	markdown := joinNonEmpty(markdownParts, "\n\n")
	plaintext := joinNonEmpty(plaintextParts, " ")
	if plaintext == "" {
		plaintext = markdown
	}

	// The whole raw message rides along so unknown fields survive.
	var contentJSON any
	_ = json.Unmarshal(rawMessage, &contentJSON)

	return SegmentInput{
		NodeID:          message.UUID,
		SourceRole:      claudeSenderRole(message.Sender),
		SegmentType:     domain.SegmentTypeMessage,
		ContentMarkdown: markdown,
		Plaintext:       plaintext,
		ContentJSON:     contentJSON,
		StartedAt:       parseTimestamp(message.CreatedAt),
		EndedAt:         parseTimestamp(message.UpdatedAt),
		RawReference:    message.UUID,
		Blocks:          blocks,
		Assets:          assets,
	}
}

func claudeToolResultText(content []json.RawMessage) string {
	var texts []string
	for _, raw := range content {
		var entry struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		if entry.Type == "text" && entry.Text != "" {
			texts = append(texts, entry.Text)
		}
	}
	return joinNonEmpty(texts, "\n")
}
