package adapter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pauldavis/2brain/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const claudeExport = `[{
	"uuid": "conv-uuid-1",
	"name": "Debugging session",
	"summary": "Debugging a flaky test together.",
	"created_at": "2025-03-01T10:00:00Z",
	"updated_at": "2025-03-01T10:30:00Z",
	"account": {"uuid": "acct-1"},
	"chat_messages": [
		{
			"uuid": "msg-1",
			"sender": "human",
			"created_at": "2025-03-01T10:00:00Z",
			"content": [{"type": "text", "text": "Why does this test flake?"}],
			"attachments": [{"file_name": "test.log", "file_size": 512, "file_type": "text/plain"}]
		},
		{
			"uuid": "msg-2",
			"sender": "assistant",
			"created_at": "2025-03-01T10:01:00Z",
			"content": [
				{"type": "thinking", "thinking": "The timeout is suspicious."},
				{"type": "text", "text": "The test races its own cleanup."},
				{"type": "tool_use", "name": "read_file", "input": {"path": "main_test.go"}}
			]
		},
		{
			"uuid": "msg-3",
			"sender": "tool",
			"created_at": "2025-03-01T10:02:00Z",
			"content": [
				{"type": "tool_result", "content": [{"type": "text", "text": "func TestMain(m *testing.M) {"}]}
			]
		}
	]
}]`

func TestClaudeAdapter_ParseConversation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conversations.json"), []byte(claudeExport), 0o644))

	parsed, err := NewClaudeAdapter().Parse(dir)
	require.NoError(t, err)
	require.Len(t, parsed, 1)

	conv := parsed[0]
	require.NoError(t, conv.Err)
	assert.Equal(t, domain.SourceSystemClaude, conv.Document.SourceSystem)
	assert.Equal(t, "conv-uuid-1", conv.Document.ExternalID)
	assert.Equal(t, "Debugging session", conv.Document.Title)
	assert.Equal(t, "Debugging a flaky test together.", conv.Document.Summary)
	assert.Contains(t, conv.Document.RawMetadata, "account")
	assert.Equal(t, filepath.Join(dir, "conversations.json")+"#conv-uuid-1", conv.Document.SourcePath)

	require.Len(t, conv.Segments, 3)

	human := conv.Segments[0]
	assert.Equal(t, domain.RoleUser, human.SourceRole)
	assert.Equal(t, "Why does this test flake?", human.ContentMarkdown)
	require.Len(t, human.Assets, 1)
	assert.Equal(t, "test.log", human.Assets[0].FileName)
	assert.Equal(t, domain.AssetTypeFile, human.Assets[0].AssetType)
	assert.Equal(t, int64(512), human.Assets[0].SizeBytes)

	assistant := conv.Segments[1]
	assert.Equal(t, domain.RoleAssistant, assistant.SourceRole)
	require.Len(t, assistant.Blocks, 3)
	assert.Equal(t, domain.BlockTypeMarkdown, assistant.Blocks[0].BlockType)
	assert.Equal(t, "The timeout is suspicious.", assistant.Blocks[0].Body)
	assert.Equal(t, domain.BlockTypeToolCall, assistant.Blocks[2].BlockType)
	assert.Contains(t, assistant.ContentMarkdown, "Tool call: read_file")
	assert.Contains(t, assistant.ContentMarkdown, "main_test.go")
	assert.Contains(t, assistant.Plaintext, "[tool call read_file]")

	tool := conv.Segments[2]
	assert.Equal(t, domain.RoleTool, tool.SourceRole)
	require.Len(t, tool.Blocks, 1)
	assert.Equal(t, domain.BlockTypeToolResult, tool.Blocks[0].BlockType)
	assert.Contains(t, tool.Blocks[0].Body, "TestMain")

	// The whole source message survives in ContentJSON, sender included.
	contentJSON, ok := assistant.ContentJSON.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "assistant", contentJSON["sender"])
}

func TestClaudeAdapter_UnknownBlockTypeRoundTrips(t *testing.T) {
	raw := json.RawMessage(`{
		"uuid": "conv-uuid-2",
		"name": "Odd blocks",
		"chat_messages": [{
			"uuid": "msg-1",
			"sender": "assistant",
			"content": [{"type": "sparkline", "points": [1, 2, 3]}]
		}]
	}`)

	conv := NewClaudeAdapter().ParseConversation(raw, "conversations.json")
	require.NoError(t, conv.Err)
	require.Len(t, conv.Segments, 1)

	seg := conv.Segments[0]
	assert.Contains(t, seg.ContentMarkdown, `"type": "sparkline"`)
	require.Len(t, seg.Blocks, 1)
	assert.Equal(t, domain.BlockTypeMarkdown, seg.Blocks[0].BlockType)
}

func TestClaudeAdapter_TokenBudgetBecomesPlaceholder(t *testing.T) {
	raw := json.RawMessage(`{
		"uuid": "conv-uuid-4",
		"name": "Budget markers",
		"chat_messages": [{
			"uuid": "msg-1",
			"sender": "assistant",
			"content": [
				{"type": "token_budget", "remaining": 123456},
				{"type": "text", "text": "still room to answer"}
			]
		}]
	}`)

	conv := NewClaudeAdapter().ParseConversation(raw, "conversations.json")
	require.NoError(t, conv.Err)
	require.Len(t, conv.Segments, 1)

	seg := conv.Segments[0]
	assert.Equal(t, "[token budget]\n\nstill room to answer", seg.ContentMarkdown)
	assert.NotContains(t, seg.ContentMarkdown, "123456")

	require.Len(t, seg.Blocks, 2)
	assert.Equal(t, domain.BlockTypeMarkdown, seg.Blocks[0].BlockType)
	assert.Contains(t, seg.Blocks[0].Body, `"remaining": 123456`)
}

func TestClaudeAdapter_TextFallbackAndVoiceNote(t *testing.T) {
	raw := json.RawMessage(`{
		"uuid": "conv-uuid-3",
		"name": "Fallbacks",
		"chat_messages": [
			{"uuid": "msg-1", "sender": "human", "text": "plain text only"},
			{"uuid": "msg-2", "sender": "human", "content": [{"type": "voice_note", "title": "Morning idea"}]}
		]
	}`)

	conv := NewClaudeAdapter().ParseConversation(raw, "conversations.json")
	require.NoError(t, conv.Err)
	require.Len(t, conv.Segments, 2)

	assert.Equal(t, "plain text only", conv.Segments[0].ContentMarkdown)
	assert.Equal(t, "[voice note: Morning idea]", conv.Segments[1].ContentMarkdown)
}

func TestClaudeAdapter_AttachmentImageDetectionIgnoresCase(t *testing.T) {
	raw := json.RawMessage(`{
		"uuid": "conv-uuid-5",
		"name": "Shouty camera roll",
		"chat_messages": [{
			"uuid": "msg-1",
			"sender": "human",
			"text": "see attached",
			"files": [
				{"file_name": "photo.PNG", "file_size": 2048},
				{"file_name": "notes.TXT", "file_size": 64}
			]
		}]
	}`)

	conv := NewClaudeAdapter().ParseConversation(raw, "conversations.json")
	require.NoError(t, conv.Err)
	require.Len(t, conv.Segments, 1)

	assets := conv.Segments[0].Assets
	require.Len(t, assets, 2)
	assert.Equal(t, domain.AssetTypeImage, assets[0].AssetType)
	assert.Equal(t, domain.AssetTypeFile, assets[1].AssetType)
}

func TestClaudeAdapter_MissingUUIDFails(t *testing.T) {
	conv := NewClaudeAdapter().ParseConversation(json.RawMessage(`{"name": "no uuid"}`), "conversations.json")
	require.Error(t, conv.Err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, conv.Err, &domainErr)
	assert.Equal(t, domain.ErrCodeParse, domainErr.Code)
}

func TestClaudeSenderRole(t *testing.T) {
	assert.Equal(t, domain.RoleUser, claudeSenderRole("human"))
	assert.Equal(t, domain.RoleAssistant, claudeSenderRole("assistant"))
	assert.Equal(t, domain.RoleTool, claudeSenderRole("tool"))
	assert.Equal(t, domain.RoleOther, claudeSenderRole("system_notice"))
}
