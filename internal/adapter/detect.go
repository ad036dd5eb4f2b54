package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pauldavis/2brain/internal/domain"
)

// DetectSource inspects the first conversation of a conversations.json array
// and identifies the export format: Claude conversations carry chat_messages,
// ChatGPT conversations carry a mapping tree.
func DetectSource(first json.RawMessage) (domain.SourceSystem, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(first, &probe); err != nil {
		return "", fmt.Errorf("conversation is not a JSON object: %w", err)
	}

	if _, ok := probe["chat_messages"]; ok {
		return domain.SourceSystemClaude, nil
	}
	if _, ok := probe["mapping"]; ok {
		return domain.SourceSystemChatGPT, nil
	}
	return "", fmt.Errorf("could not detect export format")
}

// DetectExport identifies the source system of an export directory. ChatGPT
// and Claude exports ship a top-level conversations.json; AI Studio exports
// are a directory of per-conversation files with no manifest.
func DetectExport(dir string) (domain.SourceSystem, error) {
	data, err := os.ReadFile(filepath.Join(dir, "conversations.json"))
	if os.IsNotExist(err) {
		return domain.SourceSystemAIStudio, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read conversations.json: %w", err)
	}

	var conversations []json.RawMessage
	if err := json.Unmarshal(data, &conversations); err != nil {
		return "", fmt.Errorf("conversations.json is not a JSON array: %w", err)
	}
	if len(conversations) == 0 {
		return "", fmt.Errorf("conversations.json is empty")
	}
	return DetectSource(conversations[0])
}

// ForSource returns the adapter for a source system.
func ForSource(source domain.SourceSystem) (Adapter, error) {
	switch source {
	case domain.SourceSystemChatGPT:
		return NewChatGPTAdapter(), nil
	case domain.SourceSystemClaude:
		return NewClaudeAdapter(), nil
	case domain.SourceSystemAIStudio:
		return NewAIStudioAdapter(), nil
	}
	return nil, fmt.Errorf("no adapter for source system %q", source)
}
