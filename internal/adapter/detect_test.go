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

func TestDetectSource(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    domain.SourceSystem
		wantErr bool
	}{
		{
			name:    "claude",
			payload: `{"uuid": "c1", "chat_messages": []}`,
			want:    domain.SourceSystemClaude,
		},
		{
			name:    "chatgpt",
			payload: `{"conversation_id": "c1", "mapping": {}}`,
			want:    domain.SourceSystemChatGPT,
		},
		{
			name:    "unrecognized",
			payload: `{"something": "else"}`,
			wantErr: true,
		},
		{
			name:    "not an object",
			payload: `[1, 2, 3]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectSource(json.RawMessage(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectExport(t *testing.T) {
	writeManifest := func(t *testing.T, payload string) string {
		t.Helper()
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "conversations.json"), []byte(payload), 0o644))
		return dir
	}

	t.Run("claude manifest", func(t *testing.T) {
		dir := writeManifest(t, `[{"uuid": "c1", "chat_messages": []}]`)
		got, err := DetectExport(dir)
		require.NoError(t, err)
		assert.Equal(t, domain.SourceSystemClaude, got)
	})

	t.Run("chatgpt manifest", func(t *testing.T) {
		dir := writeManifest(t, `[{"conversation_id": "c1", "mapping": {}}]`)
		got, err := DetectExport(dir)
		require.NoError(t, err)
		assert.Equal(t, domain.SourceSystemChatGPT, got)
	})

	t.Run("no manifest means aistudio", func(t *testing.T) {
		got, err := DetectExport(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, domain.SourceSystemAIStudio, got)
	})

	t.Run("empty manifest", func(t *testing.T) {
		dir := writeManifest(t, `[]`)
		_, err := DetectExport(dir)
		require.Error(t, err)
	})

	t.Run("manifest not an array", func(t *testing.T) {
		dir := writeManifest(t, `{"mapping": {}}`)
		_, err := DetectExport(dir)
		require.Error(t, err)
	})
}

func TestForSource(t *testing.T) {
	for _, source := range []domain.SourceSystem{
		domain.SourceSystemChatGPT,
		domain.SourceSystemClaude,
		domain.SourceSystemAIStudio,
	} {
		adapter, err := ForSource(source)
		require.NoError(t, err)
		assert.Equal(t, source, adapter.Source())
	}

	_, err := ForSource(domain.SourceSystemOther)
	require.Error(t, err)
}
