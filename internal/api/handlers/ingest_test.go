package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pauldavis/2brain/internal/adapter"
	"github.com/pauldavis/2brain/internal/domain"
	"github.com/pauldavis/2brain/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBatchIngestService struct {
	mock.Mock
}

func (m *MockBatchIngestService) IngestBatch(ctx context.Context, conversations []adapter.Conversation, meta domain.IngestMetadata) (*service.BatchReport, error) {
	args := m.Called(ctx, conversations, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BatchReport), args.Error(1)
}

type MockAttachmentUploader struct {
	mock.Mock
}

func (m *MockAttachmentUploader) UploadVersionAssets(ctx context.Context, versionID string, baseDir string) (int, error) {
	args := m.Called(ctx, versionID, baseDir)
	return args.Int(0), args.Error(1)
}

// writeClaudeExport fills dir with a minimal Claude-format conversations.json.
func writeClaudeExport(t *testing.T, dir string) {
	t.Helper()
	payload := `[{
		"uuid": "conv-1",
		"name": "Test conversation",
		"created_at": "2025-01-01T00:00:00Z",
		"updated_at": "2025-01-01T01:00:00Z",
		"chat_messages": [
			{"uuid": "msg-1", "sender": "human", "text": "hello", "created_at": "2025-01-01T00:00:00Z"},
			{"uuid": "msg-2", "sender": "assistant", "text": "hi there", "created_at": "2025-01-01T00:01:00Z"}
		]
	}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conversations.json"), []byte(payload), 0o644))
}

func newTestReport(batchID string) *service.BatchReport {
	return &service.BatchReport{
		BatchID:   batchID,
		Succeeded: 1,
		Outcomes: []service.DocumentOutcome{
			{
				ExternalID: "conv-1",
				Result:     &service.PersistResult{DocumentID: "doc-1", VersionID: "ver-1", Created: true},
			},
		},
	}
}

func TestIngestHandler_Batch_Success(t *testing.T) {
	mockSvc := new(MockBatchIngestService)
	handler := NewIngestHandler(mockSvc, nil, "tester")

	dir := t.TempDir()
	writeClaudeExport(t, dir)

	mockSvc.On("IngestBatch", mock.Anything, mock.MatchedBy(func(convs []adapter.Conversation) bool {
		return len(convs) == 1 && convs[0].Document.ExternalID == "conv-1"
	}), mock.MatchedBy(func(meta domain.IngestMetadata) bool {
		return meta.Operator == "tester" && meta.Source == dir
	})).Return(newTestReport("batch-1"), nil)

	body, _ := json.Marshal(BatchIngestRequest{Path: dir, Source: "auto"})
	req := httptest.NewRequest(http.MethodPost, "/ingest/batch", bytes.NewReader(body))
	w := httptest.NewRecorder()

	handler.Batch(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "batch-1", data["batch_id"])
	assert.Equal(t, float64(1), data["succeeded"])
	outcomes := data["outcomes"].([]interface{})
	require.Len(t, outcomes, 1)
	first := outcomes[0].(map[string]interface{})
	assert.Equal(t, "conv-1", first["external_id"])
	assert.Equal(t, "doc-1", first["document_id"])
	assert.Equal(t, true, first["created"])
	mockSvc.AssertExpectations(t)
}

func TestIngestHandler_Batch_UploadsAttachmentsForNewVersions(t *testing.T) {
	mockSvc := new(MockBatchIngestService)
	mockUploader := new(MockAttachmentUploader)
	handler := NewIngestHandler(mockSvc, mockUploader, "tester")

	dir := t.TempDir()
	writeClaudeExport(t, dir)

	report := newTestReport("batch-1")
	report.Outcomes = append(report.Outcomes, service.DocumentOutcome{
		ExternalID: "conv-2",
		Result:     &service.PersistResult{DocumentID: "doc-2", VersionID: "ver-old", Created: false},
	})
	mockSvc.On("IngestBatch", mock.Anything, mock.Anything, mock.Anything).Return(report, nil)
	mockUploader.On("UploadVersionAssets", mock.Anything, "ver-1", dir).Return(2, nil)

	body, _ := json.Marshal(BatchIngestRequest{Path: dir, Source: "claude"})
	req := httptest.NewRequest(http.MethodPost, "/ingest/batch", bytes.NewReader(body))
	w := httptest.NewRecorder()

	handler.Batch(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	// ver-old was not newly created, so no upload for it.
	mockUploader.AssertNumberOfCalls(t, "UploadVersionAssets", 1)
	mockUploader.AssertExpectations(t)
}

func TestIngestHandler_Batch_MissingPath(t *testing.T) {
	handler := NewIngestHandler(new(MockBatchIngestService), nil, "tester")

	req := httptest.NewRequest(http.MethodPost, "/ingest/batch", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()

	handler.Batch(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "path is required")
}

func TestIngestHandler_Batch_PathNotADirectory(t *testing.T) {
	handler := NewIngestHandler(new(MockBatchIngestService), nil, "tester")

	body, _ := json.Marshal(BatchIngestRequest{Path: "/does/not/exist"})
	req := httptest.NewRequest(http.MethodPost, "/ingest/batch", bytes.NewReader(body))
	w := httptest.NewRecorder()

	handler.Batch(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not a readable directory")
}

func TestIngestHandler_Batch_UnknownSource(t *testing.T) {
	handler := NewIngestHandler(new(MockBatchIngestService), nil, "tester")

	dir := t.TempDir()
	writeClaudeExport(t, dir)

	body, _ := json.Marshal(BatchIngestRequest{Path: dir, Source: "gemini-web"})
	req := httptest.NewRequest(http.MethodPost, "/ingest/batch", bytes.NewReader(body))
	w := httptest.NewRecorder()

	handler.Batch(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "failed to parse")
}

func buildUploadRequest(t *testing.T, fieldName string) *http.Request {
	t.Helper()

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	entry, err := zw.Create("conversations.json")
	require.NoError(t, err)
	_, err = entry.Write([]byte(`[{
		"uuid": "conv-1",
		"name": "Zipped conversation",
		"created_at": "2025-01-01T00:00:00Z",
		"updated_at": "2025-01-01T01:00:00Z",
		"chat_messages": [
			{"uuid": "msg-1", "sender": "human", "text": "hello", "created_at": "2025-01-01T00:00:00Z"}
		]
	}]`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(fieldName, "export.zip")
	require.NoError(t, err)
	_, err = part.Write(archive.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/ingest/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestIngestHandler_Upload_AcceptsAndCompletes(t *testing.T) {
	mockSvc := new(MockBatchIngestService)
	handler := NewIngestHandler(mockSvc, nil, "tester")

	done := make(chan struct{})
	mockSvc.On("IngestBatch", mock.Anything, mock.MatchedBy(func(convs []adapter.Conversation) bool {
		return len(convs) == 1
	}), mock.Anything).Return(newTestReport("batch-1"), nil).Run(func(args mock.Arguments) {
		close(done)
	})

	w := httptest.NewRecorder()
	handler.Upload(w, buildUploadRequest(t, "archive"))

	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	batchID := data["batch_id"].(string)
	require.NotEmpty(t, batchID)
	assert.Equal(t, batchStateRunning, data["state"])

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("background ingest did not run")
	}

	// The status flips to done once the goroutine finishes; poll briefly.
	require.Eventually(t, func() bool {
		statusReq := requestWithURLParam(http.MethodGet, "/ingest/batches/"+batchID, "id", batchID, nil)
		sw := httptest.NewRecorder()
		handler.GetBatch(sw, statusReq)
		if sw.Code != http.StatusOK {
			return false
		}
		var statusResp map[string]interface{}
		if err := json.Unmarshal(sw.Body.Bytes(), &statusResp); err != nil {
			return false
		}
		status := statusResp["data"].(map[string]interface{})
		return status["state"] == batchStateDone
	}, 5*time.Second, 10*time.Millisecond)
	mockSvc.AssertExpectations(t)
}

func TestIngestHandler_Upload_MissingArchive(t *testing.T) {
	handler := NewIngestHandler(new(MockBatchIngestService), nil, "tester")

	w := httptest.NewRecorder()
	handler.Upload(w, buildUploadRequest(t, "wrong_field"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "archive file is required")
}

func TestIngestHandler_GetBatch_NotFound(t *testing.T) {
	handler := NewIngestHandler(new(MockBatchIngestService), nil, "tester")

	req := requestWithURLParam(http.MethodGet, "/ingest/batches/nope", "id", "nope", nil)
	w := httptest.NewRecorder()

	handler.GetBatch(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExtractArchive_RejectsPathTraversal(t *testing.T) {
	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	entry, err := zw.Create("../../escape.txt")
	require.NoError(t, err)
	_, err = entry.Write([]byte("nope"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = extractArchive(bytes.NewReader(archive.Bytes()), int64(archive.Len()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes extraction dir")
}
