package handlers

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pauldavis/2brain/internal/adapter"
	"github.com/pauldavis/2brain/internal/api"
	"github.com/pauldavis/2brain/internal/domain"
	"github.com/pauldavis/2brain/internal/service"
	"github.com/pauldavis/2brain/internal/telemetry"
)

type BatchIngestService interface {
	IngestBatch(ctx context.Context, conversations []adapter.Conversation, meta domain.IngestMetadata) (*service.BatchReport, error)
}

// AttachmentUploader backfills attachment binaries into blob storage after a
// version commits. Nil when no storage backend is configured.
type AttachmentUploader interface {
	UploadVersionAssets(ctx context.Context, versionID string, baseDir string) (int, error)
}

type IngestHandler struct {
	svc      BatchIngestService
	uploader AttachmentUploader
	operator string

	mu      sync.RWMutex
	batches map[string]*BatchStatus
}

func NewIngestHandler(svc BatchIngestService, uploader AttachmentUploader, operator string) *IngestHandler {
	return &IngestHandler{
		svc:      svc,
		uploader: uploader,
		operator: operator,
		batches:  make(map[string]*BatchStatus),
	}
}

// BatchStatus tracks an asynchronous upload ingest.
type BatchStatus struct {
	BatchID string               `json:"batch_id"`
	State   string               `json:"state"`
	Error   string               `json:"error,omitempty"`
	Report  *BatchReportResponse `json:"report,omitempty"`
}

const (
	batchStateRunning = "running"
	batchStateDone    = "done"
	batchStateFailed  = "failed"
)

type BatchIngestRequest struct {
	Path   string `json:"path"`
	Source string `json:"source"`
}

type OutcomeResponse struct {
	ExternalID string `json:"external_id"`
	SourcePath string `json:"source_path,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	VersionID  string `json:"version_id,omitempty"`
	Created    bool   `json:"created"`
	Error      string `json:"error,omitempty"`
}

type BatchReportResponse struct {
	BatchID   string            `json:"batch_id"`
	Succeeded int               `json:"succeeded"`
	Skipped   int               `json:"skipped"`
	Failed    int               `json:"failed"`
	Outcomes  []OutcomeResponse `json:"outcomes"`
}

func reportToResponse(report *service.BatchReport) *BatchReportResponse {
	resp := &BatchReportResponse{
		BatchID:   report.BatchID,
		Succeeded: report.Succeeded,
		Skipped:   report.Skipped,
		Failed:    report.Failed,
		Outcomes:  make([]OutcomeResponse, 0, len(report.Outcomes)),
	}
	for _, outcome := range report.Outcomes {
		o := OutcomeResponse{
			ExternalID: outcome.ExternalID,
			SourcePath: outcome.SourcePath,
		}
		if outcome.Result != nil {
			o.DocumentID = outcome.Result.DocumentID
			o.VersionID = outcome.Result.VersionID
			o.Created = outcome.Result.Created
		}
		if outcome.Err != nil {
			o.Error = outcome.Err.Error()
		}
		resp.Outcomes = append(resp.Outcomes, o)
	}
	return resp
}

// resolveAdapter picks the adapter for an explicit source name or detects it
// from the export directory when source is empty or "auto".
func resolveAdapter(source string, exportPath string) (adapter.Adapter, error) {
	if source != "" && source != "auto" {
		system := domain.NormalizeSourceSystem(source)
		if system == domain.SourceSystemOther {
			return nil, fmt.Errorf("unknown source %q (expected chatgpt, claude, aistudio, or auto)", source)
		}
		return adapter.ForSource(system)
	}

	system, err := adapter.DetectExport(exportPath)
	if err != nil {
		return nil, err
	}
	return adapter.ForSource(system)
}

func (h *IngestHandler) runIngest(ctx context.Context, exportPath, source string, meta domain.IngestMetadata) (*service.BatchReport, error) {
	ad, err := resolveAdapter(source, exportPath)
	if err != nil {
		return nil, domain.NewParseError(exportPath, err)
	}

	conversations, err := ad.Parse(exportPath)
	if err != nil {
		return nil, err
	}

	report, err := h.svc.IngestBatch(ctx, conversations, meta)
	if err != nil {
		return nil, err
	}

	if h.uploader != nil {
		for _, outcome := range report.Outcomes {
			if outcome.Result == nil || !outcome.Result.Created {
				continue
			}
			if _, err := h.uploader.UploadVersionAssets(ctx, outcome.Result.VersionID, exportPath); err != nil {
				log.Printf("attachment upload failed for version %s: %v", outcome.Result.VersionID, err)
				telemetry.CaptureError(ctx, err)
			}
		}
	}
	return report, nil
}

// Batch handles POST /ingest/batch: ingest an export directory already on
// the server's filesystem, synchronously.
func (h *IngestHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		api.Error(w, http.StatusBadRequest, "path is required")
		return
	}
	if info, err := os.Stat(req.Path); err != nil || !info.IsDir() {
		api.Error(w, http.StatusBadRequest, "path is not a readable directory")
		return
	}

	meta := domain.IngestMetadata{Operator: h.operator, Source: req.Path}
	report, err := h.runIngest(r.Context(), req.Path, req.Source, meta)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, reportToResponse(report))
}

// Upload handles POST /ingest/upload: accept a zipped export archive,
// extract it, and ingest in the background. Responds 202 with a batch id the
// client can poll via GetBatch.
func (h *IngestHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("archive")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "archive file is required")
		return
	}
	defer file.Close()

	exportPath, err := extractArchive(file, header.Size)
	if err != nil {
		api.Error(w, http.StatusBadRequest, fmt.Sprintf("failed to extract archive: %v", err))
		return
	}

	batchID := uuid.NewString()
	source := r.FormValue("source")
	status := &BatchStatus{BatchID: batchID, State: batchStateRunning}

	h.mu.Lock()
	h.batches[batchID] = status
	h.mu.Unlock()

	// The upload outlives the request; detach from its context.
	go func() {
		defer os.RemoveAll(exportPath)

		meta := domain.IngestMetadata{
			BatchID:  batchID,
			Operator: h.operator,
			Source:   header.Filename,
		}
		report, err := h.runIngest(context.Background(), exportPath, source, meta)

		h.mu.Lock()
		defer h.mu.Unlock()
		if err != nil {
			status.State = batchStateFailed
			status.Error = err.Error()
			return
		}
		status.State = batchStateDone
		status.Report = reportToResponse(report)
	}()

	api.Success(w, http.StatusAccepted, map[string]string{
		"batch_id": batchID,
		"state":    batchStateRunning,
	})
}

// GetBatch handles GET /ingest/batches/{id}.
func (h *IngestHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.mu.RLock()
	status, ok := h.batches[id]
	var snapshot BatchStatus
	if ok {
		snapshot = *status
	}
	h.mu.RUnlock()
	if !ok {
		api.Error(w, http.StatusNotFound, "batch not found")
		return
	}

	api.Success(w, http.StatusOK, snapshot)
}

// extractArchive unpacks an uploaded zip into a fresh temp directory,
// rejecting entries that would escape it.
func extractArchive(file io.ReaderAt, size int64) (string, error) {
	reader, err := zip.NewReader(file, size)
	if err != nil {
		return "", fmt.Errorf("not a valid zip archive: %w", err)
	}

	dir, err := os.MkdirTemp("", "2brain-export-*")
	if err != nil {
		return "", err
	}

	for _, entry := range reader.File {
		target := filepath.Join(dir, filepath.Clean(entry.Name))
		if !strings.HasPrefix(target, dir+string(os.PathSeparator)) {
			os.RemoveAll(dir)
			return "", fmt.Errorf("archive entry escapes extraction dir: %s", entry.Name)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				os.RemoveAll(dir)
				return "", err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			os.RemoveAll(dir)
			return "", err
		}

		src, err := entry.Open()
		if err != nil {
			os.RemoveAll(dir)
			return "", err
		}
		dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			src.Close()
			os.RemoveAll(dir)
			return "", err
		}
		_, err = io.Copy(dst, src)
		src.Close()
		dst.Close()
		if err != nil {
			os.RemoveAll(dir)
			return "", err
		}
	}

	return dir, nil
}
