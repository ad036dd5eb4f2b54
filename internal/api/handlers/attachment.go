package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pauldavis/2brain/internal/api"
)

type AttachmentDownloadService interface {
	GetDownloadURL(ctx context.Context, assetID string) (string, error)
}

type AttachmentHandler struct {
	svc AttachmentDownloadService
}

func NewAttachmentHandler(svc AttachmentDownloadService) *AttachmentHandler {
	return &AttachmentHandler{svc: svc}
}

// Download handles GET /attachments/{id}/download and returns a presigned
// URL for the attachment binary.
func (h *AttachmentHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	url, err := h.svc.GetDownloadURL(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"url": url})
}
