package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/pauldavis/2brain/internal/api"
	"github.com/pauldavis/2brain/internal/domain"
	"github.com/pauldavis/2brain/internal/service"
)

type SegmentSearchService interface {
	Search(ctx context.Context, input service.SearchInput) ([]*service.SearchResult, error)
}

type SearchHandler struct {
	svc SegmentSearchService
}

func NewSearchHandler(svc SegmentSearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SearchResultResponse struct {
	SegmentID     string  `json:"segment_id"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	SourceSystem  string  `json:"source_system"`
	Headline      string  `json:"headline"`
	Rank          float64 `json:"rank"`
}

// Search handles GET /search?q=...&source=...&role=...&document_id=...&limit=...
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		api.Error(w, http.StatusBadRequest, "q is required")
		return
	}

	input := service.SearchInput{
		Query:        query,
		SourceSystem: domain.SourceSystem(r.URL.Query().Get("source")),
	}
	if role := r.URL.Query().Get("role"); role != "" {
		input.SourceRole = domain.NormalizeRole(role)
	}
	if documentID := r.URL.Query().Get("document_id"); documentID != "" {
		if _, err := uuid.Parse(documentID); err != nil {
			api.Error(w, http.StatusBadRequest, "document_id must be a valid uuid")
			return
		}
		input.DocumentID = documentID
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > 100 {
			api.Error(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		input.Limit = limit
	}

	results, err := h.svc.Search(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make([]SearchResultResponse, 0, len(results))
	for _, res := range results {
		out = append(out, SearchResultResponse{
			SegmentID:     res.SegmentID,
			DocumentID:    res.DocumentID,
			DocumentTitle: res.DocumentTitle,
			SourceSystem:  string(res.SourceSystem),
			Headline:      res.Headline,
			Rank:          res.Rank,
		})
	}

	api.Success(w, http.StatusOK, out)
}
