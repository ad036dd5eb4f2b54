package handlers

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pauldavis/2brain/internal/api"
	"github.com/pauldavis/2brain/internal/domain"
	"github.com/pauldavis/2brain/internal/pagination"
	"github.com/pauldavis/2brain/internal/service"
)

type DocumentReadService interface {
	ListDocuments(ctx context.Context, input service.ListDocumentsInput) ([]*service.DocumentSummary, error)
	GetDocumentView(ctx context.Context, documentID string) (*service.DocumentView, error)
	GetTranscript(ctx context.Context, documentID string) (string, error)
	GetVersions(ctx context.Context, documentID string) ([]*domain.DocumentVersion, error)
}

type KeywordTagService interface {
	TagDocument(ctx context.Context, documentID string, terms []string) ([]*domain.Keyword, error)
	UntagDocument(ctx context.Context, documentID, keywordID string) error
	ListVocabulary(ctx context.Context) ([]*domain.Keyword, error)
}

type DocumentHandler struct {
	svc      DocumentReadService
	keywords KeywordTagService
}

func NewDocumentHandler(svc DocumentReadService, keywords KeywordTagService) *DocumentHandler {
	return &DocumentHandler{svc: svc, keywords: keywords}
}

type DocumentSummaryResponse struct {
	ID               string         `json:"id"`
	SourceSystem     string         `json:"source_system"`
	ExternalID       string         `json:"external_id"`
	Title            string         `json:"title"`
	Summary          string         `json:"summary,omitempty"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
	VersionCount     int            `json:"version_count"`
	LatestVersionID  string         `json:"latest_version_id"`
	LatestIngestedAt string         `json:"latest_ingested_at"`
	SegmentCount     int            `json:"segment_count"`
	CharCount        int            `json:"char_count"`
	RawMetadata      map[string]any `json:"raw_metadata,omitempty"`
}

type SegmentResponse struct {
	ID              string               `json:"id"`
	ParentSegmentID string               `json:"parent_segment_id,omitempty"`
	Sequence        int                  `json:"sequence"`
	SourceRole      string               `json:"source_role"`
	SegmentType     string               `json:"segment_type"`
	ContentMarkdown string               `json:"content_markdown"`
	ContentJSON     any                  `json:"content_json,omitempty"`
	StartedAt       string               `json:"started_at,omitempty"`
	EndedAt         string               `json:"ended_at,omitempty"`
	RawReference    string               `json:"raw_reference,omitempty"`
	QualityScore    float64              `json:"quality_score"`
	IsNoise         bool                 `json:"is_noise"`
	EmbeddingStatus string               `json:"embedding_status"`
	Blocks          []BlockResponse      `json:"blocks,omitempty"`
	Assets          []AssetResponse      `json:"assets,omitempty"`
	Annotations     []AnnotationResponse `json:"annotations,omitempty"`
	Children        []SegmentResponse    `json:"children,omitempty"`
}

type BlockResponse struct {
	ID        string `json:"id"`
	Sequence  int    `json:"sequence"`
	BlockType string `json:"block_type"`
	Language  string `json:"language,omitempty"`
	Body      string `json:"body"`
}

type AssetResponse struct {
	ID              string `json:"id"`
	AssetType       string `json:"asset_type"`
	FileName        string `json:"file_name,omitempty"`
	MimeType        string `json:"mime_type,omitempty"`
	SizeBytes       int64  `json:"size_bytes,omitempty"`
	SourceReference string `json:"source_reference,omitempty"`
	StorageKey      string `json:"storage_key,omitempty"`
}

type AnnotationResponse struct {
	ID             string         `json:"id"`
	AnnotationType string         `json:"annotation_type"`
	Payload        map[string]any `json:"payload,omitempty"`
}

type KeywordResponse struct {
	ID          string `json:"id"`
	Term        string `json:"term"`
	Description string `json:"description,omitempty"`
}

type DocumentViewResponse struct {
	ID           string            `json:"id"`
	SourceSystem string            `json:"source_system"`
	ExternalID   string            `json:"external_id"`
	Title        string            `json:"title"`
	Summary      string            `json:"summary,omitempty"`
	CreatedAt    string            `json:"created_at"`
	UpdatedAt    string            `json:"updated_at"`
	RawMetadata  map[string]any    `json:"raw_metadata,omitempty"`
	Version      VersionResponse   `json:"version"`
	Segments     []SegmentResponse `json:"segments"`
	Keywords     []KeywordResponse `json:"keywords"`
}

type VersionResponse struct {
	ID            string `json:"id"`
	IngestedAt    string `json:"ingested_at"`
	SourcePath    string `json:"source_path,omitempty"`
	Checksum      string `json:"checksum"`
	IngestBatchID string `json:"ingest_batch_id,omitempty"`
	IngestedBy    string `json:"ingested_by,omitempty"`
	IngestSource  string `json:"ingest_source,omitempty"`
	IngestVersion string `json:"ingest_version,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func checksumHex(checksum []byte) string {
	return hex.EncodeToString(checksum)
}

func summaryToResponse(s *service.DocumentSummary) DocumentSummaryResponse {
	resp := DocumentSummaryResponse{
		ID:           s.Document.ID,
		SourceSystem: string(s.Document.SourceSystem),
		ExternalID:   s.Document.ExternalID,
		Title:        s.Document.Title,
		Summary:      s.Document.Summary,
		CreatedAt:    formatTime(s.Document.CreatedAt),
		UpdatedAt:    formatTime(s.Document.UpdatedAt),
		VersionCount: s.VersionCount,
		SegmentCount: s.SegmentCount,
		CharCount:    s.CharCount,
		RawMetadata:  s.Document.RawMetadata,
	}
	if s.LatestVersion != nil {
		resp.LatestVersionID = s.LatestVersion.ID
		resp.LatestIngestedAt = formatTime(s.LatestVersion.IngestedAt)
	}
	return resp
}

func versionToResponse(v *domain.DocumentVersion) VersionResponse {
	return VersionResponse{
		ID:            v.ID,
		IngestedAt:    formatTime(v.IngestedAt),
		SourcePath:    v.SourcePath,
		Checksum:      checksumHex(v.Checksum),
		IngestBatchID: v.IngestBatchID,
		IngestedBy:    v.IngestedBy,
		IngestSource:  v.IngestSource,
		IngestVersion: v.IngestVersion,
	}
}

func segmentNodeToResponse(node *service.SegmentNode) SegmentResponse {
	s := node.Segment
	resp := SegmentResponse{
		ID:              s.ID,
		Sequence:        s.Sequence,
		SourceRole:      string(s.SourceRole),
		SegmentType:     string(s.SegmentType),
		ContentMarkdown: s.ContentMarkdown,
		ContentJSON:     s.ContentJSON,
		RawReference:    s.RawReference,
		QualityScore:    s.QualityScore,
		IsNoise:         s.IsNoise,
		EmbeddingStatus: string(s.EmbeddingStatus),
	}
	if s.ParentSegmentID != nil {
		resp.ParentSegmentID = *s.ParentSegmentID
	}
	if s.StartedAt != nil {
		resp.StartedAt = formatTime(*s.StartedAt)
	}
	if s.EndedAt != nil {
		resp.EndedAt = formatTime(*s.EndedAt)
	}
	for _, b := range node.Blocks {
		resp.Blocks = append(resp.Blocks, BlockResponse{
			ID:        b.ID,
			Sequence:  b.Sequence,
			BlockType: string(b.BlockType),
			Language:  b.Language,
			Body:      b.Body,
		})
	}
	for _, a := range node.Assets {
		resp.Assets = append(resp.Assets, AssetResponse{
			ID:              a.ID,
			AssetType:       string(a.AssetType),
			FileName:        a.FileName,
			MimeType:        a.MimeType,
			SizeBytes:       a.SizeBytes,
			SourceReference: a.SourceReference,
			StorageKey:      a.StorageKey,
		})
	}
	for _, a := range node.Annotations {
		resp.Annotations = append(resp.Annotations, AnnotationResponse{
			ID:             a.ID,
			AnnotationType: a.AnnotationType,
			Payload:        a.Payload,
		})
	}
	for _, child := range node.Children {
		resp.Children = append(resp.Children, segmentNodeToResponse(child))
	}
	return resp
}

func keywordsToResponse(keywords []*domain.Keyword) []KeywordResponse {
	out := make([]KeywordResponse, 0, len(keywords))
	for _, k := range keywords {
		out = append(out, KeywordResponse{ID: k.ID, Term: k.Term, Description: k.Description})
	}
	return out
}

func viewToResponse(view *service.DocumentView) DocumentViewResponse {
	resp := DocumentViewResponse{
		ID:           view.Document.ID,
		SourceSystem: string(view.Document.SourceSystem),
		ExternalID:   view.Document.ExternalID,
		Title:        view.Document.Title,
		Summary:      view.Document.Summary,
		CreatedAt:    formatTime(view.Document.CreatedAt),
		UpdatedAt:    formatTime(view.Document.UpdatedAt),
		RawMetadata:  view.Document.RawMetadata,
		Version:      versionToResponse(view.Version),
		Segments:     []SegmentResponse{},
		Keywords:     keywordsToResponse(view.Keywords),
	}
	for _, node := range view.Segments {
		resp.Segments = append(resp.Segments, segmentNodeToResponse(node))
	}
	return resp
}

// List handles GET /documents with cursor pagination over (updated_at, id).
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	input := service.ListDocumentsInput{
		SourceSystem: domain.SourceSystem(r.URL.Query().Get("source")),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > 200 {
			api.Error(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		input.Limit = limit
	} else {
		input.Limit = 50
	}

	cursor, err := pagination.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid cursor")
		return
	}
	if cursor != nil {
		input.CursorID = cursor.LastID
		input.CursorUpdatedAt = &cursor.Timestamp
	}

	// Fetch one extra row to learn whether a next page exists.
	requested := input.Limit
	input.Limit = requested + 1

	summaries, err := h.svc.ListDocuments(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	hasMore := len(summaries) > requested
	if hasMore {
		summaries = summaries[:requested]
	}

	page := pagination.PageResult[DocumentSummaryResponse]{
		Items:   make([]DocumentSummaryResponse, 0, len(summaries)),
		HasMore: hasMore,
	}
	for _, s := range summaries {
		page.Items = append(page.Items, summaryToResponse(s))
	}
	if hasMore && len(summaries) > 0 {
		last := summaries[len(summaries)-1].Document
		page.Cursor = pagination.EncodeCursor(last.ID, last.UpdatedAt)
	}

	api.Success(w, http.StatusOK, page)
}

// Get handles GET /documents/{id}, returning the latest version's full view.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	view, err := h.svc.GetDocumentView(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, viewToResponse(view))
}

// Transcript handles GET /documents/{id}/transcript as rendered markdown.
func (h *DocumentHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	transcript, err := h.svc.GetTranscript(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(transcript))
}

// Versions handles GET /documents/{id}/versions.
func (h *DocumentHandler) Versions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	versions, err := h.svc.GetVersions(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make([]VersionResponse, 0, len(versions))
	for _, v := range versions {
		out = append(out, versionToResponse(v))
	}
	api.Success(w, http.StatusOK, out)
}

type TagRequest struct {
	Terms []string `json:"terms"`
}

// Tag handles POST /documents/{id}/keywords.
func (h *DocumentHandler) Tag(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req TagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Terms) == 0 {
		api.Error(w, http.StatusBadRequest, "terms are required")
		return
	}

	keywords, err := h.keywords.TagDocument(r.Context(), id, req.Terms)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, keywordsToResponse(keywords))
}

// Untag handles DELETE /documents/{id}/keywords/{keywordID}.
func (h *DocumentHandler) Untag(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	keywordID := chi.URLParam(r, "keywordID")
	if id == "" || keywordID == "" {
		api.Error(w, http.StatusBadRequest, "id and keywordID are required")
		return
	}

	if err := h.keywords.UntagDocument(r.Context(), id, keywordID); err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusNoContent, nil)
}

// Vocabulary handles GET /keywords.
func (h *DocumentHandler) Vocabulary(w http.ResponseWriter, r *http.Request) {
	keywords, err := h.keywords.ListVocabulary(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, keywordsToResponse(keywords))
}
