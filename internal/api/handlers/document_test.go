package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pauldavis/2brain/internal/domain"
	"github.com/pauldavis/2brain/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDocumentReadService struct {
	mock.Mock
}

func (m *MockDocumentReadService) ListDocuments(ctx context.Context, input service.ListDocumentsInput) ([]*service.DocumentSummary, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*service.DocumentSummary), args.Error(1)
}

func (m *MockDocumentReadService) GetDocumentView(ctx context.Context, documentID string) (*service.DocumentView, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentView), args.Error(1)
}

func (m *MockDocumentReadService) GetTranscript(ctx context.Context, documentID string) (string, error) {
	args := m.Called(ctx, documentID)
	return args.String(0), args.Error(1)
}

func (m *MockDocumentReadService) GetVersions(ctx context.Context, documentID string) ([]*domain.DocumentVersion, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DocumentVersion), args.Error(1)
}

type MockKeywordTagService struct {
	mock.Mock
}

func (m *MockKeywordTagService) TagDocument(ctx context.Context, documentID string, terms []string) ([]*domain.Keyword, error) {
	args := m.Called(ctx, documentID, terms)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Keyword), args.Error(1)
}

func (m *MockKeywordTagService) UntagDocument(ctx context.Context, documentID, keywordID string) error {
	args := m.Called(ctx, documentID, keywordID)
	return args.Error(0)
}

func (m *MockKeywordTagService) ListVocabulary(ctx context.Context) ([]*domain.Keyword, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Keyword), args.Error(1)
}

func requestWithURLParam(method, target, param, value string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(param, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func newTestSummary(id string, updatedAt time.Time) *service.DocumentSummary {
	return &service.DocumentSummary{
		Document: &domain.Document{
			ID:           id,
			SourceSystem: domain.SourceSystemClaude,
			ExternalID:   "ext-" + id,
			Title:        "Debugging session",
			CreatedAt:    updatedAt.Add(-time.Hour),
			UpdatedAt:    updatedAt,
		},
		VersionCount: 2,
		LatestVersion: &domain.DocumentVersion{
			ID:         "ver-" + id,
			DocumentID: id,
			IngestedAt: updatedAt,
			Checksum:   bytes.Repeat([]byte{0xab}, 32),
		},
		SegmentCount: 4,
		CharCount:    120,
	}
}

func TestDocumentHandler_List_Success(t *testing.T) {
	mockSvc := new(MockDocumentReadService)
	handler := NewDocumentHandler(mockSvc, new(MockKeywordTagService))

	now := time.Now().UTC()
	mockSvc.On("ListDocuments", mock.Anything, mock.MatchedBy(func(input service.ListDocumentsInput) bool {
		return input.Limit == 51 && input.CursorID == ""
	})).Return([]*service.DocumentSummary{newTestSummary("doc-1", now)}, nil)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	first := items[0].(map[string]interface{})
	assert.Equal(t, "doc-1", first["id"])
	assert.Equal(t, "claude", first["source_system"])
	assert.Equal(t, float64(2), first["version_count"])
	assert.Equal(t, "ver-doc-1", first["latest_version_id"])
	assert.Equal(t, false, data["has_more"])
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_List_PaginationCursor(t *testing.T) {
	mockSvc := new(MockDocumentReadService)
	handler := NewDocumentHandler(mockSvc, new(MockKeywordTagService))

	now := time.Now().UTC()
	// Three summaries back for a limit of 2 means a next page exists.
	mockSvc.On("ListDocuments", mock.Anything, mock.MatchedBy(func(input service.ListDocumentsInput) bool {
		return input.Limit == 3
	})).Return([]*service.DocumentSummary{
		newTestSummary("doc-1", now),
		newTestSummary("doc-2", now.Add(-time.Minute)),
		newTestSummary("doc-3", now.Add(-2*time.Minute)),
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/documents?limit=2", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	assert.Len(t, items, 2)
	assert.Equal(t, true, data["has_more"])
	assert.NotEmpty(t, data["cursor"])
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_List_InvalidLimit(t *testing.T) {
	handler := NewDocumentHandler(new(MockDocumentReadService), new(MockKeywordTagService))

	req := httptest.NewRequest(http.MethodGet, "/documents?limit=5000", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "limit must be between 1 and 200")
}

func TestDocumentHandler_List_InvalidCursor(t *testing.T) {
	handler := NewDocumentHandler(new(MockDocumentReadService), new(MockKeywordTagService))

	req := httptest.NewRequest(http.MethodGet, "/documents?cursor=not-base64!!", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid cursor")
}

func TestDocumentHandler_Get_Success(t *testing.T) {
	mockSvc := new(MockDocumentReadService)
	handler := NewDocumentHandler(mockSvc, new(MockKeywordTagService))

	now := time.Now().UTC()
	parentID := "seg-1"
	view := &service.DocumentView{
		Document: &domain.Document{
			ID:           "doc-1",
			SourceSystem: domain.SourceSystemChatGPT,
			ExternalID:   "conv-9",
			Title:        "Planning",
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		Version: &domain.DocumentVersion{
			ID:         "ver-1",
			DocumentID: "doc-1",
			IngestedAt: now,
			Checksum:   bytes.Repeat([]byte{0x01}, 32),
		},
		Segments: []*service.SegmentNode{
			{
				Segment: &domain.Segment{
					ID:              "seg-1",
					Sequence:        1,
					SourceRole:      domain.RoleUser,
					SegmentType:     domain.SegmentTypeMessage,
					ContentMarkdown: "hello",
					QualityScore:    1.0,
					EmbeddingStatus: domain.EmbeddingStatusPending,
				},
				Children: []*service.SegmentNode{
					{
						Segment: &domain.Segment{
							ID:              "seg-2",
							ParentSegmentID: &parentID,
							Sequence:        1,
							SourceRole:      domain.RoleAssistant,
							SegmentType:     domain.SegmentTypeMessage,
							ContentMarkdown: "hi there",
							QualityScore:    1.0,
							EmbeddingStatus: domain.EmbeddingStatusPending,
						},
					},
				},
			},
		},
		Keywords: []*domain.Keyword{{ID: "kw-1", Term: "planning"}},
	}
	mockSvc.On("GetDocumentView", mock.Anything, "doc-1").Return(view, nil)

	req := requestWithURLParam(http.MethodGet, "/documents/doc-1", "id", "doc-1", nil)
	w := httptest.NewRecorder()

	handler.Get(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "doc-1", data["id"])
	segments := data["segments"].([]interface{})
	require.Len(t, segments, 1)
	root := segments[0].(map[string]interface{})
	assert.Equal(t, "seg-1", root["id"])
	children := root["children"].([]interface{})
	require.Len(t, children, 1)
	child := children[0].(map[string]interface{})
	assert.Equal(t, "seg-2", child["id"])
	assert.Equal(t, "seg-1", child["parent_segment_id"])
	keywords := data["keywords"].([]interface{})
	require.Len(t, keywords, 1)
	assert.Equal(t, "planning", keywords[0].(map[string]interface{})["term"])
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Get_NotFound(t *testing.T) {
	mockSvc := new(MockDocumentReadService)
	handler := NewDocumentHandler(mockSvc, new(MockKeywordTagService))

	mockSvc.On("GetDocumentView", mock.Anything, "doc-999").Return(nil, domain.ErrDocumentNotFound)

	req := requestWithURLParam(http.MethodGet, "/documents/doc-999", "id", "doc-999", nil)
	w := httptest.NewRecorder()

	handler.Get(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Transcript_Success(t *testing.T) {
	mockSvc := new(MockDocumentReadService)
	handler := NewDocumentHandler(mockSvc, new(MockKeywordTagService))

	mockSvc.On("GetTranscript", mock.Anything, "doc-1").Return("## User\n\nhello\n", nil)

	req := requestWithURLParam(http.MethodGet, "/documents/doc-1/transcript", "id", "doc-1", nil)
	w := httptest.NewRecorder()

	handler.Transcript(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "## User\n\nhello\n", w.Body.String())
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Versions_Success(t *testing.T) {
	mockSvc := new(MockDocumentReadService)
	handler := NewDocumentHandler(mockSvc, new(MockKeywordTagService))

	now := time.Now().UTC()
	checksum := bytes.Repeat([]byte{0xff}, 32)
	mockSvc.On("GetVersions", mock.Anything, "doc-1").Return([]*domain.DocumentVersion{
		{ID: "ver-2", DocumentID: "doc-1", IngestedAt: now, Checksum: checksum},
		{ID: "ver-1", DocumentID: "doc-1", IngestedAt: now.Add(-time.Hour), Checksum: checksum},
	}, nil)

	req := requestWithURLParam(http.MethodGet, "/documents/doc-1/versions", "id", "doc-1", nil)
	w := httptest.NewRecorder()

	handler.Versions(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	versions := resp["data"].([]interface{})
	require.Len(t, versions, 2)
	first := versions[0].(map[string]interface{})
	assert.Equal(t, "ver-2", first["id"])
	assert.Len(t, first["checksum"].(string), 64)
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Tag_Success(t *testing.T) {
	mockKw := new(MockKeywordTagService)
	handler := NewDocumentHandler(new(MockDocumentReadService), mockKw)

	mockKw.On("TagDocument", mock.Anything, "doc-1", []string{"go", "debugging"}).Return([]*domain.Keyword{
		{ID: "kw-1", Term: "debugging"},
		{ID: "kw-2", Term: "go"},
	}, nil)

	body := []byte(`{"terms":["go","debugging"]}`)
	req := requestWithURLParam(http.MethodPost, "/documents/doc-1/keywords", "id", "doc-1", body)
	w := httptest.NewRecorder()

	handler.Tag(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	keywords := resp["data"].([]interface{})
	assert.Len(t, keywords, 2)
	mockKw.AssertExpectations(t)
}

func TestDocumentHandler_Tag_MissingTerms(t *testing.T) {
	handler := NewDocumentHandler(new(MockDocumentReadService), new(MockKeywordTagService))

	req := requestWithURLParam(http.MethodPost, "/documents/doc-1/keywords", "id", "doc-1", []byte(`{"terms":[]}`))
	w := httptest.NewRecorder()

	handler.Tag(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "terms are required")
}

func TestDocumentHandler_Untag_Success(t *testing.T) {
	mockKw := new(MockKeywordTagService)
	handler := NewDocumentHandler(new(MockDocumentReadService), mockKw)

	mockKw.On("UntagDocument", mock.Anything, "doc-1", "kw-1").Return(nil)

	req := httptest.NewRequest(http.MethodDelete, "/documents/doc-1/keywords/kw-1", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "doc-1")
	rctx.URLParams.Add("keywordID", "kw-1")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()

	handler.Untag(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	mockKw.AssertExpectations(t)
}

func TestDocumentHandler_Vocabulary_Success(t *testing.T) {
	mockKw := new(MockKeywordTagService)
	handler := NewDocumentHandler(new(MockDocumentReadService), mockKw)

	mockKw.On("ListVocabulary", mock.Anything).Return([]*domain.Keyword{
		{ID: "kw-1", Term: "debugging", Description: "bug hunts"},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/keywords", nil)
	w := httptest.NewRecorder()

	handler.Vocabulary(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	keywords := resp["data"].([]interface{})
	require.Len(t, keywords, 1)
	assert.Equal(t, "debugging", keywords[0].(map[string]interface{})["term"])
	mockKw.AssertExpectations(t)
}
