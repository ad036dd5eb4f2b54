package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pauldavis/2brain/internal/domain"
	"github.com/pauldavis/2brain/internal/telemetry"
)

// ReadRepositoryInterface defines the repository interface for the document
// read model.
type ReadRepositoryInterface interface {
	GetDocumentByID(ctx context.Context, id string) (*domain.Document, error)
	GetDocumentBySourceKey(ctx context.Context, source domain.SourceSystem, externalID string) (*domain.Document, error)
	GetLatestVersion(ctx context.Context, documentID string) (*domain.DocumentVersion, error)
	GetVersions(ctx context.Context, documentID string) ([]*domain.DocumentVersion, error)
	ListSegments(ctx context.Context, versionID string) ([]*domain.Segment, error)
	ListBlocks(ctx context.Context, versionID string) ([]*domain.SegmentBlock, error)
	ListAssets(ctx context.Context, versionID string) ([]*domain.SegmentAsset, error)
	ListAnnotations(ctx context.Context, versionID string) ([]*domain.SegmentAnnotation, error)
	ListKeywords(ctx context.Context, documentID string) ([]*domain.Keyword, error)
	ListDocuments(ctx context.Context, input ListDocumentsInput) ([]*DocumentSummary, error)
}

// ListDocumentsInput filters and pages the document listing. Cursor fields
// implement keyset pagination over (updated_at, id) descending; when unset,
// Offset paging applies.
type ListDocumentsInput struct {
	SourceSystem    domain.SourceSystem
	Limit           int
	Offset          int
	CursorUpdatedAt *time.Time
	CursorID        string
}

// DocumentSummary is one row of the document listing.
type DocumentSummary struct {
	Document      *domain.Document
	VersionCount  int
	LatestVersion *domain.DocumentVersion
	SegmentCount  int
	CharCount     int
}

// SegmentNode is a segment with its sub-blocks, assets, annotations, and
// ordered children.
type SegmentNode struct {
	Segment     *domain.Segment
	Blocks      []*domain.SegmentBlock
	Assets      []*domain.SegmentAsset
	Annotations []*domain.SegmentAnnotation
	Children    []*SegmentNode
}

// DocumentView is a document with one version's full segment tree and its
// linked keywords.
type DocumentView struct {
	Document *domain.Document
	Version  *domain.DocumentVersion
	Segments []*SegmentNode
	Keywords []*domain.Keyword
}

// DocumentService serves the read model: full document views, listings, and
// plain-text transcripts.
type DocumentService struct {
	repo ReadRepositoryInterface
}

// NewDocumentService creates a new DocumentService instance
func NewDocumentService(repo ReadRepositoryInterface) *DocumentService {
	return &DocumentService{repo: repo}
}

const defaultListLimit = 50

// ListDocuments returns document summaries, newest first.
func (s *DocumentService) ListDocuments(ctx context.Context, input ListDocumentsInput) ([]*DocumentSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.ListDocuments", telemetry.SpanAttributes{
		SourceSystem: string(input.SourceSystem),
		Operation:    "list_documents",
	})
	defer span.End()

	if input.Limit <= 0 {
		input.Limit = defaultListLimit
	}
	return s.repo.ListDocuments(ctx, input)
}

// GetDocumentView returns the document with its latest version's segment
// tree. Children are ordered by sequence under each parent; roots by
// sequence at the top level.
func (s *DocumentService) GetDocumentView(ctx context.Context, documentID string) (*DocumentView, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.GetDocumentView", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "get_document_view",
	})
	defer span.End()

	document, err := s.repo.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return s.buildView(ctx, document)
}

// GetDocumentViewBySourceKey resolves a document by its natural key.
func (s *DocumentService) GetDocumentViewBySourceKey(ctx context.Context, source domain.SourceSystem, externalID string) (*DocumentView, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.GetDocumentViewBySourceKey", telemetry.SpanAttributes{
		SourceSystem: string(source),
		Operation:    "get_document_view",
	})
	defer span.End()

	document, err := s.repo.GetDocumentBySourceKey(ctx, source, externalID)
	if err != nil {
		return nil, err
	}
	return s.buildView(ctx, document)
}

// GetVersions lists ingestion history for a document, newest first.
func (s *DocumentService) GetVersions(ctx context.Context, documentID string) ([]*domain.DocumentVersion, error) {
	if _, err := s.repo.GetDocumentByID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.repo.GetVersions(ctx, documentID)
}

func (s *DocumentService) buildView(ctx context.Context, document *domain.Document) (*DocumentView, error) {
	version, err := s.repo.GetLatestVersion(ctx, document.ID)
	if err != nil {
		return nil, err
	}

	segments, err := s.repo.ListSegments(ctx, version.ID)
	if err != nil {
		return nil, err
	}
	blocks, err := s.repo.ListBlocks(ctx, version.ID)
	if err != nil {
		return nil, err
	}
	assets, err := s.repo.ListAssets(ctx, version.ID)
	if err != nil {
		return nil, err
	}
	annotations, err := s.repo.ListAnnotations(ctx, version.ID)
	if err != nil {
		return nil, err
	}
	keywords, err := s.repo.ListKeywords(ctx, document.ID)
	if err != nil {
		return nil, err
	}

	return &DocumentView{
		Document: document,
		Version:  version,
		Segments: buildSegmentTree(segments, blocks, assets, annotations),
		Keywords: keywords,
	}, nil
}

// buildSegmentTree reconstructs the parent/child structure from flat rows.
// An orphaned parent reference would indicate corrupted data; those segments
// are promoted to roots rather than dropped.
func buildSegmentTree(segments []*domain.Segment, blocks []*domain.SegmentBlock, assets []*domain.SegmentAsset, annotations []*domain.SegmentAnnotation) []*SegmentNode {
	nodes := make(map[string]*SegmentNode, len(segments))
	for _, segment := range segments {
		nodes[segment.ID] = &SegmentNode{Segment: segment}
	}
	for _, block := range blocks {
		if node, ok := nodes[block.SegmentID]; ok {
			node.Blocks = append(node.Blocks, block)
		}
	}
	for _, asset := range assets {
		if node, ok := nodes[asset.SegmentID]; ok {
			node.Assets = append(node.Assets, asset)
		}
	}
	for _, annotation := range annotations {
		if node, ok := nodes[annotation.SegmentID]; ok {
			node.Annotations = append(node.Annotations, annotation)
		}
	}

	var roots []*SegmentNode
	for _, segment := range segments {
		node := nodes[segment.ID]
		if segment.ParentSegmentID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*segment.ParentSegmentID]
		if !ok {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	sortNodes(roots)
	for _, node := range nodes {
		sortNodes(node.Children)
		sort.SliceStable(node.Blocks, func(i, j int) bool {
			return node.Blocks[i].Sequence < node.Blocks[j].Sequence
		})
	}
	return roots
}

func sortNodes(nodes []*SegmentNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Segment.Sequence < nodes[j].Segment.Sequence
	})
}

// GetTranscript renders the latest version as a plain-text transcript: a
// depth-first walk over the segment tree, noise segments skipped.
func (s *DocumentService) GetTranscript(ctx context.Context, documentID string) (string, error) {
	view, err := s.GetDocumentView(ctx, documentID)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	var walk func(nodes []*SegmentNode)
	walk = func(nodes []*SegmentNode) {
		for _, node := range nodes {
			if !node.Segment.IsNoise && node.Segment.ContentMarkdown != "" {
				fmt.Fprintf(&builder, "%s: %s\n\n", node.Segment.SourceRole, node.Segment.ContentMarkdown)
			}
			walk(node.Children)
		}
	}
	walk(view.Segments)
	return strings.TrimRight(builder.String(), "\n"), nil
}
