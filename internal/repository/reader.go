package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pauldavis/2brain/internal/domain"
	"github.com/pauldavis/2brain/internal/service"
)

// ReadRepository backs the document read model and full-text search. It
// composes the document and segment repositories over one pool.
type ReadRepository struct {
	db        dbtx
	documents *DocumentRepository
	segments  *SegmentRepository
	keywords  *KeywordRepository
}

func NewReadRepository(pool *pgxpool.Pool) *ReadRepository {
	return &ReadRepository{
		db:        pool,
		documents: &DocumentRepository{db: pool},
		segments:  &SegmentRepository{db: pool},
		keywords:  &KeywordRepository{db: pool},
	}
}

func (r *ReadRepository) GetDocumentByID(ctx context.Context, id string) (*domain.Document, error) {
	return r.documents.GetByID(ctx, id)
}

func (r *ReadRepository) GetDocumentBySourceKey(ctx context.Context, source domain.SourceSystem, externalID string) (*domain.Document, error) {
	return r.documents.GetBySourceKey(ctx, source, externalID)
}

func (r *ReadRepository) GetLatestVersion(ctx context.Context, documentID string) (*domain.DocumentVersion, error) {
	return r.documents.GetLatestVersion(ctx, documentID)
}

func (r *ReadRepository) GetVersions(ctx context.Context, documentID string) ([]*domain.DocumentVersion, error) {
	return r.documents.GetVersions(ctx, documentID)
}

func (r *ReadRepository) ListSegments(ctx context.Context, versionID string) ([]*domain.Segment, error) {
	return r.segments.ListByVersion(ctx, versionID)
}

func (r *ReadRepository) ListBlocks(ctx context.Context, versionID string) ([]*domain.SegmentBlock, error) {
	return r.segments.ListBlocksByVersion(ctx, versionID)
}

func (r *ReadRepository) ListAssets(ctx context.Context, versionID string) ([]*domain.SegmentAsset, error) {
	return r.segments.ListAssetsByVersion(ctx, versionID)
}

func (r *ReadRepository) ListAnnotations(ctx context.Context, versionID string) ([]*domain.SegmentAnnotation, error) {
	return r.segments.ListAnnotationsByVersion(ctx, versionID)
}

func (r *ReadRepository) ListKeywords(ctx context.Context, documentID string) ([]*domain.Keyword, error) {
	return r.keywords.ListByDocument(ctx, documentID)
}

// ListDocuments returns one summary row per document with counts computed
// against its latest version.
func (r *ReadRepository) ListDocuments(ctx context.Context, input service.ListDocumentsInput) ([]*service.DocumentSummary, error) {
	query := `
		SELECT d.id, d.source_system, d.external_id, d.title, d.summary, d.created_at, d.updated_at,
		       (SELECT count(*) FROM document_versions v WHERE v.document_id = d.id) AS version_count,
		       lv.id, lv.ingested_at,
		       (SELECT count(*) FROM document_segments s WHERE s.document_version_id = lv.id) AS segment_count,
		       COALESCE((SELECT sum(length(s.plaintext)) FROM document_segments s WHERE s.document_version_id = lv.id), 0) AS char_count
		FROM documents d
		JOIN LATERAL (
			SELECT v.id, v.ingested_at
			FROM document_versions v
			WHERE v.document_id = d.id
			ORDER BY v.ingested_at DESC, v.id DESC
			LIMIT 1
		) lv ON true`
	args := []any{}
	var conds []string

	if input.SourceSystem != "" {
		args = append(args, input.SourceSystem)
		conds = append(conds, fmt.Sprintf("d.source_system = $%d", len(args)))
	}
	if input.CursorUpdatedAt != nil && input.CursorID != "" {
		args = append(args, *input.CursorUpdatedAt, input.CursorID)
		conds = append(conds, fmt.Sprintf("(d.updated_at, d.id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}

	query += fmt.Sprintf(` ORDER BY d.updated_at DESC, d.id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, input.Limit, input.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*service.DocumentSummary
	for rows.Next() {
		var summary service.DocumentSummary
		var d domain.Document
		var v domain.DocumentVersion
		var docSummary *string
		if err := rows.Scan(&d.ID, &d.SourceSystem, &d.ExternalID, &d.Title, &docSummary, &d.CreatedAt, &d.UpdatedAt,
			&summary.VersionCount, &v.ID, &v.IngestedAt, &summary.SegmentCount, &summary.CharCount); err != nil {
			return nil, err
		}
		if docSummary != nil {
			d.Summary = *docSummary
		}
		v.DocumentID = d.ID
		summary.Document = &d
		summary.LatestVersion = &v
		summaries = append(summaries, &summary)
	}
	return summaries, rows.Err()
}

// Search runs a plainto_tsquery match over non-noise, embedding-ready
// segments of each document's latest version, ranked by ts_rank with a
// ts_headline snippet.
func (r *ReadRepository) Search(ctx context.Context, input service.SearchInput) ([]*service.SearchResult, error) {
	query := `
		SELECT s.id, d.id, d.title, d.source_system,
		       ts_headline('english', s.plaintext, plainto_tsquery('english', $1)) AS headline,
		       ts_rank(s.search_tsv, plainto_tsquery('english', $1)) AS rank
		FROM document_segments s
		JOIN document_versions v ON v.id = s.document_version_id
		JOIN documents d ON d.id = v.document_id
		WHERE s.search_tsv @@ plainto_tsquery('english', $1)
		  AND NOT s.is_noise
		  AND s.embedding_status = $2
		  AND v.id = (
			SELECT lv.id FROM document_versions lv
			WHERE lv.document_id = d.id
			ORDER BY lv.ingested_at DESC, lv.id DESC
			LIMIT 1
		  )`
	args := []any{input.Query, domain.EmbeddingStatusReady}

	if input.SourceSystem != "" {
		query += fmt.Sprintf(` AND d.source_system = $%d`, len(args)+1)
		args = append(args, input.SourceSystem)
	}
	if input.SourceRole != "" {
		query += fmt.Sprintf(` AND s.source_role = $%d`, len(args)+1)
		args = append(args, input.SourceRole)
	}
	if input.DocumentID != "" {
		query += fmt.Sprintf(` AND d.id = $%d`, len(args)+1)
		args = append(args, input.DocumentID)
	}

	query += fmt.Sprintf(` ORDER BY rank DESC, s.id ASC LIMIT $%d`, len(args)+1)
	args = append(args, input.Limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*service.SearchResult
	for rows.Next() {
		var result service.SearchResult
		var rank float32
		if err := rows.Scan(&result.SegmentID, &result.DocumentID, &result.DocumentTitle,
			&result.SourceSystem, &result.Headline, &rank); err != nil {
			return nil, err
		}
		result.Rank = float64(rank)
		results = append(results, &result)
	}
	return results, rows.Err()
}
