package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pauldavis/2brain/internal/domain"
	"github.com/pgvector/pgvector-go"
)

type SegmentRepository struct {
	db dbtx
}

func NewSegmentRepository(pool *pgxpool.Pool) *SegmentRepository {
	return &SegmentRepository{db: pool}
}

func NewSegmentRepositoryWithTx(tx pgx.Tx) *SegmentRepository {
	return &SegmentRepository{db: tx}
}

// Create inserts a segment. The search vector is derived from the plaintext
// projection at insert time; segments are immutable so it never needs
// refreshing.
func (r *SegmentRepository) Create(ctx context.Context, s *domain.Segment) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO document_segments (id, document_version_id, parent_segment_id, sequence, source_role, segment_type,
		                       content_markdown, plaintext, content_json, started_at, ended_at, raw_reference,
		                       content_checksum, quality_score, is_noise, embedding_status, search_tsv)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, to_tsvector('english', $8))`,
		s.ID, s.DocumentVersionID, s.ParentSegmentID, s.Sequence, s.SourceRole, s.SegmentType,
		s.ContentMarkdown, s.Plaintext, s.ContentJSON, s.StartedAt, s.EndedAt, nullableString(s.RawReference),
		s.ContentChecksum, s.QualityScore, s.IsNoise, s.EmbeddingStatus,
	)
	return err
}

func (r *SegmentRepository) CreateBlock(ctx context.Context, b *domain.SegmentBlock) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO segment_blocks (id, segment_id, sequence, block_type, language, body, raw_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.SegmentID, b.Sequence, b.BlockType, nullableString(b.Language), b.Body, b.RawData,
	)
	return err
}

func (r *SegmentRepository) CreateAsset(ctx context.Context, a *domain.SegmentAsset) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO segment_assets (id, segment_id, asset_type, file_name, mime_type, size_bytes,
		                             local_path, source_reference, sha256, storage_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.SegmentID, a.AssetType, nullableString(a.FileName), nullableString(a.MimeType), a.SizeBytes,
		nullableString(a.LocalPath), nullableString(a.SourceReference), nullableString(a.SHA256), nullableString(a.StorageKey), createdAt,
	)
	return err
}

func (r *SegmentRepository) CreateAnnotation(ctx context.Context, a *domain.SegmentAnnotation) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO segment_annotations (id, segment_id, annotation_type, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.SegmentID, a.AnnotationType, a.Payload, createdAt,
	)
	return err
}

const segmentColumns = `id, document_version_id, parent_segment_id, sequence, source_role, segment_type,
	        content_markdown, plaintext, content_json, started_at, ended_at, raw_reference,
	        content_checksum, quality_score, is_noise, embedding_status`

func (r *SegmentRepository) GetByID(ctx context.Context, id string) (*domain.Segment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+segmentColumns+` FROM document_segments WHERE id = $1`, id)
	segment, err := scanSegment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSegmentNotFound
		}
		return nil, err
	}
	return segment, nil
}

func (r *SegmentRepository) ListByVersion(ctx context.Context, versionID string) ([]*domain.Segment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+segmentColumns+` FROM document_segments
		 WHERE document_version_id = $1
		 ORDER BY parent_segment_id NULLS FIRST, sequence ASC`,
		versionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSegmentRows(rows)
}

// ListPending returns segments awaiting embedding, oldest version first.
// Rows already claimed by a concurrent drain are skipped.
func (r *SegmentRepository) ListPending(ctx context.Context, limit int) ([]*domain.Segment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+segmentColumns+` FROM document_segments
		 WHERE embedding_status = $1
		 ORDER BY document_version_id ASC, sequence ASC
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		domain.EmbeddingStatusPending, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSegmentRows(rows)
}

func (r *SegmentRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE document_segments SET embedding = $1, embedding_status = $2 WHERE id = $3`,
		pgvector.NewVector(embedding), domain.EmbeddingStatusReady, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrSegmentNotFound
	}
	return nil
}

func (r *SegmentRepository) UpdateStatus(ctx context.Context, id string, status domain.EmbeddingStatus) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE document_segments SET embedding_status = $1 WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrSegmentNotFound
	}
	return nil
}

func (r *SegmentRepository) ListBlocksByVersion(ctx context.Context, versionID string) ([]*domain.SegmentBlock, error) {
	rows, err := r.db.Query(ctx,
		`SELECT b.id, b.segment_id, b.sequence, b.block_type, b.language, b.body, b.raw_data
		 FROM segment_blocks b
		 JOIN document_segments s ON s.id = b.segment_id
		 WHERE s.document_version_id = $1
		 ORDER BY b.segment_id, b.sequence ASC`,
		versionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []*domain.SegmentBlock
	for rows.Next() {
		var b domain.SegmentBlock
		var language pgtype.Text
		if err := rows.Scan(&b.ID, &b.SegmentID, &b.Sequence, &b.BlockType, &language, &b.Body, &b.RawData); err != nil {
			return nil, err
		}
		if language.Valid {
			b.Language = language.String
		}
		blocks = append(blocks, &b)
	}
	return blocks, rows.Err()
}

func (r *SegmentRepository) ListAssetsByVersion(ctx context.Context, versionID string) ([]*domain.SegmentAsset, error) {
	rows, err := r.db.Query(ctx,
		`SELECT a.id, a.segment_id, a.asset_type, a.file_name, a.mime_type, a.size_bytes,
		        a.local_path, a.source_reference, a.sha256, a.storage_key, a.created_at
		 FROM segment_assets a
		 JOIN document_segments s ON s.id = a.segment_id
		 WHERE s.document_version_id = $1
		 ORDER BY a.segment_id, a.created_at ASC, a.id ASC`,
		versionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*domain.SegmentAsset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

func (r *SegmentRepository) ListAnnotationsByVersion(ctx context.Context, versionID string) ([]*domain.SegmentAnnotation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT a.id, a.segment_id, a.annotation_type, a.payload, a.created_at
		 FROM segment_annotations a
		 JOIN document_segments s ON s.id = a.segment_id
		 WHERE s.document_version_id = $1
		 ORDER BY a.segment_id, a.created_at ASC, a.id ASC`,
		versionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var annotations []*domain.SegmentAnnotation
	for rows.Next() {
		var a domain.SegmentAnnotation
		if err := rows.Scan(&a.ID, &a.SegmentID, &a.AnnotationType, &a.Payload, &a.CreatedAt); err != nil {
			return nil, err
		}
		annotations = append(annotations, &a)
	}
	return annotations, rows.Err()
}

func (r *SegmentRepository) GetAsset(ctx context.Context, id string) (*domain.SegmentAsset, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, segment_id, asset_type, file_name, mime_type, size_bytes,
		        local_path, source_reference, sha256, storage_key, created_at
		 FROM segment_assets WHERE id = $1`,
		id,
	)
	asset, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAttachmentNotFound
		}
		return nil, err
	}
	return asset, nil
}

// SetAssetStorage records the object key and content hash after an asset's
// bytes were uploaded.
func (r *SegmentRepository) SetAssetStorage(ctx context.Context, id, storageKey string, sha256 string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE segment_assets SET storage_key = $1, sha256 = $2 WHERE id = $3`,
		storageKey, sha256, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrAttachmentNotFound
	}
	return nil
}

func scanSegment(row pgx.Row) (*domain.Segment, error) {
	var s domain.Segment
	var rawReference pgtype.Text
	err := row.Scan(&s.ID, &s.DocumentVersionID, &s.ParentSegmentID, &s.Sequence, &s.SourceRole, &s.SegmentType,
		&s.ContentMarkdown, &s.Plaintext, &s.ContentJSON, &s.StartedAt, &s.EndedAt, &rawReference,
		&s.ContentChecksum, &s.QualityScore, &s.IsNoise, &s.EmbeddingStatus)
	if err != nil {
		return nil, err
	}
	if rawReference.Valid {
		s.RawReference = rawReference.String
	}
	return &s, nil
}

func scanSegmentRows(rows pgx.Rows) ([]*domain.Segment, error) {
	var segments []*domain.Segment
	for rows.Next() {
		segment, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, segment)
	}
	return segments, rows.Err()
}

func scanAsset(row pgx.Row) (*domain.SegmentAsset, error) {
	var a domain.SegmentAsset
	var fileName, mimeType, localPath, sourceReference, sha, storageKey pgtype.Text
	err := row.Scan(&a.ID, &a.SegmentID, &a.AssetType, &fileName, &mimeType, &a.SizeBytes,
		&localPath, &sourceReference, &sha, &storageKey, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if sha.Valid {
		a.SHA256 = sha.String
	}
	if fileName.Valid {
		a.FileName = fileName.String
	}
	if mimeType.Valid {
		a.MimeType = mimeType.String
	}
	if localPath.Valid {
		a.LocalPath = localPath.String
	}
	if sourceReference.Valid {
		a.SourceReference = sourceReference.String
	}
	if storageKey.Valid {
		a.StorageKey = storageKey.String
	}
	return &a, nil
}
