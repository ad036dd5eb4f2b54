package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pauldavis/2brain/internal/domain"
)

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

// Upsert inserts the document or refreshes its mutable attributes when the
// (source_system, external_id) pair already exists, returning the row's id
// either way. The bool reports whether a new row was inserted; xmax is zero
// only for freshly inserted tuples.
func (r *DocumentRepository) Upsert(ctx context.Context, d *domain.Document) (string, bool, error) {
	var id string
	var inserted bool
	err := r.db.QueryRow(ctx,
		`INSERT INTO documents (id, source_system, external_id, title, summary, created_at, updated_at, raw_metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (source_system, external_id) DO UPDATE
		 SET title = EXCLUDED.title,
		     summary = EXCLUDED.summary,
		     updated_at = EXCLUDED.updated_at,
		     raw_metadata = EXCLUDED.raw_metadata
		 RETURNING id, (xmax = 0)`,
		d.ID, d.SourceSystem, d.ExternalID, d.Title, nullableString(d.Summary), d.CreatedAt, d.UpdatedAt, d.RawMetadata,
	).Scan(&id, &inserted)
	if err != nil {
		return "", false, err
	}
	return id, inserted, nil
}

// CreateVersion inserts a version row. The (document_id, checksum) unique
// constraint makes the insert a silent no-op for an already-ingested payload;
// the return value reports whether a row was actually written.
func (r *DocumentRepository) CreateVersion(ctx context.Context, v *domain.DocumentVersion) (bool, error) {
	cmdTag, err := r.db.Exec(ctx,
		`INSERT INTO document_versions (id, document_id, ingested_at, source_path, checksum, raw_payload,
		                                ingest_batch_id, ingested_by, ingest_source, ingest_version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (document_id, checksum) DO NOTHING`,
		v.ID, v.DocumentID, v.IngestedAt, nullableString(v.SourcePath), v.Checksum, v.RawPayload,
		nullableString(v.IngestBatchID), nullableString(v.IngestedBy), nullableString(v.IngestSource), nullableString(v.IngestVersion),
	)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() == 1, nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return r.getDocument(ctx,
		`SELECT id, source_system, external_id, title, summary, created_at, updated_at, raw_metadata
		 FROM documents WHERE id = $1`, id)
}

func (r *DocumentRepository) GetBySourceKey(ctx context.Context, source domain.SourceSystem, externalID string) (*domain.Document, error) {
	return r.getDocument(ctx,
		`SELECT id, source_system, external_id, title, summary, created_at, updated_at, raw_metadata
		 FROM documents WHERE source_system = $1 AND external_id = $2`, source, externalID)
}

func (r *DocumentRepository) getDocument(ctx context.Context, query string, args ...any) (*domain.Document, error) {
	var d domain.Document
	var summary pgtype.Text
	err := r.db.QueryRow(ctx, query, args...).
		Scan(&d.ID, &d.SourceSystem, &d.ExternalID, &d.Title, &summary, &d.CreatedAt, &d.UpdatedAt, &d.RawMetadata)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	if summary.Valid {
		d.Summary = summary.String
	}
	return &d, nil
}

func (r *DocumentRepository) GetLatestVersion(ctx context.Context, documentID string) (*domain.DocumentVersion, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, document_id, ingested_at, source_path, checksum, raw_payload,
		        ingest_batch_id, ingested_by, ingest_source, ingest_version
		 FROM document_versions
		 WHERE document_id = $1
		 ORDER BY ingested_at DESC, id DESC
		 LIMIT 1`,
		documentID,
	)
	version, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrVersionNotFound
		}
		return nil, err
	}
	return version, nil
}

func (r *DocumentRepository) GetVersions(ctx context.Context, documentID string) ([]*domain.DocumentVersion, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, ingested_at, source_path, checksum, raw_payload,
		        ingest_batch_id, ingested_by, ingest_source, ingest_version
		 FROM document_versions
		 WHERE document_id = $1
		 ORDER BY ingested_at DESC, id DESC`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*domain.DocumentVersion
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func scanVersion(row pgx.Row) (*domain.DocumentVersion, error) {
	var v domain.DocumentVersion
	var sourcePath, batchID, ingestedBy, ingestSource, ingestVersion pgtype.Text
	err := row.Scan(&v.ID, &v.DocumentID, &v.IngestedAt, &sourcePath, &v.Checksum, &v.RawPayload,
		&batchID, &ingestedBy, &ingestSource, &ingestVersion)
	if err != nil {
		return nil, err
	}
	if sourcePath.Valid {
		v.SourcePath = sourcePath.String
	}
	if batchID.Valid {
		v.IngestBatchID = batchID.String
	}
	if ingestedBy.Valid {
		v.IngestedBy = ingestedBy.String
	}
	if ingestSource.Valid {
		v.IngestSource = ingestSource.String
	}
	if ingestVersion.Valid {
		v.IngestVersion = ingestVersion.String
	}
	return &v, nil
}
