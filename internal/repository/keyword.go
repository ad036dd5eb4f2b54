package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pauldavis/2brain/internal/domain"
)

type KeywordRepository struct {
	db dbtx
}

func NewKeywordRepository(pool *pgxpool.Pool) *KeywordRepository {
	return &KeywordRepository{db: pool}
}

func NewKeywordRepositoryWithTx(tx pgx.Tx) *KeywordRepository {
	return &KeywordRepository{db: tx}
}

// UpsertKeyword inserts a vocabulary term or returns the existing row when
// the term is already known.
func (r *KeywordRepository) UpsertKeyword(ctx context.Context, k *domain.Keyword) (*domain.Keyword, error) {
	var out domain.Keyword
	var description pgtype.Text
	err := r.db.QueryRow(ctx,
		`INSERT INTO keywords (id, term, description)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (term) DO UPDATE SET term = EXCLUDED.term
		 RETURNING id, term, description`,
		k.ID, k.Term, nullableString(k.Description),
	).Scan(&out.ID, &out.Term, &description)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		out.Description = description.String
	}
	return &out, nil
}

func (r *KeywordRepository) LinkDocument(ctx context.Context, documentID, keywordID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO document_keywords (document_id, keyword_id)
		 VALUES ($1, $2)
		 ON CONFLICT (document_id, keyword_id) DO NOTHING`,
		documentID, keywordID,
	)
	return err
}

func (r *KeywordRepository) UnlinkDocument(ctx context.Context, documentID, keywordID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM document_keywords WHERE document_id = $1 AND keyword_id = $2`,
		documentID, keywordID,
	)
	return err
}

func (r *KeywordRepository) ListByDocument(ctx context.Context, documentID string) ([]*domain.Keyword, error) {
	rows, err := r.db.Query(ctx,
		`SELECT k.id, k.term, k.description
		 FROM keywords k
		 JOIN document_keywords dk ON dk.keyword_id = k.id
		 WHERE dk.document_id = $1
		 ORDER BY k.term ASC`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanKeywordRows(rows)
}

func (r *KeywordRepository) ListAll(ctx context.Context) ([]*domain.Keyword, error) {
	rows, err := r.db.Query(ctx, `SELECT id, term, description FROM keywords ORDER BY term ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanKeywordRows(rows)
}

func scanKeywordRows(rows pgx.Rows) ([]*domain.Keyword, error) {
	var keywords []*domain.Keyword
	for rows.Next() {
		var k domain.Keyword
		var description pgtype.Text
		if err := rows.Scan(&k.ID, &k.Term, &description); err != nil {
			return nil, err
		}
		if description.Valid {
			k.Description = description.String
		}
		keywords = append(keywords, &k)
	}
	return keywords, rows.Err()
}
