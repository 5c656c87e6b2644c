package knowledge

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Querier is the database surface the Store depends on. It is defined
// here, on the consumer side, so tests can substitute an in-memory
// implementation.
type Querier interface {
	UpsertFragment(ctx context.Context, arg UpsertFragmentParams) error
	SearchFragments(ctx context.Context, arg SearchFragmentsParams) ([]SearchFragmentsRow, error)
	CountFragments(ctx context.Context, filterMetadata []byte) (int64, error)
	DeleteFragmentsByFilter(ctx context.Context, filterMetadata []byte) (int64, error)
}

type UpsertFragmentParams struct {
	ID        string
	Content   string
	Embedding *pgvector.Vector
	Metadata  []byte
	CreatedAt pgtype.Timestamptz
}

type SearchFragmentsParams struct {
	QueryEmbedding *pgvector.Vector
	// FilterMetadata is a JSONB containment filter; nil disables it.
	FilterMetadata []byte
	// ExcludePageIDs removes fragments whose metadata page_id is in
	// the list; empty disables it.
	ExcludePageIDs []string
	ResultLimit    int32
}

type SearchFragmentsRow struct {
	ID         string
	Content    string
	Metadata   []byte
	CreatedAt  pgtype.Timestamptz
	Similarity float32
}

// PgxQuerier implements Querier on a pgx connection pool.
type PgxQuerier struct {
	pool *pgxpool.Pool
}

func NewPgxQuerier(pool *pgxpool.Pool) *PgxQuerier {
	return &PgxQuerier{pool: pool}
}

const upsertFragmentSQL = `
INSERT INTO fragments (id, content, embedding, metadata, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    content    = EXCLUDED.content,
    embedding  = EXCLUDED.embedding,
    metadata   = EXCLUDED.metadata,
    created_at = EXCLUDED.created_at`

func (q *PgxQuerier) UpsertFragment(ctx context.Context, arg UpsertFragmentParams) error {
	_, err := q.pool.Exec(ctx, upsertFragmentSQL,
		arg.ID, arg.Content, arg.Embedding, arg.Metadata, arg.CreatedAt)
	return err
}

// searchFragmentsSQL orders by cosine distance; similarity is reported
// as 1 - distance. The jsonb and text[] parameters are optional and
// disabled by NULL / empty array.
const searchFragmentsSQL = `
SELECT id, content, metadata, created_at,
       1 - (embedding <=> $1) AS similarity
FROM fragments
WHERE ($2::jsonb IS NULL OR metadata @> $2)
  AND (cardinality($3::text[]) = 0 OR metadata->>'page_id' <> ALL($3))
ORDER BY embedding <=> $1
LIMIT $4`

func (q *PgxQuerier) SearchFragments(ctx context.Context, arg SearchFragmentsParams) ([]SearchFragmentsRow, error) {
	exclude := arg.ExcludePageIDs
	if exclude == nil {
		exclude = []string{}
	}
	rows, err := q.pool.Query(ctx, searchFragmentsSQL,
		arg.QueryEmbedding, arg.FilterMetadata, exclude, arg.ResultLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SearchFragmentsRow
	for rows.Next() {
		var r SearchFragmentsRow
		if err := rows.Scan(&r.ID, &r.Content, &r.Metadata, &r.CreatedAt, &r.Similarity); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const countFragmentsSQL = `
SELECT count(*) FROM fragments
WHERE ($1::jsonb IS NULL OR metadata @> $1)`

func (q *PgxQuerier) CountFragments(ctx context.Context, filterMetadata []byte) (int64, error) {
	var count int64
	err := q.pool.QueryRow(ctx, countFragmentsSQL, filterMetadata).Scan(&count)
	return count, err
}

const deleteFragmentsSQL = `
DELETE FROM fragments WHERE metadata @> $1`

func (q *PgxQuerier) DeleteFragmentsByFilter(ctx context.Context, filterMetadata []byte) (int64, error) {
	tag, err := q.pool.Exec(ctx, deleteFragmentsSQL, filterMetadata)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Querier = (*PgxQuerier)(nil)
