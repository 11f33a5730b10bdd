package index

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGQuerier implements Querier against PostgreSQL + pgvector.
//
// The department restriction lives in the WHERE clause, so the candidate
// pool itself is constrained; disallowed rows never compete for the LIMIT.
type PGQuerier struct {
	pool *pgxpool.Pool
}

// NewPGQuerier wraps a pgx pool. The pool's lifetime is owned by the caller.
func NewPGQuerier(pool *pgxpool.Pool) *PGQuerier {
	return &PGQuerier{pool: pool}
}

const searchFragmentsSQL = `
SELECT id, content, department, source_file, updated_at,
       (1 - (embedding <=> $1))::float4 AS similarity
FROM fragments
WHERE department = ANY($2)
ORDER BY embedding <=> $1, updated_at DESC, id
LIMIT $3
`

// SearchFragments runs a department-filtered cosine similarity search.
func (q *PGQuerier) SearchFragments(ctx context.Context, arg SearchFragmentsParams) ([]SearchFragmentsRow, error) {
	rows, err := q.pool.Query(ctx, searchFragmentsSQL,
		arg.QueryEmbedding, arg.Departments, arg.ResultLimit)
	if err != nil {
		return nil, fmt.Errorf("querying fragments: %w", err)
	}
	defer rows.Close()

	var out []SearchFragmentsRow
	for rows.Next() {
		var r SearchFragmentsRow
		if err := rows.Scan(&r.ID, &r.Content, &r.Department, &r.SourceFile, &r.UpdatedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning fragment row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading fragment rows: %w", err)
	}
	return out, nil
}

const upsertFragmentSQL = `
INSERT INTO fragments (id, content, embedding, department, source_file, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    content = EXCLUDED.content,
    embedding = EXCLUDED.embedding,
    department = EXCLUDED.department,
    source_file = EXCLUDED.source_file,
    updated_at = EXCLUDED.updated_at
`

// UpsertFragment inserts or replaces one fragment.
func (q *PGQuerier) UpsertFragment(ctx context.Context, arg UpsertFragmentParams) error {
	_, err := q.pool.Exec(ctx, upsertFragmentSQL,
		arg.ID, arg.Content, arg.Embedding, arg.Department, arg.SourceFile, arg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting fragment: %w", err)
	}
	return nil
}

// CountFragments returns the total number of stored fragments.
func (q *PGQuerier) CountFragments(ctx context.Context) (int64, error) {
	var n int64
	err := q.pool.QueryRow(ctx, `SELECT count(*) FROM fragments`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting fragments: %w", err)
	}
	return n, nil
}

// Ping verifies connectivity; used by the readiness probe.
func (q *PGQuerier) Ping(ctx context.Context) error {
	return q.pool.Ping(ctx)
}

var _ Querier = (*PGQuerier)(nil)
