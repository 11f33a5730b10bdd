// Package index implements similarity search over embedded document
// fragments, filtered by department.
//
// The department filter is part of the candidate query itself, never a
// post-hoc trim of an unrestricted top-k: a disallowed fragment is excluded
// before it can crowd out allowed content or reach the generation step.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"

	"github.com/finsolve/chatbot/internal/access"
)

// searchTimeout bounds a single vector search, embedding included.
const searchTimeout = 10 * time.Second

// VectorDimension is the embedding width of the fragments table
// (db/migrations/0001_create_fragments.up.sql). gemini-embedding-001
// outputs 3072 dimensions by default but supports truncation via
// OutputDimensionality; every embed call must request this width or
// Postgres rejects the vector.
const VectorDimension int32 = 768

// SearchFragmentsParams carries one filtered vector search.
type SearchFragmentsParams struct {
	QueryEmbedding *pgvector.Vector
	Departments    []string // hard filter, applied inside the SQL
	ResultLimit    int32
}

// SearchFragmentsRow is one row of a filtered vector search.
type SearchFragmentsRow struct {
	ID         string
	Content    string
	Department string
	SourceFile string
	UpdatedAt  pgtype.Timestamptz
	Similarity float32
}

// UpsertFragmentParams carries one fragment write.
type UpsertFragmentParams struct {
	ID         string
	Content    string
	Embedding  *pgvector.Vector
	Department string
	SourceFile string
	UpdatedAt  pgtype.Timestamptz
}

// Querier is the database seam for fragment storage. Defined here, by the
// consumer, so tests can substitute a mock and the pgx implementation stays
// swappable.
type Querier interface {
	// SearchFragments runs a department-filtered vector search.
	SearchFragments(ctx context.Context, arg SearchFragmentsParams) ([]SearchFragmentsRow, error)

	// UpsertFragment inserts or replaces a fragment.
	UpsertFragment(ctx context.Context, arg UpsertFragmentParams) error

	// CountFragments returns the total number of stored fragments.
	CountFragments(ctx context.Context) (int64, error)
}

// Store provides embedding generation plus filtered vector search over the
// fragments table. Reads are safe for concurrent use; writes happen only
// during ingestion, while the index is otherwise idle.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a Store. A nil logger falls back to slog.Default().
func New(querier Querier, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger,
	}
}

// Search returns at most k fragments relevant to query, restricted to the
// allowed departments. Ranking is similarity descending, ties broken by the
// most recent UpdatedAt, then by stable input order.
//
// An empty result is a normal outcome, not an error: it means nothing the
// caller may see matched. An empty allowed set short-circuits to an empty
// result without touching the embedder or the database.
func (s *Store) Search(ctx context.Context, query string, k int, allowed []access.Department) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("index: invalid top-k %d", k)
	}
	if len(allowed) == 0 {
		return nil, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	queryEmbedding, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding generation timeout: %w", err)
		}
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	departments := make([]string, len(allowed))
	for i, d := range allowed {
		departments[i] = string(d)
	}

	rows, err := s.queries.SearchFragments(queryCtx, SearchFragmentsParams{
		QueryEmbedding: queryEmbedding,
		Departments:    departments,
		ResultLimit:    int32(k), // #nosec G115 -- k validated above, bounded by config.MaxTopK
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("searching fragments: %w", err)
	}

	matches := rowsToMatches(rows)
	rankMatches(matches)
	return matches, nil
}

// Add embeds and upserts one fragment. Used by ingestion only.
func (s *Store) Add(ctx context.Context, frag Fragment) error {
	if !frag.Department.Valid() {
		// Malformed department tags must never enter the index: everything
		// downstream assumes the tag is a member of the closed set.
		panic(fmt.Sprintf("index: fragment %q has malformed department %q", frag.ID, frag.Department))
	}

	embedding, err := s.embed(ctx, frag.Content)
	if err != nil {
		return fmt.Errorf("embedding fragment %q: %w", frag.ID, err)
	}

	err = s.queries.UpsertFragment(ctx, UpsertFragmentParams{
		ID:         frag.ID,
		Content:    frag.Content,
		Embedding:  embedding,
		Department: string(frag.Department),
		SourceFile: frag.SourceFile,
		UpdatedAt:  pgtype.Timestamptz{Time: frag.UpdatedAt, Valid: !frag.UpdatedAt.IsZero()},
	})
	if err != nil {
		return fmt.Errorf("upserting fragment %q: %w", frag.ID, err)
	}

	s.logger.Debug("added fragment",
		"id", frag.ID,
		"department", frag.Department,
		"source", frag.SourceFile,
		"content_length", len(frag.Content))
	return nil
}

// Count returns the number of stored fragments.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.queries.CountFragments(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting fragments: %w", err)
	}
	return int(n), nil
}

func (s *Store) embed(ctx context.Context, text string) (*pgvector.Vector, error) {
	dim := VectorDimension
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, errors.New("embedder returned empty embedding")
	}
	v := pgvector.NewVector(resp.Embeddings[0].Embedding)
	return &v, nil
}

func rowsToMatches(rows []SearchFragmentsRow) []Match {
	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		var updated time.Time
		if row.UpdatedAt.Valid {
			updated = row.UpdatedAt.Time
		}
		matches = append(matches, Match{
			Fragment: Fragment{
				ID:         row.ID,
				Content:    row.Content,
				Department: access.Department(row.Department),
				SourceFile: row.SourceFile,
				UpdatedAt:  updated,
			},
			Similarity: row.Similarity,
		})
	}
	return matches
}

// rankMatches enforces the ranking contract in-process: similarity
// descending, then most-recent UpdatedAt, then stable input order. The SQL
// already orders by distance; re-sorting keeps the contract independent of
// the Querier implementation.
func rankMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Fragment.UpdatedAt.After(matches[j].Fragment.UpdatedAt)
	})
}
