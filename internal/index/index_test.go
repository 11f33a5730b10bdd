package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/finsolve/chatbot/internal/access"
	"github.com/finsolve/chatbot/internal/log"
)

// mockEmbedder implements ai.Embedder for testing.
type mockEmbedder struct {
	embedErr    error
	returnEmpty bool
	callCount   int
	lastInput   string
	lastOptions any
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(api.Registry) {}

func (m *mockEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++
	m.lastOptions = req.Options
	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		m.lastInput = req.Input[0].Content[0].Text
	}
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	if m.returnEmpty {
		return &ai.EmbedResponse{Embeddings: []*ai.Embedding{{Embedding: []float32{}}}}, nil
	}
	return &ai.EmbedResponse{
		Embeddings: []*ai.Embedding{{Embedding: []float32{0.1, 0.2, 0.3}}},
	}, nil
}

// mockQuerier implements Querier for testing.
type mockQuerier struct {
	searchRows []SearchFragmentsRow
	searchErr  error
	upsertErr  error
	count      int64

	searchCalls int
	upsertCalls int
	lastSearch  SearchFragmentsParams
	lastUpsert  UpsertFragmentParams
}

func (m *mockQuerier) SearchFragments(_ context.Context, arg SearchFragmentsParams) ([]SearchFragmentsRow, error) {
	m.searchCalls++
	m.lastSearch = arg
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.searchRows, nil
}

func (m *mockQuerier) UpsertFragment(_ context.Context, arg UpsertFragmentParams) error {
	m.upsertCalls++
	m.lastUpsert = arg
	return m.upsertErr
}

func (m *mockQuerier) CountFragments(context.Context) (int64, error) {
	return m.count, nil
}

func ts(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func TestSearch_PassesDepartmentFilterToQuery(t *testing.T) {
	q := &mockQuerier{}
	store := New(q, &mockEmbedder{}, log.NewNop())

	_, err := store.Search(context.Background(), "quarterly revenue", 5,
		access.AllowedDepartments(access.RoleFinance))
	require.NoError(t, err)

	require.Equal(t, 1, q.searchCalls)
	assert.Equal(t, []string{"general", "finance"}, q.lastSearch.Departments)
	assert.Equal(t, int32(5), q.lastSearch.ResultLimit)
}

func TestEmbed_RequestsSchemaDimension(t *testing.T) {
	// gemini-embedding-001 returns 3072 dimensions unless truncation is
	// requested; the fragments table stores vector(768). Both search and add
	// must ask the embedder for the schema's width.
	emb := &mockEmbedder{}
	store := New(&mockQuerier{}, emb, log.NewNop())

	_, err := store.Search(context.Background(), "q", 3, []access.Department{access.DeptGeneral})
	require.NoError(t, err)

	opts, ok := emb.lastOptions.(*genai.EmbedContentConfig)
	require.True(t, ok, "embed request must carry EmbedContentConfig options")
	require.NotNil(t, opts.OutputDimensionality)
	assert.Equal(t, VectorDimension, *opts.OutputDimensionality)

	emb.lastOptions = nil
	err = store.Add(context.Background(), Fragment{
		ID:         "f1",
		Content:    "text",
		Department: access.DeptGeneral,
		SourceFile: "general/doc.md",
	})
	require.NoError(t, err)

	opts, ok = emb.lastOptions.(*genai.EmbedContentConfig)
	require.True(t, ok, "embed request must carry EmbedContentConfig options")
	require.NotNil(t, opts.OutputDimensionality)
	assert.Equal(t, VectorDimension, *opts.OutputDimensionality)
}

func TestSearch_EmptyAllowedSetShortCircuits(t *testing.T) {
	q := &mockQuerier{}
	emb := &mockEmbedder{}
	store := New(q, emb, log.NewNop())

	matches, err := store.Search(context.Background(), "anything", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Zero(t, emb.callCount, "must not embed when nothing is searchable")
	assert.Zero(t, q.searchCalls, "must not query when nothing is searchable")
}

func TestSearch_EmptyResultIsNotAnError(t *testing.T) {
	store := New(&mockQuerier{}, &mockEmbedder{}, log.NewNop())

	matches, err := store.Search(context.Background(), "no such topic", 3,
		[]access.Department{access.DeptGeneral})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearch_RankingTieBreaks(t *testing.T) {
	older := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	q := &mockQuerier{
		searchRows: []SearchFragmentsRow{
			{ID: "a", Similarity: 0.80, UpdatedAt: ts(older)},
			{ID: "b", Similarity: 0.90, UpdatedAt: ts(older)},
			{ID: "c", Similarity: 0.90, UpdatedAt: ts(newer)},
			{ID: "d", Similarity: 0.80, UpdatedAt: ts(older)}, // ties with a on both keys
		},
	}
	store := New(q, &mockEmbedder{}, log.NewNop())

	matches, err := store.Search(context.Background(), "q", 4,
		[]access.Department{access.DeptGeneral})
	require.NoError(t, err)
	require.Len(t, matches, 4)

	// Similarity desc, then newest updated, then stable input order.
	assert.Equal(t, "c", matches[0].Fragment.ID)
	assert.Equal(t, "b", matches[1].Fragment.ID)
	assert.Equal(t, "a", matches[2].Fragment.ID)
	assert.Equal(t, "d", matches[3].Fragment.ID)
}

func TestSearch_EmbedderFailure(t *testing.T) {
	store := New(&mockQuerier{}, &mockEmbedder{embedErr: errors.New("quota")}, log.NewNop())

	_, err := store.Search(context.Background(), "q", 3, []access.Department{access.DeptGeneral})
	assert.Error(t, err)
}

func TestSearch_EmptyEmbedding(t *testing.T) {
	store := New(&mockQuerier{}, &mockEmbedder{returnEmpty: true}, log.NewNop())

	_, err := store.Search(context.Background(), "q", 3, []access.Department{access.DeptGeneral})
	assert.Error(t, err)
}

func TestSearch_InvalidTopK(t *testing.T) {
	store := New(&mockQuerier{}, &mockEmbedder{}, log.NewNop())

	_, err := store.Search(context.Background(), "q", 0, []access.Department{access.DeptGeneral})
	assert.Error(t, err)
}

func TestAdd_EmbedsAndUpserts(t *testing.T) {
	q := &mockQuerier{}
	emb := &mockEmbedder{}
	store := New(q, emb, log.NewNop())

	updated := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	err := store.Add(context.Background(), Fragment{
		ID:         "doc_0_chunk_1",
		Content:    "Q1 revenue grew 12% year over year.",
		Department: access.DeptFinance,
		SourceFile: "quarterly_financial_report.md",
		UpdatedAt:  updated,
	})
	require.NoError(t, err)

	require.Equal(t, 1, q.upsertCalls)
	assert.Equal(t, "doc_0_chunk_1", q.lastUpsert.ID)
	assert.Equal(t, "finance", q.lastUpsert.Department)
	assert.Equal(t, "quarterly_financial_report.md", q.lastUpsert.SourceFile)
	assert.True(t, q.lastUpsert.UpdatedAt.Valid)
	assert.Equal(t, "Q1 revenue grew 12% year over year.", emb.lastInput)
}

func TestAdd_MalformedDepartmentPanics(t *testing.T) {
	store := New(&mockQuerier{}, &mockEmbedder{}, log.NewNop())

	assert.Panics(t, func() {
		_ = store.Add(context.Background(), Fragment{
			ID:         "x",
			Content:    "text",
			Department: access.Department("legal"),
		})
	})
}

func TestCount(t *testing.T) {
	store := New(&mockQuerier{count: 42}, &mockEmbedder{}, log.NewNop())

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}
