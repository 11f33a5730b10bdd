package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsolve/chatbot/internal/access"
	"github.com/finsolve/chatbot/internal/index"
	"github.com/finsolve/chatbot/internal/log"
)

type mockStore struct {
	fragments []index.Fragment
	failOn    string
}

func (m *mockStore) Add(_ context.Context, frag index.Fragment) error {
	if m.failOn != "" && strings.Contains(frag.SourceFile, m.failOn) {
		return fmt.Errorf("store unavailable")
	}
	m.fragments = append(m.fragments, frag)
	return nil
}

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRun_DepartmentFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "finance/q4_report.md", "revenue grew twelve percent")
	writeFile(t, dir, "general/handbook.md", "vacation policy is twenty days")

	store := &mockStore{}
	result, err := New(store, log.NewNop()).Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, result.FilesAdded)
	assert.Equal(t, 2, result.FragmentsAdded)
	require.Len(t, store.fragments, 2)

	byFile := map[string]index.Fragment{}
	for _, f := range store.fragments {
		byFile[f.SourceFile] = f
	}
	assert.Equal(t, access.DeptFinance, byFile["finance/q4_report.md"].Department)
	assert.Equal(t, access.DeptGeneral, byFile["general/handbook.md"].Department)
}

func TestRun_SkipsUnknownDepartmentAndExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "finance/report.md", "content")
	writeFile(t, dir, "legal/contract.md", "content")
	writeFile(t, dir, "finance/chart.png", "binary-ish")
	writeFile(t, dir, "loose.md", "no department")

	store := &mockStore{}
	result, err := New(store, log.NewNop()).Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, result.FilesAdded)
	assert.Equal(t, 3, result.FilesSkipped)
	assert.Equal(t, 0, result.FilesFailed)
}

func TestRun_StoreFailureDoesNotAbort(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hr/roster.csv", "name,role")
	writeFile(t, dir, "hr/policy.md", "remote work policy")

	store := &mockStore{failOn: "roster"}
	result, err := New(store, log.NewNop()).Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, result.FilesAdded)
	assert.Equal(t, 1, result.FilesFailed)
}

func TestRun_StableFragmentIDs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "marketing/plan.md", "launch the campaign in march")

	store := &mockStore{}
	ing := New(store, log.NewNop())

	_, err := ing.Run(context.Background(), dir)
	require.NoError(t, err)
	first := store.fragments[0].ID

	store.fragments = nil
	_, err = ing.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, first, store.fragments[0].ID)
}

func TestSplitWords_SingleChunk(t *testing.T) {
	chunks := SplitWords("one two three", 500, 50)
	require.Len(t, chunks, 1)
	assert.Equal(t, "one two three", chunks[0])
}

func TestSplitWords_Empty(t *testing.T) {
	assert.Nil(t, SplitWords("   \n\t ", 500, 50))
}

func TestSplitWords_Overlap(t *testing.T) {
	words := make([]string, 12)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	text := strings.Join(words, " ")

	chunks := SplitWords(text, 5, 2)
	require.Len(t, chunks, 4)
	assert.Equal(t, "w0 w1 w2 w3 w4", chunks[0])
	assert.Equal(t, "w3 w4 w5 w6 w7", chunks[1])
	assert.Equal(t, "w6 w7 w8 w9 w10", chunks[2])
	assert.Equal(t, "w9 w10 w11", chunks[3])
}

func TestSplitWords_InvalidParams(t *testing.T) {
	assert.Panics(t, func() { SplitWords("a b c", 0, 0) })
	assert.Panics(t, func() { SplitWords("a b c", 5, 5) })
}
