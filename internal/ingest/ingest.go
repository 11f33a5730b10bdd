package ingest

// ingest.go loads company documents into the fragment index.
//
// The document tree is expected to be laid out by department:
//
//	data/
//	  finance/quarterly_report.md
//	  marketing/campaign_2024.md
//	  general/employee_handbook.md
//
// The first path element under the root names the owning department.
// Each file is split into overlapping word windows so that long
// documents stay within the embedding model's input limit.

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/finsolve/chatbot/internal/access"
	"github.com/finsolve/chatbot/internal/index"
	"github.com/finsolve/chatbot/internal/log"
)

// FragmentStore is the subset of the index the ingester needs.
type FragmentStore interface {
	Add(ctx context.Context, frag index.Fragment) error
}

// supportedExtensions are the file types the ingester will read.
var supportedExtensions = map[string]bool{
	".md":  true,
	".txt": true,
	".csv": true,
}

// Chunking parameters, in words. A window of 500 words with a 50-word
// overlap keeps chunk boundaries from splitting answers across fragments.
const (
	ChunkWords   = 500
	OverlapWords = 50
)

// Result summarizes one ingestion run.
type Result struct {
	FilesAdded     int
	FilesSkipped   int
	FilesFailed    int
	FragmentsAdded int
	Duration       time.Duration
}

// Ingester walks a department-structured document tree and writes
// embedded fragments to a FragmentStore.
type Ingester struct {
	store  FragmentStore
	logger log.Logger
}

// New creates an Ingester.
func New(store FragmentStore, logger log.Logger) *Ingester {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Ingester{store: store, logger: logger}
}

// Run ingests every supported file under dirPath. Files in directories
// that do not name a known department are skipped, not failed, so a
// stray folder cannot abort a full reindex.
func (ing *Ingester) Run(ctx context.Context, dirPath string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	absDir, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("resolving document root: %w", err)
	}

	root, err := os.OpenRoot(absDir)
	if err != nil {
		return nil, fmt.Errorf("opening document root: %w", err)
	}
	defer func() {
		_ = root.Close()
	}()

	err = filepath.Walk(absDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			result.FilesFailed++
			return nil
		}
		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(absDir, path)
		if err != nil {
			result.FilesFailed++
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !supportedExtensions[ext] {
			result.FilesSkipped++
			return nil
		}

		dept, ok := departmentFor(relPath)
		if !ok {
			ing.logger.Warn("skipping file outside a department directory", "file", relPath)
			result.FilesSkipped++
			return nil
		}

		content, err := root.ReadFile(relPath)
		if err != nil {
			ing.logger.Warn("reading document failed", "file", relPath, "error", err)
			result.FilesFailed++
			return nil
		}

		added, err := ing.addFile(ctx, relPath, dept, string(content), info.ModTime())
		if err != nil {
			ing.logger.Warn("indexing document failed", "file", relPath, "error", err)
			result.FilesFailed++
			return nil
		}

		result.FilesAdded++
		result.FragmentsAdded += added
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking document root: %w", err)
	}

	result.Duration = time.Since(start)
	ing.logger.Info("ingestion complete",
		"files_added", result.FilesAdded,
		"files_skipped", result.FilesSkipped,
		"files_failed", result.FilesFailed,
		"fragments", result.FragmentsAdded,
		"duration", result.Duration)
	return result, nil
}

// addFile chunks one document and stores each chunk as a fragment.
func (ing *Ingester) addFile(ctx context.Context, relPath string, dept access.Department, content string, modTime time.Time) (int, error) {
	chunks := SplitWords(content, ChunkWords, OverlapWords)
	for i, chunk := range chunks {
		frag := index.Fragment{
			ID:         fragmentID(relPath, i),
			Content:    chunk,
			Department: dept,
			SourceFile: filepath.ToSlash(relPath),
			UpdatedAt:  modTime,
		}
		if err := ing.store.Add(ctx, frag); err != nil {
			return i, fmt.Errorf("adding fragment %d of %s: %w", i, relPath, err)
		}
	}
	return len(chunks), nil
}

// departmentFor derives the owning department from the first path element.
func departmentFor(relPath string) (access.Department, bool) {
	parts := strings.Split(filepath.ToSlash(relPath), "/")
	if len(parts) < 2 {
		return "", false
	}
	dept, err := access.ParseDepartment(parts[0])
	if err != nil {
		return "", false
	}
	return dept, true
}

// SplitWords splits text into windows of size words, each overlapping the
// previous one by overlap words. Text at or under size words yields a
// single chunk. Overlap must be smaller than size.
func SplitWords(text string, size, overlap int) []string {
	if size <= 0 || overlap < 0 || overlap >= size {
		panic(fmt.Sprintf("invalid chunking parameters: size=%d overlap=%d", size, overlap))
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= size {
		return []string{strings.Join(words, " ")}
	}

	step := size - overlap
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// fragmentID derives a stable ID from the source path and chunk index so
// that reingesting the same tree upserts instead of duplicating.
func fragmentID(relPath string, chunk int) string {
	sum := sha256.Sum256([]byte(filepath.ToSlash(relPath)))
	return fmt.Sprintf("frag_%s_%d", hex.EncodeToString(sum[:12]), chunk)
}
