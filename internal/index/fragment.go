package index

import (
	"time"

	"github.com/finsolve/chatbot/internal/access"
)

// Fragment is a retrievable unit of document text. Fragments are written
// once by ingestion and never mutated afterwards.
type Fragment struct {
	ID         string            // Unique identifier (stable across re-ingestion)
	Content    string            // Chunk text
	Department access.Department // Visibility classification, set at ingestion
	SourceFile string            // Base name of the originating document
	UpdatedAt  time.Time         // Last update of the source document
}

// Match is one ranked retrieval hit.
type Match struct {
	Fragment   Fragment
	Similarity float32 // Cosine similarity (0-1), higher is closer
}
