// Package compose assembles the final answer and its source citations.
//
// Sources derive strictly from the fragments actually supplied to the
// generation step for the query, never from the wider corpus, so a citation
// can never reference content the user was not permitted to see.
package compose

import (
	"strings"
	"time"

	"github.com/finsolve/chatbot/internal/index"
)

// Source is one citation entry on a composed response.
type Source struct {
	File       string    `json:"file"`
	Department string    `json:"department"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Relevance  float32   `json:"relevance"`
}

// Response is a composed answer with its citations.
type Response struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Compose builds a Response from the raw completion and the fragments that
// were supplied to generation. Fragments from the same source file collapse
// into a single citation; the highest-ranked occurrence wins, so citation
// order follows retrieval order.
func Compose(rawCompletion string, fragmentsUsed []index.Match) Response {
	sources := make([]Source, 0, len(fragmentsUsed))
	seen := make(map[string]bool, len(fragmentsUsed))

	for _, m := range fragmentsUsed {
		if seen[m.Fragment.SourceFile] {
			continue
		}
		seen[m.Fragment.SourceFile] = true
		sources = append(sources, Source{
			File:       m.Fragment.SourceFile,
			Department: string(m.Fragment.Department),
			UpdatedAt:  m.Fragment.UpdatedAt,
			Relevance:  m.Similarity,
		})
	}

	return Response{
		Answer:  strings.TrimSpace(rawCompletion),
		Sources: sources,
	}
}
