package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/firebase/genkit/go/ai"

	"github.com/finsolve/chatbot/internal/index"
	"github.com/finsolve/chatbot/internal/memory"
)

// systemPrompt instructs the model to answer only from the supplied context.
// This is presentation, not enforcement: the department filter upstream is
// what actually keeps disallowed content out of the prompt.
const systemPrompt = "You are an AI assistant for FinSolve Technologies, a FinTech company. " +
	"Provide helpful, accurate, and concise responses based only on the provided context. " +
	"If the information is not in the context, state that explicitly. " +
	"Always cite the document names from the context when referencing information. " +
	"Use the conversation history to maintain context for follow-up questions. " +
	"Keep responses to a maximum of 4 lines."

// maxFragmentChars caps the text of a single fragment inside the prompt to
// keep the context window predictable. A truncated fragment still counts as
// supplied to generation and therefore remains citable.
const maxFragmentChars = 400

// buildPrompt merges prior turns, retrieved fragments, and the current query
// into a generation request. History comes first, oldest turn to newest, so
// the most recent exchange sits closest to the query. The fragments ride
// inside the final user message, mirroring retrieval order.
func buildPrompt(turns []memory.Turn, matches []index.Match, query string) (system string, messages []*ai.Message) {
	messages = make([]*ai.Message, 0, 2*len(turns)+1)
	for _, t := range turns {
		messages = append(messages,
			ai.NewUserMessage(ai.NewTextPart(t.Query)),
			ai.NewModelMessage(ai.NewTextPart(t.Answer)),
		)
	}

	var b strings.Builder
	b.WriteString("Context from company documents:\n\n")
	for _, m := range matches {
		content := truncateRunes(m.Fragment.Content, maxFragmentChars)
		fmt.Fprintf(&b, "Source: %s\nContent: %s\n\n", m.Fragment.SourceFile, content)
	}
	fmt.Fprintf(&b, "User query: %s", query)

	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(b.String())))
	return systemPrompt, messages
}

// truncateRunes caps s at max bytes without splitting a UTF-8 sequence.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
