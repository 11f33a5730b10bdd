// Package chat coordinates one query through the role-filtered pipeline:
// resolve allowed departments, retrieve, merge conversation context,
// generate, compose, remember.
//
// Retrieval is filtered before generation on purpose: the generation service
// is architecturally incapable of leaking disallowed content because it
// never receives any. That guarantee lives in the data plane, not in prompt
// wording, and must survive any refactor of this package.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/finsolve/chatbot/internal/access"
	"github.com/finsolve/chatbot/internal/compose"
	"github.com/finsolve/chatbot/internal/index"
	"github.com/finsolve/chatbot/internal/log"
	"github.com/finsolve/chatbot/internal/memory"
)

// FallbackNoContent is returned when the filtered retrieval finds nothing
// the user may see. It is a successful response, not an error.
const FallbackNoContent = "I couldn't find any relevant information to answer your query that you are authorized to access. Please try rephrasing your question or contact your administrator if you believe you should have access to this information."

// FallbackEmptyCompletion is returned when the model produces an empty
// completion for an otherwise successful request.
const FallbackEmptyCompletion = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

// ErrGenerationUnavailable reports that the generation service failed or
// timed out. No answer is fabricated in this case and no turn is recorded;
// retrying is the caller's decision.
var ErrGenerationUnavailable = errors.New("generation unavailable")

// state tracks a single query through the pipeline. States exist per query,
// not per session.
type state int

const (
	stateReceived state = iota
	stateAuthorizedDepartmentsResolved
	stateRetrieved
	stateContextMerged
	stateGenerated
	stateComposed
	stateDelivered
	stateRefused
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateReceived:
		return "received"
	case stateAuthorizedDepartmentsResolved:
		return "authorized_departments_resolved"
	case stateRetrieved:
		return "retrieved"
	case stateContextMerged:
		return "context_merged"
	case stateGenerated:
		return "generated"
	case stateComposed:
		return "composed"
	case stateDelivered:
		return "delivered"
	case stateRefused:
		return "refused"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Retriever is the similarity-search seam, satisfied by *index.Store.
type Retriever interface {
	Search(ctx context.Context, query string, k int, allowed []access.Department) ([]index.Match, error)
}

// Completer is the generation-service seam, satisfied by *generate.Client.
type Completer interface {
	Complete(ctx context.Context, system string, messages []*ai.Message) (string, error)
}

// Config contains the required parameters for a Service.
type Config struct {
	Retriever Retriever
	Completer Completer
	Memory    *memory.Store
	Logger    log.Logger

	// TopK is the retrieval fan-out per query.
	TopK int

	// GenerationTimeout bounds the external generation call. On expiry the
	// query fails with ErrGenerationUnavailable.
	GenerationTimeout time.Duration
}

func (cfg Config) validate() error {
	if cfg.Retriever == nil {
		return errors.New("retriever is required")
	}
	if cfg.Completer == nil {
		return errors.New("completer is required")
	}
	if cfg.Memory == nil {
		return errors.New("memory store is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.TopK <= 0 {
		return errors.New("top-k must be positive")
	}
	if cfg.GenerationTimeout <= 0 {
		return errors.New("generation timeout must be positive")
	}
	return nil
}

// Service is the query orchestrator. It is stateless per request (all
// conversational state lives in the memory store) and safe for concurrent
// use; concurrent queries never block each other except same-user memory
// appends, which serialize on the session lock.
type Service struct {
	retriever Retriever
	completer Completer
	memory    *memory.Store
	logger    log.Logger

	topK       int
	genTimeout time.Duration
}

// New creates a Service from cfg.
func New(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Service{
		retriever:  cfg.Retriever,
		completer:  cfg.Completer,
		memory:     cfg.Memory,
		logger:     cfg.Logger,
		topK:       cfg.TopK,
		genTimeout: cfg.GenerationTimeout,
	}, nil
}

// AccessibleDepartments returns the departments role may read. The role must
// already be validated at the boundary; an unknown role panics.
func (s *Service) AccessibleDepartments(role access.Role) []access.Department {
	return access.AllowedDepartments(role)
}

// ClearMemory discards the user's conversation history.
func (s *Service) ClearMemory(userID string) {
	s.memory.Clear(userID)
	s.logger.Info("cleared conversation memory", "user_id", userID)
}

// Chat answers one query for an authenticated (user, role) pair.
//
// Successful outcomes: a composed answer with citations, or the fixed
// no-accessible-content fallback with empty sources. The only error a caller
// should branch on is ErrGenerationUnavailable; anything else is an internal
// fault. A turn is appended to memory only after generation succeeds, so an
// abandoned or failed query leaves no partial history behind.
func (s *Service) Chat(ctx context.Context, userID string, role access.Role, query string) (compose.Response, error) {
	st := stateReceived
	logger := s.logger.With("user_id", userID, "role", role)
	logger.Debug("query received", "state", st)

	allowed := access.AllowedDepartments(role)
	st = stateAuthorizedDepartmentsResolved
	logger.Debug("authorized departments resolved", "state", st, "departments", allowed)

	matches, err := s.retriever.Search(ctx, query, s.topK, allowed)
	if err != nil {
		return compose.Response{}, fmt.Errorf("retrieving fragments: %w", err)
	}
	st = stateRetrieved
	logger.Debug("fragments retrieved", "state", st, "count", len(matches))

	if len(matches) == 0 {
		st = stateRefused
		logger.Info("no accessible content for query", "state", st)
		return compose.Response{
			Answer:  FallbackNoContent,
			Sources: []compose.Source{},
		}, nil
	}

	turns := s.memory.Recent(userID, s.memory.Window())
	system, messages := buildPrompt(turns, matches, query)
	st = stateContextMerged
	logger.Debug("context merged", "state", st, "prior_turns", len(turns), "messages", len(messages))

	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()

	raw, err := s.completer.Complete(genCtx, system, messages)
	if err != nil {
		st = stateFailed
		logger.Warn("generation failed", "state", st, "error", err)
		return compose.Response{}, fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}
	st = stateGenerated
	logger.Debug("completion generated", "state", st, "length", len(raw))

	if strings.TrimSpace(raw) == "" {
		logger.Warn("model returned empty completion")
		raw = FallbackEmptyCompletion
	}

	resp := compose.Compose(raw, matches)
	st = stateComposed

	s.memory.Append(userID, memory.Turn{
		ID:        uuid.New(),
		Query:     query,
		Answer:    resp.Answer,
		Sources:   resp.Sources,
		Timestamp: time.Now(),
	})

	st = stateDelivered
	logger.Debug("response delivered", "state", st, "sources", len(resp.Sources))
	return resp, nil
}
