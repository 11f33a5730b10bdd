// Package app wires configuration, storage, generation and the chat
// pipeline into a runnable application.
package app

import (
	"database/sql"
	"errors"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finsolve/chatbot/internal/auth"
	"github.com/finsolve/chatbot/internal/chat"
	"github.com/finsolve/chatbot/internal/config"
	"github.com/finsolve/chatbot/internal/generate"
	"github.com/finsolve/chatbot/internal/index"
	"github.com/finsolve/chatbot/internal/ingest"
	"github.com/finsolve/chatbot/internal/log"
	"github.com/finsolve/chatbot/internal/memory"
)

// App holds every initialized component. Call Close to release resources.
type App struct {
	Config *config.Config
	Logger log.Logger

	Pool     *pgxpool.Pool
	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	Index     *index.Store
	Querier   *index.PGQuerier
	Generator *generate.Client
	Memory    *memory.Store
	Chat      *chat.Service
	Ingester  *ingest.Ingester

	Auth   *auth.Service
	authDB *sql.DB
}

// Close releases the database connections. Safe to call on a partially
// initialized App.
func (a *App) Close() error {
	var errs []error
	if a.authDB != nil {
		if err := a.authDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return errors.Join(errs...)
}
