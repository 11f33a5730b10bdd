package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finsolve/chatbot/db"
	"github.com/finsolve/chatbot/internal/auth"
	"github.com/finsolve/chatbot/internal/chat"
	"github.com/finsolve/chatbot/internal/config"
	"github.com/finsolve/chatbot/internal/database"
	"github.com/finsolve/chatbot/internal/generate"
	"github.com/finsolve/chatbot/internal/index"
	"github.com/finsolve/chatbot/internal/ingest"
	"github.com/finsolve/chatbot/internal/log"
	"github.com/finsolve/chatbot/internal/memory"
)

// Options selects which parts of the application Setup initializes.
type Options struct {
	// WithAuth opens the user database, migrates and seeds it. The serve
	// command needs this; one-shot CLI commands do not.
	WithAuth bool
}

// Setup creates and initializes the application. On error everything
// already initialized is released.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger, opts Options) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.NewNop()
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	a.Querier = index.NewPGQuerier(pool)
	a.Index = index.New(a.Querier, embedder, logger)
	a.Ingester = ingest.New(a.Index, logger)

	a.Generator, err = generate.New(generate.Config{
		Genkit:    g,
		ModelName: cfg.ModelName,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating generation client: %w", err)
	}

	a.Memory = memory.NewStore(cfg.MemoryWindow)

	a.Chat, err = chat.New(chat.Config{
		Retriever:         a.Index,
		Completer:         a.Generator,
		Memory:            a.Memory,
		Logger:            logger,
		TopK:              cfg.TopK,
		GenerationTimeout: cfg.GenerationTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat service: %w", err)
	}

	if opts.WithAuth {
		if err := provideAuth(ctx, a); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// provideDBPool runs migrations and opens the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the Gemini provider. The API key
// comes from GEMINI_API_KEY in the environment.
func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with gemini provider")
	}
	return g, nil
}

// provideAuth opens, migrates and seeds the user database.
func provideAuth(ctx context.Context, a *App) error {
	path, err := a.Config.ResolveAuthDBPath()
	if err != nil {
		return fmt.Errorf("resolving auth database path: %w", err)
	}

	authDB, err := database.Open(path)
	if err != nil {
		return fmt.Errorf("opening auth database: %w", err)
	}
	a.authDB = authDB

	if err := database.Migrate(authDB); err != nil {
		return fmt.Errorf("migrating auth database: %w", err)
	}

	a.Auth = auth.New(authDB, a.Config.JWTSecret, a.Config.TokenTTL, a.Logger)
	if err := a.Auth.Seed(ctx); err != nil {
		return fmt.Errorf("seeding users: %w", err)
	}
	return nil
}
