// Package generate wraps the external text-completion service behind a
// small client with proactive rate limiting and bounded retry.
//
// The service is opaque to the pipeline: it receives an already-filtered
// prompt context and returns text. Nothing here touches retrieval or
// memory.
package generate

import (
	"context"
	"errors"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/finsolve/chatbot/internal/log"
)

// Config contains the required parameters for a Client.
type Config struct {
	Genkit    *genkit.Genkit
	ModelName string
	Logger    log.Logger

	// Retry applies to transient service errors only; zero value uses
	// DefaultRetryConfig.
	Retry RetryConfig

	// RateLimiter throttles outbound calls before they hit provider quotas.
	// Nil installs the default (10 req/s sustained, burst 30).
	RateLimiter *rate.Limiter
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Client calls the generation service. All configuration is captured
// immutably at construction, so a Client is safe for concurrent use.
type Client struct {
	g       *genkit.Genkit
	model   string
	logger  log.Logger
	retry   RetryConfig
	limiter *rate.Limiter
}

// New creates a Client from cfg.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	retryCfg := cfg.Retry
	if retryCfg.MaxRetries == 0 {
		retryCfg = DefaultRetryConfig()
	}

	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	return &Client{
		g:       cfg.Genkit,
		model:   cfg.ModelName,
		logger:  cfg.Logger,
		retry:   retryCfg,
		limiter: limiter,
	}, nil
}

// Complete sends the prompt context to the model and returns the raw
// completion text. The caller bounds the call with a deadline on ctx; on
// expiry or service failure the error is returned as-is for the caller's
// failure policy (no synthetic answer is ever produced here).
func (c *Client) Complete(ctx context.Context, system string, messages []*ai.Message) (string, error) {
	resp, err := c.completeWithRetry(ctx, system, messages)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

func (c *Client) generateOnce(ctx context.Context, system string, messages []*ai.Message) (*ai.ModelResponse, error) {
	return genkit.Generate(ctx, c.g,
		ai.WithModelName(c.model),
		ai.WithSystem(system),
		ai.WithMessages(messages...),
	)
}
