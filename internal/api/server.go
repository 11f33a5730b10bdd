package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/finsolve/chatbot/internal/log"
)

// ServerConfig holds the dependencies for the API server.
type ServerConfig struct {
	Logger log.Logger
	Chat   chatService // Required
	Auth   AuthService // Required
	Pinger Pinger      // Optional: nil skips the store check in /ready
}

// AuthService combines the pieces of the auth layer the server uses.
type AuthService interface {
	authenticator
	tokenVerifier
}

// Server is the JSON API HTTP server.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger
}

// NewServer wires handlers, routes and the middleware stack.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Chat == nil {
		return nil, errors.New("chat service is required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("auth service is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	lh := &loginHandler{auth: cfg.Auth, logger: logger}
	ch := &chatHandler{chat: cfg.Chat, logger: logger}

	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("POST /chat", ch.send)
	protectedMux.HandleFunc("POST /chat/clear", ch.clear)
	protectedMux.HandleFunc("GET /user/accessible-data", lh.accessibleData)

	// Middleware stack, outermost first:
	//   Recovery -> RequestID -> Logging -> Auth -> Routes
	// /login stays outside the auth middleware so credentials can be
	// exchanged for a token in the first place.
	protected := authMiddleware(cfg.Auth, logger)(protectedMux)

	outer := http.NewServeMux()
	outer.HandleFunc("POST /login", lh.login)
	outer.Handle("POST /chat", protected)
	outer.Handle("POST /chat/clear", protected)
	outer.Handle("GET /user/accessible-data", protected)

	var handler http.Handler = outer
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	top := http.NewServeMux()
	top.HandleFunc("GET /health", health(logger))
	top.HandleFunc("GET /ready", readiness(cfg.Pinger, logger))
	top.Handle("/", handler)

	return &Server{mux: top, logger: logger}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	s.logger.Info("api server stopped")
	return nil
}
