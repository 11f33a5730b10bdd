package api

import (
	"context"
	"net/http"
	"time"

	"github.com/finsolve/chatbot/internal/log"
)

// Pinger reports whether the fragment store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// health answers liveness probes. It never touches dependencies.
func health(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// readiness answers readiness probes by pinging the fragment store. A nil
// pinger (no database wired, as in tests) reports ready.
func readiness(pinger Pinger, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()

			if err := pinger.Ping(ctx); err != nil {
				logger.Warn("readiness check failed", "error", err)
				writeError(w, logger, http.StatusServiceUnavailable, "not_ready", "fragment store unreachable")
				return
			}
		}
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "ready"})
	}
}
