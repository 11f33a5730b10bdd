package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/finsolve/chatbot/internal/access"
	"github.com/finsolve/chatbot/internal/auth"
	"github.com/finsolve/chatbot/internal/log"
)

// authenticator is the subset of the auth service the login handler needs.
type authenticator interface {
	Authenticate(ctx context.Context, username, password string) (auth.Identity, error)
	IssueToken(id auth.Identity) (string, error)
}

type loginHandler struct {
	auth   authenticator
	logger log.Logger
}

type loginResponse struct {
	Token string `json:"token"`
	User  string `json:"user"`
	Role  string `json:"role"`
}

// login exchanges HTTP Basic credentials for a bearer token.
func (h *loginHandler) login(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="finsolve"`)
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized", "basic credentials required")
		return
	}

	id, err := h.auth.Authenticate(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, h.logger, http.StatusUnauthorized, "unauthorized", "invalid username or password")
			return
		}
		h.logger.Error("authenticating user", "username", username, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	token, err := h.auth.IssueToken(id)
	if err != nil {
		h.logger.Error("issuing token", "username", username, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, loginResponse{
		Token: token,
		User:  id.UserID,
		Role:  string(id.Role),
	})
}

type accessibleDataResponse struct {
	User        string              `json:"user"`
	Role        string              `json:"role"`
	Departments []access.Department `json:"departments"`
}

// accessibleData reports which departments the caller's role may read.
func (h *loginHandler) accessibleData(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, accessibleDataResponse{
		User:        id.UserID,
		Role:        string(id.Role),
		Departments: access.AllowedDepartments(id.Role),
	})
}
