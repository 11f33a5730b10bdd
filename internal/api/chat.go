package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/finsolve/chatbot/internal/access"
	"github.com/finsolve/chatbot/internal/chat"
	"github.com/finsolve/chatbot/internal/compose"
	"github.com/finsolve/chatbot/internal/log"
)

// maxChatBodyBytes bounds the chat request body.
const maxChatBodyBytes = 64 * 1024

// chatService is the subset of the chat service the handler needs.
type chatService interface {
	Chat(ctx context.Context, userID string, role access.Role, query string) (compose.Response, error)
	ClearMemory(userID string)
}

type chatHandler struct {
	chat   chatService
	logger log.Logger
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Answer  string           `json:"answer"`
	Sources []compose.Source `json:"sources"`
}

// send runs one query through the pipeline for the authenticated caller.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, h.logger, http.StatusBadRequest, "bad_request", "message must not be empty")
		return
	}

	resp, err := h.chat.Chat(r.Context(), id.UserID, id.Role, req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrGenerationUnavailable) {
			writeError(w, h.logger, http.StatusServiceUnavailable, "generation_unavailable",
				"answer generation is temporarily unavailable, please retry")
			return
		}
		h.logger.Error("chat request failed", "user", id.UserID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, chatResponse{
		Answer:  resp.Answer,
		Sources: resp.Sources,
	})
}

// clear drops the caller's conversation history.
func (h *chatHandler) clear(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	h.chat.ClearMemory(id.UserID)
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "cleared"})
}
