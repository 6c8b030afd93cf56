package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dwhitley/parley/internal/capability"
	"github.com/dwhitley/parley/internal/engine"
	"github.com/dwhitley/parley/internal/llm"
	"github.com/dwhitley/parley/internal/session"
)

// ChatRequest opens or continues a session with one user message.
type ChatRequest struct {
	SessionID      string `json:"session_id,omitempty"`
	UserText       string `json:"user_text"`
	RecursionLimit int    `json:"recursion_limit,omitempty"`
}

// ChatResponse carries the assistant's reply for the turn.
type ChatResponse struct {
	SessionID     string `json:"session_id"`
	AssistantText string `json:"assistant_text"`
	ModelCalls    int    `json:"model_calls"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid_request", "invalid request body", nil)
		return
	}
	if req.UserText == "" {
		s.errorResponse(w, http.StatusBadRequest, "invalid_request", "user_text is required", nil)
		return
	}
	if req.RecursionLimit < 0 {
		s.errorResponse(w, http.StatusBadRequest, "invalid_request", "recursion_limit must be positive", nil)
		return
	}
	limit := req.RecursionLimit
	if limit == 0 {
		limit = s.defaultLimit
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sess, err := s.store.Create()
		if err != nil {
			s.logger.Error("create session failed", "error", err)
			s.errorResponse(w, http.StatusInternalServerError, "persistence_failure", "could not create session", nil)
			return
		}
		sessionID = sess.ID
	}

	// One turn at a time per session. Concurrent requests against the
	// same session queue up here.
	release := s.locks.Lock(sessionID)
	defer release()

	history, err := s.store.Messages(sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			s.errorResponse(w, http.StatusNotFound, "session_not_found", "no session with id "+sessionID, nil)
			return
		}
		s.logger.Error("load session failed", "session", sessionID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "persistence_failure", "could not load session", nil)
		return
	}

	msgs, prepended := s.engine.WithSystemPrompt(history)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: req.UserText})
	base := len(msgs)

	res, runErr := s.engine.RunTurn(r.Context(), msgs, limit)

	// Everything from the user message onward is new, plus the system
	// prompt when this turn introduced it.
	var newMsgs []llm.Message
	if prepended {
		newMsgs = append(newMsgs, res.Messages[0])
	}
	newMsgs = append(newMsgs, res.Messages[base-1:]...)

	if runErr != nil {
		s.failTurn(w, sessionID, newMsgs, runErr)
		return
	}

	if err := s.store.Append(sessionID, newMsgs); err != nil {
		s.logger.Error("commit turn failed", "session", sessionID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "persistence_failure", "could not persist turn", map[string]any{
			"session_id": sessionID,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ChatResponse{
		SessionID:     sessionID,
		AssistantText: res.AssistantText,
		ModelCalls:    res.ModelCalls,
	}, s.logger)
}

// failTurn maps a turn failure to its status code. Budget and unknown
// capability failures commit the partial sequence first so the session
// stays resumable; a backend outage commits nothing, leaving the session
// exactly as it was before the request.
func (s *Server) failTurn(w http.ResponseWriter, sessionID string, newMsgs []llm.Message, runErr error) {
	extra := map[string]any{"session_id": sessionID}

	var budgetErr *engine.BudgetExceededError
	var unknownErr *capability.UnknownCapabilityError

	switch {
	case errors.As(runErr, &budgetErr):
		if err := s.store.Append(sessionID, newMsgs); err != nil {
			s.logger.Error("commit partial turn failed", "session", sessionID, "error", err)
		}
		s.errorResponse(w, http.StatusUnprocessableEntity, "budget_exceeded", runErr.Error(), extra)

	case errors.As(runErr, &unknownErr):
		if err := s.store.Append(sessionID, newMsgs); err != nil {
			s.logger.Error("commit partial turn failed", "session", sessionID, "error", err)
		}
		s.errorResponse(w, http.StatusUnprocessableEntity, "unknown_capability", runErr.Error(), extra)

	case errors.Is(runErr, llm.ErrModelUnavailable):
		s.errorResponse(w, http.StatusBadGateway, "model_unavailable", "model backend unreachable", extra)

	default:
		s.logger.Error("turn failed", "session", sessionID, "error", runErr)
		s.errorResponse(w, http.StatusInternalServerError, "internal_error", "turn failed", extra)
	}
}
