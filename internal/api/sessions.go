package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dwhitley/parley/internal/session"
)

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.List()
	if err != nil {
		s.logger.Error("list sessions failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "persistence_failure", "could not list sessions", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	}, s.logger)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			s.errorResponse(w, http.StatusNotFound, "session_not_found", "no session with id "+id, nil)
			return
		}
		s.logger.Error("get session failed", "session", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "persistence_failure", "could not load session", nil)
		return
	}

	msgs, err := s.store.Messages(id)
	if err != nil {
		s.logger.Error("load messages failed", "session", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "persistence_failure", "could not load messages", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"session":  sess,
		"messages": msgs,
	}, s.logger)
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Hold the session lock so a turn in flight finishes its commit
	// before the rows disappear underneath it.
	release := s.locks.Lock(id)
	defer release()

	if err := s.store.Delete(id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			s.errorResponse(w, http.StatusNotFound, "session_not_found", "no session with id "+id, nil)
			return
		}
		s.logger.Error("delete session failed", "session", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "persistence_failure", "could not delete session", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"deleted": id}, s.logger)
}

func (s *Server) handleSessionExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "markdown"
	}

	sess, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			s.errorResponse(w, http.StatusNotFound, "session_not_found", "no session with id "+id, nil)
			return
		}
		s.logger.Error("get session failed", "session", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "persistence_failure", "could not load session", nil)
		return
	}

	msgs, err := s.store.Messages(id)
	if err != nil {
		s.logger.Error("load messages failed", "session", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "persistence_failure", "could not load messages", nil)
		return
	}

	short := id
	if len(short) > 8 {
		short = short[:8]
	}

	switch format {
	case "markdown", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"session-%s.md\"", short))
		fmt.Fprint(w, ExportMarkdown(sess, msgs))

	case "html":
		doc, err := ExportHTML(sess, msgs)
		if err != nil {
			s.logger.Error("render export failed", "session", id, "error", err)
			s.errorResponse(w, http.StatusInternalServerError, "internal_error", "could not render transcript", nil)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, doc)

	default:
		s.errorResponse(w, http.StatusBadRequest, "invalid_request", "unsupported format: "+format+" (use markdown or html)", nil)
	}
}
