package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-aio/internal/feedlog"
	"github.com/nerrad567/gray-logic-aio/internal/session"
)

// healthCheckTimeout bounds each dependency check in /health.
const healthCheckTimeout = 3 * time.Second

// SessionResponse is the body of GET /api/v1/session.
type SessionResponse struct {
	State  session.State `json:"state"`
	Topics []string      `json:"topics"`
	Stats  session.Stats `json:"stats"`
}

// handleHealth returns "ok" when every dependency check passes, "degraded" otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.checks))
	healthy := true

	for name, p := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := p.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"session": s.session.State(),
		"checks":  checks,
	})
}

// handleSession returns the session state, topics, and counters.
func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SessionResponse{
		State:  s.session.State(),
		Topics: s.session.Topics(),
		Stats:  s.session.Stats(),
	})
}

// handleMessages returns stored readings, newest first.
// Without feed_id it returns the most recent readings across all feeds.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "message history is disabled")
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	var (
		readings []feedlog.Reading
		err      error
	)
	if feedID := r.URL.Query().Get("feed_id"); feedID != "" {
		readings, err = s.history.List(r.Context(), feedID, limit)
	} else {
		readings, err = s.history.Recent(r.Context(), limit)
	}
	if err != nil {
		if errors.Is(err, feedlog.ErrFeedIDRequired) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("failed to list messages", "error", err)
		writeInternalError(w, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": readings,
		"count":    len(readings),
	})
}

// handleEvents returns session lifecycle events, newest first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "message history is disabled")
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	events, err := s.history.Events(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list session events", "error", err)
		writeInternalError(w, "failed to list session events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// parseLimit reads the optional limit query parameter. Zero means the store default.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeBadRequest(w, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
