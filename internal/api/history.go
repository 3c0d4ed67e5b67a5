package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/webthing-core/internal/history"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// handleThingHistory returns the newest journal entries of one kind for a
// thing: GET /history/things/{id}?kind=property|event|action&limit=N.
func (s *Server) handleThingHistory(w http.ResponseWriter, r *http.Request) {
	thingID := chi.URLParam(r, "id")
	if _, ok := s.router.Device(thingID); !ok {
		writeNotFound(w, "thing not found")
		return
	}

	kind, err := history.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeBadRequest(w, "kind must be property, event or action")
		return
	}
	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history unavailable")
		return
	}

	entries, err := s.history.List(r.Context(), thingID, kind, limit)
	if err != nil {
		s.logger.Error("history query failed", "thing", thingID, "kind", kind, "error", err)
		writeInternalError(w, "failed to load history")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"thing_id": thingID,
		"kind":     kind,
		"entries":  entries,
		"count":    len(entries),
	})
}

// parseHistoryLimit parses the limit query parameter with bounds enforcement.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}
	return limit, nil
}
