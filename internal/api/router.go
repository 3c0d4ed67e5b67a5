package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/webthing-core/internal/router"
)

const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	// Operational endpoints live outside the /things hierarchy. Probes and
	// scrapers reach them by address, so they skip the Host check.
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())
	r.With(s.hostMiddleware).Get("/history/things/{id}", s.handleThingHistory)

	// Everything else is the Web Thing surface.
	r.HandleFunc("/*", s.handleThing)

	return r
}

// handleThing upgrades /things/{id} WebSocket requests and hands every
// other request to the protocol router.
func (s *Server) handleThing(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		if id, ok := thingRoot(r.URL.Path); ok {
			s.handleWebSocket(w, r, id)
			return
		}
	}

	req, err := s.toRequest(r)
	if err != nil {
		s.logger.Debug("reading request body failed", "error", err)
		writeBadRequest(w, "reading request body failed")
		return
	}
	writeResponse(w, s.router.Serve(req))
}

// toRequest converts r into the transport-independent form. A body larger
// than the configured limit sets Overflow instead of failing.
func (s *Server) toRequest(r *http.Request) (router.Request, error) {
	req := router.Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Host:   r.Host,
	}
	if r.Body == nil {
		return req, nil
	}

	limit := s.maxBodySize()
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(limit)+1))
	if err != nil {
		return req, err
	}
	if len(body) > limit {
		req.Overflow = true
		return req, nil
	}
	req.Body = body
	return req, nil
}

func writeResponse(w http.ResponseWriter, resp router.Response) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		//nolint:errcheck // Best-effort write; connection may be closed
		io.Copy(w, bytes.NewReader(resp.Body))
	}
}

// thingRoot reports whether path is exactly /things/{id}.
func thingRoot(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] != "things" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// handleHealth reports each dependency. Any failure answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for name, c := range s.checks {
		if c == nil {
			continue
		}
		if err := c.HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":  overall,
		"version": s.version,
		"things":  len(s.router.Devices()),
		"checks":  checks,
	})
}
