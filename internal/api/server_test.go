package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/webthing-core/internal/history"
	"github.com/nerrad567/webthing-core/internal/infrastructure/config"
	"github.com/nerrad567/webthing-core/internal/infrastructure/logging"
	"github.com/nerrad567/webthing-core/internal/publisher"
	"github.com/nerrad567/webthing-core/internal/router"
	"github.com/nerrad567/webthing-core/internal/thing"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// fakeHistory serves canned entries and records the last query.
type fakeHistory struct {
	entries   []history.Entry
	err       error
	lastKind  history.Kind
	lastLimit int
}

func (f *fakeHistory) Record(context.Context, history.Entry) error { return nil }

func (f *fakeHistory) List(_ context.Context, _ string, kind history.Kind, limit int) ([]history.Entry, error) {
	f.lastKind, f.lastLimit = kind, limit
	return f.entries, f.err
}

func (f *fakeHistory) Prune(context.Context, time.Duration) (int64, error) { return 0, nil }

type testEnv struct {
	srv    *Server
	pub    *publisher.Publisher
	device *thing.Device
	mgr    *thing.Manager
}

func newLamp(t *testing.T) *thing.Device {
	t.Helper()
	d := thing.NewDevice("lamp", "My Lamp", "OnOffSwitch", "Light")
	on := thing.NewProperty("on", thing.TypeBoolean)
	level := thing.NewProperty("level", thing.TypeInteger)
	level.Minimum, level.Maximum = 0, 100
	for _, p := range []*thing.Property{on, level} {
		if err := d.AddProperty(p); err != nil {
			t.Fatalf("AddProperty() error = %v", err)
		}
	}
	if err := d.AddAction(thing.NewAction("toggle", nil)); err != nil {
		t.Fatalf("AddAction() error = %v", err)
	}
	return d
}

// testServer builds a server over one lamp. mutate may adjust deps.
func testServer(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()

	d := newLamp(t)
	mgr := thing.NewManager(0)
	t.Cleanup(mgr.Close)
	devices := []*thing.Device{d}

	rt := router.New(router.Config{Name: "lamp", IP: "127.0.0.1", ValidateHost: true}, devices, mgr)
	pub := publisher.New(devices, mgr, nil)

	deps := Deps{
		Config: config.APIConfig{
			Host:        "127.0.0.1",
			Port:        0,
			Timeouts:    config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
			MaxBodySize: 1024,
		},
		WS:      config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:  logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard),
		Router:  rt,
		Live:    pub,
		Version: "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	pub.SetHub(srv.Hub())
	return &testEnv{srv: srv, pub: pub, device: d, mgr: mgr}
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Host = "127.0.0.1"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiredDeps(t *testing.T) {
	logger := logging.NewWithWriter(config.LoggingConfig{}, "test", io.Discard)
	rt := router.New(router.Config{}, nil, thing.NewManager(0))
	pub := publisher.New(nil, nil, nil)

	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Router: rt, Live: pub}},
		{"no router", Deps{Logger: logger, Live: pub}},
		{"no live handler", Deps{Logger: logger, Router: rt}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	ok := checkFunc(func(context.Context) error { return nil })
	down := checkFunc(func(context.Context) error { return errors.New("broker unreachable") })

	tests := []struct {
		name       string
		checks     map[string]HealthChecker
		wantStatus int
		wantState  string
	}{
		{"no checks", nil, http.StatusOK, "ok"},
		{"all healthy", map[string]HealthChecker{"database": ok, "mqtt": ok}, http.StatusOK, "ok"},
		{"one down", map[string]HealthChecker{"database": ok, "mqtt": down}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testServer(t, func(d *Deps) { d.Checks = tt.checks })
			rec := do(env.srv.Handler(), http.MethodGet, "/health", "")

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var body struct {
				Status  string            `json:"status"`
				Version string            `json:"version"`
				Things  int               `json:"things"`
				Checks  map[string]string `json:"checks"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.wantState || body.Version != "test" || body.Things != 1 {
				t.Errorf("body = %+v", body)
			}
			if tt.wantState == "degraded" && body.Checks["mqtt"] != "broker unreachable" {
				t.Errorf("checks = %v", body.Checks)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	env := testServer(t, nil)
	h := env.srv.Handler()

	rec := do(h, http.MethodGet, "/health", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected generated X-Request-ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "client-id-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-id-1" {
		t.Errorf("X-Request-ID = %q, want client-id-1", got)
	}
}

func TestThingProtocol(t *testing.T) {
	env := testServer(t, nil)
	h := env.srv.Handler()

	rec := do(h, http.MethodPut, "/things/lamp/properties/on", `{"on":true}`)
	if rec.Code != http.StatusOK || rec.Body.String() != `{"on":true}` {
		t.Fatalf("PUT = %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
	p, _ := env.device.Property("on")
	if !p.Value().Bool() {
		t.Error("property not written")
	}

	rec = do(h, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET / = %d", rec.Code)
	}
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Errorf("GET / body = %s (%v)", rec.Body.String(), err)
	}

	rec = do(h, http.MethodPost, "/things/lamp/actions", `{"toggle":{"input":{}}}`)
	if rec.Code != http.StatusCreated {
		t.Errorf("POST action = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(h, http.MethodOptions, "/things/lamp", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("OPTIONS = %d", rec.Code)
	}

	rec = do(h, http.MethodGet, "/things/toaster", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown thing = %d", rec.Code)
	}
}

func TestThingProtocol_HostRejected(t *testing.T) {
	env := testServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/things/lamp", nil)
	req.Host = "evil.example.com"
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestThingProtocol_BodyOverflow(t *testing.T) {
	env := testServer(t, func(d *Deps) { d.Config.MaxBodySize = 16 })

	rec := do(env.srv.Handler(), http.MethodPut, "/things/lamp/properties/level", `{"level": 10}   `+strings.Repeat(" ", 32))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	p, _ := env.device.Property("level")
	if p.Value().Int() != 0 {
		t.Error("oversized request was applied")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := testServer(t, nil)
	h := env.srv.Handler()

	do(h, http.MethodGet, "/things/lamp", "")
	env.srv.Metrics().PropertiesChanged("lamp", []thing.Change{{Name: "on", Value: thing.Bool(true)}})

	rec := do(h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`webthing_http_requests_total{method="GET",route="/*",status="200"} 1`,
		`webthing_property_changes_total{thing="lamp"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestThingHistory(t *testing.T) {
	created := time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC)
	repo := &fakeHistory{entries: []history.Entry{
		{ID: 2, ThingID: "lamp", Kind: history.KindEvent, Name: "overheated", Value: json.RawMessage(`98`), CreatedAt: created},
	}}

	t.Run("lists entries", func(t *testing.T) {
		env := testServer(t, func(d *Deps) { d.History = repo })
		rec := do(env.srv.Handler(), http.MethodGet, "/history/things/lamp?kind=event&limit=10", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
		}
		if repo.lastKind != history.KindEvent || repo.lastLimit != 10 {
			t.Errorf("query kind=%q limit=%d", repo.lastKind, repo.lastLimit)
		}
		var body struct {
			ThingID string          `json:"thing_id"`
			Count   int             `json:"count"`
			Entries []history.Entry `json:"entries"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.ThingID != "lamp" || body.Count != 1 || body.Entries[0].Name != "overheated" {
			t.Errorf("body = %+v", body)
		}
	})

	tests := []struct {
		name   string
		repo   history.Repository
		target string
		want   int
	}{
		{"unknown thing", repo, "/history/things/toaster", http.StatusNotFound},
		{"bad kind", repo, "/history/things/lamp?kind=weather", http.StatusBadRequest},
		{"bad limit", repo, "/history/things/lamp?limit=-1", http.StatusBadRequest},
		{"limit too large", repo, "/history/things/lamp?limit=500", http.StatusBadRequest},
		{"history disabled", nil, "/history/things/lamp", http.StatusServiceUnavailable},
		{"query failure", &fakeHistory{err: errors.New("disk I/O error")}, "/history/things/lamp", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testServer(t, func(d *Deps) { d.History = tt.repo })
			rec := do(env.srv.Handler(), http.MethodGet, tt.target, "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestHostCheckOnOperationalRoutes(t *testing.T) {
	repo := &fakeHistory{entries: []history.Entry{
		{ID: 1, ThingID: "lamp", Kind: history.KindProperty, Name: "on", Value: json.RawMessage(`true`)},
	}}
	env := testServer(t, func(d *Deps) { d.History = repo })

	tests := []struct {
		target string
		want   int
	}{
		{"/history/things/lamp", http.StatusForbidden},
		{"/health", http.StatusOK},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req.Host = "evil.example.com"
			rec := httptest.NewRecorder()
			env.srv.Handler().ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusForbidden && strings.Contains(rec.Body.String(), "entries") {
				t.Errorf("rejected request leaked history: %s", rec.Body.String())
			}
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	env := testServer(t, nil)
	h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestThingRoot(t *testing.T) {
	tests := []struct {
		path   string
		wantID string
		wantOK bool
	}{
		{"/things/lamp", "lamp", true},
		{"/things/lamp/", "lamp", true},
		{"/things/lamp/properties", "", false},
		{"/things/", "", false},
		{"/", "", false},
		{"/other/lamp", "", false},
	}
	for _, tt := range tests {
		id, ok := thingRoot(tt.path)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("thingRoot(%q) = %q, %v; want %q, %v", tt.path, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestParseHistoryLimit(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", defaultHistoryLimit, false},
		{"1", 1, false},
		{"200", 200, false},
		{"201", 0, true},
		{"0", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseHistoryLimit(tt.raw)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseHistoryLimit(%q) = %d, %v", tt.raw, got, err)
		}
	}
}

func TestServer_StartAndClose(t *testing.T) {
	env := testServer(t, nil)
	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}

	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := env.srv.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if got := env.srv.server.ReadTimeout; got != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", got)
	}
	if got := env.srv.server.IdleTimeout; got != 5*time.Second {
		t.Errorf("IdleTimeout = %v, want 5s", got)
	}
	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, err := http.Get("http://" + env.srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
