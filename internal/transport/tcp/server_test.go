package tcp

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/webthing-core/internal/parser"
	"github.com/nerrad567/webthing-core/internal/router"
	"github.com/nerrad567/webthing-core/internal/thing"
)

// recordingHandler captures requests and answers with a fixed response.
type recordingHandler struct {
	mu   sync.Mutex
	reqs []router.Request
	resp router.Response
}

func (h *recordingHandler) Serve(req router.Request) router.Response {
	h.mu.Lock()
	defer h.mu.Unlock()
	req.Body = append([]byte(nil), req.Body...)
	h.reqs = append(h.reqs, req)
	return h.resp
}

type panicHandler struct{}

func (panicHandler) Serve(router.Request) router.Response { panic("boom") }

func startServer(t *testing.T, h Handler, cfg Config) *Server {
	t.Helper()
	cfg.Host = "127.0.0.1"
	srv := New(cfg, h)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

// exchange sends raw, ticks the server until the client receives a
// response and returns it.
func exchange(t *testing.T, srv *Server, raw string) *http.Response {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	if _, err := io.WriteString(conn, raw); err != nil {
		t.Fatalf("write: %v", err)
	}

	type result struct {
		resp *http.Response
		body string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
		if err != nil {
			done <- result{err: err}
			return
		}
		b, err := io.ReadAll(resp.Body)
		resp.Body = io.NopCloser(strings.NewReader(string(b)))
		done <- result{resp: resp, err: err}
	}()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case r := <-done:
			if r.err != nil {
				t.Fatalf("ReadResponse() error = %v", r.err)
			}
			return r.resp
		case <-deadline:
			t.Fatal("no response before deadline")
		default:
			srv.Tick()
		}
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func TestServer_ContentLengthRequest(t *testing.T) {
	h := &recordingHandler{resp: router.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(`{"on":true}`),
	}}
	srv := startServer(t, h, Config{})

	resp := exchange(t, srv, "PUT /things/lamp/properties/on HTTP/1.1\r\nHost: lamp.local\r\nContent-Length: 11\r\n\r\n{\"on\":true}")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !resp.Close {
		t.Error("response should carry Connection: close")
	}
	if body := readBody(t, resp); body != `{"on":true}` {
		t.Errorf("body = %q", body)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.reqs) != 1 {
		t.Fatalf("handler saw %d requests, want 1", len(h.reqs))
	}
	got := h.reqs[0]
	if got.Method != "PUT" || got.Path != "/things/lamp/properties/on" || got.Host != "lamp.local" || string(got.Body) != `{"on":true}` {
		t.Errorf("request = %+v body %q", got, got.Body)
	}
}

func TestServer_IdleCompletesLegacyRequest(t *testing.T) {
	h := &recordingHandler{resp: router.Response{Status: http.StatusNoContent}}
	srv := startServer(t, h, Config{PollTimeout: 5 * time.Millisecond})

	resp := exchange(t, srv, "OPTIONS /things/lamp HTTP/1.1\r\nHost: lamp.local\r\n\r\n")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if served, _ := srv.Stats(); served != 1 {
		t.Errorf("served = %d, want 1", served)
	}
}

func TestServer_OverflowReachesHandler(t *testing.T) {
	h := &recordingHandler{resp: router.Response{Status: http.StatusBadRequest}}
	srv := startServer(t, h, Config{Parser: parser.Config{Limits: parser.Limits{URI: 8}}})

	resp := exchange(t, srv, "GET /things/lamp/properties HTTP/1.1\r\nHost: lamp.local\r\n\r\n")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.reqs) != 1 || !h.reqs[0].Overflow {
		t.Errorf("handler requests = %+v, want one overflowed request", h.reqs)
	}
}

func TestServer_PanicBecomes500(t *testing.T) {
	srv := startServer(t, panicHandler{}, Config{})
	resp := exchange(t, srv, "GET / HTTP/1.1\r\nHost: lamp.local\r\nContent-Length: 0\r\n\r\n")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestServer_DropsStalledClient(t *testing.T) {
	h := &recordingHandler{}
	srv := startServer(t, h, Config{PollTimeout: time.Millisecond, Parser: parser.Config{RetryCeiling: 3}})

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	io.WriteString(conn, "GET /thi")

	for i := 0; i < 50; i++ {
		srv.Tick()
		if _, dropped := srv.Stats(); dropped == 1 {
			break
		}
	}
	if _, dropped := srv.Stats(); dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("stalled client should have been disconnected")
	}
}

func TestServer_RouterRoundTrip(t *testing.T) {
	d := thing.NewDevice("lamp", "Lamp")
	if err := d.AddProperty(thing.NewProperty("on", thing.TypeBoolean)); err != nil {
		t.Fatalf("AddProperty() error = %v", err)
	}
	r := router.New(router.Config{Name: "lamp", ValidateHost: true}, []*thing.Device{d}, thing.NewManager(0))
	srv := startServer(t, r, Config{})

	resp := exchange(t, srv, "GET /things/lamp/properties/on HTTP/1.1\r\nHost: lamp.local\r\n\r\n")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing")
	}
	if body := readBody(t, resp); body != `{"on":false}` {
		t.Errorf("body = %q", body)
	}

	resp = exchange(t, srv, "GET /things/lamp HTTP/1.1\r\nHost: evil.example\r\n\r\n")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("bad host status = %d, want 403", resp.StatusCode)
	}
}
