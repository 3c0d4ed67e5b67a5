package tcp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/webthing-core/internal/parser"
	"github.com/nerrad567/webthing-core/internal/router"
)

// Default settings.
const (
	DefaultPollTimeout = time.Millisecond
	DefaultByteBudget  = 1024
	writeTimeout       = 5 * time.Second
)

// Handler answers parsed requests. *router.Router satisfies it.
type Handler interface {
	Serve(req router.Request) router.Response
}

// Logger defines the logging interface used by the Server.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the poll transport settings.
type Config struct {
	Host string
	Port int

	// PollTimeout bounds each byte read. A read that times out is
	// reported to the parser as "no data".
	PollTimeout time.Duration

	// ByteBudget caps the bytes read in one Tick.
	ByteBudget int

	Parser parser.Config
}

// Server is a single-client HTTP transport driven by Tick. It accepts
// one connection at a time and feeds the parser one byte per poll, so a
// slow client never blocks the scheduler for longer than its budget.
//
// Thread Safety:
//   - Tick must be called from one goroutine (the scheduler).
//   - Close must not run concurrently with Tick; call it once the
//     scheduler has stopped.
type Server struct {
	cfg     Config
	handler Handler
	logger  Logger

	listener net.Listener
	conn     net.Conn
	reader   *bufio.Reader
	parser   *parser.Parser

	served  uint64
	dropped uint64
}

// New creates a poll transport. Call Start to listen.
func New(cfg Config, h Handler) *Server {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.ByteBudget <= 0 {
		cfg.ByteBudget = DefaultByteBudget
	}
	return &Server{
		cfg:     cfg,
		handler: h,
		logger:  noopLogger{},
		parser:  parser.New(cfg.Parser),
	}
}

// SetLogger sets the logger for the server.
func (s *Server) SetLogger(logger Logger) {
	s.logger = logger
}

// Start opens the listening socket.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("tcp listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.logger.Info("poll transport listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stats returns the number of requests served and clients dropped.
func (s *Server) Stats() (served, dropped uint64) {
	return s.served, s.dropped
}

// Tick accepts a pending client if none is connected, then polls it until
// a request completes, no data is available or the byte budget is spent.
// At most one request is handled per tick.
func (s *Server) Tick() {
	if s.listener == nil {
		return
	}
	if s.conn == nil && !s.accept() {
		return
	}

	for i := 0; i < s.cfg.ByteBudget; i++ {
		st, more := s.poll()
		switch st {
		case parser.Complete:
			s.respond()
			return
		case parser.Drop:
			s.dropped++
			s.logger.Debug("giving up on stalled client")
			s.disconnect()
			return
		}
		if !more {
			return
		}
	}
}

// accept waits up to one poll timeout for a client.
func (s *Server) accept() bool {
	if dl, ok := s.listener.(interface{ SetDeadline(time.Time) error }); ok {
		dl.SetDeadline(time.Now().Add(s.cfg.PollTimeout)) //nolint:errcheck // Listener deadline is advisory
	}
	conn, err := s.listener.Accept()
	if err != nil {
		if !isTimeout(err) && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("accept failed", "error", err)
		}
		return false
	}
	s.conn = conn
	s.reader = bufio.NewReaderSize(conn, 64)
	s.parser.Reset()
	s.logger.Debug("client connected", "remote", conn.RemoteAddr().String())
	return true
}

// poll reads one byte, or reports "no data" to the parser. more is false
// when the tick should end without a result.
func (s *Server) poll() (st parser.Status, more bool) {
	s.conn.SetReadDeadline(time.Now().Add(s.cfg.PollTimeout)) //nolint:errcheck // Read below reports failures
	b, err := s.reader.ReadByte()
	switch {
	case err == nil:
		return s.parser.Feed(b), true
	case isTimeout(err):
		return s.parser.Idle(), false
	case errors.Is(err, io.EOF):
		// A half-closed client has sent everything it will send.
		if st := s.parser.Idle(); st == parser.Complete {
			return st, false
		}
		s.disconnect()
		return parser.NeedMore, false
	default:
		s.logger.Debug("client read failed", "error", err)
		s.disconnect()
		return parser.NeedMore, false
	}
}

// respond serves the completed request and closes the client.
func (s *Server) respond() {
	pr := s.parser.Request()
	req := router.Request{
		Method:   pr.Method,
		Path:     pr.URI,
		Host:     pr.Host,
		Body:     pr.Body,
		Overflow: pr.Overflow,
	}

	resp := s.serve(req)
	if err := s.write(resp); err != nil {
		s.logger.Debug("writing response failed", "error", err)
	}
	s.served++
	s.logger.Debug("request served", "method", req.Method, "path", req.Path, "status", resp.Status)
	s.disconnect()
}

// serve calls the handler, converting a panic into a 500.
func (s *Server) serve(req router.Request) (resp router.Response) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("handler panic recovered", "panic", rec, "path", req.Path)
			resp = router.Response{Status: http.StatusInternalServerError}
		}
	}()
	return s.handler.Serve(req)
}

func (s *Server) write(resp router.Response) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck // Write below reports failures
	hr := &http.Response{
		StatusCode:    resp.Status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        resp.Header,
		ContentLength: int64(len(resp.Body)),
		Close:         true,
	}
	if hr.Header == nil {
		hr.Header = make(http.Header)
	}
	if len(resp.Body) > 0 {
		hr.Body = io.NopCloser(bytes.NewReader(resp.Body))
	}
	w := bufio.NewWriter(s.conn)
	if err := hr.Write(w); err != nil {
		return err
	}
	return w.Flush()
}

func (s *Server) disconnect() {
	if s.conn != nil {
		s.conn.Close() //nolint:errcheck // Connection is done either way
	}
	s.conn = nil
	s.reader = nil
	s.parser.Reset()
}

// Close disconnects the client and stops listening.
func (s *Server) Close() error {
	s.disconnect()
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
