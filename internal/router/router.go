package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/nerrad567/webthing-core/internal/thing"
)

// CORS header values attached to every response.
const (
	corsAllowOrigin  = "*"
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders = "Origin, X-Requested-With, Content-Type, Accept"
)

// Logger defines the logging interface used by the Router.
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

// Config holds the router settings.
type Config struct {
	// Name is the mDNS host name without the .local suffix.
	Name string

	// IP is the address clients may use in the Host header.
	IP string

	// ValidateHost enables Host header validation.
	ValidateHost bool

	// WSBase is the WebSocket base URL advertised as each description's
	// alternate link. Empty omits the link.
	WSBase string
}

// Request is a transport-independent HTTP request.
type Request struct {
	Method string
	Path   string
	Host   string
	Body   []byte

	// Overflow marks a request whose parts exceeded the transport's buffers.
	Overflow bool
}

// Response is what the transport writes back.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Router maps Web Thing requests onto devices.
//
// Thread Safety:
//   - Serve is safe for concurrent use. All mutable state lives in the
//     devices and the lifecycle manager.
type Router struct {
	cfg          Config
	devices      []*thing.Device
	byID         map[string]*thing.Device
	mgr          *thing.Manager
	allowedHosts []string
	logger       Logger
}

// New creates a router over devices. mgr runs the invocations created by
// POST requests.
func New(cfg Config, devices []*thing.Device, mgr *thing.Manager) *Router {
	byID := make(map[string]*thing.Device, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
	}
	return &Router{
		cfg:          cfg,
		devices:      devices,
		byID:         byID,
		mgr:          mgr,
		allowedHosts: allowedHosts(cfg),
		logger:       noopLogger{},
	}
}

// SetLogger sets the logger for the router.
func (r *Router) SetLogger(logger Logger) {
	r.logger = logger
}

// Devices returns the served devices in order.
func (r *Router) Devices() []*thing.Device {
	return r.devices
}

// Device looks up a served device by id.
func (r *Router) Device(id string) (*thing.Device, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// CheckHost applies Host header validation. It returns ErrHostRejected
// when validation is enabled and host is not acceptable.
func (r *Router) CheckHost(host string) error {
	if !r.cfg.ValidateHost || r.hostAllowed(host) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrHostRejected, host)
}

// Serve handles one request. CORS headers are set on every response.
func (r *Router) Serve(req Request) Response {
	resp := r.serve(req)
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set("Access-Control-Allow-Origin", corsAllowOrigin)
	resp.Header.Set("Access-Control-Allow-Methods", corsAllowMethods)
	resp.Header.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	if len(resp.Body) > 0 {
		resp.Header.Set("Content-Type", "application/json")
	}
	return resp
}

func (r *Router) serve(req Request) Response {
	if err := r.CheckHost(req.Host); err != nil {
		r.logger.Debug("host rejected", "host", req.Host, "path", req.Path)
		return errorResponse(err)
	}
	if req.Overflow {
		return errorResponse(ErrParseOverflow)
	}
	if req.Method == http.MethodOptions {
		return Response{Status: http.StatusNoContent}
	}

	parts := splitPath(req.Path)
	if len(parts) == 0 || (len(parts) == 1 && parts[0] == ".well-known") {
		return r.notFound(req)
	}
	if len(parts) == 2 && parts[0] == ".well-known" && parts[1] == "wot" {
		parts = nil
	}
	if len(parts) == 1 && parts[0] == "" {
		parts = nil
	}

	if parts == nil {
		if req.Method != http.MethodGet {
			return r.notFound(req)
		}
		return r.jsonResponse(http.StatusOK, func() ([]byte, error) {
			return thing.DescribeAll(r.devices, r.cfg.WSBase)
		})
	}

	if parts[0] != "things" || len(parts) < 2 {
		return r.notFound(req)
	}
	d, ok := r.byID[parts[1]]
	if !ok {
		return errorResponse(fmt.Errorf("%w: %s", ErrDeviceNotFound, parts[1]))
	}

	if len(parts) == 2 {
		if req.Method != http.MethodGet {
			return r.notFound(req)
		}
		return r.jsonResponse(http.StatusOK, func() ([]byte, error) {
			return thing.Describe(d, r.cfg.WSBase)
		})
	}

	switch parts[2] {
	case "properties":
		return r.serveProperties(req, d, parts[3:])
	case "actions":
		return r.serveActions(req, d, parts[3:])
	case "events":
		return r.serveEvents(req, d, parts[3:])
	default:
		return r.notFound(req)
	}
}

func (r *Router) serveProperties(req Request, d *thing.Device, rest []string) Response {
	switch {
	case len(rest) == 0 && req.Method == http.MethodGet:
		return r.jsonResponse(http.StatusOK, d.PropertyValues)

	case len(rest) == 1 && (req.Method == http.MethodGet || req.Method == http.MethodPut):
		p, ok := d.Property(rest[0])
		if !ok {
			return errorResponse(fmt.Errorf("%w: %s", thing.ErrPropertyNotFound, rest[0]))
		}
		if req.Method == http.MethodPut {
			if err := r.putProperty(req, d, p); err != nil {
				return errorResponse(err)
			}
		}
		return r.jsonResponse(http.StatusOK, func() ([]byte, error) {
			return thing.SerializeValue(&p.Item)
		})

	default:
		return r.notFound(req)
	}
}

func (r *Router) putProperty(req Request, d *thing.Device, p *thing.Property) error {
	members, err := decodeObject(req.Body)
	if err != nil {
		return err
	}
	raw, ok := members[p.ID]
	if !ok {
		return fmt.Errorf("%w: body must contain %q", ErrInvalidPropertyKey, p.ID)
	}
	if _, err := d.WriteProperty(p.ID, raw); err != nil {
		return err
	}
	r.logger.Debug("property written", "device", d.ID, "property", p.ID)
	return nil
}

func (r *Router) serveActions(req Request, d *thing.Device, rest []string) Response {
	switch len(rest) {
	case 0:
		switch req.Method {
		case http.MethodGet:
			return r.jsonResponse(http.StatusOK, func() ([]byte, error) {
				return json.Marshal(d.Invocations(""))
			})
		case http.MethodPost:
			return r.postAction(req, d, "")
		}

	case 1:
		if _, ok := d.Action(rest[0]); !ok {
			return errorResponse(fmt.Errorf("%w: %s", thing.ErrActionNotFound, rest[0]))
		}
		switch req.Method {
		case http.MethodGet:
			return r.jsonResponse(http.StatusOK, func() ([]byte, error) {
				return json.Marshal(d.Invocations(rest[0]))
			})
		case http.MethodPost:
			return r.postAction(req, d, rest[0])
		}

	case 2:
		if _, ok := d.Action(rest[0]); !ok {
			return errorResponse(fmt.Errorf("%w: %s", thing.ErrActionNotFound, rest[0]))
		}
		inv, ok := d.FindInvocation(rest[1])
		if !ok || inv.Name != rest[0] {
			return errorResponse(fmt.Errorf("%w: %s", thing.ErrInvocationNotFound, rest[1]))
		}
		switch req.Method {
		case http.MethodGet:
			return r.jsonResponse(http.StatusOK, func() ([]byte, error) {
				return json.Marshal(inv)
			})
		case http.MethodDelete:
			if !r.mgr.Cancel(d, inv.ID) {
				return errorResponse(fmt.Errorf("%w: %s", thing.ErrInvocationNotFound, inv.ID))
			}
			return Response{Status: http.StatusNoContent}
		}
	}
	return r.notFound(req)
}

// postAction creates and starts an invocation. With name empty the body
// must hold exactly one member naming the action.
func (r *Router) postAction(req Request, d *thing.Device, name string) Response {
	members, err := decodeObject(req.Body)
	if err != nil {
		return errorResponse(err)
	}

	if name == "" {
		if len(members) != 1 {
			return errorResponse(fmt.Errorf("%w: body must name exactly one action", thing.ErrUnknownAction))
		}
		for k := range members {
			name = k
		}
	}
	payload, ok := members[name]
	if !ok {
		return errorResponse(fmt.Errorf("%w: body must contain %q", ErrInvalidPropertyKey, name))
	}

	inv, err := r.mgr.Request(d, name, thing.UnwrapInput(payload))
	if err != nil {
		return errorResponse(err)
	}
	r.mgr.Start(d, inv)
	r.logger.Debug("action started", "device", d.ID, "action", name, "id", inv.ID)

	return r.jsonResponse(http.StatusCreated, func() ([]byte, error) {
		return json.Marshal(inv)
	})
}

func (r *Router) serveEvents(req Request, d *thing.Device, rest []string) Response {
	if req.Method != http.MethodGet {
		return r.notFound(req)
	}
	switch len(rest) {
	case 0:
		return r.jsonResponse(http.StatusOK, func() ([]byte, error) {
			return thing.MarshalEventInstances(d.EventInstances(""))
		})
	case 1:
		if _, ok := d.Event(rest[0]); !ok {
			return errorResponse(fmt.Errorf("%w: %s", thing.ErrEventNotFound, rest[0]))
		}
		return r.jsonResponse(http.StatusOK, func() ([]byte, error) {
			return thing.MarshalEventInstances(d.EventInstances(rest[0]))
		})
	default:
		return r.notFound(req)
	}
}

func (r *Router) notFound(req Request) Response {
	return errorResponse(fmt.Errorf("%w: %s %s", ErrRouteNotFound, req.Method, req.Path))
}

// jsonResponse encodes with fn, turning encoder failures into 500s.
func (r *Router) jsonResponse(status int, fn func() ([]byte, error)) Response {
	body, err := fn()
	if err != nil {
		r.logger.Error("encoding response", "error", err)
		return errorResponse(fmt.Errorf("%w: %w", ErrMalformedBody, err))
	}
	return Response{Status: status, Body: body}
}

// decodeObject parses body as a JSON object.
func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrMissingBody
	}
	if body[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedBody)
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(body, &members); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}
	return members, nil
}

// splitPath drops the query string and a trailing slash and splits the
// remaining path into segments. "/" yields a single empty segment.
func splitPath(path string) []string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		return nil
	}
	path = strings.TrimSuffix(path[1:], "/")
	return strings.Split(path, "/")
}
