package parser

import (
	"bytes"
)

// DefaultRetryCeiling is the number of consecutive idle polls tolerated
// before a partial request is dropped.
const DefaultRetryCeiling = 5000

// MinHeaderLimit is the smallest header name buffer that still recognises
// Content-Length. Smaller limits are raised to it.
const MinHeaderLimit = len("content-length")

// State is the position of the parser within a request.
type State int

// Parser states in the order a request passes through them.
const (
	ReadMethod State = iota
	ReadURI
	DiscardVersion
	DiscardHeadersPreHost
	ReadHost
	DiscardHeadersPostHost
	ReadContentLength
	ReadContent
)

func (s State) String() string {
	switch s {
	case ReadMethod:
		return "read_method"
	case ReadURI:
		return "read_uri"
	case DiscardVersion:
		return "discard_version"
	case DiscardHeadersPreHost:
		return "discard_headers_pre_host"
	case ReadHost:
		return "read_host"
	case DiscardHeadersPostHost:
		return "discard_headers_post_host"
	case ReadContentLength:
		return "read_content_length"
	case ReadContent:
		return "read_content"
	default:
		return "unknown"
	}
}

// Status is the result of feeding the parser one poll.
type Status int

const (
	// NeedMore means the request is not complete yet.
	NeedMore Status = iota

	// Complete means Request returns a full request. Call Reset before
	// feeding the next one.
	Complete

	// Drop means the client stalled past the retry ceiling. The parser
	// has already reset itself.
	Drop
)

func (s Status) String() string {
	switch s {
	case NeedMore:
		return "need_more"
	case Complete:
		return "complete"
	case Drop:
		return "drop"
	default:
		return "unknown"
	}
}

// Limits are the fixed buffer capacities, in bytes.
type Limits struct {
	Method int
	URI    int
	Host   int
	Header int
	Body   int
}

// DefaultLimits returns capacities suited to Web Thing requests.
func DefaultLimits() Limits {
	return Limits{Method: 8, URI: 256, Host: 64, Header: 32, Body: 512}
}

// Config holds parser settings.
type Config struct {
	Limits Limits

	// RetryCeiling is the idle poll count after which Idle returns Drop.
	// Zero uses DefaultRetryCeiling.
	RetryCeiling int
}

// Request is a parsed request. Body aliases the parser's buffer and is
// valid until the next Reset.
type Request struct {
	Method string
	URI    string
	Host   string
	Body   []byte

	// Overflow is set when the method, URI, host or body exceeded its
	// buffer. The truncated parts must not be used.
	Overflow bool
}

// Parser rebuilds one HTTP request from single-byte polls. All state
// lives in the struct so parsing resumes across scheduler ticks. Buffers
// are allocated once by New and never grow.
//
// Thread Safety:
//   - A Parser is owned by one transport goroutine and is not safe for
//     concurrent use.
type Parser struct {
	limits       Limits
	retryCeiling int

	method []byte
	uri    []byte
	host   []byte
	header []byte
	body   []byte

	state State
	done  bool

	// crlf counts consecutive CR/LF characters; four end the headers.
	crlf int

	// skipLine discards the rest of an uninteresting header line.
	skipLine bool
	hostSeen bool

	hasLength     bool
	contentLength int

	overflow bool
	retries  int
}

// New allocates a parser with fixed buffers.
func New(cfg Config) *Parser {
	limits := cfg.Limits
	def := DefaultLimits()
	if limits.Method <= 0 {
		limits.Method = def.Method
	}
	if limits.URI <= 0 {
		limits.URI = def.URI
	}
	if limits.Host <= 0 {
		limits.Host = def.Host
	}
	if limits.Header <= 0 {
		limits.Header = def.Header
	} else if limits.Header < MinHeaderLimit {
		limits.Header = MinHeaderLimit
	}
	if limits.Body <= 0 {
		limits.Body = def.Body
	}
	ceiling := cfg.RetryCeiling
	if ceiling <= 0 {
		ceiling = DefaultRetryCeiling
	}

	return &Parser{
		limits:       limits,
		retryCeiling: ceiling,
		method:       make([]byte, 0, limits.Method),
		uri:          make([]byte, 0, limits.URI),
		host:         make([]byte, 0, limits.Host),
		header:       make([]byte, 0, limits.Header),
		body:         make([]byte, 0, limits.Body),
	}
}

// State returns the current state.
func (p *Parser) State() State {
	return p.state
}

// Reset clears all request state, keeping the buffers.
func (p *Parser) Reset() {
	p.method = p.method[:0]
	p.uri = p.uri[:0]
	p.host = p.host[:0]
	p.header = p.header[:0]
	p.body = p.body[:0]
	p.state = ReadMethod
	p.done = false
	p.crlf = 0
	p.skipLine = false
	p.hostSeen = false
	p.hasLength = false
	p.contentLength = 0
	p.overflow = false
	p.retries = 0
}

// Request returns the parsed request. It is meaningful after Feed or
// Idle returned Complete.
func (p *Parser) Request() Request {
	return Request{
		Method:   string(p.method),
		URI:      string(p.uri),
		Host:     string(p.host),
		Body:     p.body,
		Overflow: p.overflow,
	}
}

// Idle records a poll that delivered no data. Without a Content-Length
// the first idle poll while reading content completes the request.
// Otherwise it counts a retry and reports Drop past the ceiling.
func (p *Parser) Idle() Status {
	if p.done {
		return Complete
	}
	if p.state == ReadContent && !p.hasLength {
		return p.complete()
	}
	p.retries++
	if p.retries > p.retryCeiling {
		p.Reset()
		return Drop
	}
	return NeedMore
}

// Feed consumes one byte.
func (p *Parser) Feed(c byte) Status {
	if p.done {
		return Complete
	}
	p.retries = 0

	switch p.state {
	case ReadMethod:
		if c == ' ' {
			p.state = ReadURI
			return NeedMore
		}
		p.method = p.store(p.method, c)

	case ReadURI:
		switch c {
		case ' ':
			p.state = DiscardVersion
		case '\r':
			p.crlf = 1
			p.state = DiscardHeadersPreHost
		default:
			p.uri = p.store(p.uri, c)
		}

	case DiscardVersion:
		if c == '\r' {
			p.crlf = 1
			p.state = DiscardHeadersPreHost
		}

	case DiscardHeadersPreHost, DiscardHeadersPostHost:
		return p.feedHeader(c)

	case ReadHost:
		switch c {
		case ' ', '\t':
		case '\r', '\n':
			p.endValue()
		default:
			p.host = p.store(p.host, c)
		}

	case ReadContentLength:
		switch {
		case c >= '0' && c <= '9':
			if p.contentLength <= p.limits.Body {
				p.contentLength = p.contentLength*10 + int(c-'0')
			}
		case c == '\r':
			p.endValue()
			if p.hasLength && p.contentLength > p.limits.Body {
				p.overflow = true
			}
		case c == ' ' || c == '\t':
		default:
			p.hasLength = false
		}

	case ReadContent:
		if len(p.body) < cap(p.body) {
			p.body = append(p.body, c)
		} else {
			p.overflow = true
		}
		if p.hasLength {
			p.contentLength--
			if p.contentLength <= 0 {
				return p.complete()
			}
		}
	}
	return NeedMore
}

// feedHeader handles one byte of the header block outside the Host and
// Content-Length values.
func (p *Parser) feedHeader(c byte) Status {
	if c == '\r' || c == '\n' {
		p.crlf++
		p.header = p.header[:0]
		p.skipLine = false
		if p.crlf == 4 {
			return p.endHeaders()
		}
		return NeedMore
	}
	p.crlf = 0

	if p.skipLine {
		return NeedMore
	}
	if c != ':' {
		if len(p.header) < cap(p.header) {
			p.header = append(p.header, c)
		} else {
			p.skipLine = true
		}
		return NeedMore
	}

	switch {
	case bytes.EqualFold(p.header, []byte("host")):
		// Only the first Host header counts.
		if p.hostSeen {
			p.skipLine = true
			break
		}
		p.state = ReadHost
	case bytes.EqualFold(p.header, []byte("content-length")):
		p.hasLength = true
		p.contentLength = 0
		p.state = ReadContentLength
	default:
		p.skipLine = true
	}
	return NeedMore
}

// endValue returns to header discarding after the CR ending a value.
func (p *Parser) endValue() {
	if p.state == ReadHost {
		p.hostSeen = true
	}
	p.crlf = 1
	p.header = p.header[:0]
	if p.hostSeen {
		p.state = DiscardHeadersPostHost
	} else {
		p.state = DiscardHeadersPreHost
	}
}

func (p *Parser) endHeaders() Status {
	p.state = ReadContent
	if !p.hasLength {
		return NeedMore
	}
	// A declared body that cannot fit is not read at all.
	if p.contentLength <= 0 || p.overflow {
		return p.complete()
	}
	return NeedMore
}

func (p *Parser) complete() Status {
	p.done = true
	return Complete
}

// store appends c when buf has room and marks overflow otherwise.
func (p *Parser) store(buf []byte, c byte) []byte {
	if len(buf) < cap(buf) {
		return append(buf, c)
	}
	p.overflow = true
	return buf
}
