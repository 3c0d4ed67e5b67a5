package router

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/webthing-core/internal/thing"
)

// Domain errors for the router package.
var (
	// ErrHostRejected is returned when the Host header names neither this
	// thing's mDNS name, its IP nor localhost.
	ErrHostRejected = errors.New("router: host rejected")

	// ErrRouteNotFound is returned when no route matches the method and path.
	ErrRouteNotFound = errors.New("router: no such resource")

	// ErrDeviceNotFound is returned when a path names an unknown thing.
	ErrDeviceNotFound = errors.New("router: device not found")

	// ErrMissingBody is returned for writes without a request body.
	ErrMissingBody = errors.New("router: missing body")

	// ErrMalformedBody is returned when the body is not a JSON object.
	ErrMalformedBody = errors.New("router: malformed body")

	// ErrInvalidPropertyKey is returned when the body lacks the addressed key.
	ErrInvalidPropertyKey = errors.New("router: invalid property key")

	// ErrParseOverflow is returned when the request exceeded a parser buffer.
	ErrParseOverflow = errors.New("router: request exceeds buffer limits")
)

// Error codes carried in the "code" member of error bodies.
const (
	codeHostRejected       = "host_rejected"
	codeNotFound           = "not_found"
	codeMissingBody        = "missing_body"
	codeMalformedBody      = "malformed_body"
	codeInvalidPropertyKey = "invalid_property_key"
	codeUnknownAction      = "unknown_action"
	codeParseOverflow      = "parse_overflow"
	codeInvalidValue       = "invalid_value"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classify maps an error to its status code and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrHostRejected):
		return http.StatusForbidden, codeHostRejected
	case errors.Is(err, ErrRouteNotFound),
		errors.Is(err, ErrDeviceNotFound),
		errors.Is(err, thing.ErrPropertyNotFound),
		errors.Is(err, thing.ErrActionNotFound),
		errors.Is(err, thing.ErrEventNotFound),
		errors.Is(err, thing.ErrInvocationNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, ErrMissingBody):
		return http.StatusUnprocessableEntity, codeMissingBody
	case errors.Is(err, ErrMalformedBody):
		return http.StatusInternalServerError, codeMalformedBody
	case errors.Is(err, ErrInvalidPropertyKey):
		return http.StatusBadRequest, codeInvalidPropertyKey
	case errors.Is(err, thing.ErrUnknownAction):
		return http.StatusBadRequest, codeUnknownAction
	case errors.Is(err, ErrParseOverflow):
		return http.StatusBadRequest, codeParseOverflow
	default:
		return http.StatusBadRequest, codeInvalidValue
	}
}

// errorResponse renders err as a JSON error response.
func errorResponse(err error) Response {
	status, code := classify(err)
	body, _ := json.Marshal(errorBody{Status: status, Code: code, Message: err.Error()}) //nolint:errcheck // fixed struct
	return Response{Status: status, Body: body}
}
