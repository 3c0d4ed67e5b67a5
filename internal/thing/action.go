package thing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Executor performs the work of one action invocation. It receives the
// invocation input verbatim and should return promptly once ctx is done.
type Executor func(ctx context.Context, input json.RawMessage) error

// Action declares an operation clients can invoke.
type Action struct {
	ID           string
	Title        string
	Description  string
	SemanticType string

	// Input is the input JSON schema. It is echoed verbatim in the
	// device description and, when present, used to validate requests.
	Input json.RawMessage

	// Execute runs the invocation. A nil Execute completes immediately.
	Execute Executor

	// OnCancel runs when an invocation of this action is cancelled.
	OnCancel func(*Invocation)

	schema *jsonschema.Schema
}

// NewAction returns an action definition.
func NewAction(id string, exec Executor) *Action {
	return &Action{ID: id, Execute: exec}
}

// compile prepares the input schema for validation.
func (a *Action) compile() error {
	if len(bytes.TrimSpace(a.Input)) == 0 {
		return nil
	}
	c := jsonschema.NewCompiler()
	url := "action-" + a.ID + ".json"
	if err := c.AddResource(url, bytes.NewReader(a.Input)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidSchema, a.ID, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidSchema, a.ID, err)
	}
	a.schema = s
	return nil
}

// validate rejects input that is not JSON, then checks it against the
// compiled schema. Missing input is validated as an empty object.
func (a *Action) validate(input json.RawMessage) error {
	if len(bytes.TrimSpace(input)) == 0 {
		input = json.RawMessage(`{}`)
	} else if !json.Valid(input) {
		return fmt.Errorf("%w: not valid JSON", ErrInvalidInput)
	}
	if a.schema == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(input, &v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := a.schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

// newInvocation builds a created invocation for this action.
func (a *Action) newInvocation(deviceID, id string, input json.RawMessage) *Invocation {
	owned := make(json.RawMessage, len(input))
	copy(owned, input)
	inv := &Invocation{
		ID:            id,
		Name:          a.ID,
		Input:         owned,
		TimeRequested: time.Now().UTC(),
		href:          "/things/" + deviceID + "/actions/" + a.ID + "/" + id,
		status:        StatusCreated,
	}
	if a.OnCancel != nil {
		inv.Cancel = func() { a.OnCancel(inv) }
	}
	return inv
}

// UnwrapInput returns the action input carried by a request payload. The
// Web Thing wire form {"input": {...}} is unwrapped; any other payload is
// the input itself. A null or empty payload means no input.
func UnwrapInput(payload json.RawMessage) json.RawMessage {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return nil
	}
	if payload[0] != '{' {
		return payload
	}
	var wrapped struct {
		Input json.RawMessage `json:"input"`
	}
	if err := json.Unmarshal(payload, &wrapped); err == nil && len(wrapped.Input) > 0 {
		return wrapped.Input
	}
	return payload
}

// Status is the lifecycle state of an invocation.
type Status string

// Invocation statuses in lifecycle order.
const (
	StatusCreated   Status = "created"
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

func (s Status) rank() int {
	switch s {
	case StatusCreated:
		return 0
	case StatusPending:
		return 1
	case StatusCompleted:
		return 2
	default:
		return -1
	}
}

// Invocation is one tracked run of an action.
//
// Thread Safety:
//   - Status, TimeCompleted, Err and MarshalJSON are safe for concurrent use.
//   - Notify and Cancel must be set before the invocation is started.
type Invocation struct {
	ID            string
	Name          string
	Input         json.RawMessage
	TimeRequested time.Time

	// Notify runs synchronously after every status transition.
	Notify func(*Invocation)

	// Cancel runs when the invocation is removed before or while running.
	Cancel func()

	href string

	mu            sync.Mutex
	status        Status
	timeCompleted time.Time
	err           string
	stop          context.CancelFunc
}

// Href returns the relative URL of the invocation resource.
func (inv *Invocation) Href() string { return inv.href }

// Status returns the current status.
func (inv *Invocation) Status() Status {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.status
}

// TimeCompleted returns the completion time, zero until completed.
func (inv *Invocation) TimeCompleted() time.Time {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.timeCompleted
}

// Err returns the executor error message, if any.
func (inv *Invocation) Err() string {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.err
}

// advance moves the status forward. It reports false if to is not
// strictly after the current status.
func (inv *Invocation) advance(to Status, execErr error) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if to.rank() <= inv.status.rank() {
		return false
	}
	inv.status = to
	if to == StatusCompleted {
		inv.timeCompleted = time.Now().UTC()
		if execErr != nil {
			inv.err = execErr.Error()
		}
	}
	return true
}

// setStop records the task cancel func.
func (inv *Invocation) setStop(stop context.CancelFunc) {
	inv.mu.Lock()
	inv.stop = stop
	inv.mu.Unlock()
}

// abort cancels a running task, if any.
func (inv *Invocation) abort() {
	inv.mu.Lock()
	stop := inv.stop
	inv.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// MarshalJSON encodes the invocation as {name: {input, href, status,
// timeRequested, timeCompleted}}.
func (inv *Invocation) MarshalJSON() ([]byte, error) {
	inv.mu.Lock()
	body := object{}
	if len(inv.Input) > 0 {
		body.set("input", inv.Input)
	}
	body.set("href", inv.href)
	body.set("status", inv.status)
	body.set("timeRequested", Timestamp(inv.TimeRequested))
	if !inv.timeCompleted.IsZero() {
		body.set("timeCompleted", Timestamp(inv.timeCompleted))
	}
	if inv.err != "" {
		body.set("error", inv.err)
	}
	inv.mu.Unlock()

	out := object{}
	out.set(inv.Name, body)
	return json.Marshal(out)
}

// Timestamp formats t as YYYY-MM-DDTHH:MM:SSZ in UTC.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
