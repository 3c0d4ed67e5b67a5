package history

import (
	"encoding/json"
	"time"
)

// Kind selects one of the three journals.
type Kind string

// Journal kinds.
const (
	KindProperty Kind = "property"
	KindEvent    Kind = "event"
	KindAction   Kind = "action"
)

// ParseKind validates a kind name. The empty string selects properties.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindProperty:
		return KindProperty, nil
	case KindEvent, KindAction:
		return Kind(s), nil
	default:
		return "", ErrInvalidKind
	}
}

// Entry is one journal row.
//
// Name is the property, event or action name. Value holds the property
// value, the event data or the invocation input, as JSON; it is empty
// when there was none. Status, InvocationID and Error are only set on
// action entries.
type Entry struct {
	ID           int64           `json:"id"`
	ThingID      string          `json:"thing_id"`
	Kind         Kind            `json:"kind"`
	Name         string          `json:"name"`
	Value        json.RawMessage `json:"value,omitempty"`
	InvocationID string          `json:"invocation_id,omitempty"`
	Status       string          `json:"status,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
