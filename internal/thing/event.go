package thing

import (
	"time"
)

// Event declares a named occurrence the device can emit. The embedded
// Item carries its type and schema; the value fields are unused.
type Event struct {
	Item
}

// NewEvent returns an event definition carrying data of type t.
func NewEvent(id string, t ValueType) *Event {
	e := &Event{}
	e.ID = id
	e.Type = t
	return e
}

// EventInstance is one queued occurrence of an event.
type EventInstance struct {
	Name      string
	Value     Value
	Timestamp time.Time
}

// eventRing is a fixed-capacity FIFO of event instances. When full the
// oldest instance is overwritten. It is not safe for concurrent use;
// Device guards it with its mutex.
type eventRing struct {
	buf   []EventInstance
	start int
	n     int
}

func newEventRing(capacity int) *eventRing {
	if capacity < 1 {
		capacity = 1
	}
	return &eventRing{buf: make([]EventInstance, capacity)}
}

// push appends ev and reports whether an older instance was evicted.
func (r *eventRing) push(ev EventInstance) bool {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = ev
		r.n++
		return false
	}
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
	return true
}

// each calls fn for every instance, oldest first.
func (r *eventRing) each(fn func(EventInstance)) {
	for i := 0; i < r.n; i++ {
		fn(r.buf[(r.start+i)%len(r.buf)])
	}
}

func (r *eventRing) len() int { return r.n }
