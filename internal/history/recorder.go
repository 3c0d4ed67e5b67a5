package history

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/nerrad567/webthing-core/internal/thing"
)

const (
	// DefaultQueueSize is the number of entries buffered between the
	// publisher and the database writer.
	DefaultQueueSize = 256

	flushTimeout = 5 * time.Second
)

// Logger defines the logging interface used by the Recorder.
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

// Recorder is a publisher sink that journals every change.
//
// The sink methods only enqueue; Run performs the inserts on its own
// goroutine. When the queue is full new entries are dropped and counted.
type Recorder struct {
	repo    Repository
	queue   chan Entry
	logger  Logger
	dropped atomic.Uint64
}

// NewRecorder creates a recorder writing to repo. size <= 0 uses
// DefaultQueueSize.
func NewRecorder(repo Repository, size int) *Recorder {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Recorder{
		repo:   repo,
		queue:  make(chan Entry, size),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Dropped returns the number of entries discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// PropertiesChanged journals each changed property value.
func (r *Recorder) PropertiesChanged(deviceID string, changes []thing.Change) {
	for _, c := range changes {
		value, err := json.Marshal(c.Value)
		if err != nil {
			continue
		}
		r.enqueue(Entry{ThingID: deviceID, Kind: KindProperty, Name: c.Name, Value: value})
	}
}

// EventQueued journals an event instance with its own timestamp.
func (r *Recorder) EventQueued(deviceID string, ev thing.EventInstance) {
	e := Entry{ThingID: deviceID, Kind: KindEvent, Name: ev.Name, CreatedAt: ev.Timestamp}
	if ev.Value.Type() != thing.TypeNone {
		if data, err := json.Marshal(ev.Value); err == nil {
			e.Value = data
		}
	}
	r.enqueue(e)
}

// ActionStatus journals an invocation status transition.
func (r *Recorder) ActionStatus(deviceID string, inv *thing.Invocation) {
	r.enqueue(Entry{
		ThingID:      deviceID,
		Kind:         KindAction,
		Name:         inv.Name,
		Value:        inv.Input,
		InvocationID: inv.ID,
		Status:       string(inv.Status()),
		Error:        inv.Err(),
	})
}

func (r *Recorder) enqueue(e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	select {
	case r.queue <- e:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			r.logger.Warn("history queue full, dropping entries", "dropped", n)
		}
	}
}

// Run writes queued entries until ctx is cancelled, then flushes what is
// left with a short timeout.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case e := <-r.queue:
			if ctx.Err() != nil {
				r.writeDetached(e)
				r.flush()
				return nil
			}
			r.write(ctx, e)
		case <-ctx.Done():
			r.flush()
			return nil
		}
	}
}

// writeDetached writes an entry dequeued after cancellation.
func (r *Recorder) writeDetached(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	r.write(ctx, e)
}

func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for {
		select {
		case e := <-r.queue:
			r.write(ctx, e)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, e Entry) {
	if err := r.repo.Record(ctx, e); err != nil {
		r.logger.Warn("history write failed", "thing", e.ThingID, "kind", e.Kind, "name", e.Name, "error", err)
	}
}
