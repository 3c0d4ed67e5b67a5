package telemetry

import (
	"sync/atomic"
	"time"

	"github.com/nerrad567/webthing-core/internal/thing"
)

// Writer accepts property samples. *influxdb.Client satisfies it.
type Writer interface {
	WritePropertyValue(thingID, property string, value float64, ts time.Time)
}

// Sink writes property changes through a Writer.
type Sink struct {
	writer  Writer
	now     func() time.Time
	written atomic.Uint64
	skipped atomic.Uint64
}

// NewSink creates a sink over w.
func NewSink(w Writer) *Sink {
	return &Sink{writer: w, now: time.Now}
}

// PropertiesChanged writes every numeric change with a shared timestamp.
func (s *Sink) PropertiesChanged(deviceID string, changes []thing.Change) {
	ts := s.now().UTC()
	for _, c := range changes {
		v, ok := c.Value.Float()
		if !ok {
			s.skipped.Add(1)
			continue
		}
		s.writer.WritePropertyValue(deviceID, c.Name, v, ts)
		s.written.Add(1)
	}
}

// EventQueued is a no-op.
func (s *Sink) EventQueued(string, thing.EventInstance) {}

// ActionStatus is a no-op.
func (s *Sink) ActionStatus(string, *thing.Invocation) {}

// Written returns the number of samples handed to the writer.
func (s *Sink) Written() uint64 { return s.written.Load() }

// Skipped returns the number of non-numeric changes ignored.
func (s *Sink) Skipped() uint64 { return s.skipped.Load() }
