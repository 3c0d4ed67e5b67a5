package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/nerrad567/webthing-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/webthing-core/internal/thing"
)

// DefaultQueueSize is the number of outbound messages buffered before new
// ones are dropped.
const DefaultQueueSize = 256

// Broker is the subset of the MQTT client the bridge uses.
type Broker interface {
	Topics() mqtt.Topics
	PublishRetained(topic string, payload []byte) error
	PublishEvent(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger defines the logging interface used by the Bridge.
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

type outbound struct {
	topic    string
	payload  []byte
	retained bool
}

// eventPayload is the body of an event topic message.
type eventPayload struct {
	Data      *thing.Value `json:"data,omitempty"`
	Timestamp string       `json:"timestamp"`
}

// Bridge connects the device model to an MQTT broker.
type Bridge struct {
	broker  Broker
	topics  mqtt.Topics
	devices []*thing.Device
	byID    map[string]*thing.Device
	mgr     *thing.Manager
	qos     byte
	logger  Logger

	queue   chan outbound
	dropped atomic.Uint64
}

// New creates a bridge for devices. Inbound action requests go through mgr.
func New(broker Broker, devices []*thing.Device, mgr *thing.Manager, qos byte) *Bridge {
	b := &Bridge{
		broker:  broker,
		topics:  broker.Topics(),
		devices: devices,
		byID:    make(map[string]*thing.Device, len(devices)),
		mgr:     mgr,
		qos:     qos,
		logger:  noopLogger{},
		queue:   make(chan outbound, DefaultQueueSize),
	}
	for _, d := range devices {
		b.byID[d.ID] = d
	}
	return b
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Dropped returns the number of outbound messages discarded on a full queue.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribe registers the inbound property write and action request
// handlers, then queues the current value of every property so retained
// topics start out complete.
func (b *Bridge) Subscribe() error {
	if err := b.broker.Subscribe(b.topics.AllPropertySets(), b.qos, b.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to property writes: %w", err)
	}
	if err := b.broker.Subscribe(b.topics.AllActionRequests(), b.qos, b.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to action requests: %w", err)
	}
	for _, d := range b.devices {
		for _, p := range d.Properties() {
			b.publishValue(d.ID, p.ID, p.Value())
		}
	}
	return nil
}

// HandleMessage applies one inbound message. Property writes take the raw
// value as payload; action requests take the input, optionally wrapped in
// {"input": ...}.
func (b *Bridge) HandleMessage(topic string, payload []byte) error {
	tt, ok := b.topics.Parse(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	d, ok := b.byID[tt.ThingID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrThingNotFound, tt.ThingID)
	}

	switch {
	case tt.Kind == mqtt.KindProperties && tt.Verb == "set":
		if _, err := d.WriteProperty(tt.Name, payload); err != nil {
			return fmt.Errorf("writing %s/%s: %w", d.ID, tt.Name, err)
		}
		b.logger.Debug("property written over mqtt", "thing", d.ID, "property", tt.Name)
	case tt.Kind == mqtt.KindActions && tt.Verb == "request":
		inv, err := b.mgr.Request(d, tt.Name, thing.UnwrapInput(payload))
		if err != nil {
			return fmt.Errorf("requesting %s/%s: %w", d.ID, tt.Name, err)
		}
		b.mgr.Start(d, inv)
		b.logger.Debug("action requested over mqtt", "thing", d.ID, "action", tt.Name, "id", inv.ID)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	return nil
}

// PropertiesChanged queues a retained value message per change.
func (b *Bridge) PropertiesChanged(deviceID string, changes []thing.Change) {
	for _, c := range changes {
		b.publishValue(deviceID, c.Name, c.Value)
	}
}

// EventQueued queues a {data, timestamp} message on the event topic.
func (b *Bridge) EventQueued(deviceID string, ev thing.EventInstance) {
	body := eventPayload{Timestamp: thing.Timestamp(ev.Timestamp)}
	if ev.Value.Type() != thing.TypeNone {
		v := ev.Value
		body.Data = &v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		b.logger.Error("encoding event", "thing", deviceID, "event", ev.Name, "error", err)
		return
	}
	b.enqueue(outbound{topic: b.topics.Event(deviceID, ev.Name), payload: payload})
}

// ActionStatus queues the invocation document on the action status topic.
func (b *Bridge) ActionStatus(deviceID string, inv *thing.Invocation) {
	payload, err := json.Marshal(inv)
	if err != nil {
		b.logger.Error("encoding invocation", "thing", deviceID, "action", inv.Name, "error", err)
		return
	}
	b.enqueue(outbound{topic: b.topics.ActionStatus(deviceID, inv.Name), payload: payload})
}

func (b *Bridge) publishValue(deviceID, name string, v thing.Value) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("encoding property", "thing", deviceID, "property", name, "error", err)
		return
	}
	b.enqueue(outbound{topic: b.topics.Property(deviceID, name), payload: payload, retained: true})
}

func (b *Bridge) enqueue(m outbound) {
	select {
	case b.queue <- m:
	default:
		if n := b.dropped.Add(1); n == 1 || n%100 == 0 {
			b.logger.Warn("mqtt queue full, dropping messages", "dropped", n)
		}
	}
}

// Run publishes queued messages until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		select {
		case m := <-b.queue:
			b.publish(m)
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *Bridge) publish(m outbound) {
	var err error
	if m.retained {
		err = b.broker.PublishRetained(m.topic, m.payload)
	} else {
		err = b.broker.PublishEvent(m.topic, m.payload)
	}
	if err != nil {
		b.logger.Warn("mqtt publish failed", "topic", m.topic, "error", err)
	}
}
