package publisher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/webthing-core/internal/thing"
)

// Message types carried in the messageType member of the envelope.
const (
	TypePropertyStatus       = "propertyStatus"
	TypeEvent                = "event"
	TypeActionStatus         = "actionStatus"
	TypeError                = "error"
	TypeSetProperty          = "setProperty"
	TypeRequestAction        = "requestAction"
	TypeAddEventSubscription = "addEventSubscription"
)

// Hub is the duplex channel adapter. Connection ids are opaque strings
// chosen by the hub.
type Hub interface {
	// BroadcastDevice sends msg to every connection of deviceID.
	BroadcastDevice(deviceID string, msg []byte)

	// SendTo sends msg to one connection. It reports false if the
	// connection is gone.
	SendTo(connID string, msg []byte) bool

	// Connections lists the connection ids open on deviceID.
	Connections(deviceID string) []string
}

// Sink receives every published change. Sinks are called synchronously
// and should hand slow work off to their own goroutines.
type Sink interface {
	PropertiesChanged(deviceID string, changes []thing.Change)
	EventQueued(deviceID string, ev thing.EventInstance)
	ActionStatus(deviceID string, inv *thing.Invocation)
}

// Logger defines the logging interface used by the Publisher.
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

// envelope is the JSON shape of every duplex message.
type envelope struct {
	MessageType string          `json:"messageType"`
	Data        json.RawMessage `json:"data"`
}

type errorData struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// connection is the publisher's view of one duplex connection.
type connection struct {
	deviceID string
	events   map[string]struct{}
}

// Publisher fans model changes out to duplex connections and sinks, and
// applies the messages those connections send.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Tick is normally called by
//     the scheduler; Connected, Disconnected and HandleMessage by the hub's
//     connection goroutines.
type Publisher struct {
	devices []*thing.Device
	byID    map[string]*thing.Device
	mgr     *thing.Manager
	hub     Hub
	sinks   []Sink
	logger  Logger

	mu    sync.Mutex
	conns map[string]*connection
}

// New creates a publisher and registers it as every device's event
// listener and as the manager's status hook. hub may be nil when no
// duplex transport is running.
func New(devices []*thing.Device, mgr *thing.Manager, hub Hub, sinks ...Sink) *Publisher {
	p := &Publisher{
		devices: devices,
		byID:    make(map[string]*thing.Device, len(devices)),
		mgr:     mgr,
		hub:     hub,
		sinks:   sinks,
		logger:  noopLogger{},
		conns:   make(map[string]*connection),
	}
	for _, d := range devices {
		p.byID[d.ID] = d
		d.AddEventListener(func(ev thing.EventInstance) { p.eventQueued(d, ev) })
	}
	if mgr != nil {
		mgr.OnStatus(p.actionStatus)
	}
	return p
}

// SetLogger sets the logger for the publisher.
func (p *Publisher) SetLogger(logger Logger) {
	p.logger = logger
}

// SetHub attaches the duplex hub. It must be called before serving.
func (p *Publisher) SetHub(hub Hub) {
	p.hub = hub
}

// AddSink registers a sink. It must be called before serving.
func (p *Publisher) AddSink(s Sink) {
	p.sinks = append(p.sinks, s)
}

// Tick drains every device's changed properties. Each device with
// changes gets one propertyStatus broadcast to all its connections;
// property updates are not filtered by subscription.
func (p *Publisher) Tick() {
	for _, d := range p.devices {
		changes := d.ChangedProperties()
		if len(changes) == 0 {
			continue
		}

		if p.hub != nil && len(p.hub.Connections(d.ID)) > 0 {
			data, err := thing.MarshalChanges(changes)
			if err != nil {
				p.logger.Error("encoding property status", "device", d.ID, "error", err)
			} else if msg, err := encode(TypePropertyStatus, data); err == nil {
				p.hub.BroadcastDevice(d.ID, msg)
			}
		}

		for _, s := range p.sinks {
			s.PropertiesChanged(d.ID, changes)
		}
	}
}

// Connected registers a connection opened on deviceID.
func (p *Publisher) Connected(connID, deviceID string) error {
	if _, ok := p.byID[deviceID]; !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	p.mu.Lock()
	p.conns[connID] = &connection{deviceID: deviceID, events: make(map[string]struct{})}
	p.mu.Unlock()
	p.logger.Debug("live connection opened", "conn", connID, "device", deviceID)
	return nil
}

// Disconnected drops a connection and its subscriptions.
func (p *Publisher) Disconnected(connID string) {
	p.mu.Lock()
	delete(p.conns, connID)
	p.mu.Unlock()
	p.logger.Debug("live connection closed", "conn", connID)
}

// Subscriptions returns the event names connID is subscribed to, sorted.
func (p *Publisher) Subscriptions(connID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[connID]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(c.events))
	for name := range c.events {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HandleMessage applies one inbound message from connID. Problems are
// reported back to the sender as error messages.
func (p *Publisher) HandleMessage(connID string, raw []byte) {
	p.mu.Lock()
	c, ok := p.conns[connID]
	var deviceID string
	if ok {
		deviceID = c.deviceID
	}
	p.mu.Unlock()
	if !ok {
		p.logger.Warn("message from unknown connection", "conn", connID)
		return
	}
	d := p.byID[deviceID]

	var msg envelope
	if err := json.Unmarshal(raw, &msg); err != nil {
		p.sendError(connID, "Parsing request failed")
		return
	}
	data := bytes.TrimSpace(msg.Data)
	if len(data) == 0 || data[0] != '{' {
		p.sendError(connID, "Invalid data")
		return
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		p.sendError(connID, "Invalid data")
		return
	}

	switch msg.MessageType {
	case TypeSetProperty:
		for _, name := range sortedKeys(members) {
			if _, err := d.WriteProperty(name, members[name]); err != nil {
				p.sendError(connID, err.Error())
			}
		}
	case TypeRequestAction:
		for _, name := range sortedKeys(members) {
			inv, err := p.mgr.Request(d, name, thing.UnwrapInput(members[name]))
			if err != nil {
				p.sendError(connID, err.Error())
				continue
			}
			p.mgr.Start(d, inv)
		}
	case TypeAddEventSubscription:
		for _, name := range sortedKeys(members) {
			if _, ok := d.Event(name); !ok {
				p.sendError(connID, fmt.Sprintf("Unknown event: %s", name))
				continue
			}
			p.mu.Lock()
			if c, ok := p.conns[connID]; ok {
				c.events[name] = struct{}{}
			}
			p.mu.Unlock()
		}
	default:
		p.sendError(connID, fmt.Sprintf("Unknown messageType: %s", msg.MessageType))
	}
}

// eventQueued sends the event to subscribed connections and the sinks.
func (p *Publisher) eventQueued(d *thing.Device, ev thing.EventInstance) {
	if p.hub != nil {
		p.mu.Lock()
		var targets []string
		for id, c := range p.conns {
			if c.deviceID != d.ID {
				continue
			}
			if _, ok := c.events[ev.Name]; ok {
				targets = append(targets, id)
			}
		}
		p.mu.Unlock()

		if len(targets) > 0 {
			data, err := thing.MarshalEvent(ev)
			if err != nil {
				p.logger.Error("encoding event", "device", d.ID, "event", ev.Name, "error", err)
			} else if msg, err := encode(TypeEvent, data); err == nil {
				for _, id := range targets {
					p.hub.SendTo(id, msg)
				}
			}
		}
	}

	for _, s := range p.sinks {
		s.EventQueued(d.ID, ev)
	}
}

// actionStatus broadcasts an invocation status change.
func (p *Publisher) actionStatus(d *thing.Device, inv *thing.Invocation) {
	if p.hub != nil && len(p.hub.Connections(d.ID)) > 0 {
		data, err := json.Marshal(inv)
		if err != nil {
			p.logger.Error("encoding action status", "device", d.ID, "action", inv.Name, "error", err)
		} else if msg, err := encode(TypeActionStatus, data); err == nil {
			p.hub.BroadcastDevice(d.ID, msg)
		}
	}

	for _, s := range p.sinks {
		s.ActionStatus(d.ID, inv)
	}
}

func (p *Publisher) sendError(connID, message string) {
	if p.hub == nil {
		return
	}
	data, err := json.Marshal(errorData{Status: "400 Bad Request", Message: message})
	if err != nil {
		return
	}
	if msg, err := encode(TypeError, data); err == nil {
		p.hub.SendTo(connID, msg)
	}
}

// encode wraps data in the messageType envelope.
func encode(messageType string, data []byte) ([]byte, error) {
	return json.Marshal(envelope{MessageType: messageType, Data: data})
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
