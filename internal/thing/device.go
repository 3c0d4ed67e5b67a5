package thing

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"
)

// DefaultEventCapacity is the event ring size used when none is configured.
const DefaultEventCapacity = 32

// Change is one drained property update.
type Change struct {
	Name  string
	Value Value
}

// Device owns the ordered property, action and event definitions of one
// thing, its invocation queue and its bounded event queue.
//
// Definitions are added once at startup, before the device is served.
// All other methods are safe for concurrent use.
type Device struct {
	ID          string
	Title       string
	Description string
	Types       []string

	mu sync.Mutex

	properties []*Property
	actions    []*Action
	events     []*Event
	items      map[string]struct{}
	actionIDs  map[string]struct{}

	// invocations is newest-first.
	invocations []*Invocation
	ring        *eventRing
	listeners   []func(EventInstance)
}

// NewDevice returns an empty device with the default event capacity.
func NewDevice(id, title string, types ...string) *Device {
	return &Device{
		ID:        id,
		Title:     title,
		Types:     types,
		items:     make(map[string]struct{}),
		actionIDs: make(map[string]struct{}),
		ring:      newEventRing(DefaultEventCapacity),
	}
}

// SetEventCapacity resizes the event ring, discarding queued instances.
func (d *Device) SetEventCapacity(n int) {
	d.mu.Lock()
	d.ring = newEventRing(n)
	d.mu.Unlock()
}

// AddProperty declares a property.
func (d *Device) AddProperty(p *Property) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.items[p.ID]; dup || p.ID == "" {
		return fmt.Errorf("%w: %q", ErrDuplicateID, p.ID)
	}
	d.items[p.ID] = struct{}{}
	d.properties = append(d.properties, p)
	return nil
}

// AddAction declares an action and compiles its input schema.
func (d *Device) AddAction(a *Action) error {
	if err := a.compile(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.actionIDs[a.ID]; dup || a.ID == "" {
		return fmt.Errorf("%w: %q", ErrDuplicateID, a.ID)
	}
	d.actionIDs[a.ID] = struct{}{}
	d.actions = append(d.actions, a)
	return nil
}

// AddEvent declares an event.
func (d *Device) AddEvent(e *Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.items[e.ID]; dup || e.ID == "" {
		return fmt.Errorf("%w: %q", ErrDuplicateID, e.ID)
	}
	d.items[e.ID] = struct{}{}
	d.events = append(d.events, e)
	return nil
}

// Properties returns the declared properties in order.
func (d *Device) Properties() []*Property {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.properties)
}

// Actions returns the declared actions in order.
func (d *Device) Actions() []*Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.actions)
}

// Events returns the declared events in order.
func (d *Device) Events() []*Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.events)
}

// Property looks up a property by id.
func (d *Device) Property(name string) (*Property, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.properties {
		if p.ID == name {
			return p, true
		}
	}
	return nil, false
}

// Action looks up an action by id.
func (d *Device) Action(name string) (*Action, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.actions {
		if a.ID == name {
			return a, true
		}
	}
	return nil, false
}

// Event looks up an event by id.
func (d *Device) Event(name string) (*Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.events {
		if e.ID == name {
			return e, true
		}
	}
	return nil, false
}

// SetProperty is the device-logic write path: it checks only the type tag.
func (d *Device) SetProperty(name string, v Value) error {
	p, ok := d.Property(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPropertyNotFound, name)
	}
	return p.SetValue(v)
}

// WriteProperty is the client write path: it rejects read-only
// properties and validates raw against the property constraints.
func (d *Device) WriteProperty(name string, raw json.RawMessage) (Value, error) {
	p, ok := d.Property(name)
	if !ok {
		return Value{}, fmt.Errorf("%w: %s", ErrPropertyNotFound, name)
	}
	return p.Write(raw)
}

// ChangedProperties drains the dirty flag of every property in declared
// order and returns the values that changed.
func (d *Device) ChangedProperties() []Change {
	var out []Change
	for _, p := range d.Properties() {
		if v, ok := p.ChangedOrNone(); ok {
			out = append(out, Change{Name: p.ID, Value: v})
		}
	}
	return out
}

// AddEventListener registers fn to run synchronously after every QueueEvent.
func (d *Device) AddEventListener(fn func(EventInstance)) {
	d.mu.Lock()
	d.listeners = append(d.listeners, fn)
	d.mu.Unlock()
}

// QueueEvent appends an instance of event name to the bounded event queue
// and notifies listeners. The oldest instance is evicted when full.
func (d *Device) QueueEvent(name string, v Value) error {
	e, ok := d.Event(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, name)
	}
	if v.Type() != e.Type {
		return fmt.Errorf("%w: %s expects %s, got %s", ErrTypeMismatch, name, e.Type, v.Type())
	}

	ev := EventInstance{Name: name, Value: v, Timestamp: time.Now().UTC()}

	d.mu.Lock()
	d.ring.push(ev)
	listeners := slices.Clone(d.listeners)
	d.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
	return nil
}

// EventInstances returns queued instances oldest first, filtered by name
// when name is non-empty.
func (d *Device) EventInstances(name string) []EventInstance {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]EventInstance, 0, d.ring.len())
	d.ring.each(func(ev EventInstance) {
		if name == "" || ev.Name == name {
			out = append(out, ev)
		}
	})
	return out
}

// Invocations returns the invocation queue newest first, filtered by
// action name when name is non-empty.
func (d *Device) Invocations(name string) []*Invocation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Invocation, 0, len(d.invocations))
	for _, inv := range d.invocations {
		if name == "" || inv.Name == name {
			out = append(out, inv)
		}
	}
	return out
}

// FindInvocation looks up an invocation by id.
func (d *Device) FindInvocation(id string) (*Invocation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, inv := range d.invocations {
		if inv.ID == id {
			return inv, true
		}
	}
	return nil, false
}

// hasInvocationID reports whether id is in the queue. Caller holds d.mu.
func (d *Device) hasInvocationID(id string) bool {
	for _, inv := range d.invocations {
		if inv.ID == id {
			return true
		}
	}
	return false
}

// queued reports whether inv is still in the queue.
func (d *Device) queued(inv *Invocation) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Contains(d.invocations, inv)
}

// removeInvocation unlinks the invocation with the given id.
func (d *Device) removeInvocation(id string) (*Invocation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, inv := range d.invocations {
		if inv.ID == id {
			d.invocations = slices.Delete(d.invocations, i, i+1)
			return inv, true
		}
	}
	return nil, false
}

// SerializeValue encodes {id: value} for one item.
func SerializeValue(it *Item) ([]byte, error) {
	o := object{}
	o.set(it.ID, it.Value())
	return json.Marshal(o)
}

// PropertyValues encodes every property value as one object in declared order.
func (d *Device) PropertyValues() ([]byte, error) {
	o := object{}
	for _, p := range d.Properties() {
		o.set(p.ID, p.Value())
	}
	return json.Marshal(o)
}

// MarshalChanges encodes drained changes as one {name: value} object,
// keeping their order.
func MarshalChanges(changes []Change) ([]byte, error) {
	o := object{}
	for _, c := range changes {
		o.set(c.Name, c.Value)
	}
	return json.Marshal(o)
}

// MarshalEventInstances encodes instances as [{name: {data, timestamp}}].
func MarshalEventInstances(evs []EventInstance) ([]byte, error) {
	out := make([]object, 0, len(evs))
	for _, ev := range evs {
		out = append(out, eventObject(ev))
	}
	return json.Marshal(out)
}

func eventObject(ev EventInstance) object {
	body := object{}
	if ev.Value.Type() != TypeNone {
		body.set("data", ev.Value)
	}
	body.set("timestamp", Timestamp(ev.Timestamp))
	o := object{}
	o.set(ev.Name, body)
	return o
}

// MarshalEvent encodes one instance as {name: {data, timestamp}}.
func MarshalEvent(ev EventInstance) ([]byte, error) {
	return json.Marshal(eventObject(ev))
}
