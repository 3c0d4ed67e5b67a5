package thing

import (
	"fmt"
	"math"
	"sync"
)

// Item is the shared record behind properties and events: identity,
// type tag, constraints, current value and a dirty flag.
//
// Thread Safety:
//   - Value, SetValue and ChangedOrNone are safe for concurrent use.
//   - The descriptive fields are set once before the item is added to a
//     device and must not be modified afterwards.
type Item struct {
	ID           string
	Title        string
	Description  string
	SemanticType string
	Unit         string
	Type         ValueType
	ReadOnly     bool

	// Minimum and Maximum bound numeric values. The range is absent
	// when Minimum >= Maximum, so the zero values mean "unconstrained".
	Minimum float64
	Maximum float64

	// MultipleOf is absent when <= 0.
	MultipleOf float64

	mu    sync.Mutex
	value Value
	dirty bool
	init  bool
}

// HasRange reports whether Minimum and Maximum are in effect.
func (it *Item) HasRange() bool {
	return it.Minimum < it.Maximum
}

// Value returns the current value. Before the first write it is the
// zero value of the item's type.
func (it *Item) Value() Value {
	it.mu.Lock()
	defer it.mu.Unlock()
	if !it.init {
		return Zero(it.Type)
	}
	return it.value
}

// SetValue stores v and marks the item dirty.
// It fails with ErrTypeMismatch if v's type tag differs from the item's.
func (it *Item) SetValue(v Value) error {
	if v.Type() != it.Type {
		return fmt.Errorf("%w: %s expects %s, got %s", ErrTypeMismatch, it.ID, it.Type, v.Type())
	}
	it.mu.Lock()
	it.value = v
	it.init = true
	it.dirty = true
	it.mu.Unlock()
	return nil
}

// ChangedOrNone returns the value and clears the dirty flag if a write
// occurred since the previous call. Otherwise ok is false.
// A change is reported at most once.
func (it *Item) ChangedOrNone() (v Value, ok bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if !it.dirty {
		return Value{}, false
	}
	it.dirty = false
	return it.value, true
}

// checkConstraints validates v against the numeric constraints.
func (it *Item) checkConstraints(v Value) error {
	if v.Type() != it.Type {
		return fmt.Errorf("%w: %s expects %s, got %s", ErrTypeMismatch, it.ID, it.Type, v.Type())
	}
	if v.Type() != TypeNumber && v.Type() != TypeInteger {
		return nil
	}

	f, _ := v.Float()
	if it.HasRange() && (f < it.Minimum || f > it.Maximum) {
		return fmt.Errorf("%w: %s must be between %g and %g", ErrOutOfRange, it.ID, it.Minimum, it.Maximum)
	}
	if it.MultipleOf > 0 {
		q := f / it.MultipleOf
		if math.Abs(q-math.Round(q)) > 1e-9 {
			return fmt.Errorf("%w: %s must be a multiple of %g", ErrNotMultiple, it.ID, it.MultipleOf)
		}
	}
	return nil
}
