package thing

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Property is a named, typed piece of device state.
type Property struct {
	Item

	// Enum lists the allowed string values in order. Empty means unconstrained.
	Enum []string

	// OnChange runs synchronously on the writing goroutine after every
	// successful SetValue. No device or item lock is held while it runs.
	OnChange func(Value)
}

// NewProperty returns a property of type t.
func NewProperty(id string, t ValueType) *Property {
	p := &Property{}
	p.ID = id
	p.Type = t
	return p
}

// SetValue stores v, marks the property dirty and invokes OnChange.
func (p *Property) SetValue(v Value) error {
	if err := p.Item.SetValue(v); err != nil {
		return err
	}
	if p.OnChange != nil {
		p.OnChange(v)
	}
	return nil
}

// Check validates a client supplied value against the property type,
// range, multipleOf and enumeration. It does not look at ReadOnly.
func (p *Property) Check(v Value) error {
	if err := p.checkConstraints(v); err != nil {
		return err
	}
	if v.Type() == TypeString && len(p.Enum) > 0 && !slices.Contains(p.Enum, v.Str()) {
		return fmt.Errorf("%w: %s", ErrNotInEnum, p.ID)
	}
	return nil
}

// Write decodes raw, validates it as a client write and stores it.
func (p *Property) Write(raw json.RawMessage) (Value, error) {
	if p.ReadOnly {
		return Value{}, fmt.Errorf("%w: %s", ErrReadOnly, p.ID)
	}
	v, err := DecodeValue(p.Type, raw)
	if err != nil {
		return Value{}, fmt.Errorf("%s: %w", p.ID, err)
	}
	if err := p.Check(v); err != nil {
		return Value{}, err
	}
	if err := p.SetValue(v); err != nil {
		return Value{}, err
	}
	return v, nil
}
