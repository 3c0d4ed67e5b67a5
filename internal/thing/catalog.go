package thing

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/webthing-core/internal/infrastructure/config"
)

// ExecutorFactory builds the executor for one declared action. It gets
// the owning device so executors can write properties and queue events.
type ExecutorFactory func(d *Device, params map[string]any) (Executor, error)

// Executors maps executor names used in configuration to factories.
type Executors map[string]ExecutorFactory

// Build constructs the devices declared in cfg. Every action must name a
// registered executor.
func Build(things []config.ThingConfig, eventCapacity int, executors Executors) ([]*Device, error) {
	devices := make([]*Device, 0, len(things))
	for _, tc := range things {
		d, err := buildDevice(tc, eventCapacity, executors)
		if err != nil {
			return nil, fmt.Errorf("thing %s: %w", tc.ID, err)
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func buildDevice(tc config.ThingConfig, eventCapacity int, executors Executors) (*Device, error) {
	d := NewDevice(tc.ID, tc.Title, tc.Types...)
	d.Description = tc.Description
	if eventCapacity > 0 {
		d.SetEventCapacity(eventCapacity)
	}

	for _, pc := range tc.Properties {
		t, err := ParseValueType(pc.Type)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", pc.ID, err)
		}
		p := NewProperty(pc.ID, t)
		p.Title = pc.Title
		p.Description = pc.Description
		p.SemanticType = pc.SemanticType
		p.Unit = pc.Unit
		p.ReadOnly = pc.ReadOnly
		p.Minimum = pc.Minimum
		p.Maximum = pc.Maximum
		p.MultipleOf = pc.MultipleOf
		p.Enum = pc.Enum

		if pc.Initial != nil {
			raw, err := json.Marshal(pc.Initial)
			if err != nil {
				return nil, fmt.Errorf("property %s: initial value: %w", pc.ID, err)
			}
			v, err := DecodeValue(t, raw)
			if err != nil {
				return nil, fmt.Errorf("property %s: initial value: %w", pc.ID, err)
			}
			if err := p.Item.SetValue(v); err != nil {
				return nil, fmt.Errorf("property %s: %w", pc.ID, err)
			}
		}
		if err := d.AddProperty(p); err != nil {
			return nil, err
		}
	}

	// Events first so emit executors can resolve their target.
	for _, ec := range tc.Events {
		t, err := ParseValueType(ec.Type)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", ec.ID, err)
		}
		e := NewEvent(ec.ID, t)
		e.Title = ec.Title
		e.Description = ec.Description
		e.SemanticType = ec.SemanticType
		e.Unit = ec.Unit
		e.Minimum = ec.Minimum
		e.Maximum = ec.Maximum
		if err := d.AddEvent(e); err != nil {
			return nil, err
		}
	}

	for _, ac := range tc.Actions {
		factory, ok := executors[ac.Executor]
		if !ok {
			return nil, fmt.Errorf("action %s: %w: %q", ac.ID, ErrUnknownExecutor, ac.Executor)
		}
		exec, err := factory(d, ac.Params)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", ac.ID, err)
		}
		a := NewAction(ac.ID, exec)
		a.Title = ac.Title
		a.Description = ac.Description
		a.SemanticType = ac.SemanticType
		if len(ac.Input) > 0 {
			raw, err := json.Marshal(ac.Input)
			if err != nil {
				return nil, fmt.Errorf("action %s: input schema: %w", ac.ID, err)
			}
			a.Input = raw
		}
		if err := d.AddAction(a); err != nil {
			return nil, err
		}
	}

	return d, nil
}
