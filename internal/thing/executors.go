package thing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// fadeStep is the interval between intermediate fade writes.
const fadeStep = 50 * time.Millisecond

// DefaultExecutors returns the built-in executors:
//
//	noop   completes immediately
//	delay  waits input.duration (ms) or params.duration_ms
//	set    writes each input member to the property of the same name
//	fade   ramps params.property to input[property] over input.duration (ms)
//	emit   queues params.event with input.data as its value
func DefaultExecutors() Executors {
	return Executors{
		"noop":  noopExecutor,
		"delay": delayExecutor,
		"set":   setExecutor,
		"fade":  fadeExecutor,
		"emit":  emitExecutor,
	}
}

func noopExecutor(*Device, map[string]any) (Executor, error) {
	return nil, nil
}

func delayExecutor(_ *Device, params map[string]any) (Executor, error) {
	fallback := time.Duration(numberParam(params, "duration_ms")) * time.Millisecond
	return func(ctx context.Context, input json.RawMessage) error {
		d := fallback
		if ms, ok := inputDuration(input); ok {
			d = ms
		}
		return sleep(ctx, d)
	}, nil
}

func setExecutor(d *Device, _ map[string]any) (Executor, error) {
	return func(_ context.Context, input json.RawMessage) error {
		var members map[string]json.RawMessage
		if err := json.Unmarshal(input, &members); err != nil {
			return fmt.Errorf("set: input must be an object: %w", err)
		}
		var errs []error
		for _, p := range d.Properties() {
			raw, ok := members[p.ID]
			if !ok {
				continue
			}
			v, err := DecodeValue(p.Type, raw)
			if err == nil {
				err = p.Check(v)
			}
			if err == nil {
				err = p.SetValue(v)
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}, nil
}

func fadeExecutor(d *Device, params map[string]any) (Executor, error) {
	name, _ := params["property"].(string)
	p, ok := d.Property(name)
	if !ok {
		return nil, fmt.Errorf("fade: %w: %q", ErrPropertyNotFound, name)
	}
	if p.Type != TypeNumber && p.Type != TypeInteger {
		return nil, fmt.Errorf("fade: property %s must be numeric", name)
	}

	return func(ctx context.Context, input json.RawMessage) error {
		var members map[string]json.RawMessage
		if err := json.Unmarshal(input, &members); err != nil {
			return fmt.Errorf("fade: input must be an object: %w", err)
		}
		raw, ok := members[name]
		if !ok {
			return fmt.Errorf("fade: input.%s is required", name)
		}
		target, err := DecodeValue(p.Type, raw)
		if err != nil {
			return fmt.Errorf("fade: %w", err)
		}
		if err := p.Check(target); err != nil {
			return fmt.Errorf("fade: %w", err)
		}
		duration, _ := inputDuration(input)

		from, _ := p.Value().Float()
		to, _ := target.Float()
		steps := int(duration / fadeStep)
		for i := 1; i < steps; i++ {
			if err := sleep(ctx, fadeStep); err != nil {
				return err
			}
			x := from + (to-from)*float64(i)/float64(steps)
			if err := p.SetValue(numeric(p.Type, x)); err != nil {
				return err
			}
		}
		if steps > 0 {
			if err := sleep(ctx, duration-fadeStep*time.Duration(steps-1)); err != nil {
				return err
			}
		}
		return p.SetValue(target)
	}, nil
}

func emitExecutor(d *Device, params map[string]any) (Executor, error) {
	name, _ := params["event"].(string)
	e, ok := d.Event(name)
	if !ok {
		return nil, fmt.Errorf("emit: %w: %q", ErrEventNotFound, name)
	}

	return func(_ context.Context, input json.RawMessage) error {
		v := None()
		if e.Type != TypeNone {
			var members struct {
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(input, &members); err != nil {
				return fmt.Errorf("emit: input must be an object: %w", err)
			}
			decoded, err := DecodeValue(e.Type, members.Data)
			if err != nil {
				return fmt.Errorf("emit: %w", err)
			}
			v = decoded
		}
		return d.QueueEvent(name, v)
	}, nil
}

func numeric(t ValueType, x float64) Value {
	if t == TypeInteger {
		return Integer(int64(math.Round(x)))
	}
	return Number(x)
}

func numberParam(params map[string]any, key string) float64 {
	switch v := params[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	default:
		return 0
	}
}

// inputDuration reads input.duration in milliseconds.
func inputDuration(input json.RawMessage) (time.Duration, bool) {
	var in struct {
		Duration *float64 `json:"duration"`
	}
	if err := json.Unmarshal(input, &in); err != nil || in.Duration == nil || *in.Duration < 0 {
		return 0, false
	}
	return time.Duration(*in.Duration * float64(time.Millisecond)), true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
