package thing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ValueType is the type tag carried by every item and value.
type ValueType int

// Value types, named after their JSON schema type.
const (
	TypeNone ValueType = iota
	TypeBoolean
	TypeNumber
	TypeInteger
	TypeString
)

// String returns the JSON schema name of the type ("null" for none).
func (t ValueType) String() string {
	switch t {
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeInteger:
		return "integer"
	case TypeString:
		return "string"
	default:
		return "null"
	}
}

// ParseValueType converts a schema type name into a ValueType.
func ParseValueType(s string) (ValueType, error) {
	switch s {
	case "boolean":
		return TypeBoolean, nil
	case "number":
		return TypeNumber, nil
	case "integer":
		return TypeInteger, nil
	case "string":
		return TypeString, nil
	case "", "null", "none":
		return TypeNone, nil
	default:
		return TypeNone, fmt.Errorf("unknown value type %q", s)
	}
}

// Value is a tagged value. Only the member matching typ is meaningful;
// the constructors are the only way to build a non-zero Value.
// The zero Value is None.
type Value struct {
	typ ValueType
	b   bool
	n   float64
	i   int64
	s   string
}

// None returns the empty value.
func None() Value { return Value{} }

// Bool returns a boolean value.
func Bool(v bool) Value { return Value{typ: TypeBoolean, b: v} }

// Number returns a floating point value.
func Number(v float64) Value { return Value{typ: TypeNumber, n: v} }

// Integer returns an integer value.
func Integer(v int64) Value { return Value{typ: TypeInteger, i: v} }

// String returns a string value.
func String(v string) Value { return Value{typ: TypeString, s: v} }

// Zero returns the default value for a type: false, 0 or "".
func Zero(t ValueType) Value { return Value{typ: t} }

// Type returns the value's type tag.
func (v Value) Type() ValueType { return v.typ }

// Bool returns the boolean member.
func (v Value) Bool() bool { return v.b }

// Int returns the integer member.
func (v Value) Int() int64 { return v.i }

// Str returns the string member.
func (v Value) Str() string { return v.s }

// Float returns the value as a float64 for number and integer values.
// Booleans map to 0/1. The second result is false for strings and none.
func (v Value) Float() (float64, bool) {
	switch v.typ {
	case TypeNumber:
		return v.n, true
	case TypeInteger:
		return float64(v.i), true
	case TypeBoolean:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Equal reports whether two values have the same type and member.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeBoolean:
		return v.b == o.b
	case TypeNumber:
		return v.n == o.n
	case TypeInteger:
		return v.i == o.i
	case TypeString:
		return v.s == o.s
	default:
		return true
	}
}

// MarshalJSON encodes the active member.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.typ {
	case TypeBoolean:
		return strconv.AppendBool(nil, v.b), nil
	case TypeNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.n)
	case TypeInteger:
		return strconv.AppendInt(nil, v.i, 10), nil
	case TypeString:
		return json.Marshal(v.s)
	default:
		return []byte("null"), nil
	}
}

// String renders the value for logs.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return "?"
	}
	return string(b)
}

// DecodeValue converts a JSON fragment into a Value of type t.
// A fraction given for an integer type, or a JSON type that does not
// correspond to t, yields ErrTypeMismatch.
func DecodeValue(t ValueType, raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Value{}, fmt.Errorf("%w: empty value", ErrTypeMismatch)
	}

	switch t {
	case TypeBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, fmt.Errorf("%w: expected boolean", ErrTypeMismatch)
		}
		return Bool(b), nil

	case TypeNumber:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return Value{}, fmt.Errorf("%w: expected number", ErrTypeMismatch)
		}
		return Number(n), nil

	case TypeInteger:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var num json.Number
		if err := dec.Decode(&num); err != nil {
			return Value{}, fmt.Errorf("%w: expected integer", ErrTypeMismatch)
		}
		if i, err := num.Int64(); err == nil {
			return Integer(i), nil
		}
		f, err := num.Float64()
		if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: expected integer", ErrTypeMismatch)
		}
		return Integer(int64(f)), nil

	case TypeString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("%w: expected string", ErrTypeMismatch)
		}
		return String(s), nil

	default:
		if string(raw) != "null" {
			return Value{}, fmt.Errorf("%w: expected null", ErrTypeMismatch)
		}
		return None(), nil
	}
}
