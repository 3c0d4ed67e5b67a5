package thing

import "errors"

// Domain errors for the thing package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, thing.ErrPropertyNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDuplicateID is returned when an item id is already declared on the device.
	ErrDuplicateID = errors.New("thing: duplicate item id")

	// ErrPropertyNotFound is returned when a property name does not exist.
	ErrPropertyNotFound = errors.New("thing: property not found")

	// ErrActionNotFound is returned when an action name does not exist.
	ErrActionNotFound = errors.New("thing: action not found")

	// ErrEventNotFound is returned when an event name does not exist.
	ErrEventNotFound = errors.New("thing: event not found")

	// ErrInvocationNotFound is returned when an invocation id is not in the queue.
	ErrInvocationNotFound = errors.New("thing: invocation not found")

	// ErrUnknownAction is returned by Manager.Request for undeclared actions.
	ErrUnknownAction = errors.New("thing: unknown action")

	// ErrTypeMismatch is returned when a value's type does not match the item type.
	ErrTypeMismatch = errors.New("thing: value type mismatch")

	// ErrReadOnly is returned when a client writes a read-only property.
	ErrReadOnly = errors.New("thing: property is read-only")

	// ErrOutOfRange is returned when a numeric value falls outside minimum/maximum.
	ErrOutOfRange = errors.New("thing: value out of range")

	// ErrNotMultiple is returned when a numeric value is not a multiple of multipleOf.
	ErrNotMultiple = errors.New("thing: value is not a multiple of multipleOf")

	// ErrNotInEnum is returned when a string value is not in the property enumeration.
	ErrNotInEnum = errors.New("thing: value not in enumeration")

	// ErrInvalidInput is returned when an action input does not satisfy its schema.
	ErrInvalidInput = errors.New("thing: invalid action input")

	// ErrInvalidSchema is returned when an action input schema cannot be compiled.
	ErrInvalidSchema = errors.New("thing: invalid input schema")

	// ErrUnknownExecutor is returned by the catalog for unregistered executor names.
	ErrUnknownExecutor = errors.New("thing: unknown executor")
)
