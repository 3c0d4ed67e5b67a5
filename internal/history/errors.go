package history

import "errors"

// Domain errors for the history package.
var (
	// ErrInvalidKind is returned for a journal kind other than property,
	// event or action.
	ErrInvalidKind = errors.New("history: invalid kind")

	// ErrThingIDRequired is returned when an entry or query has no thing id.
	ErrThingIDRequired = errors.New("history: thing id is required")
)
