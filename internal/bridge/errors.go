package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrUnknownTopic is returned for an inbound topic that does not name a
	// property write or an action request.
	ErrUnknownTopic = errors.New("bridge: unknown topic")

	// ErrThingNotFound is returned when an inbound topic names an unknown thing.
	ErrThingNotFound = errors.New("bridge: thing not found")
)
