package publisher

import "errors"

// Domain errors for the publisher package.
var (
	// ErrDeviceNotFound is returned when a connection names an unknown device.
	ErrDeviceNotFound = errors.New("publisher: device not found")
)
