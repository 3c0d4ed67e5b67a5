// Package publisher is the live-update layer between the device model and
// its observers.
//
// On every scheduler tick the Publisher drains each device's dirty
// properties and broadcasts one propertyStatus message per device to all
// of the device's duplex connections. Events are pushed the moment they
// are queued, but only to connections that subscribed to the event name
// with addEventSubscription. Every invocation status change goes out as
// actionStatus.
//
// Inbound duplex messages (setProperty, requestAction,
// addEventSubscription) are applied through HandleMessage; malformed ones
// are answered with an error message to the sender only.
//
// Sinks receive the same stream of changes. The history journal, the
// MQTT bridge and the InfluxDB telemetry writer are sinks.
//
// Envelope:
//
//	{"messageType": "propertyStatus", "data": {"on": true}}
package publisher
