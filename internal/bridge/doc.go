// Package bridge mirrors things onto an MQTT broker.
//
// As a publisher sink it publishes every property change as a retained
// value, every event instance and every invocation status change. It
// also subscribes to the /set and /request topics so broker clients can
// write properties and request actions through the same validation as
// the HTTP router.
//
// Outbound messages are queued and published from Run so broker latency
// never stalls the scheduler tick.
package bridge
