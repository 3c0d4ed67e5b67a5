// Package telemetry forwards numeric property changes to a time-series
// writer.
//
// Sink implements the publisher sink interface. Number and integer
// values are written as-is, booleans as 0 or 1; string and valueless
// properties are skipped. Events and action status are not recorded
// here; the history package journals those.
package telemetry
