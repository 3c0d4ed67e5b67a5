// Package thing implements the Web Thing data model and action lifecycle.
//
// A Device owns ordered Property, Action and Event definitions, a
// newest-first queue of action Invocations and a bounded ring of
// EventInstances. Every Property and Event embeds an Item carrying a
// typed Value, constraints and a dirty flag that ChangedOrNone reports
// at most once per write.
//
// The Manager drives invocations created → pending → completed. With
// workers configured, executors run as goroutine tasks and report back
// over a channel consumed by Manager.Run; cancellation removes the
// invocation and cancels its task context.
//
// Build turns the declarative things section of the configuration into
// devices, binding each action to a named executor.
//
// Thread Safety:
//   - Devices, Items and Invocations guard their mutable state with mutexes.
//   - Callbacks (OnChange, Notify, event listeners, status hooks) run
//     synchronously on the calling goroutine with no lock held.
package thing
