// Package history keeps a local journal of property values, queued events
// and invocation status changes in SQLite.
//
// A Recorder is registered as a publisher sink. It buffers entries and
// writes them on its own goroutine so the scheduler tick never waits on
// the database. A Pruner removes rows older than the retention window on
// a cron schedule.
//
// Entries are read back newest first through Repository.List, which backs
// the HTTP endpoint GET /history/things/{id}.
package history
