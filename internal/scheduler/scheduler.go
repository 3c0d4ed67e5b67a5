// Package scheduler runs the cooperative tick loop.
//
// Every tick calls each registered Task in order on one goroutine. The
// poll transport and the live-update publisher are tasks: the transport
// handles at most one request per tick, then the publisher flushes the
// property changes that request (or device logic) produced.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultInterval is the tick period used when none is configured.
const DefaultInterval = 10 * time.Millisecond

// Task is one unit of cooperative work run every tick.
type Task interface {
	Tick()
}

// TaskFunc adapts a function to Task.
type TaskFunc func()

// Tick calls f.
func (f TaskFunc) Tick() { f() }

// Logger defines the logging interface used by the Scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Scheduler drives tasks at a fixed interval.
type Scheduler struct {
	interval time.Duration
	tasks    []namedTask
	logger   Logger
	ticks    atomic.Uint64
}

type namedTask struct {
	name string
	task Task
}

// New creates a scheduler. A non-positive interval uses DefaultInterval.
func New(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{interval: interval, logger: noopLogger{}}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// Add registers a task. Tasks run in registration order. Add must be
// called before Run.
func (s *Scheduler) Add(name string, t Task) {
	s.tasks = append(s.tasks, namedTask{name: name, task: t})
}

// Ticks returns the number of completed ticks.
func (s *Scheduler) Ticks() uint64 {
	return s.ticks.Load()
}

// Run ticks until ctx is cancelled. A panicking task is logged and the
// loop continues with the next task.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.interval.String(), "tasks", len(s.tasks))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", "ticks", s.ticks.Load())
			return nil
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick runs every task once.
func (s *Scheduler) Tick() {
	for _, nt := range s.tasks {
		if err := s.runTask(nt); err != nil {
			s.logger.Error("scheduler task panic recovered", "task", nt.name, "error", err)
		}
	}
	s.ticks.Add(1)
}

func (s *Scheduler) runTask(nt namedTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	nt.task.Tick()
	return nil
}
