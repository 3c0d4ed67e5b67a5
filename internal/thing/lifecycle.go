package thing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// completionBuffer is the capacity of the task completion channel.
const completionBuffer = 64

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StatusHook observes every invocation status change.
type StatusHook func(d *Device, inv *Invocation)

type completion struct {
	dev *Device
	inv *Invocation
	err error
}

// Manager creates, runs, tracks and cancels action invocations.
//
// With workers == 0 executors run inline inside Start, so Start returns
// with the invocation completed. Otherwise each invocation runs as its own
// goroutine task, at most workers at a time, and reports completion over
// a channel consumed by Run.
type Manager struct {
	logger  Logger
	workers int
	sem     chan struct{}
	newID   func() string

	base   context.Context
	cancel context.CancelFunc

	completions chan completion
	done        chan struct{}
	doneOnce    sync.Once
	tasks       sync.WaitGroup

	hookMu sync.RWMutex
	hooks  []StatusHook
}

// NewManager returns a lifecycle manager with the given task concurrency.
func NewManager(workers int) *Manager {
	base, cancel := context.WithCancel(context.Background())
	m := &Manager{
		logger:      noopLogger{},
		workers:     workers,
		newID:       uuid.NewString,
		base:        base,
		cancel:      cancel,
		completions: make(chan completion, completionBuffer),
		done:        make(chan struct{}),
	}
	if workers > 0 {
		m.sem = make(chan struct{}, workers)
	}
	return m
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// OnStatus registers a hook run synchronously after every status change,
// including creation.
func (m *Manager) OnStatus(hook StatusHook) {
	m.hookMu.Lock()
	m.hooks = append(m.hooks, hook)
	m.hookMu.Unlock()
}

// Inline reports whether executors run synchronously inside Start.
func (m *Manager) Inline() bool {
	return m.workers <= 0
}

// Request validates input against the action's schema, creates an
// invocation with a fresh id and prepends it to the device queue.
func (m *Manager) Request(d *Device, name string, input json.RawMessage) (*Invocation, error) {
	a, ok := d.Action(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	if err := a.validate(input); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	d.mu.Lock()
	id := m.newID()
	for d.hasInvocationID(id) {
		id = m.newID()
	}
	inv := a.newInvocation(d.ID, id, input)
	d.invocations = append([]*Invocation{inv}, d.invocations...)
	d.mu.Unlock()

	m.logger.Debug("action requested", "device", d.ID, "action", name, "id", id)
	m.notify(d, inv)
	return inv, nil
}

// Start moves the invocation to pending and runs its executor, inline or
// as a task depending on the manager's worker setting.
func (m *Manager) Start(d *Device, inv *Invocation) {
	if !inv.advance(StatusPending, nil) {
		return
	}
	m.notify(d, inv)

	a, _ := d.Action(inv.Name)
	var exec Executor
	if a != nil {
		exec = a.Execute
	}

	ctx, stop := context.WithCancel(m.base)
	inv.setStop(stop)

	if m.Inline() {
		err := m.execute(ctx, exec, inv)
		stop()
		m.finish(completion{dev: d, inv: inv, err: err})
		return
	}

	m.tasks.Add(1)
	go func() {
		defer m.tasks.Done()
		defer stop()

		select {
		case m.sem <- struct{}{}:
		case <-ctx.Done():
			m.report(completion{dev: d, inv: inv, err: ctx.Err()})
			return
		}
		err := m.execute(ctx, exec, inv)
		<-m.sem
		m.report(completion{dev: d, inv: inv, err: err})
	}()
}

// execute runs exec, converting a panic into an error.
func (m *Manager) execute(ctx context.Context, exec Executor, inv *Invocation) (err error) {
	if exec == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("action executor panic recovered", "action", inv.Name, "id", inv.ID, "panic", r)
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return exec(ctx, inv.Input)
}

// report hands a task completion to Run, or finishes it directly once
// Run has exited.
func (m *Manager) report(c completion) {
	select {
	case m.completions <- c:
	case <-m.done:
		m.finish(c)
	}
}

// Run consumes task completions until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	defer m.doneOnce.Do(func() { close(m.done) })
	for {
		select {
		case <-ctx.Done():
			m.drain()
			return nil
		case c := <-m.completions:
			m.finish(c)
		}
	}
}

func (m *Manager) drain() {
	for {
		select {
		case c := <-m.completions:
			m.finish(c)
		default:
			return
		}
	}
}

// finish completes an invocation that is still queued. Completions for
// cancelled invocations are dropped.
func (m *Manager) finish(c completion) {
	if !c.dev.queued(c.inv) {
		m.logger.Debug("dropping completion of removed invocation", "device", c.dev.ID, "id", c.inv.ID)
		return
	}
	if !c.inv.advance(StatusCompleted, c.err) {
		return
	}
	if c.err != nil {
		m.logger.Warn("action failed", "device", c.dev.ID, "action", c.inv.Name, "id", c.inv.ID, "error", c.err)
	}
	m.notify(c.dev, c.inv)
}

// Cancel removes the invocation from the queue, stops its task and runs
// its cancel callback. It reports false if id is not queued.
func (m *Manager) Cancel(d *Device, id string) bool {
	inv, ok := d.removeInvocation(id)
	if !ok {
		return false
	}
	inv.abort()
	if inv.Cancel != nil {
		inv.Cancel()
	}
	m.logger.Debug("action cancelled", "device", d.ID, "action", inv.Name, "id", id)
	return true
}

func (m *Manager) notify(d *Device, inv *Invocation) {
	if inv.Notify != nil {
		inv.Notify(inv)
	}
	m.hookMu.RLock()
	hooks := m.hooks
	m.hookMu.RUnlock()
	for _, h := range hooks {
		h(d, inv)
	}
}

// Close cancels running tasks and waits for them to return.
func (m *Manager) Close() {
	m.cancel()
	m.doneOnce.Do(func() { close(m.done) })
	m.tasks.Wait()
}
