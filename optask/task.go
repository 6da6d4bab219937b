// Package optask implements Task: a lazy, cancellable, one-shot async
// unit identified by a monotonically increasing process-local id.
// Concurrent callers of RunIfNeeded on the same Task all observe the same
// single execution and the same outcome.
package optask

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"eve.evalgo.org/operation/diagnostics"
	"eve.evalgo.org/operation/opcontext"
	"eve.evalgo.org/operation/operr"
)

var nextID atomic.Uint64

// ID is a process-local, monotonically increasing task identifier.
type ID uint64

func allocateID() ID { return ID(nextID.Add(1)) }

type taskState int32

const (
	statePending taskState = iota
	stateRunning
	stateFinished
	stateCancelled
)

// Config describes a task for diagnostics: its human-readable name and
// the Context snapshot it was created with.
type Config struct {
	Name    string
	Context opcontext.Context
}

// Body is the function a Task executes exactly once. It must observe
// ctx.Done() for cooperative cancellation.
type Body[V any] func(ctx context.Context) (V, error)

// Task is a one-shot, lazily-started async unit producing a V or an
// error.
type Task[V any] struct {
	id     ID
	Config Config
	body   Body[V]

	mu              sync.Mutex
	state           taskState
	value           V
	err             error
	ready           chan struct{}
	cancelFn        context.CancelFunc
	cancelRequested bool
	deps            []func(context.Context)
}

// New creates a pending Task. It does not start running until
// RunIfNeeded is first called.
func New[V any](name string, ctx opcontext.Context, body Body[V]) *Task[V] {
	return &Task[V]{
		id:     allocateID(),
		Config: Config{Name: name, Context: ctx},
		body:   body,
		ready:  make(chan struct{}),
	}
}

// ID returns the task's process-local identifier.
func (t *Task[V]) ID() ID { return t.id }

// HasStarted reports whether the task is running, finished, or cancelled
// (i.e. no longer pending).
func (t *Task[V]) HasStarted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state != statePending
}

// IsFinished reports whether the task reached a terminal state (finished
// or cancelled).
func (t *Task[V]) IsFinished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == stateFinished || t.state == stateCancelled
}

// IsRunning reports whether the task's body is currently executing.
func (t *Task[V]) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == stateRunning
}

// IsCancelled reports whether the task ended (or will end) via
// cancellation.
func (t *Task[V]) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == stateCancelled || (t.state == statePending && t.cancelRequested)
}

// Cancel requests cancellation. If the task has not started, the next
// RunIfNeeded fails with operr.Cancelled without ever invoking the body.
// If running, cancellation is propagated cooperatively via the body's
// context. If already finished, Cancel is a no-op.
func (t *Task[V]) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case statePending:
		t.cancelRequested = true
		diagnostics.Warnf("optask: task %q (#%d) cancelled before it ever started", t.Config.Name, t.id)
	case stateRunning:
		if t.cancelFn != nil {
			t.cancelFn()
		}
	}
}

// RunIfNeeded runs the body exactly once across all callers. If already
// finished, it returns the cached result immediately. If running, it
// awaits the in-flight run (or ctx's own cancellation, whichever comes
// first) and then returns that run's result.
func (t *Task[V]) RunIfNeeded(ctx context.Context) (V, error) {
	t.mu.Lock()
	for t.state == stateRunning {
		ready := t.ready
		t.mu.Unlock()
		select {
		case <-ready:
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
		t.mu.Lock()
	}

	switch t.state {
	case stateFinished:
		v, err := t.value, t.err
		t.mu.Unlock()
		return v, err
	case stateCancelled:
		t.mu.Unlock()
		var zero V
		return zero, operr.Cancelled
	}

	// statePending: this goroutine becomes the runner.
	if t.cancelRequested {
		t.state = stateCancelled
		t.err = operr.Cancelled
		close(t.ready)
		t.mu.Unlock()
		removeEdges(t.id)
		var zero V
		return zero, operr.Cancelled
	}

	runCtx, cancel := context.WithCancel(detach(ctx))
	t.state = stateRunning
	t.cancelFn = cancel
	deps := t.deps
	ready := t.ready
	t.mu.Unlock()

	// The body runs on its own goroutine so this caller, like any other,
	// can stop waiting when its ctx is done without ending the run.
	go func() {
		for _, dep := range deps {
			dep(runCtx) // best-effort: dependency errors are swallowed
		}

		value, err := t.body(runCtx)

		t.mu.Lock()
		cancel()
		if errors.Is(err, context.Canceled) || errors.Is(err, operr.Cancelled) {
			t.state = stateCancelled
			t.err = operr.Cancelled
		} else {
			t.state = stateFinished
			t.value = value
			t.err = err
		}
		close(t.ready)
		t.mu.Unlock()
		removeEdges(t.id)
	}()

	select {
	case <-ready:
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value, t.err
}

// detach strips ctx's deadline/cancellation but keeps its values, so a
// caller's own context cancellation (e.g. from giving up on RunIfNeeded)
// doesn't tear down a run other callers are still joined to; only an
// explicit Task.Cancel does that.
func detach(ctx context.Context) context.Context {
	return detachedContext{ctx}
}

type detachedContext struct{ parent context.Context }

func (detachedContext) Deadline() (deadline time.Time, ok bool) { return time.Time{}, false }
func (detachedContext) Done() <-chan struct{}                   { return nil }
func (detachedContext) Err() error                              { return nil }
func (d detachedContext) Value(key any) any                     { return d.parent.Value(key) }

// Map returns a derived Task that runs t and, on success, transforms its
// value with f. t is run first; f's error (if any) becomes the derived
// task's error.
func Map[V, U any](t *Task[V], f func(V) (U, error)) *Task[U] {
	return New[U](t.Config.Name+".map", t.Config.Context, func(ctx context.Context) (U, error) {
		v, err := t.RunIfNeeded(ctx)
		if err != nil {
			var zero U
			return zero, err
		}
		return f(v)
	})
}

// Schedule declares that t depends on after: after is awaited
// (best-effort; its errors are swallowed) before t's body runs. Schedule
// detects circular scheduling and halts the process with the cycle path.
func Schedule[V, U any](t *Task[V], after *Task[U]) {
	if cycle, found := detectCycle(after.id, t.id); found {
		diagnostics.Fatalf("optask: circular task scheduling detected: %s", formatCycle(cycle))
	}
	addEdge(t.id, after.id)

	t.mu.Lock()
	t.deps = append(t.deps, func(ctx context.Context) {
		_, _ = after.RunIfNeeded(ctx)
	})
	t.mu.Unlock()
}
