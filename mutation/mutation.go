// Package mutation implements the mutation operation runtime atop
// state.Mutation: mutate-with-arguments, retry-latest, and an ordered
// attempt history. Intents are keyed by argument identity, so two
// concurrent Mutate calls with equal arguments join the same task while
// calls with different arguments run in parallel.
package mutation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"eve.evalgo.org/operation/diagnostics"
	"eve.evalgo.org/operation/opcontext"
	"eve.evalgo.org/operation/operr"
	"eve.evalgo.org/operation/optask"
	"eve.evalgo.org/operation/state"
	"eve.evalgo.org/operation/store"
	"eve.evalgo.org/operation/subscription"
)

// Body performs one mutation attempt with args.
type Body[A any, V any] func(ctx context.Context, args A) (V, error)

// EventHandler receives mutation callbacks; all are invoked with the
// store's lock released.
type EventHandler[A any, V any] struct {
	OnStateChanged           func()
	OnMutatingStarted        func(args A)
	OnMutationResultReceived func(args A, r state.Result[V])
	OnMutatingEnded          func(args A)
}

func (h EventHandler[A, V]) stateChanged() {
	if h.OnStateChanged != nil {
		h.OnStateChanged()
	}
}

// Store is the OperationStore for a mutation operation.
type Store[A comparable, V any] struct {
	mu   sync.Mutex
	st   *state.Mutation[A, V]
	ctx  opcontext.Context
	body Body[A, V]

	subs   map[int64]EventHandler[A, V]
	subSeq atomic.Int64

	tasks     map[A]*optask.Task[V]
	retryTask *optask.Task[V]
	taskSeq   atomic.Int64

	path string
}

// New constructs a mutation Store. ctx carries the retry/backoff/clock/
// delayer configuration plus the optional history cap a modifier
// installed.
func New[A comparable, V any](path string, ctx opcontext.Context, body Body[A, V]) *Store[A, V] {
	st := state.NewMutation[A, V]()
	st.SetHistoryCap(opcontext.Get(ctx, store.KeyMutationHistoryCap))
	return &Store[A, V]{
		st:    st,
		ctx:   ctx,
		body:  body,
		subs:  make(map[int64]EventHandler[A, V]),
		tasks: make(map[A]*optask.Task[V]),
		path:  path,
	}
}

// Latest returns the Result of the most recent successful attempt, or
// nil if none has succeeded; a failed mutation never displaces the
// last good value.
func (s *Store[A, V]) Latest() *state.Result[V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Latest()
}

// History returns every recorded attempt, oldest first.
func (s *Store[A, V]) History() []state.HistoryEntry[A, V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.History()
}

// Arguments returns the arguments of every recorded attempt, oldest
// first.
func (s *Store[A, V]) Arguments() []A {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Arguments()
}

// Status returns the store's current lifecycle status.
func (s *Store[A, V]) Status() state.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Status()
}

// Stats returns a snapshot of the store's bookkeeping.
func (s *Store[A, V]) Stats() state.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Stats()
}

// Context returns the configuration Context the store was created with.
func (s *Store[A, V]) Context() opcontext.Context { return s.ctx }

// IsLoading reports whether any mutation attempt is in flight.
func (s *Store[A, V]) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.IsLoading()
}

// SubscriberCount returns how many subscribers are currently attached.
func (s *Store[A, V]) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Detach is a no-op for mutation stores; they observe no run
// conditions. It exists so the store cache can detach any store kind
// uniformly on eviction.
func (s *Store[A, V]) Detach() {}

// Subscribe registers handler, delivering one onStateChanged
// immediately.
func (s *Store[A, V]) Subscribe(handler EventHandler[A, V]) *subscription.Subscription {
	id := s.subSeq.Add(1)
	s.mu.Lock()
	s.subs[id] = handler
	s.mu.Unlock()

	handler.stateChanged()

	return subscription.New(func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	})
}

func (s *Store[A, V]) snapshotHandlers() []EventHandler[A, V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventHandler[A, V], 0, len(s.subs))
	for _, h := range s.subs {
		out = append(out, h)
	}
	return out
}

func (s *Store[A, V]) broadcast(fn func(EventHandler[A, V])) {
	for _, h := range s.snapshotHandlers() {
		fn(h)
	}
}

// Mutate runs the body with args (joining an identical in-flight call)
// and awaits the result.
func (s *Store[A, V]) Mutate(ctx context.Context, args A) (V, error) {
	return s.MutateTask(args).RunIfNeeded(ctx)
}

// MutateTask returns the task for the args intent without awaiting it,
// joining an unfinished task already running with equal args.
func (s *Store[A, V]) MutateTask(args A) *optask.Task[V] {
	s.mu.Lock()
	if t, ok := s.tasks[args]; ok && !t.IsFinished() {
		s.mu.Unlock()
		return t
	}
	seq := s.taskSeq.Add(1)
	t := optask.New[V](fmt.Sprintf("%s#mutate#%d", s.path, seq), s.ctx, func(runCtx context.Context) (V, error) {
		return s.runOnce(runCtx, args)
	})
	s.tasks[args] = t
	s.mu.Unlock()

	go func() { _, _ = t.RunIfNeeded(context.Background()) }()
	return t
}

// RetryLatest re-runs the body with the most recently used arguments.
// Without a prior Mutate it fails with operr.NoPreviousArguments.
func (s *Store[A, V]) RetryLatest(ctx context.Context) (V, error) {
	task, err := s.RetryLatestTask()
	if err != nil {
		var zero V
		return zero, err
	}
	return task.RunIfNeeded(ctx)
}

// RetryLatestTask returns the retry-latest task without awaiting it,
// joining one already in flight.
func (s *Store[A, V]) RetryLatestTask() (*optask.Task[V], error) {
	s.mu.Lock()
	args, ok := s.st.LatestArguments()
	if !ok {
		s.mu.Unlock()
		diagnostics.Warnf("mutation: retry_latest on %s before any mutate", s.path)
		return nil, operr.NoPreviousArguments
	}
	if s.retryTask != nil && !s.retryTask.IsFinished() {
		t := s.retryTask
		s.mu.Unlock()
		return t, nil
	}
	seq := s.taskSeq.Add(1)
	t := optask.New[V](fmt.Sprintf("%s#retry-latest#%d", s.path, seq), s.ctx, func(runCtx context.Context) (V, error) {
		return s.runOnce(runCtx, args)
	})
	s.retryTask = t
	s.mu.Unlock()

	go func() { _, _ = t.RunIfNeeded(context.Background()) }()
	return t, nil
}

// ResetState clears history and the latest result and cancels in-flight
// attempts.
func (s *Store[A, V]) ResetState() {
	s.mu.Lock()
	tasks := make([]*optask.Task[V], 0, len(s.tasks)+1)
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	if s.retryTask != nil {
		tasks = append(tasks, s.retryTask)
	}
	s.tasks = make(map[A]*optask.Task[V])
	s.retryTask = nil
	s.st.Reset()
	s.mu.Unlock()
	for _, t := range tasks {
		t.Cancel()
	}
	s.broadcast(EventHandler[A, V].stateChanged)
}

func (s *Store[A, V]) runOnce(ctx context.Context, args A) (V, error) {
	s.mu.Lock()
	seq := s.st.BeginRun(args, s.now())
	s.mu.Unlock()
	s.broadcast(func(h EventHandler[A, V]) {
		if h.OnMutatingStarted != nil {
			h.OnMutatingStarted(args)
		}
	})
	s.broadcast(EventHandler[A, V].stateChanged)

	value, err := store.RunRetryLoop(ctx, s.ctx, func(ctx context.Context) (V, error) {
		return s.body(ctx, args)
	})

	result := state.Result[V]{Value: value, Err: err}
	s.mu.Lock()
	s.st.Complete(seq, result, s.now())
	s.mu.Unlock()

	s.broadcast(func(h EventHandler[A, V]) {
		if h.OnMutationResultReceived != nil {
			h.OnMutationResultReceived(args, result)
		}
		if h.OnMutatingEnded != nil {
			h.OnMutatingEnded(args)
		}
	})
	s.broadcast(EventHandler[A, V].stateChanged)

	return value, err
}

func (s *Store[A, V]) now() time.Time {
	return opcontext.Get(s.ctx, store.KeyClock).Now()
}
