package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"eve.evalgo.org/operation/opcontext"
	"eve.evalgo.org/operation/operr"
	"eve.evalgo.org/operation/optask"
	"eve.evalgo.org/operation/state"
	"eve.evalgo.org/operation/subscription"
)

// SingleTask is the Task type a Single store's run_task returns.
type SingleTask[V any] = optask.Task[V]

// Fetcher is the body of a Single operation's fetch, given Controls to
// stream interim values before returning its final Result.
type Fetcher[V any] func(ctx context.Context, controls Controls[V]) (V, error)

// Single is the OperationStore for a single-value operation.
type Single[V any] struct {
	mu      sync.Mutex
	st      *state.Single[V]
	ctx     opcontext.Context
	fetch   Fetcher[V]
	subs    map[int64]EventHandler[V]
	subSeq  atomic.Int64
	taskSeq atomic.Int64
	current *SingleTask[V]
	path    string // diagnostic label only; avoids an import cycle with opath/client

	condSubs []*subscription.Subscription
}

// NewSingle constructs a Single store. ctx carries the retry/backoff/
// clock/delayer configuration a modifier pipeline or StoreCreator
// installed; fetch is the operation's body.
func NewSingle[V any](path string, ctx opcontext.Context, fetch Fetcher[V]) *Single[V] {
	s := &Single[V]{
		st:    state.NewSingle[V](),
		ctx:   ctx,
		fetch: fetch,
		subs:  make(map[int64]EventHandler[V]),
		path:  path,
	}
	for _, cond := range EffectiveRerunConditions(ctx) {
		cond := cond
		s.condSubs = append(s.condSubs, cond.Subscribe(ctx, func() {
			if cond.IsSatisfied(ctx) {
				s.RunTask(context.Background())
			}
		}))
	}
	return s
}

// Detach cancels the store's run-condition subscriptions. The store
// cache calls this on eviction; in-flight tasks are unaffected.
func (s *Single[V]) Detach() {
	for _, sub := range s.condSubs {
		sub.Cancel()
	}
}

// Current returns the most recently recorded Result. With no result yet
// it falls back to a configured default value, or nil when the store
// has none.
func (s *Single[V]) Current() *state.Result[V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.st.Current(); cur != nil {
		return cur
	}
	if def := opcontext.Get(s.ctx, KeyDefaultValue); def != nil {
		if v, ok := def.(V); ok {
			return &state.Result[V]{Value: v}
		}
	}
	return nil
}

// Status returns the store's current lifecycle status.
func (s *Single[V]) Status() state.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Status()
}

// Stats returns a snapshot of the store's bookkeeping.
func (s *Single[V]) Stats() state.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Stats()
}

// Context returns the configuration Context the store was created with.
func (s *Single[V]) Context() opcontext.Context { return s.ctx }

// Subscribe registers handler and immediately delivers one
// onStateChanged so the caller can sync to the current value. Cancelling
// the returned Subscription removes the handler; it never cancels
// in-flight work.
func (s *Single[V]) Subscribe(handler EventHandler[V]) *subscription.Subscription {
	id := s.subSeq.Add(1)
	s.mu.Lock()
	s.subs[id] = handler
	s.mu.Unlock()

	handler.stateChanged()

	if auto := opcontext.Get(s.ctx, KeyAutomaticRunning); auto != nil && auto.IsSatisfied(s.ctx) {
		s.RunTask(context.Background())
	}

	return subscription.New(func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	})
}

// SubscriberCount returns how many subscribers are currently attached.
func (s *Single[V]) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Single[V]) snapshotHandlers() []EventHandler[V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventHandler[V], 0, len(s.subs))
	for _, h := range s.subs {
		out = append(out, h)
	}
	return out
}

func (s *Single[V]) broadcastStateChanged() {
	for _, h := range s.snapshotHandlers() {
		h.stateChanged()
	}
}

func (s *Single[V]) broadcastFetchingStarted() {
	for _, h := range s.snapshotHandlers() {
		h.fetchingStarted()
	}
}

func (s *Single[V]) broadcastFetchingEnded() {
	for _, h := range s.snapshotHandlers() {
		h.fetchingEnded()
	}
}

func (s *Single[V]) broadcastResultReceived(r state.Result[V], ctx opcontext.Context) {
	for _, h := range s.snapshotHandlers() {
		h.resultReceived(r, ctx)
	}
}

// SetResult writes r directly into state, bypassing any fetch, and
// notifies subscribers as a returned-final-result update.
func (s *Single[V]) SetResult(r state.Result[V]) {
	s.mu.Lock()
	s.st.UpdateFrom(r, state.ReasonReturnedFinalResult, s.now())
	s.mu.Unlock()
	s.broadcastResultReceived(r, s.ctx)
	s.broadcastStateChanged()
}

// ResetState cancels any in-flight task and returns to idle. The
// cancellation is not reflected back into state: the reset supersedes
// whatever the cancelled task would have reported.
func (s *Single[V]) ResetState() {
	s.mu.Lock()
	task := s.current
	s.current = nil
	s.st.Reset()
	s.mu.Unlock()
	if task != nil {
		task.Cancel()
	}
	s.broadcastStateChanged()
}

// WithExclusiveAccess serializes fn against every other store operation,
// so a caller can perform several reads/writes against the store as one
// atomic unit.
func (s *Single[V]) WithExclusiveAccess(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Run creates a fetch task if one is not already in flight for this
// store's one intent, and awaits it.
func (s *Single[V]) Run(ctx context.Context) (V, error) {
	return s.RunTask(ctx).RunIfNeeded(ctx)
}

// RunTask returns the in-flight task for this store's fetch intent,
// joining it if one already exists, or starts a new one. It does not
// block on completion.
func (s *Single[V]) RunTask(ctx context.Context) *SingleTask[V] {
	s.mu.Lock()
	if s.current != nil && !s.current.IsFinished() {
		t := s.current
		s.mu.Unlock()
		return t
	}
	seq := s.taskSeq.Add(1)
	var t *SingleTask[V]
	t = optask.New[V](fmt.Sprintf("%s#%d", s.path, seq), s.ctx, func(runCtx context.Context) (V, error) {
		return s.runOnce(runCtx, t)
	})
	s.current = t
	s.mu.Unlock()

	go func() { _, _ = t.RunIfNeeded(context.Background()) }()
	return t
}

// AttachController hands controller the store's Controls so it can push
// values and schedule re-runs from outside any fetch body. Controller
// yields always apply; only yields from a superseded fetch task are
// dropped.
func (s *Single[V]) AttachController(controller Controller[V]) {
	if controller != nil {
		controller(s.controls(nil))
	}
}

func (s *Single[V]) controls(self *SingleTask[V]) Controls[V] {
	return Controls[V]{
		yield: func(v V) {
			s.mu.Lock()
			if self != nil && s.current != self {
				s.mu.Unlock()
				return
			}
			s.st.UpdateFrom(state.Result[V]{Value: v}, state.ReasonYielded, s.now())
			s.mu.Unlock()
			s.broadcastStateChanged()
		},
		yieldError: func(err error) {
			s.mu.Lock()
			if self != nil && s.current != self {
				s.mu.Unlock()
				return
			}
			s.st.UpdateFrom(state.Result[V]{Err: err}, state.ReasonYielded, s.now())
			s.mu.Unlock()
			s.broadcastStateChanged()
		},
		rerun: func() *SingleTask[V] {
			return s.RunTask(context.Background())
		},
		refetch: func() *SingleTask[V] {
			return s.RunTask(context.Background())
		},
	}
}

func (s *Single[V]) now() time.Time {
	return opcontext.Get(s.ctx, KeyClock).Now()
}

// runOnce drives the full retry loop for one fetch intent: attempt,
// backoff, attempt again, until success, a non-retryable failure, or the
// retry ceiling is reached. self identifies the task
// running this loop so a concurrent ResetState (which supersedes it)
// can be detected and the stale result discarded instead of clobbering
// whatever reset installed.
func (s *Single[V]) runOnce(ctx context.Context, self *SingleTask[V]) (V, error) {
	s.mu.Lock()
	s.st.BeginRun()
	s.mu.Unlock()
	s.broadcastFetchingStarted()
	s.broadcastStateChanged()

	controls := s.controls(self)
	value, err := RunRetryLoop(ctx, s.ctx, func(ctx context.Context) (V, error) {
		return s.fetch(ctx, controls)
	})

	result := state.Result[V]{Value: value, Err: err}
	s.mu.Lock()
	stale := s.current != self
	if !stale {
		s.st.UpdateFrom(result, state.ReasonReturnedFinalResult, s.now())
	}
	s.mu.Unlock()
	if !stale {
		s.broadcastResultReceived(result, s.ctx)
		s.broadcastFetchingEnded()
		s.broadcastStateChanged()
	}

	return value, err
}

func errorIsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, operr.Cancelled)
}
