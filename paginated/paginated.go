// Package paginated implements the paginated operation runtime atop
// store.RunRetryLoop and state.Paginated: fetch_next_page,
// fetch_previous_page, and refetch_all_pages, with the intent
// deduplication and all-vs-next/previous serialization rules. It
// reuses optask.Schedule (rather than inventing a
// second scheduling mechanism) to make a next/previous request issued
// while an all-pages refetch is in flight wait for that refetch, the
// same way any other best-effort task dependency does.
package paginated

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"eve.evalgo.org/operation/opcontext"
	"eve.evalgo.org/operation/operr"
	"eve.evalgo.org/operation/optask"
	"eve.evalgo.org/operation/state"
	"eve.evalgo.org/operation/store"
	"eve.evalgo.org/operation/subscription"
)

// Page is one fetched page: its value, and the caller-supplied params
// needed to fetch the page after and before it (nil when there is none,
// or when that direction hasn't been determined yet).
type Page[V any, P any] = state.Page[V, P]

// Fetch retrieves the page identified by param. param is nil only for
// the very first page.
type Fetch[ID comparable, V any, P any] func(ctx context.Context, param *P) (ID, Page[V, P], error)

const (
	intentInitial  = "initial"
	intentNext     = "next"
	intentPrevious = "previous"
	intentAll      = "all"
)

// EventHandler receives paginated callbacks; all are
// invoked with the store's lock released.
type EventHandler[ID comparable, V any, P any] struct {
	OnStateChanged        func()
	OnFetchingStarted     func()
	OnFetchingEnded       func()
	OnResultReceived      func(r state.Result[Page[V, P]])
	OnPageFetchingStarted func(id ID)
	OnPageResultReceived  func(id ID, r state.Result[Page[V, P]])
	OnPageFetchingEnded   func(id ID)
}

// Store is the OperationStore for a paginated operation.
type Store[ID comparable, V any, P any] struct {
	mu      sync.Mutex
	st      *state.Paginated[ID, V, P]
	ctx     opcontext.Context
	fetch   Fetch[ID, V, P]
	initial *P

	subs   map[int64]EventHandler[ID, V, P]
	subSeq atomic.Int64

	tasks   map[string]*optask.Task[ID]
	taskSeq atomic.Int64
	allTask *optask.Task[ID]

	// params remembers which param fetched each page, so a full
	// refetch can restart from the earliest loaded page.
	params map[ID]*P

	path string

	condSubs []*subscription.Subscription
}

// New constructs a paginated Store. initial is the param used to fetch
// the first page (nil if the operation's first page needs no param).
func New[ID comparable, V any, P any](path string, ctx opcontext.Context, initial *P, fetch Fetch[ID, V, P]) *Store[ID, V, P] {
	s := &Store[ID, V, P]{
		st:      state.NewPaginated[ID, V, P](initial),
		ctx:     ctx,
		fetch:   fetch,
		initial: initial,
		subs:    make(map[int64]EventHandler[ID, V, P]),
		tasks:   make(map[string]*optask.Task[ID]),
		params:  make(map[ID]*P),
		path:    path,
	}
	for _, cond := range store.EffectiveRerunConditions(ctx) {
		cond := cond
		s.condSubs = append(s.condSubs, cond.Subscribe(ctx, func() {
			if !cond.IsSatisfied(ctx) {
				return
			}
			// A change signal refreshes what is already loaded; with
			// nothing loaded it fetches the first page instead.
			go func() {
				if len(s.Pages()) == 0 {
					_, _ = s.FetchNextPage(context.Background())
					return
				}
				_ = s.RefetchAllPages(context.Background())
			}()
		}))
	}
	return s
}

// Detach cancels the store's run-condition subscriptions. The store
// cache calls this on eviction; in-flight tasks are unaffected.
func (s *Store[ID, V, P]) Detach() {
	for _, sub := range s.condSubs {
		sub.Cancel()
	}
}

// SubscriberCount returns how many subscribers are currently attached.
func (s *Store[ID, V, P]) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Pages returns the currently loaded page IDs in fetch order.
func (s *Store[ID, V, P]) Pages() []ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Pages()
}

// Page returns the Result stored for id, if any.
func (s *Store[ID, V, P]) Page(id ID) (state.Result[Page[V, P]], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Page(id)
}

// HasNextPage reports whether fetch_next_page can make progress.
func (s *Store[ID, V, P]) HasNextPage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.HasNextPage()
}

// HasPreviousPage reports whether fetch_previous_page can make
// progress.
func (s *Store[ID, V, P]) HasPreviousPage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.HasPreviousPage()
}

// Stats returns a snapshot of the store's bookkeeping.
func (s *Store[ID, V, P]) Stats() state.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Stats()
}

// Context returns the configuration Context the store was created with.
func (s *Store[ID, V, P]) Context() opcontext.Context { return s.ctx }

// IsLoading reports whether any page intent is in flight.
func (s *Store[ID, V, P]) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.IsLoading()
}

// IsLoadingInitialPage reports whether the initial-page intent is in
// flight and no pages are loaded yet.
func (s *Store[ID, V, P]) IsLoadingInitialPage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[intentInitial]
	return ok && !t.IsFinished() && len(s.st.Pages()) == 0
}

// IsLoadingNextPage reports whether the next-page intent is in flight
// with at least one page already loaded.
func (s *Store[ID, V, P]) IsLoadingNextPage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[intentNext]
	return ok && !t.IsFinished() && len(s.st.Pages()) > 0
}

// IsLoadingPreviousPage reports whether the previous-page intent is in
// flight with at least one page already loaded.
func (s *Store[ID, V, P]) IsLoadingPreviousPage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[intentPrevious]
	return ok && !t.IsFinished() && len(s.st.Pages()) > 0
}

// IsLoadingAllPages reports whether refetch_all_pages is in flight.
func (s *Store[ID, V, P]) IsLoadingAllPages() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allTask != nil && !s.allTask.IsFinished()
}

// Subscribe registers handler, delivering one onStateChanged
// immediately.
func (s *Store[ID, V, P]) Subscribe(handler EventHandler[ID, V, P]) *subscription.Subscription {
	id := s.subSeq.Add(1)
	s.mu.Lock()
	s.subs[id] = handler
	s.mu.Unlock()

	handler.stateChanged()

	if auto := opcontext.Get(s.ctx, store.KeyAutomaticRunning); auto != nil && auto.IsSatisfied(s.ctx) {
		if len(s.Pages()) == 0 {
			go func() { _, _ = s.FetchNextPage(context.Background()) }()
		}
	}

	return subscription.New(func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	})
}

func (s *Store[ID, V, P]) snapshotHandlers() []EventHandler[ID, V, P] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventHandler[ID, V, P], 0, len(s.subs))
	for _, h := range s.subs {
		out = append(out, h)
	}
	return out
}

func (h EventHandler[ID, V, P]) stateChanged() {
	if h.OnStateChanged != nil {
		h.OnStateChanged()
	}
}

func (s *Store[ID, V, P]) broadcast(fn func(EventHandler[ID, V, P])) {
	for _, h := range s.snapshotHandlers() {
		fn(h)
	}
}

// FetchNextPage fetches the page after the last loaded one (or the
// initial page, if none are loaded) and awaits it. It returns
// operr.NoNextPage if the operation has no further page to fetch.
func (s *Store[ID, V, P]) FetchNextPage(ctx context.Context) (Page[V, P], error) {
	intent, resolve := s.nextIntentResolver(true)
	return s.run(ctx, intent, resolve)
}

// FetchPreviousPage fetches the page before the first loaded one (or
// the initial page, if none are loaded). Returns operr.NoPreviousPage
// if there is nothing further back to fetch.
func (s *Store[ID, V, P]) FetchPreviousPage(ctx context.Context) (Page[V, P], error) {
	intent, resolve := s.nextIntentResolver(false)
	return s.run(ctx, intent, resolve)
}

// nextIntentResolver names the intent and returns a resolver producing
// the param to fetch with, or operr.NoNextPage/NoPreviousPage when that
// direction is exhausted. The resolver runs when the task body does, so
// it sees the pages an earlier all-pages refetch installed.
func (s *Store[ID, V, P]) nextIntentResolver(forward bool) (string, func() (*P, error)) {
	s.mu.Lock()
	empty := len(s.st.Pages()) == 0
	s.mu.Unlock()

	if empty {
		return intentInitial, func() (*P, error) { return s.initial, nil }
	}
	if forward {
		return intentNext, func() (*P, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			pages := s.st.Pages()
			if len(pages) == 0 {
				return s.initial, nil
			}
			last, _ := s.st.Page(pages[len(pages)-1])
			if last.Err != nil || last.Value.Next == nil {
				return nil, operr.NoNextPage
			}
			return last.Value.Next, nil
		}
	}
	return intentPrevious, func() (*P, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		pages := s.st.Pages()
		if len(pages) == 0 {
			return s.initial, nil
		}
		first, _ := s.st.Page(pages[0])
		if first.Err != nil || first.Value.Prev == nil {
			return nil, operr.NoPreviousPage
		}
		return first.Value.Prev, nil
	}
}

// run joins or starts the task for intent, Scheduling it after any
// in-flight "all" task, and awaits it.
func (s *Store[ID, V, P]) run(ctx context.Context, intent string, resolve func() (*P, error)) (Page[V, P], error) {
	task := s.startTask(intent, func(runCtx context.Context) (ID, error) {
		return s.runOnePage(runCtx, intent, resolve)
	})
	id, err := task.RunIfNeeded(ctx)
	if err != nil {
		return Page[V, P]{}, err
	}
	r, _ := s.Page(id)
	return r.Value, r.Err
}

// startTask installs body as the task for intent (joining an existing
// unfinished one instead) and wires the all-vs-next/previous ordering:
// an "all" task is Scheduled after every page intent already in flight
// (it joins them before refetching), and a next/previous started while
// an "all" is in flight is Scheduled after it, so it only runs once the
// waterfall refetch actually completes.
func (s *Store[ID, V, P]) startTask(intent string, body func(context.Context) (ID, error)) *optask.Task[ID] {
	s.mu.Lock()
	if t, ok := s.tasks[intent]; ok && !t.IsFinished() {
		s.mu.Unlock()
		return t
	}
	seq := s.taskSeq.Add(1)
	t := optask.New[ID](fmt.Sprintf("%s#%s#%d", s.path, intent, seq), s.ctx, body)
	s.tasks[intent] = t
	if intent == intentAll {
		s.allTask = t
		for other, ot := range s.tasks {
			if other != intentAll && !ot.IsFinished() {
				optask.Schedule(t, ot)
			}
		}
	} else if s.allTask != nil && !s.allTask.IsFinished() {
		optask.Schedule(t, s.allTask)
	}
	s.mu.Unlock()

	go func() { _, _ = t.RunIfNeeded(context.Background()) }()
	return t
}

func (s *Store[ID, V, P]) runOnePage(ctx context.Context, intent string, resolve func() (*P, error)) (ID, error) {
	var zero ID
	param, err := resolve()
	if err != nil {
		// Nothing to fetch in this direction; no run ever starts.
		return zero, err
	}

	s.mu.Lock()
	s.st.BeginRun()
	s.mu.Unlock()
	s.broadcast(func(h EventHandler[ID, V, P]) {
		if h.OnFetchingStarted != nil {
			h.OnFetchingStarted()
		}
	})
	s.broadcast(EventHandler[ID, V, P].stateChanged)

	type pageAndID struct {
		id   ID
		page Page[V, P]
	}
	got, err := store.RunRetryLoop(ctx, s.ctx, func(ctx context.Context) (pageAndID, error) {
		id, page, err := s.fetch(ctx, param)
		return pageAndID{id: id, page: page}, err
	})
	id, page := got.id, got.page

	result := state.Result[Page[V, P]]{Value: page, Err: err}
	at := s.now()
	s.mu.Lock()
	if err != nil {
		s.st.FailRun(at)
	} else {
		switch intent {
		case intentPrevious:
			s.st.PrependPage(id, result, at)
		default:
			s.st.AppendPage(id, result, at)
		}
		s.params[id] = param
	}
	s.mu.Unlock()

	s.broadcast(func(h EventHandler[ID, V, P]) {
		if err == nil {
			if h.OnPageFetchingStarted != nil {
				h.OnPageFetchingStarted(id)
			}
			if h.OnPageResultReceived != nil {
				h.OnPageResultReceived(id, result)
			}
			if h.OnPageFetchingEnded != nil {
				h.OnPageFetchingEnded(id)
			}
		}
		if h.OnResultReceived != nil {
			h.OnResultReceived(result)
		}
		if h.OnFetchingEnded != nil {
			h.OnFetchingEnded()
		}
	})
	s.broadcast(EventHandler[ID, V, P].stateChanged)

	return id, err
}

// RefetchAllPages refetches every currently-loaded page in waterfall
// order, starting from the earliest. A store with no loaded pages
// succeeds as a no-op. The whole waterfall runs inside the "all" task's
// body, Scheduled after any next/previous already in flight (it joins
// them first, then re-reads the loaded pages); a next/previous request
// issued while the waterfall is in flight waits on this very task, so
// it only proceeds once the refetch has actually finished.
func (s *Store[ID, V, P]) RefetchAllPages(ctx context.Context) error {
	s.mu.Lock()
	empty := len(s.st.Pages()) == 0
	s.mu.Unlock()
	if empty {
		return nil
	}

	task := s.startTask(intentAll, s.runAllPages)
	_, err := task.RunIfNeeded(ctx)
	return err
}

func (s *Store[ID, V, P]) runAllPages(ctx context.Context) (ID, error) {
	// The loaded set is read here, after any joined next/previous have
	// finished, so pages they appended are part of the waterfall.
	s.mu.Lock()
	pages := s.st.Pages()
	if len(pages) == 0 {
		s.mu.Unlock()
		var zero ID
		return zero, nil
	}
	s.st.BeginRun()
	// The waterfall restarts from the earliest loaded page, using the
	// param that originally fetched it.
	param, ok := s.params[pages[0]]
	if !ok {
		param = s.initial
	}
	s.mu.Unlock()
	s.broadcast(func(h EventHandler[ID, V, P]) {
		if h.OnFetchingStarted != nil {
			h.OnFetchingStarted()
		}
	})
	s.broadcast(EventHandler[ID, V, P].stateChanged)

	var lastErr error
	var lastID ID
	fetched := make([]ID, 0, len(pages))
	for i := 0; i < len(pages); i++ {
		cur := param
		type pageAndID struct {
			id   ID
			page Page[V, P]
		}
		got, err := store.RunRetryLoop(ctx, s.ctx, func(ctx context.Context) (pageAndID, error) {
			id, page, err := s.fetch(ctx, cur)
			return pageAndID{id: id, page: page}, err
		})
		id, page := got.id, got.page
		lastID = id
		at := s.now()
		result := state.Result[Page[V, P]]{Value: page, Err: err}
		s.mu.Lock()
		if err != nil {
			s.st.FailRun(at)
		} else {
			s.st.AppendPage(id, result, at)
			s.params[id] = cur
		}
		s.mu.Unlock()
		if err != nil {
			// Abort the waterfall; the failure propagates to the
			// caller and the already-refetched pages stand.
			lastErr = err
			break
		}
		s.broadcast(func(h EventHandler[ID, V, P]) {
			if h.OnPageFetchingStarted != nil {
				h.OnPageFetchingStarted(id)
			}
			if h.OnPageResultReceived != nil {
				h.OnPageResultReceived(id, result)
			}
			if h.OnPageFetchingEnded != nil {
				h.OnPageFetchingEnded(id)
			}
		})
		s.broadcast(EventHandler[ID, V, P].stateChanged)
		fetched = append(fetched, id)
		if page.Next == nil {
			break
		}
		param = page.Next
	}

	if lastErr == nil {
		s.mu.Lock()
		s.st.Retain(fetched)
		s.mu.Unlock()
	}

	s.broadcast(func(h EventHandler[ID, V, P]) {
		if h.OnFetchingEnded != nil {
			h.OnFetchingEnded()
		}
	})
	s.broadcast(EventHandler[ID, V, P].stateChanged)

	return lastID, lastErr
}

// ResetState clears all loaded pages and cancels in-flight tasks.
func (s *Store[ID, V, P]) ResetState() {
	s.mu.Lock()
	tasks := make([]*optask.Task[ID], 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.tasks = make(map[string]*optask.Task[ID])
	s.allTask = nil
	s.params = make(map[ID]*P)
	s.st.Reset()
	s.mu.Unlock()
	for _, t := range tasks {
		t.Cancel()
	}
	s.broadcast(EventHandler[ID, V, P].stateChanged)
}

func (s *Store[ID, V, P]) now() time.Time {
	return opcontext.Get(s.ctx, store.KeyClock).Now()
}
