// Package store implements OperationStore: the state machine that owns
// an operation's current value, coordinates the Task that fetches it,
// fans results out to subscribers, deduplicates concurrent callers, and
// drives the retry loop.
package store

import (
	"eve.evalgo.org/operation/opcontext"
	"eve.evalgo.org/operation/state"
)

// EventHandler receives callbacks for a Single store. Every callback is
// invoked with the store's internal lock released, so a handler may
// safely call back into the store (e.g. to read Current()) without
// deadlocking; handlers must not block since they run inline with the
// goroutine driving the fetch.
type EventHandler[V any] struct {
	OnStateChanged    func()
	OnFetchingStarted func()
	OnFetchingEnded   func()
	OnResultReceived  func(r state.Result[V], ctx opcontext.Context)
}

func (h EventHandler[V]) stateChanged() {
	if h.OnStateChanged != nil {
		h.OnStateChanged()
	}
}

func (h EventHandler[V]) fetchingStarted() {
	if h.OnFetchingStarted != nil {
		h.OnFetchingStarted()
	}
}

func (h EventHandler[V]) fetchingEnded() {
	if h.OnFetchingEnded != nil {
		h.OnFetchingEnded()
	}
}

func (h EventHandler[V]) resultReceived(r state.Result[V], ctx opcontext.Context) {
	if h.OnResultReceived != nil {
		h.OnResultReceived(r, ctx)
	}
}
