// Package subscription implements Subscription, the cancellable handle
// every store attachment returns. Go has no deterministic destructors, so
// unlike the source's RAII-on-drop, cancellation here is always explicit:
// the embedding application must call Cancel (typically via defer) the
// same way it would close an *os.File. This is the idiom the rest of the
// ecosystem's Go code follows for cancellable resources (context.Context,
// io.Closer) — none of it relies on GC finalizer timing for correctness.
package subscription

import "sync"

// Subscription is a cancellable, idempotent attachment handle.
// Equality is identity-based (compare *Subscription pointers).
type Subscription struct {
	mu        sync.Mutex
	cancelled bool
	onCancel  func()
}

// New returns a Subscription that calls onCancel exactly once, the first
// time Cancel is invoked. onCancel may be nil.
func New(onCancel func()) *Subscription {
	return &Subscription{onCancel: onCancel}
}

// Cancel cancels the subscription. It is idempotent: only the first call
// invokes onCancel.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	onCancel := s.onCancel
	s.mu.Unlock()
	if onCancel != nil {
		onCancel()
	}
}

// IsCancelled reports whether Cancel has been called.
func (s *Subscription) IsCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Combine returns a single Subscription whose Cancel cancels every child
// subscription, in the order given.
func Combine(subs ...*Subscription) *Subscription {
	return New(func() {
		for _, s := range subs {
			if s != nil {
				s.Cancel()
			}
		}
	})
}
