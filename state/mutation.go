package state

import "time"

// HistoryEntry records one completed or in-flight mutation attempt: the
// arguments it ran with, its Result once finished, and when it started
// and ended.
type HistoryEntry[A any, V any] struct {
	Args      A
	Result    *Result[V]
	StartedAt time.Time
	EndedAt   *time.Time
}

// Mutation is the state of a mutate operation: the ordered history of
// every attempt and the Result of the most recent successful one, so
// retry_latest can replay without the caller re-supplying arguments.
type Mutation[A any, V any] struct {
	common
	history    []HistoryEntry[A, V]
	latest     *Result[V]
	historyCap int
	firstSeq   int
	nextSeq    int
}

// NewMutation returns an idle Mutation with no invocation history.
func NewMutation[A any, V any]() *Mutation[A, V] {
	return &Mutation[A, V]{}
}

// SetHistoryCap bounds the history to the most recent n entries; 0
// means unbounded.
func (m *Mutation[A, V]) SetHistoryCap(n int) {
	m.historyCap = n
	m.trim()
}

func (m *Mutation[A, V]) trim() {
	if m.historyCap <= 0 {
		return
	}
	for len(m.history) > m.historyCap {
		m.history = m.history[1:]
		m.firstSeq++
	}
}

// History returns every recorded attempt, oldest first.
func (m *Mutation[A, V]) History() []HistoryEntry[A, V] {
	out := make([]HistoryEntry[A, V], len(m.history))
	copy(out, m.history)
	return out
}

// Arguments returns the arguments of every recorded attempt, oldest
// first.
func (m *Mutation[A, V]) Arguments() []A {
	out := make([]A, len(m.history))
	for i, e := range m.history {
		out[i] = e.Args
	}
	return out
}

// LatestArguments returns the most recent attempt's arguments, or false
// if mutate has never been called.
func (m *Mutation[A, V]) LatestArguments() (A, bool) {
	var zero A
	if len(m.history) == 0 {
		return zero, false
	}
	return m.history[len(m.history)-1].Args, true
}

// Latest returns the Result of the most recent successful attempt, or
// nil if none has succeeded. Failed attempts are visible through the
// history and the error bookkeeping (status, ConsecutiveErrorCount,
// LastFailureAt); they never displace the last good value.
func (m *Mutation[A, V]) Latest() *Result[V] {
	return m.latest
}

// BeginRun appends a new attempt with args and marks it started,
// returning a sequence number Complete uses to finish that same entry
// even if older entries have been trimmed in the meantime.
func (m *Mutation[A, V]) BeginRun(args A, at time.Time) int {
	seq := m.nextSeq
	m.nextSeq++
	m.history = append(m.history, HistoryEntry[A, V]{Args: args, StartedAt: at})
	m.trim()
	m.beginRun()
	return seq
}

// Complete records r as the result of the attempt BeginRun returned seq
// for. Only a successful r becomes the operation's latest result; a
// failure is recorded in the history and error bookkeeping without
// discarding the last good value.
func (m *Mutation[A, V]) Complete(seq int, r Result[V], at time.Time) {
	if i := seq - m.firstSeq; i >= 0 && i < len(m.history) {
		ended := at
		m.history[i].Result = &r
		m.history[i].EndedAt = &ended
	}
	if r.Err == nil {
		m.latest = &r
	}
	m.endRun(r.Err == nil, at)
}

// Reset clears invocation history and the latest result.
func (m *Mutation[A, V]) Reset() {
	m.history = nil
	m.latest = nil
	m.firstSeq = 0
	m.nextSeq = 0
	m.common = common{}
}
