package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/operation/opcontext"
	"eve.evalgo.org/operation/retry"
	"eve.evalgo.org/operation/state"
)

func newTestContext() opcontext.Context {
	return opcontext.New()
}

func TestSingle_RunFetchesAndSetsSuccess(t *testing.T) {
	s := NewSingle[int]("test/single", newTestContext(), func(ctx context.Context, c Controls[int]) (int, error) {
		return 42, nil
	})

	v, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, state.StatusSuccess, s.Status())
	require.NotNil(t, s.Current())
	assert.Equal(t, 42, s.Current().Value)
}

func TestSingle_ConcurrentRunDeduplicatesToOneFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	s := NewSingle[int]("test/dedup", newTestContext(), func(ctx context.Context, c Controls[int]) (int, error) {
		calls.Add(1)
		<-release
		return 1, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Run(context.Background())
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
}

func TestSingle_RetriesUpToMaxThenFails(t *testing.T) {
	ctx := opcontext.Set(newTestContext(), KeyMaxRetries, 2)
	delayer := &retry.RecordingDelayer{}
	ctx = opcontext.Set(ctx, KeyDelayer, retry.Delayer(delayer))
	ctx = opcontext.Set(ctx, KeyBackoff, retry.Backoff(retry.Fixed(10*time.Millisecond)))

	var attempts atomic.Int32
	sentinel := errors.New("boom")
	s := NewSingle[int]("test/retry", ctx, func(ctx context.Context, c Controls[int]) (int, error) {
		attempts.Add(1)
		return 0, sentinel
	})

	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, sentinel)
	assert.EqualValues(t, 3, attempts.Load()) // initial + 2 retries
	assert.Equal(t, []time.Duration{0, 10 * time.Millisecond, 10 * time.Millisecond}, delayer.Recorded())
}

func TestSingle_RetriesUntilSuccess(t *testing.T) {
	ctx := opcontext.Set(newTestContext(), KeyMaxRetries, 5)
	ctx = opcontext.Set(ctx, KeyDelayer, retry.Delayer(&retry.RecordingDelayer{}))
	ctx = opcontext.Set(ctx, KeyBackoff, retry.Backoff(retry.None))

	var attempts atomic.Int32
	s := NewSingle[string]("test/eventual-success", ctx, func(ctx context.Context, c Controls[string]) (string, error) {
		n := attempts.Add(1)
		if n < 3 {
			return "", errors.New("not yet")
		}
		return "ok", nil
	})

	v, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.EqualValues(t, 3, attempts.Load())
}

func TestSingle_YieldDeliversInterimValueWithoutEndingRun(t *testing.T) {
	release := make(chan struct{})
	s := NewSingle[int]("test/yield", newTestContext(), func(ctx context.Context, c Controls[int]) (int, error) {
		c.Yield(1)
		<-release
		return 2, nil
	})

	var receivedReasons []bool // true = final
	var mu sync.Mutex
	handler := EventHandler[int]{
		OnResultReceived: func(r state.Result[int], _ opcontext.Context) {
			mu.Lock()
			receivedReasons = append(receivedReasons, true)
			mu.Unlock()
		},
	}
	s.Subscribe(handler)

	done := make(chan struct{})
	go func() {
		_, _ = s.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		cur := s.Current()
		return cur != nil && cur.Value == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, state.StatusLoading, s.Status(), "a yield must not end the in-flight run")

	close(release)
	<-done

	require.NotNil(t, s.Current())
	assert.Equal(t, 2, s.Current().Value)
}

func TestSingle_SetResultBypassesFetch(t *testing.T) {
	s := NewSingle[int]("test/set-result", newTestContext(), func(ctx context.Context, c Controls[int]) (int, error) {
		t.Fatal("fetch should not be invoked")
		return 0, nil
	})

	s.SetResult(state.Result[int]{Value: 99})
	require.NotNil(t, s.Current())
	assert.Equal(t, 99, s.Current().Value)
	assert.Equal(t, state.StatusSuccess, s.Status())
}

func TestSingle_ResetStateCancelsInFlightAndReturnsIdle(t *testing.T) {
	started := make(chan struct{})
	s := NewSingle[int]("test/reset", newTestContext(), func(ctx context.Context, c Controls[int]) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})

	task := s.RunTask(context.Background())
	<-started
	s.ResetState()

	assert.Equal(t, state.StatusIdle, s.Status())
	assert.Nil(t, s.Current())
	assert.Eventually(t, task.IsCancelled, time.Second, time.Millisecond)
}

func TestSingle_SubscribeDeliversInitialStateChanged(t *testing.T) {
	s := NewSingle[int]("test/sub", newTestContext(), func(ctx context.Context, c Controls[int]) (int, error) {
		return 1, nil
	})

	var calls atomic.Int32
	sub := s.Subscribe(EventHandler[int]{OnStateChanged: func() { calls.Add(1) }})
	assert.EqualValues(t, 1, calls.Load())

	sub.Cancel()
	_, _ = s.Run(context.Background())
	assert.EqualValues(t, 1, calls.Load(), "cancelled subscription must not receive further callbacks")
}

func TestSingle_WithExclusiveAccessSerializes(t *testing.T) {
	s := NewSingle[int]("test/exclusive", newTestContext(), func(ctx context.Context, c Controls[int]) (int, error) {
		return 1, nil
	})

	var order []int
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < 5; i++ {
		wg.Add(1)
		n := i
		go func() {
			defer wg.Done()
			s.WithExclusiveAccess(func() {
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	assert.Len(t, order, 5)
}
