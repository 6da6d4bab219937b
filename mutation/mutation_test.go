package mutation

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
	"eve.evalgo.org/operation/operr"
	"eve.evalgo.org/operation/state"
	"eve.evalgo.org/operation/store"
)

func TestStore_MutateRecordsHistoryAndResult(t *testing.T) {
	s := New[string, string]("test/mutate", opcontext.New(), func(ctx context.Context, args string) (string, error) {
		return "saved:" + args, nil
	})

	v, err := s.Mutate(context.Background(), "draft")
	require.NoError(t, err)
	assert.Equal(t, "saved:draft", v)

	history := s.History()
	require.Len(t, history, 1)
	assert.Equal(t, "draft", history[0].Args)
	require.NotNil(t, history[0].Result)
	assert.Equal(t, "saved:draft", history[0].Result.Value)
	require.NotNil(t, history[0].EndedAt)
	assert.Equal(t, state.StatusSuccess, s.Status())
}

func TestStore_RetryLatestReplaysLastArguments(t *testing.T) {
	var invocations []string
	var mu sync.Mutex
	s := New[string, int]("test/retry-latest", opcontext.New(), func(ctx context.Context, args string) (int, error) {
		mu.Lock()
		invocations = append(invocations, args)
		mu.Unlock()
		return len(args), nil
	})

	_, err := s.Mutate(context.Background(), "X")
	require.NoError(t, err)
	v, err := s.RetryLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"X", "X"}, invocations)
	assert.Equal(t, []string{"X", "X"}, s.Arguments())
}

func TestStore_RetryLatestWithoutMutateFails(t *testing.T) {
	s := New[string, int]("test/no-args", opcontext.New(), func(ctx context.Context, args string) (int, error) {
		return 0, nil
	})

	_, err := s.RetryLatest(context.Background())
	assert.ErrorIs(t, err, operr.NoPreviousArguments)
}

func TestStore_ConcurrentMutateWithEqualArgsJoins(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	s := New[string, int]("test/dedup", opcontext.New(), func(ctx context.Context, args string) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.Mutate(context.Background(), "same")
			assert.NoError(t, err)
			assert.Equal(t, 7, v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	assert.Len(t, s.History(), 1)
}

func TestStore_DifferentArgsRunInParallel(t *testing.T) {
	var inFlight atomic.Int32
	var peak atomic.Int32
	release := make(chan struct{})
	s := New[int, int]("test/parallel", opcontext.New(), func(ctx context.Context, args int) (int, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return args, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		n := i
		go func() {
			defer wg.Done()
			_, _ = s.Mutate(context.Background(), n)
		}()
	}
	require.Eventually(t, func() bool { return peak.Load() == 2 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
}

func TestStore_MutateRetriesOnFailure(t *testing.T) {
	ctx := opcontext.Set(opcontext.New(), store.KeyMaxRetries, 2)
	var attempts atomic.Int32
	s := New[string, string]("test/retry", ctx, func(c context.Context, args string) (string, error) {
		if attempts.Add(1) < 3 {
			return "", errors.New("transient")
		}
		return "done", nil
	})

	v, err := s.Mutate(context.Background(), "payload")
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	assert.EqualValues(t, 3, attempts.Load())
	// One logical mutation: retries do not add history entries.
	assert.Len(t, s.History(), 1)
}

func TestStore_HistoryCapKeepsMostRecent(t *testing.T) {
	ctx := opcontext.Set(opcontext.New(), store.KeyMutationHistoryCap, 2)
	s := New[int, int]("test/cap", ctx, func(c context.Context, args int) (int, error) {
		return args, nil
	})

	for i := 1; i <= 4; i++ {
		_, err := s.Mutate(context.Background(), i)
		require.NoError(t, err)
	}

	assert.Equal(t, []int{3, 4}, s.Arguments())
}

func TestStore_EventsBracketEachMutation(t *testing.T) {
	s := New[string, string]("test/events", opcontext.New(), func(ctx context.Context, args string) (string, error) {
		return args + "!", nil
	})

	var mu sync.Mutex
	var events []string
	s.Subscribe(EventHandler[string, string]{
		OnMutatingStarted: func(args string) {
			mu.Lock()
			events = append(events, "started:"+args)
			mu.Unlock()
		},
		OnMutationResultReceived: func(args string, r state.Result[string]) {
			mu.Lock()
			events = append(events, "result:"+r.Value)
			mu.Unlock()
		},
		OnMutatingEnded: func(args string) {
			mu.Lock()
			events = append(events, "ended:"+args)
			mu.Unlock()
		},
	})

	_, err := s.Mutate(context.Background(), "go")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"started:go", "result:go!", "ended:go"}, events)
}

func TestStore_FailedMutateKeepsLastSuccessfulValue(t *testing.T) {
	rejected := errors.New("rejected")
	s := New[string, string]("test/keep-success", opcontext.New(), func(ctx context.Context, args string) (string, error) {
		if args == "bad" {
			return "", rejected
		}
		return "saved:" + args, nil
	})

	v, err := s.Mutate(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "saved:good", v)

	_, err = s.Mutate(context.Background(), "bad")
	assert.ErrorIs(t, err, rejected)

	require.NotNil(t, s.Latest())
	assert.Equal(t, "saved:good", s.Latest().Value, "a failed mutation must not displace the last good value")
	assert.Equal(t, state.StatusFailure, s.Status())

	history := s.History()
	require.Len(t, history, 2)
	require.NotNil(t, history[1].Result)
	assert.ErrorIs(t, history[1].Result.Err, rejected)
}

func TestStore_ResetStateClearsHistory(t *testing.T) {
	s := New[int, int]("test/reset", opcontext.New(), func(ctx context.Context, args int) (int, error) {
		return args, nil
	})

	_, err := s.Mutate(context.Background(), 1)
	require.NoError(t, err)
	s.ResetState()

	assert.Empty(t, s.History())
	assert.Nil(t, s.Latest())
	assert.Equal(t, state.StatusIdle, s.Status())
	_, err = s.RetryLatest(context.Background())
	assert.ErrorIs(t, err, operr.NoPreviousArguments)
}
