package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	operation "eve.evalgo.org/operation"
	"eve.evalgo.org/operation/diagnostics"
	"eve.evalgo.org/operation/events"
	"eve.evalgo.org/operation/opath"
	"eve.evalgo.org/operation/opcontext"
	"eve.evalgo.org/operation/store"
)

func singleOp(path opath.Path, value int) operation.Single[int] {
	return operation.NewSingle[int](path, func(ctx context.Context, c store.Controls[int]) (int, error) {
		return value, nil
	})
}

func TestClient_SingleForSharesOneStorePerPath(t *testing.T) {
	c := New(Options{})
	op := singleOp(opath.From("user", 1), 42)

	a := SingleFor(c, op)
	b := SingleFor(c, op)
	assert.Same(t, a, b)
	assert.Equal(t, 1, c.StoreCount())

	v, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestClient_ConcurrentFirstCallersShareOneStore(t *testing.T) {
	c := New(Options{})
	op := singleOp(opath.From("race"), 1)

	var wg sync.WaitGroup
	stores := make([]*store.Single[int], 8)
	for i := 0; i < len(stores); i++ {
		wg.Add(1)
		n := i
		go func() {
			defer wg.Done()
			stores[n] = SingleFor(c, op)
		}()
	}
	wg.Wait()

	for _, s := range stores[1:] {
		assert.Same(t, stores[0], s)
	}
	assert.Equal(t, 1, c.StoreCount())
}

func TestClient_DuplicatePathTypeMismatchReturnsDetachedStore(t *testing.T) {
	rec := &diagnostics.RecordingReporter{}
	diagnostics.SetReporter(rec)
	defer diagnostics.SetReporter(diagnostics.NewLogrusReporter())

	c := New(Options{})
	path := opath.From("conflict")
	_ = SingleFor(c, singleOp(path, 1))

	other := operation.NewSingle[string](path, func(ctx context.Context, cc store.Controls[string]) (string, error) {
		return "x", nil
	})
	detached := SingleFor(c, other)
	require.NotNil(t, detached)

	v, err := detached.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	assert.Equal(t, 1, c.StoreCount(), "detached store must not be cached")
	require.NotEmpty(t, rec.Warns)
	assert.Contains(t, rec.Warns[0], "conflict")
}

func TestClient_MemoryPressureEvictsIdleStoresOnly(t *testing.T) {
	pressure := events.NewFakePressureSource()
	c := New(Options{Pressure: pressure})

	idle := SingleFor(c, singleOp(opath.From("idle"), 1))
	_ = idle
	watched := SingleFor(c, singleOp(opath.From("watched"), 2))
	sub := watched.Subscribe(store.EventHandler[int]{})
	defer sub.Cancel()

	require.Equal(t, 2, c.StoreCount())
	pressure.Emit(events.PressureWarning)

	assert.Equal(t, 1, c.StoreCount())
	remaining := c.StoresMatching(opath.New())
	require.Len(t, remaining, 1)
	assert.True(t, opath.From("watched").Equal(remaining[0].Path()))
}

func TestClient_NormalPressureDoesNotEvict(t *testing.T) {
	pressure := events.NewFakePressureSource()
	c := New(Options{Pressure: pressure})
	_ = SingleFor(c, singleOp(opath.From("idle"), 1))

	pressure.Emit(events.PressureNormal)
	assert.Equal(t, 1, c.StoreCount())
}

func TestClient_ClearStoreYieldsFreshStore(t *testing.T) {
	c := New(Options{})
	path := opath.From("refreshable")
	first := SingleFor(c, singleOp(path, 1))
	_, err := first.Run(context.Background())
	require.NoError(t, err)

	c.ClearStore(path)
	second := SingleFor(c, singleOp(path, 1))
	assert.NotSame(t, first, second)
	assert.Nil(t, second.Current())
}

func TestClient_StoresMatchingPrefix(t *testing.T) {
	c := New(Options{})
	_ = SingleFor(c, singleOp(opath.From("user", 1, "profile"), 1))
	_ = SingleFor(c, singleOp(opath.From("user", 2, "profile"), 2))
	_ = SingleFor(c, singleOp(opath.From("feed"), 3))

	assert.Len(t, c.StoresMatching(opath.From("user")), 2)
	assert.Len(t, c.StoresMatching(opath.From("feed")), 1)
	assert.Len(t, c.StoresMatching(opath.New()), 3)

	typed := TypedStoresMatching[*store.Single[int]](c, opath.From("user"))
	assert.Len(t, typed, 2)
}

func TestClient_ClearStoresMatchingPrefix(t *testing.T) {
	c := New(Options{})
	_ = SingleFor(c, singleOp(opath.From("user", 1), 1))
	_ = SingleFor(c, singleOp(opath.From("user", 2), 2))
	_ = SingleFor(c, singleOp(opath.From("feed"), 3))

	c.ClearStores(opath.From("user"))
	assert.Equal(t, 1, c.StoreCount())
}

func TestClient_WithStoresMatchingReconcilesRemovals(t *testing.T) {
	c := New(Options{})
	_ = SingleFor(c, singleOp(opath.From("bulk", 1), 1))
	_ = SingleFor(c, singleOp(opath.From("bulk", 2), 2))

	c.WithStoresMatching(opath.From("bulk"), func(col *opath.Collection[Store]) {
		col.Remove(opath.From("bulk", 1))
	})

	assert.Equal(t, 1, c.StoreCount())
	assert.Len(t, c.StoresMatching(opath.From("bulk", 2)), 1)
}

func TestClient_ContextCarriesClientBackReference(t *testing.T) {
	c := New(Options{})
	s := SingleFor(c, singleOp(opath.From("backref"), 1))
	assert.Same(t, c, opcontext.Get(s.Context(), KeyClient))
}

func TestClient_DefaultCreatorAppliesRetryBaseline(t *testing.T) {
	c := New(Options{})
	s := SingleFor(c, singleOp(opath.From("defaults"), 1))
	assert.Equal(t, 3, opcontext.Get(s.Context(), store.KeyMaxRetries))
}

func TestClient_SnapshotsRenderState(t *testing.T) {
	c := New(Options{})
	s := SingleFor(c, singleOp(opath.From("snap"), 9))
	_, err := s.Run(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snaps := c.Snapshots(opath.New())
		return len(snaps) == 1 && snaps[0].State.ValueUpdateCount == 1
	}, time.Second, time.Millisecond)

	snap := c.Snapshots(opath.New())[0]
	assert.Equal(t, KindSingle, snap.Kind)
	assert.Equal(t, "[snap]", snap.Path)
}
