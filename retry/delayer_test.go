package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingDelayer_RecordsWithoutSleeping(t *testing.T) {
	d := &RecordingDelayer{}
	start := time.Now()
	require.NoError(t, d.Delay(context.Background(), time.Hour))
	require.NoError(t, d.Delay(context.Background(), 5*time.Minute))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, []time.Duration{time.Hour, 5 * time.Minute}, d.Recorded())
}

func TestRecordingDelayer_HonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &RecordingDelayer{}
	err := d.Delay(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRealDelayer_ReturnsEarlyOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := RealDelayer{}.Delay(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFixedClock_AdvancesOnlyExplicitly(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFixedClock(start)
	assert.Equal(t, start, c.Now())
	c.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), c.Now())
}
