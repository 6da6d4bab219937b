package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscription_CancelIsIdempotent(t *testing.T) {
	calls := 0
	s := New(func() { calls++ })

	assert.False(t, s.IsCancelled())
	s.Cancel()
	s.Cancel()
	s.Cancel()

	assert.True(t, s.IsCancelled())
	assert.Equal(t, 1, calls)
}

func TestSubscription_NilOnCancel(t *testing.T) {
	s := New(nil)
	assert.NotPanics(t, func() { s.Cancel() })
}

func TestCombine_CancelsAllChildrenInOrder(t *testing.T) {
	var order []int
	a := New(func() { order = append(order, 1) })
	b := New(func() { order = append(order, 2) })
	c := New(func() { order = append(order, 3) })

	combined := Combine(a, b, c)
	combined.Cancel()

	assert.Equal(t, []int{1, 2, 3}, order)
	assert.True(t, a.IsCancelled())
	assert.True(t, b.IsCancelled())
	assert.True(t, c.IsCancelled())
}
