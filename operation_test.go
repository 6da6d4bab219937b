package operation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"eve.evalgo.org/operation/opath"
	"eve.evalgo.org/operation/opcontext"
	"eve.evalgo.org/operation/store"
)

func TestApplyComposesLeftToRightWithoutMutatingTheOriginal(t *testing.T) {
	base := NewSingle[int](opath.From("demo"), func(ctx context.Context, c store.Controls[int]) (int, error) {
		return 1, nil
	})

	first := func(ctx opcontext.Context) opcontext.Context {
		return opcontext.Set(ctx, store.KeyMaxRetries, 1)
	}
	second := func(ctx opcontext.Context) opcontext.Context {
		return opcontext.Set(ctx, store.KeyMaxRetries, 2)
	}

	modified := base.Apply(first, second)
	assert.Equal(t, 2, opcontext.Get(modified.Context, store.KeyMaxRetries), "later modifiers win")
	assert.Equal(t, 0, opcontext.Get(base.Context, store.KeyMaxRetries), "descriptors are values; Apply returns a copy")
	assert.True(t, base.Path.Equal(modified.Path))
}

func TestControlledByInstallsController(t *testing.T) {
	op := NewSingle[string](opath.From("controlled"), func(ctx context.Context, c store.Controls[string]) (string, error) {
		return "", nil
	})
	assert.Nil(t, op.Controller)

	withController := op.ControlledBy(func(store.Controls[string]) {})
	assert.NotNil(t, withController.Controller)
	assert.Nil(t, op.Controller)
}
