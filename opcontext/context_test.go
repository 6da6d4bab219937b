package opcontext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_DefaultWhenUnset(t *testing.T) {
	k := NewKey("maxRetries", 3)
	c := New()
	assert.Equal(t, 3, Get(c, k))
	assert.False(t, Has(c, k))
}

func TestContext_SetIsCopyOnWrite(t *testing.T) {
	k := NewKey("maxRetries", 3)
	base := New()
	withFive := Set(base, k, 5)

	assert.Equal(t, 3, Get(base, k), "base must be unaffected by Set")
	assert.Equal(t, 5, Get(withFive, k))
	assert.True(t, Has(withFive, k))
}

func TestContext_DistinctKeysSameType(t *testing.T) {
	a := NewKey("a", 0)
	b := NewKey("b", 0)
	c := Set(New(), a, 1)
	assert.Equal(t, 1, Get(c, a))
	assert.Equal(t, 0, Get(c, b))
}

func TestContext_String(t *testing.T) {
	k1 := NewKey("alpha", 0)
	k2 := NewKey("beta", "")
	c := Set(Set(New(), k1, 7), k2, "x")
	assert.Equal(t, "{alpha = 7, beta = x}", c.String())
	assert.Equal(t, "{}", New().String())
}
