package opath

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollection_PutGetRemove(t *testing.T) {
	c := NewCollection[string]()
	c.Put(From("user", 1), "alice")
	c.Put(From("user", 2), "bob")

	v, ok := c.Get(From("user", 1))
	assert.True(t, ok)
	assert.Equal(t, "alice", v)

	c.Remove(From("user", 1))
	_, ok = c.Get(From("user", 1))
	assert.False(t, ok)

	v, ok = c.Get(From("user", 2))
	assert.True(t, ok)
	assert.Equal(t, "bob", v)
}

func TestCollection_AtMostOnePerExactPath(t *testing.T) {
	c := NewCollection[string]()
	c.Put(From("user", 1), "alice")
	c.Put(From("user", 1), "alice-v2")
	assert.Equal(t, 1, c.Len())
	v, _ := c.Get(From("user", 1))
	assert.Equal(t, "alice-v2", v)
}

func TestCollection_Matching(t *testing.T) {
	c := NewCollection[string]()
	c.Put(From("user", 1, "profile"), "p1")
	c.Put(From("user", 1, "settings"), "s1")
	c.Put(From("user", 2, "profile"), "p2")
	c.Put(From("org", 9), "o9")

	got := c.Matching(From("user", 1))
	sort.Strings(got)
	assert.Equal(t, []string{"p1", "s1"}, got)

	got = c.Matching(From("user"))
	sort.Strings(got)
	assert.Equal(t, []string{"p1", "p2", "s1"}, got)

	assert.Empty(t, c.Matching(From("missing")))
	assert.Len(t, c.Matching(New()), 4)
}

func TestCollection_RemoveAllWithPrefix(t *testing.T) {
	c := NewCollection[string]()
	c.Put(From("user", 1, "profile"), "p1")
	c.Put(From("user", 1, "settings"), "s1")
	c.Put(From("user", 2, "profile"), "p2")

	c.RemoveAllWithPrefix(From("user", 1))

	assert.Empty(t, c.Matching(From("user", 1)))
	got := c.Matching(From("user"))
	assert.Equal(t, []string{"p2"}, got)
	assert.Equal(t, 1, c.Len())
}

func TestCollection_Reconcile(t *testing.T) {
	c := NewCollection[string]()
	c.Put(From("a"), "a1")
	c.Put(From("b"), "b1")

	before := c.All()
	// Simulate a caller-supplied bulk edit: drop "b", add "c".
	after := []string{"a1", "c1"}

	keyFn := func(v string) Path {
		switch v {
		case "a1":
			return From("a")
		case "b1":
			return From("b")
		case "c1":
			return From("c")
		}
		return New()
	}
	c.Reconcile(before, after, keyFn)

	_, ok := c.Get(From("b"))
	assert.False(t, ok)
	v, ok := c.Get(From("c"))
	assert.True(t, ok)
	assert.Equal(t, "c1", v)
	v, ok = c.Get(From("a"))
	assert.True(t, ok)
	assert.Equal(t, "a1", v)
}
