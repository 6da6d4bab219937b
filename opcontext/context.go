// Package opcontext implements Context: a heterogeneous, copy-on-write
// mapping from a key's type identity to that key's associated value,
// snapshotted into every store and task. Reading an unset key returns the
// key's compile-time default; writing never fails and never mutates a
// Context another goroutine might be holding.
package opcontext

import (
	"fmt"
	"sort"
	"strings"
)

// keyInfo is the unique identity behind a Key[T]: two Key[T] values
// declared separately (even with the same name and type) are distinct
// keys, the same way two package-level context.Context keys are distinct
// even if both wrap the same underlying type.
type keyInfo struct {
	name string
}

// Key identifies a Context slot holding a value of type T, together with
// the default returned when the slot is unset.
type Key[T any] struct {
	info *keyInfo
	def  T
}

// NewKey declares a new Context key. name is used only for diagnostics
// (Context.String()); it does not affect identity or equality.
func NewKey[T any](name string, def T) Key[T] {
	return Key[T]{info: &keyInfo{name: name}, def: def}
}

// Name returns the key's diagnostic name.
func (k Key[T]) Name() string { return k.info.name }

// Context is an immutable, copy-on-write snapshot of key/value pairs.
// The zero value is a valid empty Context.
type Context struct {
	values map[*keyInfo]any
}

// New returns an empty Context.
func New() Context { return Context{} }

// Get reads the value stored at k, or k's default if unset.
func Get[T any](c Context, k Key[T]) T {
	if c.values == nil {
		return k.def
	}
	if v, ok := c.values[k.info]; ok {
		return v.(T)
	}
	return k.def
}

// Set returns a new Context with k bound to v; c is left untouched, so
// any other holder of c (another store, another task) is unaffected.
func Set[T any](c Context, k Key[T], v T) Context {
	next := make(map[*keyInfo]any, len(c.values)+1)
	for kk, vv := range c.values {
		next[kk] = vv
	}
	next[k.info] = v
	return Context{values: next}
}

// Merge returns a Context holding base's pairs with overlay's set keys
// written over them. Neither input is mutated.
func Merge(base, overlay Context) Context {
	if len(overlay.values) == 0 {
		return base
	}
	if len(base.values) == 0 {
		return overlay
	}
	next := make(map[*keyInfo]any, len(base.values)+len(overlay.values))
	for k, v := range base.values {
		next[k] = v
	}
	for k, v := range overlay.values {
		next[k] = v
	}
	return Context{values: next}
}

// Has reports whether k has been explicitly set (as opposed to falling
// back to its default).
func Has[T any](c Context, k Key[T]) bool {
	if c.values == nil {
		return false
	}
	_, ok := c.values[k.info]
	return ok
}

// String renders every explicitly-set key as "name = value", sorted by
// name, for diagnostics.
func (c Context) String() string {
	if len(c.values) == 0 {
		return "{}"
	}
	pairs := make([]string, 0, len(c.values))
	for k, v := range c.values {
		pairs = append(pairs, fmt.Sprintf("%s = %v", k.name, v))
	}
	sort.Strings(pairs)
	return "{" + strings.Join(pairs, ", ") + "}"
}
