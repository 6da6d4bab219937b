// Package opath implements Path, the hierarchical identity every operation
// and store is looked up by, and PathableCollection, the prefix-indexed
// set those stores live in. Two operations compare equal when their paths
// compare equal; a shorter path is a prefix of any path it opens.
package opath

import (
	"fmt"
	"strings"

	"eve.evalgo.org/operation/diagnostics"
)

// Path is an ordered sequence of opaque, hashable elements. The zero value
// is the empty path (a prefix of every path, including itself).
type Path struct {
	elems []any
}

// New returns the empty path.
func New() Path { return Path{} }

// From builds a Path from the given elements, in order.
func From(elems ...any) Path {
	cp := make([]any, len(elems))
	copy(cp, elems)
	return Path{elems: cp}
}

// Len returns the number of elements in the path.
func (p Path) Len() int { return len(p.elems) }

// At returns the element at index i. Indices 0..Len()-1 are the only
// valid uses; anything else is a programmer error and halts the process.
func (p Path) At(i int) any {
	if i < 0 || i >= len(p.elems) {
		diagnostics.Fatalf("opath: index %d out of range for path of length %d", i, len(p.elems))
		return nil
	}
	return p.elems[i]
}

// Append returns a new path formed by this path followed by other's
// elements. Neither receiver nor argument is mutated.
func (p Path) Append(other Path) Path {
	out := make([]any, 0, len(p.elems)+len(other.elems))
	out = append(out, p.elems...)
	out = append(out, other.elems...)
	return Path{elems: out}
}

// With returns a new path formed by appending elems.
func (p Path) With(elems ...any) Path {
	return p.Append(From(elems...))
}

// IsPrefixOf reports whether p's elements are a prefix of other's,
// element-by-element: comparable elements are compared with ==, and
// elements of an uncomparable dynamic type by type and formatted value.
func (p Path) IsPrefixOf(other Path) bool {
	if len(p.elems) > len(other.elems) {
		return false
	}
	for i, e := range p.elems {
		if !elemEqual(e, other.elems[i]) {
			return false
		}
	}
	return true
}

// Equal reports whether two paths have the same elements in the same
// order.
func (p Path) Equal(other Path) bool {
	return len(p.elems) == len(other.elems) && p.IsPrefixOf(other)
}

func elemEqual(a, b any) (eq bool) {
	// Path elements are documented as "opaque hashable values"; most
	// callers use comparable scalars (strings, ints, enum values), where
	// == is exact. A dynamic type that isn't comparable would panic on
	// ==, so fall back to a type-tagged formatted comparison instead of
	// crashing the lookup.
	defer func() {
		if recover() != nil {
			eq = sameType(a, b) && fmt.Sprint(a) == fmt.Sprint(b)
		}
	}()
	return a == b
}

func sameType(a, b any) bool {
	return fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}

// key returns a stable, collision-resistant string key for exact-match
// lookups: type-tagged, separator-joined element representations.
func (p Path) key() string {
	var b strings.Builder
	for i, e := range p.elems {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		fmt.Fprintf(&b, "%T:%v", e, e)
	}
	return b.String()
}

// Key returns a stable exact-match key for the path, usable wherever a
// string map key is needed (e.g. deduplicating work per path).
func (p Path) Key() string { return p.key() }

// String renders the path for diagnostics, e.g. "[user, 42, profile]".
func (p Path) String() string {
	parts := make([]string, len(p.elems))
	for i, e := range p.elems {
		parts[i] = fmt.Sprint(e)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
