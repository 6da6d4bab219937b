// Package operation defines the descriptors applications hand to a
// client: pure values pairing a Path identity with the async body that
// produces the operation's result. A descriptor does nothing by itself;
// the client turns it into a shared, subscribable store. Configuration
// (retries, backoff, run conditions, eviction) travels in the
// descriptor's Context, installed by the modifier package's composable
// options.
package operation

import (
	"eve.evalgo.org/operation/mutation"
	"eve.evalgo.org/operation/opath"
	"eve.evalgo.org/operation/opcontext"
	"eve.evalgo.org/operation/paginated"
	"eve.evalgo.org/operation/store"
)

// Modifier transforms a descriptor's Context; modifiers compose left to
// right via Apply.
type Modifier func(opcontext.Context) opcontext.Context

// Single describes a single-value operation: one Path, one body, one
// cached result.
type Single[V any] struct {
	Path       opath.Path
	Context    opcontext.Context
	Body       store.Fetcher[V]
	Controller store.Controller[V]
}

// NewSingle builds a Single descriptor for path with body.
func NewSingle[V any](path opath.Path, body store.Fetcher[V]) Single[V] {
	return Single[V]{Path: path, Body: body}
}

// Apply returns a copy of the descriptor with every modifier applied to
// its Context, left to right.
func (o Single[V]) Apply(mods ...Modifier) Single[V] {
	for _, m := range mods {
		o.Context = m(o.Context)
	}
	return o
}

// ControlledBy returns a copy of the descriptor with controller
// installed; the controller receives the store's Controls on creation.
func (o Single[V]) ControlledBy(controller store.Controller[V]) Single[V] {
	o.Controller = controller
	return o
}

// Paginated describes a paginated operation: the body fetches one page
// per call, identified by ID and linked by P params in each direction.
type Paginated[ID comparable, V any, P any] struct {
	Path         opath.Path
	Context      opcontext.Context
	InitialParam *P
	Body         paginated.Fetch[ID, V, P]
}

// NewPaginated builds a Paginated descriptor for path. initial is the
// param fetching the first page (nil when the first page needs none).
func NewPaginated[ID comparable, V any, P any](path opath.Path, initial *P, body paginated.Fetch[ID, V, P]) Paginated[ID, V, P] {
	return Paginated[ID, V, P]{Path: path, InitialParam: initial, Body: body}
}

// Apply returns a copy of the descriptor with every modifier applied to
// its Context, left to right.
func (o Paginated[ID, V, P]) Apply(mods ...Modifier) Paginated[ID, V, P] {
	for _, m := range mods {
		o.Context = m(o.Context)
	}
	return o
}

// Mutation describes a mutate operation invoked with arguments of type
// A.
type Mutation[A comparable, V any] struct {
	Path    opath.Path
	Context opcontext.Context
	Body    mutation.Body[A, V]
}

// NewMutation builds a Mutation descriptor for path with body.
func NewMutation[A comparable, V any](path opath.Path, body mutation.Body[A, V]) Mutation[A, V] {
	return Mutation[A, V]{Path: path, Body: body}
}

// Apply returns a copy of the descriptor with every modifier applied to
// its Context, left to right.
func (o Mutation[A, V]) Apply(mods ...Modifier) Mutation[A, V] {
	for _, m := range mods {
		o.Context = m(o.Context)
	}
	return o
}
