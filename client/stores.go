package client

import (
	"fmt"

	operation "eve.evalgo.org/operation"
	"eve.evalgo.org/operation/diagnostics"
	"eve.evalgo.org/operation/mutation"
	"eve.evalgo.org/operation/opath"
	"eve.evalgo.org/operation/opcontext"
	"eve.evalgo.org/operation/paginated"
	"eve.evalgo.org/operation/store"
)

// SingleFor returns the shared Single store for op, creating and caching
// it on first use. If op.Path already identifies a store of a different
// operation type, a diagnostic is emitted and a fresh detached store is
// returned instead; the caller can proceed, but sharing is lost for that
// call.
func SingleFor[V any](c *Client, op operation.Single[V]) *store.Single[V] {
	h := c.resolve(op.Path, fmt.Sprintf("%T", op), func() *handle {
		s := newSingleStore(c, op)
		return &handle{
			path:            op.Path,
			kind:            KindSingle,
			typeTag:         fmt.Sprintf("%T", op),
			impl:            s,
			subscriberCount: s.SubscriberCount,
			stats:           s.Stats,
			contextFn:       s.Context,
			reset:           s.ResetState,
			detach:          s.Detach,
		}
	})
	if h == nil {
		return newSingleStore(c, op)
	}
	return h.impl.(*store.Single[V])
}

func newSingleStore[V any](c *Client, op operation.Single[V]) *store.Single[V] {
	ctx := c.contextFor(KindSingle, op.Context)
	s := store.NewSingle[V](op.Path.String(), ctx, op.Body)
	s.AttachController(op.Controller)
	return s
}

// PaginatedFor returns the shared paginated store for op, creating and
// caching it on first use. Duplicate-path semantics match SingleFor.
func PaginatedFor[ID comparable, V any, P any](c *Client, op operation.Paginated[ID, V, P]) *paginated.Store[ID, V, P] {
	h := c.resolve(op.Path, fmt.Sprintf("%T", op), func() *handle {
		s := newPaginatedStore(c, op)
		return &handle{
			path:            op.Path,
			kind:            KindPaginated,
			typeTag:         fmt.Sprintf("%T", op),
			impl:            s,
			subscriberCount: s.SubscriberCount,
			stats:           s.Stats,
			contextFn:       s.Context,
			reset:           s.ResetState,
			detach:          s.Detach,
		}
	})
	if h == nil {
		return newPaginatedStore(c, op)
	}
	return h.impl.(*paginated.Store[ID, V, P])
}

func newPaginatedStore[ID comparable, V any, P any](c *Client, op operation.Paginated[ID, V, P]) *paginated.Store[ID, V, P] {
	ctx := c.contextFor(KindPaginated, op.Context)
	return paginated.New[ID, V, P](op.Path.String(), ctx, op.InitialParam, op.Body)
}

// MutationFor returns the shared mutation store for op, creating and
// caching it on first use. Duplicate-path semantics match SingleFor.
func MutationFor[A comparable, V any](c *Client, op operation.Mutation[A, V]) *mutation.Store[A, V] {
	h := c.resolve(op.Path, fmt.Sprintf("%T", op), func() *handle {
		s := newMutationStore(c, op)
		return &handle{
			path:            op.Path,
			kind:            KindMutation,
			typeTag:         fmt.Sprintf("%T", op),
			impl:            s,
			subscriberCount: s.SubscriberCount,
			stats:           s.Stats,
			contextFn:       s.Context,
			reset:           s.ResetState,
			detach:          s.Detach,
		}
	})
	if h == nil {
		return newMutationStore(c, op)
	}
	return h.impl.(*mutation.Store[A, V])
}

func newMutationStore[A comparable, V any](c *Client, op operation.Mutation[A, V]) *mutation.Store[A, V] {
	ctx := c.contextFor(KindMutation, op.Context)
	return mutation.New[A, V](op.Path.String(), ctx, op.Body)
}

// contextFor layers the descriptor's own Context over the creator's
// per-kind baseline, so modifiers applied to the descriptor win over
// client-wide defaults.
func (c *Client) contextFor(kind Kind, descriptor opcontext.Context) opcontext.Context {
	base := c.creator.ContextFor(kind, c.defaultCtx)
	return opcontext.Merge(base, descriptor)
}

// resolve returns the cached handle at path (constructing via build on
// a miss, deduplicated so concurrent first callers share one store), or
// nil when path is already taken by a different operation type.
func (c *Client) resolve(path opath.Path, tag string, build func() *handle) *handle {
	c.mu.Lock()
	if existing, ok := c.stores.Get(path); ok {
		c.mu.Unlock()
		return c.checkTag(existing.(*handle), path, tag)
	}
	c.mu.Unlock()

	v, _, _ := c.group.Do(path.Key(), func() (interface{}, error) {
		c.mu.Lock()
		if existing, ok := c.stores.Get(path); ok {
			c.mu.Unlock()
			return existing.(*handle), nil
		}
		c.mu.Unlock()
		h := build()
		c.mu.Lock()
		c.stores.Put(path, h)
		c.mu.Unlock()
		return h, nil
	})
	return c.checkTag(v.(*handle), path, tag)
}

func (c *Client) checkTag(h *handle, path opath.Path, tag string) *handle {
	if h.typeTag != tag {
		diagnostics.Warnf("client: path %s already used for %s, requested %s; returning a detached store", path, h.typeTag, tag)
		return nil
	}
	return h
}

// TypedStoresMatching returns the concrete stores of type S cached
// under prefix, dropping every store of another type.
func TypedStoresMatching[S any](c *Client, prefix opath.Path) []S {
	var out []S
	for _, s := range c.StoresMatching(prefix) {
		if h, ok := s.(*handle); ok {
			if impl, ok := h.impl.(S); ok {
				out = append(out, impl)
			}
		}
	}
	return out
}
