// Package client implements OperationClient: the process-wide registry
// of stores. A client hands out one shared store per path, evicts idle
// stores under memory pressure, and seeds every new store with a default
// Context carrying the client back-reference and the per-kind baseline
// configuration its Creator chooses.
package client

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"eve.evalgo.org/operation/events"
	"eve.evalgo.org/operation/opath"
	"eve.evalgo.org/operation/opcontext"
	"eve.evalgo.org/operation/state"
	"eve.evalgo.org/operation/store"
	"eve.evalgo.org/operation/subscription"
)

// Kind discriminates the three operation kinds a store can host.
type Kind string

const (
	KindSingle    Kind = "single"
	KindPaginated Kind = "paginated"
	KindMutation  Kind = "mutation"
)

// Store is the opaque view of any cached store, independent of its
// value types. Typed access goes through SingleFor/PaginatedFor/
// MutationFor, which return the concrete store.
type Store interface {
	Path() opath.Path
	Kind() Kind
	SubscriberCount() int
	Stats() state.Stats
	Context() opcontext.Context
	Reset()
	Detach()
}

// Snapshot is a JSON-friendly view of one cached store for
// introspection surfaces.
type Snapshot struct {
	Path        string      `json:"path"`
	Kind        Kind        `json:"kind"`
	Subscribers int         `json:"subscribers"`
	State       state.Stats `json:"state"`
}

// SnapshotOf renders s for introspection.
func SnapshotOf(s Store) Snapshot {
	return Snapshot{
		Path:        s.Path().String(),
		Kind:        s.Kind(),
		Subscribers: s.SubscriberCount(),
		State:       s.Stats(),
	}
}

// handle adapts one concrete store to the opaque Store interface and
// carries the type tag duplicate-path detection compares.
type handle struct {
	path    opath.Path
	kind    Kind
	typeTag string
	impl    any

	subscriberCount func() int
	stats           func() state.Stats
	contextFn       func() opcontext.Context
	reset           func()
	detach          func()
}

func (h *handle) Path() opath.Path           { return h.path }
func (h *handle) Kind() Kind                 { return h.kind }
func (h *handle) SubscriberCount() int       { return h.subscriberCount() }
func (h *handle) Stats() state.Stats         { return h.stats() }
func (h *handle) Context() opcontext.Context { return h.contextFn() }
func (h *handle) Reset()                     { h.reset() }
func (h *handle) Detach()                    { h.detach() }

// KeyClient carries the owning client in every store's Context, so an
// operation body or controller can reach back to the registry (e.g. to
// reset a sibling store). Go's garbage collector reclaims reference
// cycles, so unlike runtimes with reference counting this back-pointer
// needs no weak wrapper.
var KeyClient = opcontext.NewKey[*Client]("client", nil)

// Options configures a new Client. The zero value is usable: an empty
// default Context, the DefaultCreator, and no pressure source.
type Options struct {
	// Context seeds every created store's Context; the Creator then
	// applies its per-kind defaults on top, so a key both set takes the
	// Creator's value.
	Context opcontext.Context
	// Creator chooses the baseline configuration per operation kind.
	Creator Creator
	// Pressure, when set, triggers eviction of idle stores on warning
	// and critical signals.
	Pressure events.MemoryPressureSource
}

// Client is the process-wide registry of stores.
type Client struct {
	mu     sync.Mutex
	stores *opath.Collection[Store]

	defaultCtx  opcontext.Context
	creator     Creator
	group       singleflight.Group
	pressureSub *subscription.Subscription
}

// New constructs a Client.
func New(opts Options) *Client {
	c := &Client{
		stores:  opath.NewCollection[Store](),
		creator: opts.Creator,
	}
	if c.creator == nil {
		c.creator = DefaultCreator{}
	}
	c.defaultCtx = opcontext.Set(opts.Context, KeyClient, c)
	if opts.Pressure != nil {
		c.pressureSub = opts.Pressure.Subscribe(c.onPressure)
	}
	return c
}

// Close detaches the client from its pressure source. Cached stores are
// left in place.
func (c *Client) Close() {
	if c.pressureSub != nil {
		c.pressureSub.Cancel()
	}
}

// onPressure evicts every store that has zero subscribers and lists
// level in its evictable pressure set. In-flight tasks survive as long
// as external holders retain them.
func (c *Client) onPressure(level events.PressureLevel) {
	c.mu.Lock()
	var evicted []Store
	for _, s := range c.stores.All() {
		if s.SubscriberCount() > 0 {
			continue
		}
		for _, l := range opcontext.Get(s.Context(), store.KeyEvictablePressure) {
			if l == level {
				c.stores.Remove(s.Path())
				evicted = append(evicted, s)
				break
			}
		}
	}
	c.mu.Unlock()
	for _, s := range evicted {
		s.Detach()
	}
}

// StoresMatching returns every cached store whose path has prefix as a
// prefix.
func (c *Client) StoresMatching(prefix opath.Path) []Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stores.Matching(prefix)
}

// WithStoresMatching hands fn a snapshot collection of the stores under
// prefix and reconciles the edits back afterwards: stores fn added are
// inserted, stores fn removed are dropped from the cache.
func (c *Client) WithStoresMatching(prefix opath.Path, fn func(*opath.Collection[Store])) {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := c.stores.Matching(prefix)
	scratch := opath.NewCollection[Store]()
	for _, s := range before {
		scratch.Put(s.Path(), s)
	}
	fn(scratch)
	c.stores.Reconcile(before, scratch.All(), Store.Path)
}

// ClearStores drops every cached store under prefix.
func (c *Client) ClearStores(prefix opath.Path) {
	c.mu.Lock()
	removed := c.stores.Matching(prefix)
	c.stores.RemoveAllWithPrefix(prefix)
	c.mu.Unlock()
	for _, s := range removed {
		s.Detach()
	}
}

// ClearStore drops the cached store at exactly path, if any.
func (c *Client) ClearStore(path opath.Path) {
	c.mu.Lock()
	s, ok := c.stores.Get(path)
	if ok {
		c.stores.Remove(path)
	}
	c.mu.Unlock()
	if ok {
		s.Detach()
	}
}

// Snapshots renders every cached store under prefix for introspection.
func (c *Client) Snapshots(prefix opath.Path) []Snapshot {
	stores := c.StoresMatching(prefix)
	out := make([]Snapshot, len(stores))
	for i, s := range stores {
		out[i] = SnapshotOf(s)
	}
	return out
}

// StoreCount returns the number of cached stores.
func (c *Client) StoreCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stores.Len()
}
