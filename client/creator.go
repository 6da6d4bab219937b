package client

import (
	"eve.evalgo.org/operation/config"
	"eve.evalgo.org/operation/opcontext"
	"eve.evalgo.org/operation/retry"
	"eve.evalgo.org/operation/store"
)

// Creator chooses the baseline Context new stores of each kind are
// built with. Applications substitute their own to change defaults
// client-wide; modifiers applied to an individual descriptor still win.
type Creator interface {
	ContextFor(kind Kind, base opcontext.Context) opcontext.Context
}

// CreatorFunc adapts a function to a Creator.
type CreatorFunc func(kind Kind, base opcontext.Context) opcontext.Context

// ContextFor calls f.
func (f CreatorFunc) ContextFor(kind Kind, base opcontext.Context) opcontext.Context {
	return f(kind, base)
}

// DefaultCreator applies the baseline every store gets unless a
// modifier overrides it: fetches (single and paginated) retry with
// exponential backoff, mutations do not retry. The zero value uses
// config.LoadDefaults.
type DefaultCreator struct {
	Defaults *config.Defaults
}

// NewDefaultCreator returns a DefaultCreator over d.
func NewDefaultCreator(d config.Defaults) DefaultCreator {
	return DefaultCreator{Defaults: &d}
}

// ContextFor installs the per-kind baseline into base.
func (c DefaultCreator) ContextFor(kind Kind, base opcontext.Context) opcontext.Context {
	d := c.Defaults
	if d == nil {
		loaded := config.LoadDefaults()
		d = &loaded
	}
	switch kind {
	case KindMutation:
		base = opcontext.Set(base, store.KeyMaxRetries, d.MutationRetries)
		base = opcontext.Set(base, store.KeyBackoff, retry.Linear(0))
		if d.MutationHistoryCap > 0 {
			base = opcontext.Set(base, store.KeyMutationHistoryCap, d.MutationHistoryCap)
		}
	default:
		base = opcontext.Set(base, store.KeyMaxRetries, d.FetchRetries)
		base = opcontext.Set(base, store.KeyBackoff, retry.Exponential(d.FetchBackoffBase))
	}
	return base
}
