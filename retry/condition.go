package retry

import (
	"eve.evalgo.org/operation/opcontext"
	"eve.evalgo.org/operation/subscription"
)

// RunCondition decides whether a store should run automatically, and
// lets the store observe changes to that decision. A store re-runs when
// onChange fires while IsSatisfied reports true.
type RunCondition interface {
	IsSatisfied(ctx opcontext.Context) bool
	Subscribe(ctx opcontext.Context, onChange func()) *subscription.Subscription
}

type constantCondition bool

func (c constantCondition) IsSatisfied(opcontext.Context) bool { return bool(c) }

func (constantCondition) Subscribe(opcontext.Context, func()) *subscription.Subscription {
	return subscription.New(nil)
}

// ConditionAlways returns a RunCondition that is constantly v and never
// signals a change.
func ConditionAlways(v bool) RunCondition { return constantCondition(v) }

// FuncCondition adapts plain functions to a RunCondition. OnSubscribe
// may be nil for conditions that never change.
type FuncCondition struct {
	Satisfied   func(ctx opcontext.Context) bool
	OnSubscribe func(ctx opcontext.Context, onChange func()) *subscription.Subscription
}

// IsSatisfied reports c.Satisfied, defaulting to true when unset.
func (c FuncCondition) IsSatisfied(ctx opcontext.Context) bool {
	if c.Satisfied == nil {
		return true
	}
	return c.Satisfied(ctx)
}

// Subscribe registers onChange via c.OnSubscribe, or returns an inert
// subscription when unset.
func (c FuncCondition) Subscribe(ctx opcontext.Context, onChange func()) *subscription.Subscription {
	if c.OnSubscribe == nil {
		return subscription.New(nil)
	}
	return c.OnSubscribe(ctx, onChange)
}

type allConditions []RunCondition

func (a allConditions) IsSatisfied(ctx opcontext.Context) bool {
	for _, c := range a {
		if !c.IsSatisfied(ctx) {
			return false
		}
	}
	return true
}

func (a allConditions) Subscribe(ctx opcontext.Context, onChange func()) *subscription.Subscription {
	subs := make([]*subscription.Subscription, len(a))
	for i, c := range a {
		subs[i] = c.Subscribe(ctx, onChange)
	}
	return subscription.Combine(subs...)
}

// AllConditions is satisfied only when every child is; a change in any
// child signals a change in the whole.
func AllConditions(conditions ...RunCondition) RunCondition { return allConditions(conditions) }

type anyConditions []RunCondition

func (a anyConditions) IsSatisfied(ctx opcontext.Context) bool {
	for _, c := range a {
		if c.IsSatisfied(ctx) {
			return true
		}
	}
	return len(a) == 0
}

func (a anyConditions) Subscribe(ctx opcontext.Context, onChange func()) *subscription.Subscription {
	subs := make([]*subscription.Subscription, len(a))
	for i, c := range a {
		subs[i] = c.Subscribe(ctx, onChange)
	}
	return subscription.Combine(subs...)
}

// AnyConditions is satisfied when at least one child is (or when there
// are no children).
func AnyConditions(conditions ...RunCondition) RunCondition { return anyConditions(conditions) }
