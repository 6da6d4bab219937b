package store

// Controls is handed to a Single store's body (and to any controller
// installed at construction) so it can push interim values without
// completing the run.
type Controls[V any] struct {
	yield      func(V)
	yieldError func(error)
	rerun      func() *SingleTask[V]
	refetch    func() *SingleTask[V]
}

// Yield pushes value as the operation's current value without ending
// the in-flight run.
func (c Controls[V]) Yield(value V) {
	if c.yield != nil {
		c.yield(value)
	}
}

// YieldError pushes err as the operation's current error without ending
// the in-flight run.
func (c Controls[V]) YieldError(err error) {
	if c.yieldError != nil {
		c.yieldError(err)
	}
}

// YieldRerunTask schedules a fresh run and returns its task without
// awaiting it.
func (c Controls[V]) YieldRerunTask() *SingleTask[V] {
	if c.rerun == nil {
		return nil
	}
	return c.rerun()
}

// YieldRefetchTask is an alias for YieldRerunTask kept distinct in the
// public surface so controllers can express intent (rerun vs refetch)
// even though this store treats them identically: both schedule the
// store's one fetch intent.
func (c Controls[V]) YieldRefetchTask() *SingleTask[V] {
	if c.refetch == nil {
		return nil
	}
	return c.refetch()
}

// Controller is given Controls at store construction and may retain
// them to push values asynchronously (e.g. from a WebSocket callback)
// outside of any fetch body.
type Controller[V any] func(Controls[V])
