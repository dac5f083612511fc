package firequery

import (
	"context"
	"sync/atomic"
)

// Observer is one consumer of a cache entry.
type Observer[V any] struct {
	c     *Cache[V]
	e     *entry[V]
	key   Key
	once  bool
	fetch FetchFunc[V]
	opts  ObserveOptions[V]

	closed atomic.Bool
}

func (o *Observer[V]) Key() Key { return o.key }

// Result returns the current state of the entry.
func (o *Observer[V]) Result() Result[V] {
	r, _ := o.e.snapshot()
	return r
}

// Wait blocks until a read or listener has produced a result for the entry.
// A value seeded from the persisted store does not count.
func (o *Observer[V]) Wait(ctx context.Context) (Result[V], error) {
	for {
		if o.closed.Load() {
			return Result[V]{}, ErrClosed
		}
		r, changed := o.e.snapshot()
		if r.settled {
			return r, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return r, ctx.Err()
		}
	}
}

// Refetch performs a one-shot read of the entry and waits for it. Observers
// without a fetch function get the current result back unchanged.
func (o *Observer[V]) Refetch(ctx context.Context) (Result[V], error) {
	if o.closed.Load() {
		return Result[V]{}, ErrClosed
	}
	if o.fetch == nil {
		return o.Result(), nil
	}
	if _, err := o.c.fetchWait(ctx, o.e, o.fetch, o.opts.retryPolicy()); err != nil && ctx.Err() != nil {
		return o.Result(), err
	}
	return o.Result(), nil
}

// Close releases the observer. Safe to call more than once.
func (o *Observer[V]) Close() {
	if !o.closed.CompareAndSwap(false, true) {
		return
	}
	o.c.detach(o)
}

func (o *Observer[V]) deliver(r Result[V]) {
	if o.opts.OnChange == nil || o.closed.Load() {
		return
	}
	o.opts.OnChange(r)
}
