package firequery

import (
	"context"
	"sync"
	"time"
)

type subscription struct {
	cancel context.CancelFunc
}

// entry is the in-memory state of one key.
//
// Lock order: Cache.mu before entry.mu; entry.notify before entry.mu.
type entry[V any] struct {
	key string
	id  uint64 // unique per cache; a re-created key gets a new one

	notify sync.Mutex // serializes delivery so observers see publish order

	mu        sync.Mutex
	res       Result[V]
	changed   chan struct{} // closed on every publish
	observers map[*Observer[V]]struct{}
	subObs    int          // observers in subscribe mode
	onceObs   int          // observers in one-shot mode
	fetch     FetchFunc[V] // latest one-shot fetch, reused by Invalidate
	retry     retryPolicy
	sub       *subscription
	gc        *time.Timer
	seeded    bool
	epoch     uint64 // bumped by Invalidate
}

func newEntry[V any](key string, id uint64) *entry[V] {
	return &entry[V]{
		key:       key,
		id:        id,
		changed:   make(chan struct{}),
		observers: make(map[*Observer[V]]struct{}),
	}
}

// publish applies update under the entry lock and, if it reports a change,
// delivers the new result to every observer before the next publish starts.
func (e *entry[V]) publish(update func(r *Result[V]) bool) bool {
	e.notify.Lock()
	defer e.notify.Unlock()

	e.mu.Lock()
	if !update(&e.res) {
		e.mu.Unlock()
		return false
	}
	res := e.res
	close(e.changed)
	e.changed = make(chan struct{})
	obs := make([]*Observer[V], 0, len(e.observers))
	for o := range e.observers {
		obs = append(obs, o)
	}
	e.mu.Unlock()

	for _, o := range obs {
		o.deliver(res)
	}
	return true
}

// inEpoch guards update so it only applies while e is still in epoch.
// The returned func runs under e.mu, like every update passed to publish.
func (e *entry[V]) inEpoch(epoch uint64, update func(r *Result[V]) bool) func(r *Result[V]) bool {
	return func(r *Result[V]) bool {
		if e.epoch != epoch {
			return false
		}
		return update(r)
	}
}

func (e *entry[V]) snapshot() (Result[V], <-chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.res, e.changed
}

func (e *entry[V]) fresh(staleTime time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.res
	if r.Status != StatusSuccess {
		return false
	}
	if e.sub != nil {
		return true
	}
	if r.Stale || r.FromStore || staleTime <= 0 {
		return false
	}
	return time.Since(r.UpdatedAt) < staleTime
}

func succeeded[V any](v V, at time.Time) func(r *Result[V]) bool {
	return func(r *Result[V]) bool {
		*r = Result[V]{Data: v, Status: StatusSuccess, UpdatedAt: at, settled: true}
		return true
	}
}

func failed[V any](err error) func(r *Result[V]) bool {
	return func(r *Result[V]) bool {
		r.Err = err
		r.Status = StatusError
		r.settled = true
		return true
	}
}

// restored seeds a persisted value, but never over real data.
func restored[V any](st stored[V]) func(r *Result[V]) bool {
	return func(r *Result[V]) bool {
		if r.Status != StatusPending {
			return false
		}
		*r = Result[V]{Data: st.Value, Status: StatusSuccess, UpdatedAt: st.UpdatedAt, FromStore: true}
		return true
	}
}

// servedFromStore publishes a persisted snapshot that a read chose to serve.
// Unlike restored it settles the entry and may replace earlier data.
func servedFromStore[V any](v V, at time.Time) func(r *Result[V]) bool {
	return func(r *Result[V]) bool {
		*r = Result[V]{Data: v, Status: StatusSuccess, UpdatedAt: at, FromStore: true, settled: true}
		return true
	}
}
