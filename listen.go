package firequery

import (
	"context"
	"time"
)

// subscribe attaches the listener for e unless one is already running.
func (c *Cache[V]) subscribe(e *entry[V], fn SubscribeFunc[V]) {
	if !c.track() {
		return
	}
	e.mu.Lock()
	if e.sub != nil || e.subObs == 0 {
		e.mu.Unlock()
		c.wg.Done()
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	s := &subscription{cancel: cancel}
	e.sub = s
	e.mu.Unlock()

	c.hooks.ListenerStarted(e.key)
	c.log.Debug("listener started", Fields{"key": e.key})
	go c.listen(ctx, e, s, fn)
}

func (c *Cache[V]) listen(ctx context.Context, e *entry[V], s *subscription, fn SubscribeFunc[V]) {
	defer c.wg.Done()
	defer s.cancel()

	c.seed(ctx, e)

	em := &emitter[V]{c: c, e: e, s: s, ctx: ctx}
	err := fn(ctx, em)
	if err != nil && ctx.Err() == nil {
		em.Error(err)
	} else {
		err = nil
	}

	// a listener that ended on its own is restarted by the next observer
	e.mu.Lock()
	if e.sub == s {
		e.sub = nil
	}
	e.mu.Unlock()

	c.hooks.ListenerStopped(e.key, err)
	c.log.Debug("listener stopped", Fields{"key": e.key, "err": err})
}

type emitter[V any] struct {
	c   *Cache[V]
	e   *entry[V]
	s   *subscription
	ctx context.Context
}

// current is evaluated under the entry lock, so a value racing teardown is
// either published before the listener was detached or not at all.
func (m *emitter[V]) current() bool {
	return m.e.sub == m.s && m.ctx.Err() == nil
}

func (m *emitter[V]) Next(v V) {
	obs, persist := m.c.observeGen(m.ctx, m.e.key)
	now := time.Now()
	ok := m.e.publish(func(r *Result[V]) bool {
		if !m.current() {
			return false
		}
		return succeeded(v, now)(r)
	})
	if ok && persist {
		m.c.persist(m.ctx, m.e.key, v, now, obs)
	}
}

func (m *emitter[V]) Error(err error) {
	m.e.publish(func(r *Result[V]) bool {
		if !m.current() {
			return false
		}
		return failed[V](err)(r)
	})
}
