// Package asynchook runs firequery.Hooks on worker goroutines so slow sinks
// never block listeners or fetches. Events are dropped when the queue is full.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := firequery.New(firequery.Options[Todo]{
//	    Namespace: "app:prod:todos",
//	    Hooks:     hooks,
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/firequery"
)

type Hooks struct {
	inner   firequery.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards q against send-after-close
	closed  bool
	dropped atomic.Uint64
}

var _ firequery.Hooks = (*Hooks)(nil)

func New(inner firequery.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports events lost to a full queue or a closed wrapper.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) ListenerStarted(k string)          { h.try(func() { h.inner.ListenerStarted(k) }) }
func (h *Hooks) ListenerStopped(k string, e error) { h.try(func() { h.inner.ListenerStopped(k, e) }) }
func (h *Hooks) FetchFailed(k string, e error)     { h.try(func() { h.inner.FetchFailed(k, e) }) }
func (h *Hooks) EntryEvicted(k string)             { h.try(func() { h.inner.EntryEvicted(k) }) }
func (h *Hooks) SelfHeal(k, r string)              { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) GenBumpError(k string, err error)  { h.try(func() { h.inner.GenBumpError(k, err) }) }
func (h *Hooks) LocalGenWithBulk()                 { h.try(func() { h.inner.LocalGenWithBulk() }) }
func (h *Hooks) BulkRejected(ns string, n int, r string) {
	h.try(func() { h.inner.BulkRejected(ns, n, r) })
}
func (h *Hooks) ProviderSetRejected(k string, b bool) {
	h.try(func() { h.inner.ProviderSetRejected(k, b) })
}
func (h *Hooks) GenSnapshotError(n int, err error) {
	h.try(func() { h.inner.GenSnapshotError(n, err) })
}
func (h *Hooks) InvalidateOutage(k string, be, de error) {
	h.try(func() { h.inner.InvalidateOutage(k, be, de) })
}
