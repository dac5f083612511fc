package firequery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	gen "github.com/unkn0wn-root/firequery/genstore"
	"github.com/unkn0wn-root/firequery/internal/util"
)

// Cache holds keyed results of one value type.
type Cache[V any] struct {
	ns    string
	log   Logger
	hooks Hooks
	store *store[V] // nil without persistence

	gcTime       time.Duration
	fetchTimeout time.Duration

	// base context of every listener and fetch; cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[string]*entry[V]
	lastID  uint64
	closed  bool

	flight singleflight.Group
}

func newCache[V any](opts Options[V]) (*Cache[V], error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("firequery: namespace is required")
	}
	persist := opts.Provider != nil && !opts.DisablePersistence
	if persist && opts.Codec == nil {
		return nil, fmt.Errorf("firequery: codec is required with a provider")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache[V]{
		ns:      opts.Namespace,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry[V]),
	}
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.gcTime = coalesce(opts.GCTime, defaultGCTime)
	c.fetchTimeout = coalesce(opts.FetchTimeout, defaultFetchTimeout)

	if persist {
		s := &store[V]{
			ns:       opts.Namespace,
			provider: opts.Provider,
			codec:    opts.Codec,
			log:      c.log,
			hooks:    c.hooks,
			ttl:      coalesce(opts.PersistTTL, defaultPersistTTL),
			bulkTTL:  coalesce(opts.BulkTTL, defaultBulkTTL),
			cost:     opts.ComputeSetCost,
			bulk:     !opts.DisableBulk,
		}
		if s.cost == nil {
			s.cost = func(_ string, raw []byte, _ bool, _ int) int64 { return int64(len(raw)) }
		}
		if opts.GenStore != nil {
			s.gen = opts.GenStore
		} else {
			s.gen = gen.NewLocal(
				coalesce(opts.CleanupInterval, defaultSweep),
				coalesce(opts.GenRetention, defaultGenRetention),
			)
			if s.bulk {
				c.hooks.LocalGenWithBulk()
			}
		}
		c.store = s
	}
	return c, nil
}

// Observe registers an observer for key. The first subscribe-mode observer
// attaches the listener; a one-shot observer triggers one read unless the
// entry is fresh. Close the returned observer to release it.
func (c *Cache[V]) Observe(key Key, req Request[V], opts ObserveOptions[V]) (*Observer[V], error) {
	if req.OnlyOnce && req.Fetch == nil {
		return nil, ErrNoFetcher
	}
	if !req.OnlyOnce && req.Subscribe == nil {
		return nil, ErrNoSubscriber
	}
	k, err := util.CanonicalKey(key)
	if err != nil {
		return nil, fmt.Errorf("firequery: %w", err)
	}

	o := &Observer[V]{
		c:     c,
		key:   key,
		once:  req.OnlyOnce,
		fetch: req.Fetch,
		opts:  opts,
	}
	e, err := c.attach(k, o)
	if err != nil {
		return nil, err
	}
	o.e = e

	if opts.Disabled {
		return o, nil
	}
	if req.OnlyOnce {
		if !e.fresh(opts.StaleTime) {
			c.fetchAsync(e, req.Fetch, opts.retryPolicy())
		}
		return o, nil
	}
	c.subscribe(e, req.Subscribe)
	return o, nil
}

// Fetch reads key through the cache and waits for the result. Concurrent
// fetches of the same key share one read. If ctx ends first the read keeps
// running and its result still lands in the cache.
func (c *Cache[V]) Fetch(ctx context.Context, key Key, fn FetchFunc[V]) (V, error) {
	var zero V
	if fn == nil {
		return zero, ErrNoFetcher
	}
	k, err := util.CanonicalKey(key)
	if err != nil {
		return zero, fmt.Errorf("firequery: %w", err)
	}
	e, err := c.entry(k)
	if err != nil {
		return zero, err
	}
	return c.fetchWait(ctx, e, fn, retryPolicy{})
}

// Get returns the in-memory result for key, if the entry exists.
func (c *Cache[V]) Get(key Key) (Result[V], bool) {
	c.mu.Lock()
	e, ok := c.entries[key.String()]
	c.mu.Unlock()
	if !ok {
		return Result[V]{}, false
	}
	r, _ := e.snapshot()
	return r, true
}

// StoredFetch returns a FetchFunc that serves the persisted snapshot of key.
// Its value is published with FromStore set and its original UpdatedAt, and
// is not written back to the provider. A miss fails with ErrNotStored.
func (c *Cache[V]) StoredFetch(key Key) FetchFunc[V] {
	return func(ctx context.Context) (V, error) {
		var zero V
		if c.store == nil {
			return zero, ErrNotStored
		}
		k, err := util.CanonicalKey(key)
		if err != nil {
			return zero, fmt.Errorf("firequery: %w", err)
		}
		st, ok, err := c.store.load(ctx, k)
		if err != nil {
			return zero, err
		}
		if !ok {
			return zero, ErrNotStored
		}
		if src, _ := ctx.Value(readSourceKey{}).(*readSource); src != nil {
			src.stored, src.at = true, st.UpdatedAt
		}
		return st.Value, nil
	}
}

// Stored reads the persisted value of key without touching memory.
// Without persistence it always misses.
func (c *Cache[V]) Stored(ctx context.Context, key Key) (V, bool, error) {
	var zero V
	if c.store == nil {
		return zero, false, nil
	}
	k, err := util.CanonicalKey(key)
	if err != nil {
		return zero, false, fmt.Errorf("firequery: %w", err)
	}
	st, ok, err := c.store.load(ctx, k)
	if err != nil || !ok {
		return zero, false, err
	}
	return st.Value, true, nil
}

// SetData writes v as the current value of key and persists it.
func (c *Cache[V]) SetData(ctx context.Context, key Key, v V) error {
	k, err := util.CanonicalKey(key)
	if err != nil {
		return fmt.Errorf("firequery: %w", err)
	}
	e, err := c.entry(k)
	if err != nil {
		return err
	}
	obs, ok := c.observeGen(ctx, k)
	now := time.Now()
	e.publish(succeeded(v, now))
	if ok {
		return c.store.save(ctx, k, v, now, obs)
	}
	return nil
}

// Invalidate drops the persisted value of key, marks the in-memory entry
// stale and refetches it when one-shot observers are watching. Entries kept
// by a listener stay stale until the next pushed value.
func (c *Cache[V]) Invalidate(ctx context.Context, key Key) error {
	k, err := util.CanonicalKey(key)
	if err != nil {
		return fmt.Errorf("firequery: %w", err)
	}
	var storeErr error
	if c.store != nil {
		storeErr = c.store.invalidate(ctx, k)
	}

	c.mu.Lock()
	e := c.entries[k]
	c.mu.Unlock()
	if e == nil {
		return storeErr
	}

	// reads already in flight belong to the old epoch and are discarded
	e.mu.Lock()
	e.epoch++
	fn, policy := e.fetch, e.retry
	refetch := e.onceObs > 0 && e.sub == nil && fn != nil
	e.mu.Unlock()

	e.publish(func(r *Result[V]) bool {
		if r.Status == StatusPending {
			return false
		}
		r.Stale = true
		return true
	})

	if refetch {
		c.fetchAsync(e, fn, policy)
	}
	return storeErr
}

// Remove drops the in-memory entry and stops its listener. Observers still
// holding it stop receiving updates.
func (c *Cache[V]) Remove(key Key) {
	k := key.String()
	c.mu.Lock()
	e, ok := c.entries[k]
	if ok {
		delete(c.entries, k)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	sub := e.sub
	e.sub = nil
	if e.gc != nil {
		e.gc.Stop()
		e.gc = nil
	}
	e.mu.Unlock()
	if sub != nil {
		sub.cancel()
	}
}

// Close stops every listener and pending fetch, then closes the generation
// store and provider. It waits for listener goroutines until ctx ends.
func (c *Cache[V]) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	entries := make([]*entry[V], 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		if e.gc != nil {
			e.gc.Stop()
			e.gc = nil
		}
		e.mu.Unlock()
	}
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if c.store != nil {
		err = errors.Join(err, c.store.close(ctx))
	}
	return err
}

// attach returns the entry for k with o registered, creating it if needed.
func (c *Cache[V]) attach(k string, o *Observer[V]) (*entry[V], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	e := c.entryLocked(k)

	e.mu.Lock()
	e.observers[o] = struct{}{}
	if o.once {
		e.onceObs++
		e.fetch = o.fetch
		e.retry = o.opts.retryPolicy()
	} else {
		e.subObs++
		if o.fetch != nil {
			e.fetch = o.fetch
		}
	}
	if e.gc != nil {
		e.gc.Stop()
		e.gc = nil
	}
	e.mu.Unlock()
	return e, nil
}

// entry returns the entry for k, creating an unobserved one that is
// collected after GCTime.
func (c *Cache[V]) entry(k string) (*entry[V], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	e := c.entryLocked(k)
	e.mu.Lock()
	if len(e.observers) == 0 && e.gc == nil {
		c.armGC(e)
	}
	e.mu.Unlock()
	return e, nil
}

func (c *Cache[V]) entryLocked(k string) *entry[V] {
	e, ok := c.entries[k]
	if !ok {
		c.lastID++
		e = newEntry[V](k, c.lastID)
		c.entries[k] = e
	}
	return e
}

// detach unregisters o; the last subscribe-mode observer stops the listener.
func (c *Cache[V]) detach(o *Observer[V]) {
	e := o.e
	e.mu.Lock()
	if _, ok := e.observers[o]; !ok {
		e.mu.Unlock()
		return
	}
	delete(e.observers, o)
	if o.once {
		e.onceObs--
	} else {
		e.subObs--
	}
	var stop *subscription
	if e.subObs == 0 && e.sub != nil {
		stop = e.sub
		e.sub = nil
	}
	if len(e.observers) == 0 {
		c.armGC(e)
	}
	e.mu.Unlock()

	if stop != nil {
		stop.cancel()
	}
}

// armGC must be called with e.mu held.
func (c *Cache[V]) armGC(e *entry[V]) {
	if c.gcTime < 0 {
		return
	}
	e.gc = time.AfterFunc(c.gcTime, func() { c.collect(e) })
}

func (c *Cache[V]) collect(e *entry[V]) {
	c.mu.Lock()
	e.mu.Lock()
	evict := len(e.observers) == 0 && c.entries[e.key] == e
	if evict {
		delete(c.entries, e.key)
		e.gc = nil
	}
	e.mu.Unlock()
	c.mu.Unlock()

	if evict {
		c.hooks.EntryEvicted(e.key)
		c.log.Debug("entry evicted", Fields{"key": e.key})
	}
}

// track registers a background goroutine unless the cache is closed.
func (c *Cache[V]) track() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	return true
}

func (c *Cache[V]) observeGen(ctx context.Context, k string) (uint64, bool) {
	if c.store == nil {
		return 0, false
	}
	return c.store.observe(ctx, k)
}

// seed restores the persisted value of e once, if nothing better arrived yet.
func (c *Cache[V]) seed(ctx context.Context, e *entry[V]) {
	if c.store == nil {
		return
	}
	e.mu.Lock()
	if e.seeded || e.res.Status != StatusPending {
		e.seeded = true
		e.mu.Unlock()
		return
	}
	e.seeded = true
	e.mu.Unlock()

	st, ok, err := c.store.load(ctx, e.key)
	if err != nil {
		c.log.Warn("restore persisted value failed", Fields{"key": e.key, "err": err})
		return
	}
	if ok {
		e.publish(restored(st))
	}
}

func (c *Cache[V]) persist(ctx context.Context, k string, v V, at time.Time, obs uint64) {
	if err := c.store.save(ctx, k, v, at, obs); err != nil {
		c.log.Warn("persist failed", Fields{"key": k, "err": err})
	}
}
