package firequery

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/firequery/internal/util"
)

// Dehydrate persists the current successful values of keys in one batch
// (plus a single entry per key). Keys without data are skipped.
func (c *Cache[V]) Dehydrate(ctx context.Context, keys []Key) error {
	if c.store == nil || len(keys) == 0 {
		return nil
	}
	items := make(map[string]stored[V], len(keys))
	c.mu.Lock()
	for _, key := range keys {
		e, ok := c.entries[key.String()]
		if !ok {
			continue
		}
		r, _ := e.snapshot()
		if r.Status != StatusSuccess {
			continue
		}
		items[e.key] = stored[V]{Value: r.Data, UpdatedAt: r.UpdatedAt}
	}
	c.mu.Unlock()
	if len(items) == 0 {
		return nil
	}

	ks := make([]string, 0, len(items))
	for k := range items {
		ks = append(ks, k)
	}
	obs, err := c.store.observeMany(ctx, ks)
	if err != nil {
		return fmt.Errorf("firequery: dehydrate: %w", err)
	}
	return c.store.saveMany(ctx, items, obs)
}

// Hydrate loads persisted values for keys into memory and returns how many
// entries were restored. Entries that already hold data are left alone.
func (c *Cache[V]) Hydrate(ctx context.Context, keys []Key) (int, error) {
	if c.store == nil || len(keys) == 0 {
		return 0, nil
	}
	ks := make([]string, 0, len(keys))
	for _, key := range keys {
		k, err := util.CanonicalKey(key)
		if err != nil {
			return 0, fmt.Errorf("firequery: %w", err)
		}
		ks = append(ks, k)
	}

	found, _, err := c.store.loadMany(ctx, ks)
	if err != nil {
		return 0, fmt.Errorf("firequery: hydrate: %w", err)
	}

	n := 0
	for k, st := range found {
		e, err := c.entry(k)
		if err != nil {
			return n, err
		}
		if e.publish(restored(st)) {
			n++
		}
	}
	return n, nil
}
