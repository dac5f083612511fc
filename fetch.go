package firequery

import (
	"context"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"
)

type retryPolicy struct {
	extra int
	delay time.Duration
}

func (o ObserveOptions[V]) retryPolicy() retryPolicy {
	return retryPolicy{extra: o.Retry, delay: o.RetryDelay}
}

// fetchAsync starts (or joins) the read of e in the background. Reads are
// shared per entry and per invalidation epoch: a re-created entry or an
// invalidated one never joins a read started before it.
func (c *Cache[V]) fetchAsync(e *entry[V], fn FetchFunc[V], p retryPolicy) <-chan singleflight.Result {
	e.mu.Lock()
	epoch := e.epoch
	e.mu.Unlock()
	return c.flight.DoChan(flightKey(e.id, epoch), func() (any, error) {
		return c.doFetch(e, epoch, fn, p)
	})
}

func flightKey(id, epoch uint64) string {
	return strconv.FormatUint(id, 10) + "/" + strconv.FormatUint(epoch, 10)
}

func (c *Cache[V]) fetchWait(ctx context.Context, e *entry[V], fn FetchFunc[V], p retryPolicy) (V, error) {
	var zero V
	select {
	case r := <-c.fetchAsync(e, fn, p):
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(V), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// doFetch runs one read for e. Its outcome is dropped when e was invalidated
// after the read started.
func (c *Cache[V]) doFetch(e *entry[V], epoch uint64, fn FetchFunc[V], p retryPolicy) (any, error) {
	if !c.track() {
		return nil, ErrClosed
	}
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(c.ctx, c.fetchTimeout)
	defer cancel()

	c.seed(ctx, e)
	obs, persist := c.observeGen(ctx, e.key)

	src := &readSource{}
	v, err := fetchWithRetry(context.WithValue(ctx, readSourceKey{}, src), fn, p)
	if err != nil {
		if e.publish(e.inEpoch(epoch, failed[V](err))) {
			c.hooks.FetchFailed(e.key, err)
			c.log.Warn("fetch failed", Fields{"key": e.key, "err": err})
		}
		return nil, err
	}

	if src.stored {
		e.publish(e.inEpoch(epoch, servedFromStore(v, src.at)))
		return v, nil
	}
	now := time.Now()
	if e.publish(e.inEpoch(epoch, succeeded(v, now))) && persist {
		c.persist(ctx, e.key, v, now, obs)
	}
	return v, nil
}

type readSourceKey struct{}

// readSource is filled in by StoredFetch when the value it returns is the
// persisted snapshot rather than a fresh read.
type readSource struct {
	stored bool
	at     time.Time
}

// fetchWithRetry returns fn's own error unchanged once attempts run out.
func fetchWithRetry[V any](ctx context.Context, fn FetchFunc[V], p retryPolicy) (V, error) {
	if p.extra <= 0 {
		return fn(ctx)
	}
	b := backoff.NewExponentialBackOff()
	if p.delay > 0 {
		b.InitialInterval = p.delay
	}
	return backoff.Retry(ctx, func() (V, error) {
		v, err := fn(ctx)
		if err != nil && ctx.Err() != nil {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(p.extra+1)))
}
