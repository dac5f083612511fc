package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares per-key generations across processes and survives restarts.
// With a TTL, generation keys expire after the last bump; readers then see
// generation 0 and stale persisted snapshots are dropped on read.
type Redis struct {
	rdb         redis.UniversalClient
	ns          string
	ttl         time.Duration
	closeClient bool
}

var _ GenStore = (*Redis)(nil)

type RedisOption func(*Redis)

// WithTTL expires generation keys ttl after their last bump. ttl <= 0 disables expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// WithClientOwnership makes Close close the underlying client.
func WithClientOwnership() RedisOption {
	return func(r *Redis) { r.closeClient = true }
}

// NewRedis creates a Redis-backed generation store. namespace should match
// the cache namespace so two caches never share counters.
func NewRedis(client redis.UniversalClient, namespace string, opts ...RedisOption) *Redis {
	r := &Redis{rdb: client, ns: namespace}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (s *Redis) key(k string) string { return "gen:" + s.ns + ":" + k }

func (s *Redis) Snapshot(ctx context.Context, storageKey string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(storageKey)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis gen parse: %w", err)
	}
	return u, nil
}

func (s *Redis) SnapshotMany(ctx context.Context, storageKeys []string) (map[string]uint64, error) {
	if len(storageKeys) == 0 {
		return map[string]uint64{}, nil
	}
	keys := make([]string, len(storageKeys))
	for i, k := range storageKeys {
		keys[i] = s.key(k)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]uint64, len(storageKeys))
	for i, v := range vals {
		if v == nil {
			out[storageKeys[i]] = 0
			continue
		}
		u, err := strconv.ParseUint(fmt.Sprint(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis gen parse at %s: %w", storageKeys[i], err)
		}
		out[storageKeys[i]] = u
	}
	return out, nil
}

// Bump increments the generation. With a TTL, INCR and EXPIRE share one pipeline round-trip.
func (s *Redis) Bump(ctx context.Context, storageKey string) (uint64, error) {
	k := s.key(storageKey)
	if s.ttl <= 0 {
		return s.rdb.Incr(ctx, k).Uint64()
	}

	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

// Cleanup is a no-op; Redis expires keys itself when a TTL is set.
func (s *Redis) Cleanup(time.Duration) {}

func (s *Redis) Close(context.Context) error {
	if !s.closeClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
