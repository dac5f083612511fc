// Package redis persists firequery snapshots in Redis so that replicas, and a
// restarted process, start from the last known document and query results.
// Pair it with genstore.Redis so an invalidation on one replica is seen by all.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/firequery/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

type Config struct {
	Client goredis.UniversalClient

	// Prefix is prepended to every storage key, e.g. "prod:" when several
	// environments share one Redis.
	Prefix string

	// OwnClient makes Close close Client.
	OwnClient bool
}

type Redis struct {
	rdb    goredis.UniversalClient
	prefix string
	own    bool
}

var _ pr.Provider = (*Redis)(nil)

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, prefix: cfg.Prefix, own: cfg.OwnClient}, nil
}

func (p *Redis) key(k string) string { return p.prefix + k }

// Ping checks the server is reachable.
func (p *Redis) Ping(ctx context.Context) error {
	if err := p.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis provider: ping: %w", err)
	}
	return nil
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	switch b, err := p.rdb.Get(ctx, p.key(key)).Bytes(); {
	case err == nil:
		return b, true, nil
	case errors.Is(err, goredis.Nil):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// Set stores value. cost is ignored; a non-positive ttl keeps the key until
// it is deleted or evicted by Redis itself.
func (p *Redis) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	err := p.rdb.Set(ctx, p.key(key), value, max(ttl, 0)).Err()
	return err == nil, err
}

func (p *Redis) Del(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, p.key(key)).Err()
}

// Close is a no-op unless the provider owns the client. Closing twice is fine.
func (p *Redis) Close(context.Context) error {
	if !p.own {
		return nil
	}
	if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}
