// Package ristretto keeps firequery snapshots in process memory using
// dgraph-io/ristretto. Admission is asynchronous and lossy under pressure, so
// a Set may report ok=false and a fresh write is visible only after Wait.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/firequery/provider"
)

var ErrNoBudget = errors.New("ristretto: MaxCost must be positive")

type Config struct {
	// MaxCost is the byte budget; firequery charges each snapshot its framed size.
	MaxCost int64

	// NumCounters defaults to one counter per 100 bytes of budget, never
	// fewer than 1000.
	NumCounters int64

	// BufferItems defaults to 64.
	BufferItems int64

	Metrics bool
}

func (cfg Config) withDefaults() Config {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = max(cfg.MaxCost/100, 1000)
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	return cfg
}

type Provider struct {
	c *rc.Cache
}

var _ pr.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.MaxCost <= 0 {
		return nil, ErrNoBudget
	}
	cfg = cfg.withDefaults()
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, found := p.c.Get(key)
	if !found {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	return b, ok, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if cost <= 0 {
		cost = int64(len(value))
	}
	return p.c.SetWithTTL(key, value, cost, max(ttl, 0)), nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

// Wait blocks until buffered writes are applied.
func (p *Provider) Wait() { p.c.Wait() }

// Close flushes pending writes and stops ristretto's goroutines.
func (p *Provider) Close(context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics is nil unless Config.Metrics was set.
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
