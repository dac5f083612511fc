// Package breaker guards a Provider with a circuit breaker so a failing
// remote store (Redis) stops adding latency to every read and listener
// update. While the circuit is open reads miss and writes are rejected.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	pr "github.com/unkn0wn-root/firequery/provider"
)

type Config struct {
	Name        string        // default "firequery-provider"
	Failures    uint32        // consecutive failures that open the circuit; default 5
	OpenTimeout time.Duration // how long the circuit stays open; default 30s
	// Called on every state transition, e.g. to log or export it.
	OnStateChange func(name string, from, to gobreaker.State)
}

type Provider struct {
	inner pr.Provider
	cb    *gobreaker.CircuitBreaker
}

var _ pr.Provider = (*Provider)(nil)

func New(inner pr.Provider, cfg Config) *Provider {
	if cfg.Name == "" {
		cfg.Name = "firequery-provider"
	}
	if cfg.Failures == 0 {
		cfg.Failures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	failures := cfg.Failures
	return &Provider{
		inner: inner,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: 1,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= failures
			},
			// a caller giving up is not a store failure
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
			},
			OnStateChange: cfg.OnStateChange,
		}),
	}
}

// State reports the circuit state.
func (p *Provider) State() gobreaker.State { return p.cb.State() }

func rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

type hit struct {
	b  []byte
	ok bool
}

func (p *Provider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := p.cb.Execute(func() (interface{}, error) {
		b, ok, err := p.inner.Get(ctx, key)
		return hit{b, ok}, err
	})
	if rejected(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	h := v.(hit)
	return h.b, h.ok, nil
}

func (p *Provider) Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	v, err := p.cb.Execute(func() (interface{}, error) {
		return p.inner.Set(ctx, key, value, cost, ttl)
	})
	if rejected(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Del fails while the circuit is open: the caller must know the value may
// still be there.
func (p *Provider) Del(ctx context.Context, key string) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, p.inner.Del(ctx, key)
	})
	if rejected(err) {
		return fmt.Errorf("breaker %s: %w", p.cb.Name(), err)
	}
	return err
}

func (p *Provider) Close(ctx context.Context) error { return p.inner.Close(ctx) }
