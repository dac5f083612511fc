// Package provider defines the byte store that persisted snapshots live in.
//
// Implementations MUST be byte-for-byte transparent: Get returns exactly the
// []byte previously passed to Set for a key. No prepended metadata, no
// re-encoding. Internal transforms (compression) must be fully reversed.
//
// The keyspaces "snap:<ns>:" and "bulk:<ns>:" belong to firequery. Foreign
// writes under those prefixes fail wire validation and are deleted on read.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs, safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// IO/remote errors return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. cost may be ignored.
	// ok=false means the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	Close(ctx context.Context) error
}
