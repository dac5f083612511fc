// Package genstore keeps a generation counter per persisted cache key.
//
// A snapshot is only written if the generation observed before the read is
// still current; Invalidate bumps it, so a read that raced an invalidation
// cannot resurrect old data. Local is the default; Redis shares generations
// between processes that share a Redis provider.
package genstore

import (
	"context"
	"time"
)

type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// SnapshotMany returns gens for many keys; missing => 0.
	SnapshotMany(ctx context.Context, storageKeys []string) (map[string]uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// Cleanup prunes generations not bumped within retention (no-op for Redis).
	Cleanup(retention time.Duration)
	Close(context.Context) error
}
