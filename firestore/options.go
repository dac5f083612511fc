// Package firestore adapts Cloud Firestore documents and queries to the
// firequery cache. Each adapter returns a cache-tracked observer that either
// follows a realtime listener (Subscribe) or resolves from a single read.
//
// Errors from the Firestore client reach observers unchanged, and the
// adapters never retry on their own; use firequery.ObserveOptions.Retry for
// one-shot reads.
package firestore

import "errors"

// Source selects where a one-shot read is served from. Listeners always
// follow the server.
type Source int

const (
	// SourceDefault reads from the server and falls back to the persisted
	// snapshot when the server is unavailable.
	SourceDefault Source = iota
	// SourceServer reads from the server only.
	SourceServer
	// SourceCache reads the persisted snapshot only.
	SourceCache
)

func (s Source) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceServer:
		return "server"
	case SourceCache:
		return "cache"
	default:
		return "unknown"
	}
}

// ErrNotCached is returned by SourceCache reads without a persisted snapshot.
var ErrNotCached = errors.New("firestore: no persisted snapshot")

// Options choose the adapter mode. The zero value reads once from the
// default source.
type Options struct {
	Subscribe bool
	Source    Source
}
