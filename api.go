package firequery

import (
	"context"
	"fmt"
	"time"

	c "github.com/unkn0wn-root/firequery/codec"
	gen "github.com/unkn0wn-root/firequery/genstore"
	"github.com/unkn0wn-root/firequery/internal/util"
	pr "github.com/unkn0wn-root/firequery/provider"
)

// SetCostFunc computes the provider cost of a persisted write.
// Default: the framed size in bytes.
type SetCostFunc func(key string, raw []byte, isBulk bool, bulkCount int) int64

// Key identifies a cache entry. Parts must be JSON encodable; two keys with
// equal encodings address the same entry.
type Key []any

// String returns the canonical form used for entry identity and storage keys.
func (k Key) String() string {
	s, err := util.CanonicalKey(k)
	if err != nil {
		return fmt.Sprint([]any(k))
	}
	return s
}

// FetchFunc performs a single read.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// SubscribeFunc runs a listener until ctx is cancelled, pushing values through
// emit. Returning a non-nil error while ctx is still live publishes that error
// to observers and ends the subscription.
type SubscribeFunc[V any] func(ctx context.Context, emit Emitter[V]) error

// Emitter receives listener output. Values pushed after the subscription was
// torn down are dropped.
type Emitter[V any] interface {
	Next(v V)
	Error(err error)
}

// Request describes how an entry gets its data. OnlyOnce selects Fetch;
// otherwise Subscribe is used. Fetch may be set in both modes so an observer
// can Refetch on demand.
type Request[V any] struct {
	Fetch     FetchFunc[V]
	Subscribe SubscribeFunc[V]
	OnlyOnce  bool
}

// ObserveOptions is per-observer configuration passed through by adapters.
type ObserveOptions[V any] struct {
	// Disabled registers the observer without reading or subscribing.
	// Refetch still works.
	Disabled bool

	// StaleTime is how long a fetched value counts as fresh for one-shot
	// observers. 0 means every one-shot observe triggers exactly one read.
	StaleTime time.Duration

	// Retry is the number of extra attempts for a failed one-shot read,
	// spaced by exponential backoff starting at RetryDelay. Listeners are
	// never retried.
	Retry      int
	RetryDelay time.Duration

	// OnChange is called for every published result, in publish order.
	// It runs on the publishing goroutine and must not block or write to the
	// same key.
	OnChange func(Result[V])
}

// Options tune the cache. Only Namespace is required; Codec is required when
// Provider is set.
type Options[V any] struct {
	Namespace string // e.g. "todos", "app:prod:profile"

	// Persistence. A nil Provider keeps everything in memory.
	Provider pr.Provider
	Codec    c.Codec[V]
	GenStore gen.GenStore // nil => genstore.Local

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks

	PersistTTL      time.Duration // single entries; 0 => 10m
	BulkTTL         time.Duration // Dehydrate batches; 0 => 10m
	GCTime          time.Duration // unobserved entries stay this long; 0 => 5m, <0 => forever
	FetchTimeout    time.Duration // per one-shot read; 0 => 30s
	CleanupInterval time.Duration // local gen sweep; 0 => 1h
	GenRetention    time.Duration // 0 => 30d
	ComputeSetCost  SetCostFunc
	DisableBulk     bool // Dehydrate writes singles only

	DisablePersistence bool // ignore Provider without removing it from config
}

func New[V any](opts Options[V]) (*Cache[V], error) {
	return newCache(opts)
}
