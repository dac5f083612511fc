package firequery

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; the cache calls them on
// listener and fetch paths. Wrap slow sinks with hooks/async.
type Hooks interface {
	// A realtime listener was attached / detached for a key.
	// err is the error that ended the listener, nil on a normal teardown.
	ListenerStarted(key string)
	ListenerStopped(key string, err error)

	// A one-shot fetch failed after any configured retries.
	FetchFailed(key string, err error)

	// An unobserved entry was dropped from memory after GCTime.
	EntryEvicted(key string)

	// A persisted entry was deleted on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	SelfHeal(storageKey, reason string)

	// A Dehydrate batch could not be used and Hydrate fell back to singles.
	// reason ∈ {"decode_error", "invalid_or_stale"}
	BulkRejected(namespace string, requested int, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string, isBulk bool)

	// GenStore errors. count is the number of keys involved.
	GenSnapshotError(count int, err error)
	GenBumpError(storageKey string, err error)

	// Both gen bump and delete failed during Invalidate (likely backend outage).
	InvalidateOutage(key string, bumpErr, delErr error)

	// Bulk is enabled with a local GenStore (stale bulks possible across replicas).
	LocalGenWithBulk()
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) ListenerStarted(string)                {}
func (NopHooks) ListenerStopped(string, error)         {}
func (NopHooks) FetchFailed(string, error)             {}
func (NopHooks) EntryEvicted(string)                   {}
func (NopHooks) SelfHeal(string, string)               {}
func (NopHooks) BulkRejected(string, int, string)      {}
func (NopHooks) ProviderSetRejected(string, bool)      {}
func (NopHooks) GenSnapshotError(int, error)           {}
func (NopHooks) GenBumpError(string, error)            {}
func (NopHooks) InvalidateOutage(string, error, error) {}
func (NopHooks) LocalGenWithBulk()                     {}
