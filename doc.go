// Package firequery is a keyed query cache for data that is either read once
// or pushed by a realtime listener.
//
// Callers observe a Key with a Request: either a FetchFunc (one-shot read) or
// a SubscribeFunc (blocking listener loop). The cache owns the rest:
//
//   - one live listener per key, shared by every observer of that key, torn
//     down by cancelling its context when the last observer closes
//   - de-duplicated one-shot fetches (singleflight per key), optional retry
//   - in-order delivery of every pushed value to each observer
//   - optional persistence of the last value through a byte Provider, with
//     CAS safety via per-key generations, so a restart or another replica
//     starts from the last known snapshot
//
// Keys in the provider:
//
//	snap:<ns>:<canonical key>  - single entries
//	bulk:<ns>:<hash>           - Dehydrate batches (hash over sorted keys)
//
// The firestore subpackage builds Requests from Firestore document and query
// references.
package firequery
