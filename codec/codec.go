// Package codec converts cached values to and from the bytes a provider stores.
//
// Snapshot values (for example firestore.DocumentSnapshot[T]) go through a
// Codec before they are framed and written, and come back through it when a
// cache entry is restored from the provider.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
