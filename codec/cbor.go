package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CBOR serializes values with fxamacker/cbor. The zero value is not usable;
// build one with NewCBOR or MustCBOR.
//
// Fields without a `cbor` tag use their `json` tag, so the snapshot types
// need nothing extra. Timestamps keep nanosecond precision and maps nested
// in untyped document data decode as map[string]any, matching what the
// Firestore client produces for the same document.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

type CBOROption func(*cbor.EncOptions, *cbor.DecOptions)

// Deterministic selects RFC 8949 core deterministic encoding, so equal
// snapshots encode to equal bytes.
func Deterministic() CBOROption {
	return func(eo *cbor.EncOptions, _ *cbor.DecOptions) {
		t := eo.Time
		*eo = cbor.CoreDetEncOptions()
		eo.Time = t
	}
}

// MaxNestedLevels bounds decode depth. Firestore allows 20 levels of maps.
func MaxNestedLevels(n int) CBOROption {
	return func(_ *cbor.EncOptions, do *cbor.DecOptions) { do.MaxNestedLevels = n }
}

func NewCBOR[V any](opts ...CBOROption) (CBOR[V], error) {
	eo := cbor.PreferredUnsortedEncOptions()
	eo.Time = cbor.TimeRFC3339Nano
	do := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}
	for _, o := range opts {
		o(&eo, &do)
	}

	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	dm, err := do.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

// MustCBOR panics where NewCBOR would fail.
func MustCBOR[V any](opts ...CBOROption) CBOR[V] {
	c, err := NewCBOR[V](opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	if err := c.dec.Unmarshal(b, &v); err != nil {
		return v, err
	}
	return v, nil
}
