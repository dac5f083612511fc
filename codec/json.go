package codec

import "encoding/json"

// JSON encodes values with encoding/json. The zero value is ready to use.
// Field names follow `json` tags, which is what the firestore snapshot types carry.
type JSON[V any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
