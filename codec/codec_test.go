package codec

import (
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type todo struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Done    bool      `json:"done"`
	Updated time.Time `json:"updated"`
}

func TestCodecsRoundTripTaggedStruct(t *testing.T) {
	in := todo{ID: "t1", Title: "write tests", Done: true, Updated: time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)}

	codecs := map[string]Codec[todo]{
		"json":     JSON[todo]{},
		"msgpack":  Msgpack[todo]{},
		"cbor":     MustCBOR[todo](),
		"cbor-det": MustCBOR[todo](Deterministic()),
	}
	for name, cd := range codecs {
		t.Run(name, func(t *testing.T) {
			b, err := cd.Encode(in)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			out, err := cd.Decode(b)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if out.ID != in.ID || out.Title != in.Title || out.Done != in.Done || !out.Updated.Equal(in.Updated) {
				t.Fatalf("got %+v want %+v", out, in)
			}
		})
	}
}

func TestMsgpackUsesJSONTags(t *testing.T) {
	b, err := Msgpack[todo]{}.Encode(todo{Title: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "title") || strings.Contains(string(b), "Title") {
		t.Fatalf("expected json tag names in msgpack output: %q", b)
	}
}

func TestCBORDeterministicIsStable(t *testing.T) {
	cd := MustCBOR[map[string]int](Deterministic())
	a, err := cd.Encode(map[string]int{"b": 2, "a": 1, "c": 3})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		b, _ := cd.Encode(map[string]int{"c": 3, "a": 1, "b": 2})
		if string(a) != string(b) {
			t.Fatalf("deterministic encoding differs")
		}
	}
}

func TestLimitRejectsOversized(t *testing.T) {
	cd := Limit[string]{Inner: JSON[string]{}, MaxDecode: 6}
	if _, err := cd.Decode([]byte(`"12345"`)); err == nil {
		t.Fatalf("expected size error")
	}
	v, err := cd.Decode([]byte(`"1234"`))
	if err != nil || v != "1234" {
		t.Fatalf("got %q, %v", v, err)
	}
	unlimited := Limit[string]{Inner: JSON[string]{}}
	if _, err := unlimited.Decode([]byte(`"` + strings.Repeat("x", 1<<16) + `"`)); err != nil {
		t.Fatalf("MaxDecode=0 must not limit: %v", err)
	}
}

func TestProtobufStruct(t *testing.T) {
	cd := NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })
	in, err := structpb.NewStruct(map[string]any{"title": "x", "done": true})
	if err != nil {
		t.Fatal(err)
	}
	b, err := cd.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := cd.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if !proto.Equal(in, out) {
		t.Fatalf("got %v want %v", out, in)
	}
}

func TestCBORDocumentMapsDecodeWithStringKeys(t *testing.T) {
	cd := MustCBOR[map[string]any](MaxNestedLevels(20))
	b, err := cd.Encode(map[string]any{"owner": map[string]any{"name": "ada"}})
	if err != nil {
		t.Fatal(err)
	}
	out, err := cd.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	owner, ok := out["owner"].(map[string]any)
	if !ok || owner["name"] != "ada" {
		t.Fatalf("nested map decoded as %T: %v", out["owner"], out["owner"])
	}
}
