package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"
	"time"
)

func mustDecodeSingle(t *testing.T, b []byte) Entry {
	t.Helper()
	e, err := DecodeSingle(b)
	if err != nil {
		t.Fatalf("DecodeSingle error: %v", err)
	}
	return e
}

func mustDecodeBulk(t *testing.T, b []byte) []BulkItem {
	t.Helper()
	it, err := DecodeBulk(b)
	if err != nil {
		t.Fatalf("DecodeBulk error: %v", err)
	}
	return it
}

func TestSingleRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC)
	cases := []Entry{
		{Gen: 0},
		{Gen: 42, UpdatedAt: at, Payload: []byte("hello")},
		{Gen: math.MaxUint64, Payload: []byte{0, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		got := mustDecodeSingle(t, EncodeSingle(tc))
		if got.Gen != tc.Gen {
			t.Fatalf("gen mismatch: got %d want %d", got.Gen, tc.Gen)
		}
		if !got.UpdatedAt.Equal(tc.UpdatedAt) {
			t.Fatalf("updatedAt mismatch: got %v want %v", got.UpdatedAt, tc.UpdatedAt)
		}
		if !bytes.Equal(got.Payload, tc.Payload) {
			t.Fatalf("payload mismatch: got %x want %x", got.Payload, tc.Payload)
		}
	}
}

func TestSingleZeroTimeStaysZero(t *testing.T) {
	got := mustDecodeSingle(t, EncodeSingle(Entry{Gen: 1, Payload: []byte("x")}))
	if !got.UpdatedAt.IsZero() {
		t.Fatalf("expected zero time, got %v", got.UpdatedAt)
	}
}

func TestSingleRejectsTrailingBytes(t *testing.T) {
	enc := EncodeSingle(Entry{Gen: 7, Payload: []byte("x")})
	enc = append(enc, 0xDE, 0xAD)
	if _, err := DecodeSingle(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestSingleCorruptHeadersAndLengths(t *testing.T) {
	enc := EncodeSingle(Entry{Gen: 1, Payload: []byte("abc")})

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := DecodeSingle(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := DecodeSingle(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = kindBulk
	if _, err := DecodeSingle(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// vlen sits after 4 magic, 1 ver, 1 kind, 8 gen, 8 updatedAt
	tooLong := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(tooLong[22:26], uint32(len("abc")+1))
	if _, err := DecodeSingle(tooLong); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}

	if _, err := DecodeSingle(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}
}

func TestBulkRoundTrip(t *testing.T) {
	at := time.Unix(1700000000, 0).UTC()
	cases := [][]BulkItem{
		nil,
		{{Key: "a", Entry: Entry{Gen: 1, UpdatedAt: at, Payload: []byte("x")}}},
		{
			{Key: "a", Entry: Entry{Gen: 1, Payload: []byte("x")}},
			{Key: "b", Entry: Entry{Gen: 2}},
			{Key: "c", Entry: Entry{Gen: 3, UpdatedAt: at, Payload: []byte{9, 8, 7}}},
		},
		{
			{Key: "dup", Entry: Entry{Gen: 1, Payload: []byte("old")}},
			{Key: "dup", Entry: Entry{Gen: 2, Payload: []byte("new")}},
		},
	}
	for _, items := range cases {
		enc, err := EncodeBulk(items)
		if err != nil {
			t.Fatalf("EncodeBulk error: %v", err)
		}
		got := mustDecodeBulk(t, enc)
		if len(got) != len(items) {
			t.Fatalf("len mismatch: got %d want %d", len(got), len(items))
		}
		for i := range items {
			w := items[i]
			g := got[i]
			if g.Key != w.Key || g.Gen != w.Gen || !g.UpdatedAt.Equal(w.UpdatedAt) || !bytes.Equal(g.Payload, w.Payload) {
				t.Fatalf("item %d mismatch: got=%+v want=%+v", i, g, w)
			}
		}
	}
}

func TestBulkRejectsTrailingBytes(t *testing.T) {
	enc, err := EncodeBulk([]BulkItem{{Key: "k", Entry: Entry{Gen: 1, Payload: []byte("v")}}})
	if err != nil {
		t.Fatalf("EncodeBulk: %v", err)
	}
	enc = append(enc, 0xBE, 0xEF)
	if _, err := DecodeBulk(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestBulkBogusCount(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindBulk)
	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], ^uint32(0))
	buf.Write(u4[:])
	if _, err := DecodeBulk(buf.Bytes()); err == nil {
		t.Fatalf("expected error on bogus n with insufficient bytes")
	}

	buf.Reset()
	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindBulk)
	binary.BigEndian.PutUint32(u4[:], 1)
	buf.Write(u4[:])
	if _, err := DecodeBulk(buf.Bytes()); err == nil {
		t.Fatalf("expected error on truncated item list")
	}
}

func TestBulkKeyLengthValidation(t *testing.T) {
	if _, err := EncodeBulk([]BulkItem{{Key: ""}}); err == nil {
		t.Fatalf("expected error on empty key")
	}
	if _, err := EncodeBulk([]BulkItem{{Key: strings.Repeat("a", 0x10000)}}); err == nil {
		t.Fatalf("expected error on key length > 0xFFFF")
	}
	if _, err := EncodeBulk([]BulkItem{{Key: strings.Repeat("b", 0xFFFF)}}); err != nil {
		t.Fatalf("boundary key length should succeed: %v", err)
	}
}

func TestBulkCorruptLengths(t *testing.T) {
	enc, err := EncodeBulk([]BulkItem{{Key: "k", Entry: Entry{Gen: 9, Payload: []byte("xyz")}}})
	if err != nil {
		t.Fatalf("EncodeBulk: %v", err)
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = kindSingle
	if _, err := DecodeBulk(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// header 10 bytes, then klen(2) + key(1) + gen(8) + updatedAt(8)
	off := 10 + 2 + 1 + 8 + 8
	badVlen := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(badVlen[off:off+4], uint32(len("xyz")+1))
	if _, err := DecodeBulk(badVlen); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}

	badKlen := append([]byte(nil), enc...)
	binary.BigEndian.PutUint16(badKlen[10:12], uint16(40))
	if _, err := DecodeBulk(badKlen); err == nil {
		t.Fatalf("expected error on klen beyond buffer")
	}
}
