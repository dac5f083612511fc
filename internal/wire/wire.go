package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version    byte = 1
	kindSingle byte = 1
	kindBulk   byte = 2
)

var (
	ErrCorrupt = errors.New("firequery: corrupt entry")
	magic4     = [...]byte{'F', 'Q', 'R', 'Y'}
)

// Entry is one persisted snapshot: the generation it was written under,
// when the data was produced and the codec payload.
type Entry struct {
	Gen       uint64
	UpdatedAt time.Time
	Payload   []byte
}

// BulkItem is an Entry tagged with its user key.
type BulkItem struct {
	Key string
	Entry
}

const (
	headerLen     = 4 + 1 + 1
	entryFixedLen = 8 + 8 + 4
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func putEntry(buf *bytes.Buffer, e Entry) {
	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], e.Gen)
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], uint64(unixNano(e.UpdatedAt)))
	buf.Write(u8[:])
	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])
	buf.Write(e.Payload)
}

// readEntry parses gen | updatedAt | vlen | payload starting at off.
func readEntry(b []byte, off int) (Entry, int, error) {
	if off+entryFixedLen > len(b) {
		return Entry{}, 0, ErrCorrupt
	}
	gen := binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	ts := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen > len(b)-off {
		return Entry{}, 0, ErrCorrupt
	}
	return Entry{Gen: gen, UpdatedAt: fromUnixNano(ts), Payload: b[off : off+vlen]}, off + vlen, nil
}

// Single: magic(4) | ver(1) | kind(1=single) | gen(u64) | updated(i64 ns) | vlen(u32) | payload
func EncodeSingle(e Entry) []byte {
	var buf bytes.Buffer
	buf.Grow(headerLen + entryFixedLen + len(e.Payload))
	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindSingle)
	putEntry(&buf, e)
	return buf.Bytes()
}

func DecodeSingle(b []byte) (Entry, error) {
	if len(b) < headerLen+entryFixedLen || !hasMagic(b) || b[4] != version || b[5] != kindSingle {
		return Entry{}, ErrCorrupt
	}
	e, off, err := readEntry(b, headerLen)
	if err != nil {
		return Entry{}, err
	}
	if off != len(b) {
		return Entry{}, ErrCorrupt
	}
	return e, nil
}

// Bulk:
//
//	magic(4) | ver(1) | kind(1=bulk) | n(u32)
//	keyLen(u16) | key | gen(u64) | updated(i64 ns) | vlen(u32) | payload  * n
func EncodeBulk(items []BulkItem) ([]byte, error) {
	total := headerLen + 4
	for _, it := range items {
		if l := len(it.Key); l == 0 || l > 0xFFFF {
			return nil, errors.New("firequery: invalid key length in bulk")
		}
		total += 2 + len(it.Key) + entryFixedLen + len(it.Payload)
	}

	var buf bytes.Buffer
	buf.Grow(total)
	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindBulk)

	var u4 [4]byte
	var u2 [2]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(items)))
	buf.Write(u4[:])

	for _, it := range items {
		binary.BigEndian.PutUint16(u2[:], uint16(len(it.Key)))
		buf.Write(u2[:])
		buf.WriteString(it.Key)
		putEntry(&buf, it.Entry)
	}
	return buf.Bytes(), nil
}

func DecodeBulk(b []byte) ([]BulkItem, error) {
	if len(b) < headerLen+4 || !hasMagic(b) || b[4] != version || b[5] != kindBulk {
		return nil, ErrCorrupt
	}
	off := headerLen
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// every item needs at least 2+1+entryFixedLen bytes
	if n < 0 || n > (len(b)-off)/(2+1+entryFixedLen) {
		return nil, ErrCorrupt
	}

	items := make([]BulkItem, 0, n)
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return nil, ErrCorrupt
		}
		klen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if klen <= 0 || klen > len(b)-off {
			return nil, ErrCorrupt
		}
		key := string(b[off : off+klen])
		off += klen

		e, next, err := readEntry(b, off)
		if err != nil {
			return nil, err
		}
		off = next
		items = append(items, BulkItem{Key: key, Entry: e})
	}
	if off != len(b) {
		return nil, ErrCorrupt
	}
	return items, nil
}
