package util

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// CanonicalKey renders key parts as a stable string. Parts are JSON encoded,
// so maps come out with sorted keys and equal keys built in different places
// land on the same cache entry.
func CanonicalKey(parts []any) (string, error) {
	if len(parts) == 0 {
		return "", fmt.Errorf("empty key")
	}
	b, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("key is not encodable: %w", err)
	}
	return string(b), nil
}

// UniqSorted returns a sorted copy of keys with duplicates removed.
func UniqSorted(keys []string) []string {
	s := make([]string, len(keys))
	copy(s, keys)
	sort.Strings(s)
	out := s[:0]
	for _, k := range s {
		if len(out) > 0 && out[len(out)-1] == k {
			continue
		}
		out = append(out, k)
	}
	return out
}

// BulkKey returns a deterministic composite key of sorted members with a short hash.
// sorted must already be sorted and de-duplicated.
func BulkKey(prefix string, sorted []string) string {
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return fmt.Sprintf("%s:%x", prefix, sum[:8])
}
