package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key identifies a unit of cacheable remote data, e.g. Key{"transactions", userID, "2024-05"}.
// Parts should be strings, numbers or booleans.
type Key []any

func encodePart(p any) string {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%#v", p)
	}
	return string(b)
}

func (k Key) parts() []string {
	out := make([]string, len(k))
	for i, p := range k {
		out[i] = encodePart(p)
	}
	return out
}

// Hash returns a stable string form of the key.
func (k Key) Hash() string {
	return "[" + strings.Join(k.parts(), ",") + "]"
}

func (k Key) String() string {
	return k.Hash()
}

// HasPrefix reports whether k starts with every part of prefix. An empty prefix matches all keys.
func (k Key) HasPrefix(prefix Key) bool {
	return hasPrefix(k.parts(), prefix.parts())
}

func hasPrefix(parts, prefix []string) bool {
	if len(prefix) > len(parts) {
		return false
	}
	for i := range prefix {
		if parts[i] != prefix[i] {
			return false
		}
	}
	return true
}
