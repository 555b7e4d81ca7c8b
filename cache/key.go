package cache

import "strings"

// Key identifies a cached query as an ordered list of segments, most general
// first: {"baskets", "detail", "42"}. Invalidation matches whole segments, so
// {"baskets", "list"} never matches {"baskets", "listing"}.
type Key []string

// NewKey builds a key from segments
func NewKey(segments ...string) Key {
	return Key(segments)
}

// Append returns a new key extended with segments; k is not modified.
func (k Key) Append(segments ...string) Key {
	out := make(Key, 0, len(k)+len(segments))
	out = append(out, k...)
	return append(out, segments...)
}

// HasPrefix reports whether every segment of prefix matches the start of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, seg := range prefix {
		if k[i] != seg {
			return false
		}
	}
	return true
}

// Resource is the first segment, used as the metrics label.
func (k Key) Resource() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

// String renders the key for logs, e.g. "baskets:detail:42".
func (k Key) String() string {
	return strings.Join(k, ":")
}

// id is the map key; the separator cannot appear in a segment read from a
// terminal or a JSON id.
func (k Key) id() string {
	return strings.Join(k, "\x00")
}
