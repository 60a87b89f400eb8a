package cache

import (
	"strconv"
	"strings"
)

// Key builds a collision-free key from a kind and its parts. Each part is
// length-prefixed, so ("ab","c") and ("a","bc") never collide, and the key of
// a shorter part list is a string prefix of every key extending it. That makes
// Key(kind, domain) usable with InvalidatePrefix to drop a whole domain.
func Key(kind string, parts ...string) string {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte(':')
	for _, p := range parts {
		b.WriteString(strconv.Itoa(len(p)))
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}
