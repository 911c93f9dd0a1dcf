package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ShortHash returns a deterministic hex digest over parts joined with "|",
// truncated to n characters (n <= 0 or n >= digest length returns the full
// digest). Used by keys.Parser to derive a storage key from a definition's
// identity hash plus a caller key, and by Definition.Hash to derive the
// definition's own identity hash.
func ShortHash(n int, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	h := hex.EncodeToString(sum[:])
	if n > 0 && n < len(h) {
		return h[:n]
	}
	return h
}
