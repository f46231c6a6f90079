package query

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint computes a stable digest over an ordered tuple of canonical
// strings. Each part is trimmed and lowercased before hashing; missing
// parts are represented as empty strings by the caller. The parts are
// joined with an unlikely delimiter so that distinct tuples never collide
// by concatenation.
func Fingerprint(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = strings.ToLower(strings.TrimSpace(p))
	}

	sum := sha256.Sum256([]byte(strings.Join(normalized, "\x1f")))
	return hex.EncodeToString(sum[:])
}
