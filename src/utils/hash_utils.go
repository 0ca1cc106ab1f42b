package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashID derives a stable reference id from the identifying parts of a source
// record. File rows have no server-side id, so the hash of the row content is
// their idempotency key: re-importing the same export yields the same ids.
func HashID(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}
