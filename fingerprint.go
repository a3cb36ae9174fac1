package mdposter

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// KeyLength is the length of a hex-encoded cache key.
const KeyLength = sha256.Size * 2

// canonicalRequest fixes field order and names for fingerprinting.
// Changing it invalidates every cached poster.
type canonicalRequest struct {
	Content string `json:"content"`
	Header  string `json:"header"`
	Footer  string `json:"footer"`
	Theme   string `json:"theme"`
}

// Fingerprint returns the hex-encoded SHA-256 of the canonical JSON form of r.
// Callers are expected to apply defaults first; Renderer does.
func Fingerprint(r Request) string {
	// Marshal of a struct of strings cannot fail.
	b, _ := json.Marshal(canonicalRequest(r))
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// IsValidKey reports whether key looks like a Fingerprint result.
func IsValidKey(key string) bool {
	if len(key) != KeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
