package core

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint is the content hash used as the dedupe key.
func Fingerprint(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
