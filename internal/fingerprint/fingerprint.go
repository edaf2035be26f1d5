// Package fingerprint computes stable content digests for sync change
// detection. The sync engine keys each digest by qualified source ID,
// so an item matches its last-seen state exactly when both the
// identifier and the content bytes are equal; renames, edits and
// reverts are all detected without comparing content directly.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the hex sha256 digest of content.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
