package capture

import (
	"crypto/sha256"
	"fmt"
)

// Hash returns the SHA-256 hex digest of content.
// The digest is unsalted, so it is stable across process restarts.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", sum[:])
}
