package utils

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// ContentHash returns the xxhash64 of content as a 16-char hex string.
// Used for blob names and duplicate detection.
func ContentHash(content []byte) string {
	return hashHex(xxhash.Sum64(content))
}

// StringHash is ContentHash for strings.
func StringHash(s string) string {
	return hashHex(xxhash.Sum64String(s))
}

func hashHex(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}
