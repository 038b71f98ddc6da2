// Record fingerprints for archival deduplication.
//
// Legacy dumps are assembled by concatenating exports, so the same record
// frequently appears more than once. A fingerprint is a 16 hex character
// digest of the record's raw transmission bytes, stable across runs and
// machines. Three algorithms are supported.
package marc

import (
	"fmt"
	"hash/fnv"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// Fingerprint algorithm constants.
const (
	AlgXXHash3 = 1 // Default, fastest
	AlgFNV1a   = 2 // No external dependencies
	AlgBlake2b = 3 // Best distribution
)

// Fingerprint digests the record's raw transmission bytes with the given
// algorithm. Records with identical bytes fingerprint identically. An
// unknown algorithm returns the empty string.
func (r *Record) Fingerprint(alg int) string {
	switch alg {
	case AlgXXHash3:
		return fmt.Sprintf("%016x", xxh3.Hash(r.raw))
	case AlgFNV1a:
		h := fnv.New64a()
		h.Write(r.raw)
		return fmt.Sprintf("%016x", h.Sum64())
	case AlgBlake2b:
		h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
		h.Write(r.raw)
		return fmt.Sprintf("%016x", h.Sum(nil))
	default:
		return ""
	}
}
