package database

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// Fingerprint returns a stable hex digest of an embedding. Enrollment
// imports use it to skip vectors that were already stored, so re-running a
// training export does not inflate a student's reference set.
func Fingerprint(embedding []float32) string {
	h := sha256.New()
	var buf [4]byte
	for _, v := range embedding {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
