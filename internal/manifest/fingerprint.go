package manifest

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint returns a short hash over the (path, version, digest) triples
// of m. Two manifests with equal fingerprints hold the same files at the same
// versions; ModifiedAt is not part of the fingerprint.
func Fingerprint(m Manifest) string {
	h := xxhash.New()
	var v [8]byte
	for _, p := range m.Paths() {
		rec := m[p]
		h.WriteString(p)
		h.Write([]byte{0})
		binary.BigEndian.PutUint64(v[:], rec.Version)
		h.Write(v[:])
		h.WriteString(rec.Digest)
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
