// Package digest computes the content fingerprints used for change detection
// and transfer integrity. Digests are BLAKE3, hex-encoded.
package digest

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Size is the length in bytes of a raw digest.
const Size = 32

// HexSize is the length of an encoded digest.
const HexSize = Size * 2

// Sum returns the raw digest of data.
func Sum(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}

// Encode returns the textual form of a raw digest.
func Encode(d []byte) string {
	return hex.EncodeToString(d)
}

// Bytes returns the encoded digest of data.
func Bytes(data []byte) string {
	return Encode(Sum(data))
}

// New returns a streaming hasher. Callers finish with Encode(h.Sum(nil)).
func New() hash.Hash {
	return blake3.New()
}

// Reader hashes everything read from r.
func Reader(r io.Reader) (string, error) {
	h := blake3.New()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return Encode(h.Sum(nil)), nil
}

// File computes the encoded digest of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	d, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return d, nil
}

// Valid reports whether s looks like an encoded digest.
func Valid(s string) bool {
	if len(s) != HexSize {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
