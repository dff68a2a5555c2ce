// Package hash provides hex digest helpers used for publish keys and
// listing fingerprints.
package hash

import (
	"crypto/md5" //nolint:gosec // identity key, not a security boundary
	"crypto/sha256"
	"encoding/hex"
	stdhash "hash"
)

// Hasher produces a hex digest of its input.
type Hasher struct {
	newFn func() stdhash.Hash
}

// MD5 returns a hasher producing MD5 hex digests. Publish keys use it because
// existing catalog records are keyed that way.
func MD5() *Hasher {
	return &Hasher{newFn: md5.New}
}

// SHA256 returns a hasher producing SHA-256 hex digests.
func SHA256() *Hasher {
	return &Hasher{newFn: sha256.New}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) string {
	d := h.newFn()
	d.Write(data)
	return hex.EncodeToString(d.Sum(nil))
}

// HashString is Hash for string input.
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}

// HashLines hashes each element followed by a newline, in order.
func (h *Hasher) HashLines(lines []string) string {
	d := h.newFn()
	for _, line := range lines {
		d.Write([]byte(line))
		d.Write([]byte{'\n'})
	}
	return hex.EncodeToString(d.Sum(nil))
}
