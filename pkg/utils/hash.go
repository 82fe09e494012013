package utils

import (
	"encoding/hex"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"
)

// NewDigest returns the BLAKE2b-256 hash used for asset checksums.
func NewDigest() hash.Hash {
	h, _ := blake2b.New256(nil) // only fails for keys longer than 64 bytes
	return h
}

// CopyWithDigest copies src into dst and returns the byte count and hex digest of what was written.
func CopyWithDigest(dst io.Writer, src io.Reader) (int64, string, error) {
	h := NewDigest()
	n, err := io.Copy(io.MultiWriter(dst, h), src)
	if err != nil {
		return n, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
