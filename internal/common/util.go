package common

import (
	"crypto/rand"
	"encoding/hex"
)

// MakeRandHexString returns a hex string of size random bytes (2*size chars),
// used for opaque refresh tokens.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// WipeByteArray overwrites the slice with zeros, used to drop passwords from
// memory after hashing or sending.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
