package common

import "crypto/rand"

// GenerateRandByteArray returns size bytes read from crypto/rand.
// It panics if the system random source fails, which leaves no safe way to
// continue generating keys or nonces.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// WipeByteArray overwrites the contents of the provided byte slice with zeros.
// This is used to remove passwords and derived keys from memory after use.
//
// If the slice is nil, the function does nothing.
func WipeByteArray(b []byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
}
