// Package cryptox holds the key-derivation functions, ciphers and keyed
// streams shared by the container format adaptors.
package cryptox

import (
	"context"
	"crypto/aes"
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/argon2"
)

// cancelCheckEvery is how many AES-KDF rounds run between context checks.
const cancelCheckEvery = 1 << 14

var ErrInvalidKeySize = errors.New("invalid key size")

// Argon2id derives keyLen bytes from key and salt. memoryKiB is expressed in
// kibibytes, as argon2.IDKey expects.
func Argon2id(key, salt []byte, iterations, memoryKiB uint32, parallelism uint8, keyLen uint32) []byte {
	return argon2.IDKey(key, salt, iterations, memoryKiB, parallelism, keyLen)
}

// AESKDF is the KeePass key transformation: both 16-byte halves of the
// 32-byte key are encrypted rounds times with AES-256-ECB keyed by seed, and
// the result is hashed with SHA-256.
//
// The loop checks ctx periodically so a long transformation can be abandoned.
func AESKDF(ctx context.Context, key, seed []byte, rounds uint64) ([]byte, error) {
	if len(key) != 32 || len(seed) != 32 {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(seed)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 32)
	copy(buf, key)

	for i := uint64(0); i < rounds; i++ {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		block.Encrypt(buf[:16], buf[:16])
		block.Encrypt(buf[16:], buf[16:])
	}

	sum := sha256.Sum256(buf)
	return sum[:], nil
}

// StretchKeySHA256 implements the Password Safe v3 key stretch:
// X0 = SHA-256(password || salt), Xi = SHA-256(Xi-1), repeated iterations times.
func StretchKeySHA256(ctx context.Context, password, salt []byte, iterations uint32) ([]byte, error) {
	h := sha256.New()
	h.Write(password)
	h.Write(salt)
	x := h.Sum(nil)

	for i := uint32(0); i < iterations; i++ {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		sum := sha256.Sum256(x)
		x = sum[:]
	}
	return x, nil
}

// SHA256 returns the SHA-256 digest of the concatenation of parts.
func SHA256(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// Uint64LE encodes v as 8 little-endian bytes.
func Uint64LE(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
