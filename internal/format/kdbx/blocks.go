package kdbx

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"math"

	"github.com/dmitrijs2005/gophsafe/internal/cryptox"
)

const blockSize = 1 << 20

var (
	errBlockIntegrity = errors.New("block integrity check failed")
	errBlockTruncated = errors.New("block stream truncated")
)

// KDBX 3.1 hashed block stream: index(4) | sha256(32) | size(4) | data,
// terminated by an empty block with an all-zero hash.

func readHashedBlocks(b []byte) ([]byte, error) {
	le := binary.LittleEndian
	var out bytes.Buffer
	for idx := uint32(0); ; idx++ {
		if len(b) < 40 {
			return nil, errBlockTruncated
		}
		if le.Uint32(b[0:4]) != idx {
			return nil, errBlockIntegrity
		}
		hash := b[4:36]
		size := int(int32(le.Uint32(b[36:40])))
		b = b[40:]
		if size < 0 || size > len(b) {
			return nil, errBlockTruncated
		}
		if size == 0 {
			for _, c := range hash {
				if c != 0 {
					return nil, errBlockIntegrity
				}
			}
			return out.Bytes(), nil
		}
		data := b[:size]
		if subtle.ConstantTimeCompare(cryptox.SHA256(data), hash) != 1 {
			return nil, errBlockIntegrity
		}
		out.Write(data)
		b = b[size:]
	}
}

func writeHashedBlocks(data []byte) []byte {
	le := binary.LittleEndian
	var out bytes.Buffer
	var hdr [40]byte
	idx := uint32(0)
	for len(data) > 0 {
		n := min(len(data), blockSize)
		le.PutUint32(hdr[0:4], idx)
		copy(hdr[4:36], cryptox.SHA256(data[:n]))
		le.PutUint32(hdr[36:40], uint32(n))
		out.Write(hdr[:])
		out.Write(data[:n])
		data = data[n:]
		idx++
	}
	clear(hdr[:])
	le.PutUint32(hdr[0:4], idx)
	out.Write(hdr[:])
	return out.Bytes()
}

// KDBX 4 HMAC block stream: hmac(32) | size(4) | data, terminated by an
// authenticated empty block. Block i is keyed by SHA-512(i || hmacBase).

func hmacBaseKey(masterSeed, transformed []byte) []byte {
	h := sha512.New()
	h.Write(masterSeed)
	h.Write(transformed)
	h.Write([]byte{1})
	return h.Sum(nil)
}

func blockKey(index uint64, base []byte) []byte {
	h := sha512.New()
	h.Write(cryptox.Uint64LE(index))
	h.Write(base)
	return h.Sum(nil)
}

func blockHMAC(index uint64, base, data []byte) []byte {
	m := hmac.New(sha256.New, blockKey(index, base))
	m.Write(cryptox.Uint64LE(index))
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(data)))
	m.Write(size[:])
	m.Write(data)
	return m.Sum(nil)
}

// headerHMAC authenticates the outer header with the reserved block index.
func headerHMAC(base, header []byte) []byte {
	m := hmac.New(sha256.New, blockKey(math.MaxUint64, base))
	m.Write(header)
	return m.Sum(nil)
}

func readHMACBlocks(b []byte, base []byte) ([]byte, error) {
	var out bytes.Buffer
	for idx := uint64(0); ; idx++ {
		if len(b) < 36 {
			return nil, errBlockTruncated
		}
		mac := b[:32]
		size := int(int32(binary.LittleEndian.Uint32(b[32:36])))
		b = b[36:]
		if size < 0 || size > len(b) {
			return nil, errBlockTruncated
		}
		data := b[:size]
		if !hmac.Equal(blockHMAC(idx, base, data), mac) {
			return nil, errBlockIntegrity
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		out.Write(data)
		b = b[size:]
	}
}

func writeHMACBlocks(data []byte, base []byte) []byte {
	var out bytes.Buffer
	var size [4]byte
	for idx := uint64(0); ; idx++ {
		n := min(len(data), blockSize)
		chunk := data[:n]
		out.Write(blockHMAC(idx, base, chunk))
		binary.LittleEndian.PutUint32(size[:], uint32(n))
		out.Write(size[:])
		out.Write(chunk)
		if n == 0 {
			return out.Bytes()
		}
		data = data[n:]
	}
}
