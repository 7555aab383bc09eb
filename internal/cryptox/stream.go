package cryptox

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/salsa20/salsa"
)

// ErrUnknownStream is returned for an inner random stream id we do not implement.
var ErrUnknownStream = errors.New("unknown inner random stream")

// Inner random stream ids as stored in KeePass 2 headers.
const (
	StreamNone     uint32 = 0
	StreamArcFour  uint32 = 1
	StreamSalsa20  uint32 = 2
	StreamChaCha20 uint32 = 3
)

// salsa20Nonce is the fixed IV KeePass uses for the Salsa20 inner stream.
var salsa20Nonce = []byte{0xE8, 0x30, 0x09, 0x4B, 0x97, 0x20, 0x5D, 0x2A}

// ProtectedStream is a continuous keystream used to mask protected values in
// document order. The same instance must be used for the whole document.
type ProtectedStream interface {
	XOR(b []byte) []byte
}

// NewProtectedStream builds the inner stream for id keyed by key.
func NewProtectedStream(id uint32, key []byte) (ProtectedStream, error) {
	switch id {
	case StreamSalsa20:
		return newSalsaStream(key), nil
	case StreamChaCha20:
		h := sha512.Sum512(key)
		c, err := chacha20.NewUnauthenticatedCipher(h[:32], h[32:44])
		if err != nil {
			return nil, err
		}
		return &chachaStream{c: c}, nil
	case StreamNone:
		return plainStream{}, nil
	default:
		return nil, ErrUnknownStream
	}
}

type plainStream struct{}

func (plainStream) XOR(b []byte) []byte {
	return append([]byte(nil), b...)
}

type chachaStream struct {
	c *chacha20.Cipher
}

func (s *chachaStream) XOR(b []byte) []byte {
	out := make([]byte, len(b))
	s.c.XORKeyStream(out, b)
	return out
}

type salsaStream struct {
	key     [32]byte
	counter [16]byte
	block   [64]byte
	pos     int
}

func newSalsaStream(key []byte) *salsaStream {
	s := &salsaStream{key: sha256.Sum256(key), pos: 64}
	copy(s.counter[:8], salsa20Nonce)
	return s
}

func (s *salsaStream) next() {
	var zero [64]byte
	salsa.XORKeyStream(s.block[:], zero[:], &s.counter, &s.key)
	n := binary.LittleEndian.Uint64(s.counter[8:])
	binary.LittleEndian.PutUint64(s.counter[8:], n+1)
	s.pos = 0
}

func (s *salsaStream) XOR(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		if s.pos == 64 {
			s.next()
		}
		out[i] = b[i] ^ s.block[s.pos]
		s.pos++
	}
	return out
}
