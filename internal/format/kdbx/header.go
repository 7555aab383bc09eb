package kdbx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	sig1 = 0x9AA2D903
	sig2 = 0xB54BFB67

	versionMajor3 = 3
	versionMinor3 = 1
	versionMajor4 = 4
	versionMinor4 = 0
)

// Outer header field ids.
const (
	hdrEnd                 = 0
	hdrComment             = 1
	hdrCipherID            = 2
	hdrCompressionFlags    = 3
	hdrMasterSeed          = 4
	hdrTransformSeed       = 5
	hdrTransformRounds     = 6
	hdrEncryptionIV        = 7
	hdrProtectedStreamKey  = 8
	hdrStreamStartBytes    = 9
	hdrInnerRandomStreamID = 10
	hdrKdfParameters       = 11
	hdrPublicCustomData    = 12
)

// Cipher ids.
var (
	CipherAES256   = uuid.MustParse("31c1f2e6-bf71-4350-be58-05216afc5aff")
	CipherChaCha20 = uuid.MustParse("d6038a2b-8b6f-4cb5-a524-339a31dbb59a")
	CipherTwofish  = uuid.MustParse("ad68f29f-576f-4bb9-a36a-d47af965346c")
)

const (
	compressionNone = 0
	compressionGzip = 1
)

var errHeaderTruncated = errors.New("header truncated")

// outerHeader is the clear-text header in front of the encrypted payload.
type outerHeader struct {
	major, minor uint16

	cipherID    uuid.UUID
	compression uint32
	masterSeed  []byte
	iv          []byte

	// KDBX 3.1 only.
	transformSeed      []byte
	transformRounds    uint64
	protectedStreamKey []byte
	streamStartBytes   []byte
	innerStreamID      uint32

	// KDBX 4 only.
	kdf              KDFParams
	publicCustomData []byte

	// raw is the serialized header, signatures included.
	raw []byte
}

func (h *outerHeader) v4() bool { return h.major >= versionMajor4 }

// sniffVersion returns the major version of a KDBX file, or 0.
func sniffVersion(data []byte) uint16 {
	if len(data) < 12 {
		return 0
	}
	le := binary.LittleEndian
	if le.Uint32(data[0:4]) != sig1 || le.Uint32(data[4:8]) != sig2 {
		return 0
	}
	return le.Uint16(data[10:12])
}

func readHeader(data []byte) (*outerHeader, error) {
	major := sniffVersion(data)
	if major == 0 {
		return nil, errors.New("bad signature")
	}
	if major != versionMajor3 && major != versionMajor4 {
		return nil, fmt.Errorf("unsupported version %d", major)
	}
	le := binary.LittleEndian
	h := &outerHeader{major: major, minor: le.Uint16(data[8:10])}

	pos := 12
	for {
		if pos+1 > len(data) {
			return nil, errHeaderTruncated
		}
		id := data[pos]
		pos++

		var size int
		if h.v4() {
			if pos+4 > len(data) {
				return nil, errHeaderTruncated
			}
			size = int(int32(le.Uint32(data[pos:])))
			pos += 4
		} else {
			if pos+2 > len(data) {
				return nil, errHeaderTruncated
			}
			size = int(le.Uint16(data[pos:]))
			pos += 2
		}
		if size < 0 || pos+size > len(data) {
			return nil, errHeaderTruncated
		}
		val := data[pos : pos+size]
		pos += size

		if id == hdrEnd {
			break
		}
		if err := h.set(id, val); err != nil {
			return nil, err
		}
	}
	h.raw = data[:pos]
	return h, h.validate()
}

func (h *outerHeader) set(id byte, val []byte) error {
	le := binary.LittleEndian
	switch id {
	case hdrComment:
	case hdrCipherID:
		u, err := uuid.FromBytes(val)
		if err != nil {
			return fmt.Errorf("cipher id: %w", err)
		}
		h.cipherID = u
	case hdrCompressionFlags:
		if len(val) != 4 {
			return errors.New("compression flags size")
		}
		h.compression = le.Uint32(val)
	case hdrMasterSeed:
		h.masterSeed = val
	case hdrEncryptionIV:
		h.iv = val
	case hdrTransformSeed:
		h.transformSeed = val
	case hdrTransformRounds:
		if len(val) != 8 {
			return errors.New("transform rounds size")
		}
		h.transformRounds = le.Uint64(val)
	case hdrProtectedStreamKey:
		h.protectedStreamKey = val
	case hdrStreamStartBytes:
		h.streamStartBytes = val
	case hdrInnerRandomStreamID:
		if len(val) != 4 {
			return errors.New("inner stream id size")
		}
		h.innerStreamID = le.Uint32(val)
	case hdrKdfParameters:
		kdf, err := parseKDFParams(val)
		if err != nil {
			return err
		}
		h.kdf = kdf
	case hdrPublicCustomData:
		h.publicCustomData = val
	default:
		return fmt.Errorf("unknown header field %d", id)
	}
	return nil
}

func (h *outerHeader) validate() error {
	if len(h.masterSeed) != 32 {
		return errors.New("master seed must be 32 bytes")
	}
	if h.compression > compressionGzip {
		return fmt.Errorf("unknown compression %d", h.compression)
	}
	if _, err := ivSize(h.cipherID); err != nil {
		return err
	}
	if h.v4() {
		if h.kdf.UUID == uuid.Nil {
			return errors.New("missing KDF parameters")
		}
		return nil
	}
	if len(h.transformSeed) != 32 {
		return errors.New("transform seed must be 32 bytes")
	}
	if len(h.streamStartBytes) != 32 {
		return errors.New("stream start bytes must be 32 bytes")
	}
	return nil
}

// bytes serializes the header and sets raw.
func (h *outerHeader) bytes() []byte {
	var b bytes.Buffer
	le := binary.LittleEndian
	var u32 [4]byte
	le.PutUint32(u32[:], sig1)
	b.Write(u32[:])
	le.PutUint32(u32[:], sig2)
	b.Write(u32[:])
	var ver [4]byte
	le.PutUint16(ver[0:2], h.minor)
	le.PutUint16(ver[2:4], h.major)
	b.Write(ver[:])

	field := func(id byte, val []byte) {
		b.WriteByte(id)
		if h.v4() {
			var n [4]byte
			le.PutUint32(n[:], uint32(len(val)))
			b.Write(n[:])
		} else {
			var n [2]byte
			le.PutUint16(n[:], uint16(len(val)))
			b.Write(n[:])
		}
		b.Write(val)
	}
	u32le := func(v uint32) []byte {
		out := make([]byte, 4)
		le.PutUint32(out, v)
		return out
	}

	field(hdrCipherID, h.cipherID[:])
	field(hdrCompressionFlags, u32le(h.compression))
	field(hdrMasterSeed, h.masterSeed)
	if h.v4() {
		field(hdrEncryptionIV, h.iv)
		field(hdrKdfParameters, h.kdf.bytes())
		if len(h.publicCustomData) > 0 {
			field(hdrPublicCustomData, h.publicCustomData)
		}
	} else {
		field(hdrTransformSeed, h.transformSeed)
		rounds := make([]byte, 8)
		le.PutUint64(rounds, h.transformRounds)
		field(hdrTransformRounds, rounds)
		field(hdrEncryptionIV, h.iv)
		field(hdrProtectedStreamKey, h.protectedStreamKey)
		field(hdrStreamStartBytes, h.streamStartBytes)
		field(hdrInnerRandomStreamID, u32le(h.innerStreamID))
	}
	field(hdrEnd, []byte("\r\n\r\n"))

	h.raw = b.Bytes()
	return h.raw
}

func ivSize(cipherID uuid.UUID) (int, error) {
	switch cipherID {
	case CipherAES256, CipherTwofish:
		return 16, nil
	case CipherChaCha20:
		return 12, nil
	}
	return 0, fmt.Errorf("unsupported cipher %s", cipherID)
}
