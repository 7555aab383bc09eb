package pwsafe

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash"
	"time"

	"github.com/dmitrijs2005/gophsafe/internal/common"
)

// Header field types.
const (
	hdrVersion         = 0x00
	hdrUUID            = 0x01
	hdrNonDefaultPrefs = 0x02
	hdrLastSaveTime    = 0x04
	hdrLastSaveApp     = 0x06
	hdrLastSaveUser    = 0x07
	hdrLastSaveHost    = 0x08
	hdrDatabaseName    = 0x09
	hdrDescription     = 0x0a
	hdrEmptyGroup      = 0x11
)

// Record field types.
const (
	fldUUID       = 0x01
	fldGroup      = 0x02
	fldTitle      = 0x03
	fldUsername   = 0x04
	fldNotes      = 0x05
	fldPassword   = 0x06
	fldCreated    = 0x07
	fldAccessed   = 0x09
	fldExpires    = 0x0a
	fldModified   = 0x0c
	fldURL        = 0x0d
	fldHistory    = 0x0f
	fldEmail      = 0x14
	fldTwoFactor  = 0x1b
	fldEnd        = 0xff
	blockSize     = 16
	firstBlockCap = blockSize - 5
)

var errTruncatedField = errors.New("truncated field")

type field struct {
	typ  byte
	data []byte
}

// readFields splits decrypted plaintext into fields. Each field starts a new
// 16-byte block holding length(4) | type(1) | first 11 data bytes; longer data
// continues in following blocks, the last one padded.
func readFields(plain []byte) ([]field, error) {
	var out []field
	for pos := 0; pos < len(plain); {
		if pos+blockSize > len(plain) {
			return nil, errTruncatedField
		}
		length := int(binary.LittleEndian.Uint32(plain[pos : pos+4]))
		typ := plain[pos+4]
		if length < 0 || length > len(plain) {
			return nil, errTruncatedField
		}

		if length <= firstBlockCap {
			out = append(out, field{typ: typ, data: append([]byte(nil), plain[pos+5:pos+5+length]...)})
			pos += blockSize
			continue
		}

		rest := length - firstBlockCap
		extra := (rest + blockSize - 1) / blockSize * blockSize
		if pos+blockSize+extra > len(plain) {
			return nil, errTruncatedField
		}
		data := make([]byte, 0, length)
		data = append(data, plain[pos+5:pos+blockSize]...)
		data = append(data, plain[pos+blockSize:pos+blockSize+rest]...)
		out = append(out, field{typ: typ, data: data})
		pos += blockSize + extra
	}
	return out, nil
}

// fieldWriter lays fields out in blocks and feeds their data to the HMAC.
type fieldWriter struct {
	buf bytes.Buffer
	mac hash.Hash
}

func (w *fieldWriter) write(typ byte, data []byte) {
	w.mac.Write(data)

	first := make([]byte, blockSize)
	copy(first[5:], common.GenerateRandByteArray(firstBlockCap))
	binary.LittleEndian.PutUint32(first[:4], uint32(len(data)))
	first[4] = typ

	n := copy(first[5:], data)
	w.buf.Write(first)

	for rest := data[n:]; len(rest) > 0; {
		blk := common.GenerateRandByteArray(blockSize)
		m := copy(blk, rest)
		w.buf.Write(blk)
		rest = rest[m:]
	}
}

func (w *fieldWriter) writeString(typ byte, s string) {
	if s == "" {
		return
	}
	w.write(typ, []byte(s))
}

func (w *fieldWriter) writeTime(typ byte, t time.Time) {
	if t.IsZero() {
		return
	}
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(t.Unix()))
	w.write(typ, b)
}

func decodeTime(b []byte) time.Time {
	switch len(b) {
	case 4:
		return time.Unix(int64(binary.LittleEndian.Uint32(b)), 0).UTC()
	case 8:
		return time.Unix(int64(binary.LittleEndian.Uint64(b)), 0).UTC()
	}
	return time.Time{}
}
