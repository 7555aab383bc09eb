package kdb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Group field types.
const (
	grpIgnored  = 0x0000
	grpID       = 0x0001
	grpName     = 0x0002
	grpCreated  = 0x0003
	grpModified = 0x0004
	grpAccessed = 0x0005
	grpExpires  = 0x0006
	grpImage    = 0x0007
	grpLevel    = 0x0008
	grpFlags    = 0x0009
)

// Entry field types.
const (
	entIgnored    = 0x0000
	entUUID       = 0x0001
	entGroupID    = 0x0002
	entImage      = 0x0003
	entTitle      = 0x0004
	entURL        = 0x0005
	entUsername   = 0x0006
	entPassword   = 0x0007
	entNotes      = 0x0008
	entCreated    = 0x0009
	entModified   = 0x000A
	entAccessed   = 0x000B
	entExpires    = 0x000C
	entBinaryDesc = 0x000D
	entBinaryData = 0x000E
)

const fieldEnd = 0xFFFF

var errTruncated = errors.New("truncated field")

type field struct {
	typ  uint16
	data []byte
}

// fieldReader iterates over type(2) | size(4) | data records.
type fieldReader struct {
	buf []byte
	pos int
}

// record reads fields up to and including the end marker.
func (r *fieldReader) record() ([]field, error) {
	var out []field
	for {
		if r.pos+6 > len(r.buf) {
			return nil, errTruncated
		}
		typ := binary.LittleEndian.Uint16(r.buf[r.pos:])
		size := int(binary.LittleEndian.Uint32(r.buf[r.pos+2:]))
		r.pos += 6
		if size < 0 || r.pos+size > len(r.buf) {
			return nil, errTruncated
		}
		data := r.buf[r.pos : r.pos+size]
		r.pos += size
		if typ == fieldEnd {
			return out, nil
		}
		out = append(out, field{typ: typ, data: data})
	}
}

type fieldWriter struct {
	buf bytes.Buffer
}

func (w *fieldWriter) write(typ uint16, data []byte) {
	var hdr [6]byte
	binary.LittleEndian.PutUint16(hdr[0:2], typ)
	binary.LittleEndian.PutUint32(hdr[2:6], uint32(len(data)))
	w.buf.Write(hdr[:])
	w.buf.Write(data)
}

func (w *fieldWriter) writeString(typ uint16, s string) {
	w.write(typ, append([]byte(s), 0))
}

func (w *fieldWriter) writeUint32(typ uint16, v uint32) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	w.write(typ, b)
}

func (w *fieldWriter) writeTime(typ uint16, t time.Time) {
	w.write(typ, packTime(t))
}

func (w *fieldWriter) end() {
	w.write(fieldEnd, nil)
}

// cString decodes a NUL-terminated string.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func readUint32(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// neverExpires is how KeePass 1.x spells "no date".
var neverExpires = time.Date(2999, 12, 28, 23, 59, 59, 0, time.UTC)

// packTime encodes t in the 5-byte packed form:
// year(14) month(4) day(5) hour(5) minute(6) second(6).
// The zero time is written as neverExpires.
func packTime(t time.Time) []byte {
	if t.IsZero() {
		t = neverExpires
	}
	t = t.UTC()
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return []byte{
		byte(y >> 6),
		byte((y&0x3F)<<2 | (int(mo)>>2)&0x03),
		byte((int(mo)&0x03)<<6 | (d&0x1F)<<1 | (h>>4)&0x01),
		byte((h&0x0F)<<4 | (mi>>2)&0x0F),
		byte((mi&0x03)<<6 | s&0x3F),
	}
}

// unpackTime decodes the 5-byte packed form; neverExpires and malformed
// values decode to the zero time.
func unpackTime(b []byte) time.Time {
	if len(b) != 5 {
		return time.Time{}
	}
	y := int(b[0])<<6 | int(b[1])>>2
	mo := int(b[1]&0x03)<<2 | int(b[2])>>6
	d := int(b[2]>>1) & 0x1F
	h := int(b[2]&0x01)<<4 | int(b[3])>>4
	mi := int(b[3]&0x0F)<<2 | int(b[4])>>6
	s := int(b[4] & 0x3F)
	t := time.Date(y, time.Month(mo), d, h, mi, s, 0, time.UTC)
	if t.Equal(neverExpires) || mo == 0 || d == 0 {
		return time.Time{}
	}
	return t
}

// Group ids are 32-bit in the file. Decoded groups get a uuid that embeds the
// id, so a decode/encode cycle keeps the id stable.
var groupUUIDPrefix = [12]byte{'k', 'd', 'b', '1', 'g', 'r', 'o', 'u', 'p', 0, 0, 0}

func groupUUID(id uint32) uuid.UUID {
	var u uuid.UUID
	copy(u[:12], groupUUIDPrefix[:])
	binary.BigEndian.PutUint32(u[12:], id)
	return u
}

func groupIDFromUUID(u uuid.UUID) (uint32, bool) {
	if !bytes.Equal(u[:12], groupUUIDPrefix[:]) {
		return 0, false
	}
	id := binary.BigEndian.Uint32(u[12:])
	return id, id != 0
}
