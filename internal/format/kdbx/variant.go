package kdbx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// VariantDictionary value types.
const (
	vdEnd       = 0x00
	vdUInt32    = 0x04
	vdUInt64    = 0x05
	vdBool      = 0x08
	vdInt32     = 0x0C
	vdInt64     = 0x0D
	vdString    = 0x18
	vdByteArray = 0x42

	vdVersion     = 0x0100
	vdVersionMask = 0xFF00
)

var errVariantTruncated = errors.New("variant dictionary truncated")

type variantValue struct {
	typ  byte
	data []byte
}

// variantDict is the typed key/value map KDBX 4 uses for KDF parameters and
// public custom data.
type variantDict map[string]variantValue

func parseVariantDict(b []byte) (variantDict, error) {
	le := binary.LittleEndian
	if len(b) < 2 {
		return nil, errVariantTruncated
	}
	if le.Uint16(b)&vdVersionMask > vdVersion&vdVersionMask {
		return nil, fmt.Errorf("variant dictionary version %#x", le.Uint16(b))
	}
	d := variantDict{}
	pos := 2
	for {
		if pos >= len(b) {
			return nil, errVariantTruncated
		}
		typ := b[pos]
		pos++
		if typ == vdEnd {
			return d, nil
		}
		if pos+4 > len(b) {
			return nil, errVariantTruncated
		}
		kl := int(int32(le.Uint32(b[pos:])))
		pos += 4
		if kl < 0 || pos+kl > len(b) {
			return nil, errVariantTruncated
		}
		key := string(b[pos : pos+kl])
		pos += kl
		if pos+4 > len(b) {
			return nil, errVariantTruncated
		}
		vl := int(int32(le.Uint32(b[pos:])))
		pos += 4
		if vl < 0 || pos+vl > len(b) {
			return nil, errVariantTruncated
		}
		d[key] = variantValue{typ: typ, data: append([]byte(nil), b[pos:pos+vl]...)}
		pos += vl
	}
}

func (d variantDict) bytes() []byte {
	le := binary.LittleEndian
	var b bytes.Buffer
	var u16 [2]byte
	le.PutUint16(u16[:], vdVersion)
	b.Write(u16[:])

	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var n [4]byte
	for _, k := range keys {
		v := d[k]
		b.WriteByte(v.typ)
		le.PutUint32(n[:], uint32(len(k)))
		b.Write(n[:])
		b.WriteString(k)
		le.PutUint32(n[:], uint32(len(v.data)))
		b.Write(n[:])
		b.Write(v.data)
	}
	b.WriteByte(vdEnd)
	return b.Bytes()
}

func (d variantDict) uint64(key string) (uint64, bool) {
	v, ok := d[key]
	if !ok {
		return 0, false
	}
	switch {
	case v.typ == vdUInt64 && len(v.data) == 8:
		return binary.LittleEndian.Uint64(v.data), true
	case v.typ == vdUInt32 && len(v.data) == 4:
		return uint64(binary.LittleEndian.Uint32(v.data)), true
	}
	return 0, false
}

func (d variantDict) bytesOf(key string) ([]byte, bool) {
	v, ok := d[key]
	if !ok || v.typ != vdByteArray {
		return nil, false
	}
	return v.data, true
}

func (d variantDict) setUint32(key string, v uint32) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	d[key] = variantValue{typ: vdUInt32, data: b}
}

func (d variantDict) setUint64(key string, v uint64) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	d[key] = variantValue{typ: vdUInt64, data: b}
}

func (d variantDict) setBytes(key string, v []byte) {
	d[key] = variantValue{typ: vdByteArray, data: v}
}
