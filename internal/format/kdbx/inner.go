package kdbx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophsafe/internal/node"
)

// KDBX 4 inner header field ids.
const (
	innerEnd      = 0
	innerStreamID = 1
	innerKey      = 2
	innerBinary   = 3

	binaryFlagProtected = 0x01
)

type innerHeader struct {
	streamID  uint32
	streamKey []byte
	binaries  []node.Attachment
}

// readInnerHeader parses the inner header and returns the XML that follows.
func readInnerHeader(b []byte) (*innerHeader, []byte, error) {
	le := binary.LittleEndian
	h := &innerHeader{}
	for {
		if len(b) < 5 {
			return nil, nil, errors.New("inner header truncated")
		}
		id := b[0]
		size := int(int32(le.Uint32(b[1:5])))
		b = b[5:]
		if size < 0 || size > len(b) {
			return nil, nil, errors.New("inner header truncated")
		}
		val := b[:size]
		b = b[size:]

		switch id {
		case innerEnd:
			if len(h.streamKey) == 0 {
				return nil, nil, errors.New("inner header without stream key")
			}
			return h, b, nil
		case innerStreamID:
			if size != 4 {
				return nil, nil, errors.New("inner stream id size")
			}
			h.streamID = le.Uint32(val)
		case innerKey:
			h.streamKey = append([]byte(nil), val...)
		case innerBinary:
			if size < 1 {
				return nil, nil, errors.New("empty inner binary")
			}
			h.binaries = append(h.binaries, node.Attachment{
				Protected: val[0]&binaryFlagProtected != 0,
				Data:      append([]byte(nil), val[1:]...),
			})
		default:
			return nil, nil, fmt.Errorf("unknown inner header field %d", id)
		}
	}
}

func (h *innerHeader) bytes() []byte {
	var b bytes.Buffer
	field := func(id byte, parts ...[]byte) {
		n := 0
		for _, p := range parts {
			n += len(p)
		}
		var hdr [5]byte
		hdr[0] = id
		binary.LittleEndian.PutUint32(hdr[1:], uint32(n))
		b.Write(hdr[:])
		for _, p := range parts {
			b.Write(p)
		}
	}

	sid := make([]byte, 4)
	binary.LittleEndian.PutUint32(sid, h.streamID)
	field(innerStreamID, sid)
	field(innerKey, h.streamKey)
	for _, a := range h.binaries {
		var flags byte
		if a.Protected {
			flags = binaryFlagProtected
		}
		field(innerBinary, []byte{flags}, a.Data)
	}
	field(innerEnd)
	return b.Bytes()
}
