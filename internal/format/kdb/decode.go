package kdb

import (
	"context"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/cryptox"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/google/uuid"
)

// Decode decrypts and parses a KeePass 1.x file.
func (a *Adaptor) Decode(ctx context.Context, data []byte, creds format.Credentials) (*format.Content, error) {
	const f = format.KeePass1

	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	bc, ok := h.cipher()
	if !ok {
		return nil, format.Malformed(f, "unsupported cipher flags %#x", h.flags)
	}
	body := data[headerSize:]
	if len(body) == 0 || len(body)%16 != 0 {
		return nil, format.Malformed(f, "body is not block aligned")
	}

	composite := compositeKey(creds)
	if composite == nil {
		return nil, format.AuthFailed(f)
	}
	defer common.WipeByteArray(composite)

	transformed, err := cryptox.AESKDF(ctx, composite, h.transSeed, uint64(h.rounds))
	if err != nil {
		return nil, err
	}
	key := cryptox.SHA256(h.masterSeed, transformed)
	defer common.WipeByteArray(key)

	plain, err := cryptox.DecryptCBC(bc, key, h.iv, body)
	if err != nil {
		return nil, format.AuthFailed(f)
	}
	if subtle.ConstantTimeCompare(cryptox.SHA256(plain), h.contentHash) != 1 {
		return nil, format.AuthFailed(f)
	}

	meta := &Metadata{Version: h.version, Cipher: bc, Rounds: h.rounds}
	c, err := parseBody(plain, h, meta)
	if err != nil {
		return nil, format.Malformed(f, "%v", err)
	}
	return c, nil
}

func parseBody(plain []byte, h *header, meta *Metadata) (*format.Content, error) {
	// The root is not stored; give it a fixed identity.
	root := node.NewGroup("")
	root.ID = groupUUID(0)
	root.Times = node.Times{}

	tree, err := node.NewTree(root)
	if err != nil {
		return nil, err
	}
	c := &format.Content{Tree: tree, Meta: meta}
	r := &fieldReader{buf: plain}

	// stack[i] is the most recent group seen at level i.
	var stack []*node.Node
	byID := map[uint32]*node.Node{}

	for i := uint32(0); i < h.numGroups; i++ {
		fields, err := r.record()
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", i, err)
		}
		g, id, level, flags := decodeGroup(fields)
		if id == 0 {
			return nil, fmt.Errorf("group %d has no id", i)
		}
		if _, dup := byID[id]; dup {
			return nil, fmt.Errorf("duplicate group id %d", id)
		}
		if level > len(stack) {
			return nil, fmt.Errorf("group %q skips levels", g.Title)
		}

		parent := tree.Root()
		if level > 0 {
			parent = stack[level-1]
		}
		if err := tree.Add(parent.ID, g); err != nil {
			return nil, err
		}
		stack = append(stack[:level], g)
		byID[id] = g
		if flags != 0 {
			if meta.GroupFlags == nil {
				meta.GroupFlags = map[uint32]uint32{}
			}
			meta.GroupFlags[id] = flags
		}
	}

	for i := uint32(0); i < h.numEntries; i++ {
		fields, err := r.record()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		e := decodeEntry(fields)
		if e.isMetaStream() {
			meta.MetaStreams = append(meta.MetaStreams, MetaStream{Description: e.rec.Notes, Data: e.binary})
			continue
		}
		parent, ok := byID[e.groupID]
		if !ok {
			return nil, fmt.Errorf("entry %q references unknown group %d", e.rec.Title, e.groupID)
		}
		if e.binaryName != "" || len(e.binary) > 0 {
			c.Attachments = append(c.Attachments, node.Attachment{Data: e.binary})
			e.rec.Attachments = []node.AttachmentRef{{Filename: e.binaryName, Index: len(c.Attachments) - 1}}
		}
		if err := tree.Add(parent.ID, e.rec); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func decodeGroup(fields []field) (g *node.Node, id uint32, level int, flags uint32) {
	g = &node.Node{IsGroup: true}
	for _, fl := range fields {
		switch fl.typ {
		case grpID:
			id = readUint32(fl.data)
		case grpName:
			g.Title = cString(fl.data)
		case grpCreated:
			g.Times.Created = unpackTime(fl.data)
		case grpModified:
			g.Times.Modified = unpackTime(fl.data)
		case grpAccessed:
			g.Times.Accessed = unpackTime(fl.data)
		case grpExpires:
			g.Times.Expires = unpackTime(fl.data)
			g.Times.Expiry = !g.Times.Expires.IsZero()
		case grpImage:
			g.Icon.Index = int(readUint32(fl.data))
		case grpLevel:
			if len(fl.data) >= 2 {
				level = int(binary.LittleEndian.Uint16(fl.data))
			}
		case grpFlags:
			flags = readUint32(fl.data)
		}
	}
	g.ID = groupUUID(id)
	return g, id, level, flags
}

type entry struct {
	rec        *node.Node
	groupID    uint32
	binaryName string
	binary     []byte
}

func decodeEntry(fields []field) entry {
	e := entry{rec: &node.Node{}}
	for _, fl := range fields {
		switch fl.typ {
		case entUUID:
			if id, err := uuid.FromBytes(fl.data); err == nil {
				e.rec.ID = id
			}
		case entGroupID:
			e.groupID = readUint32(fl.data)
		case entImage:
			e.rec.Icon.Index = int(readUint32(fl.data))
		case entTitle:
			e.rec.Title = cString(fl.data)
		case entURL:
			e.rec.URL = cString(fl.data)
		case entUsername:
			e.rec.Username = cString(fl.data)
		case entPassword:
			e.rec.Password = cString(fl.data)
		case entNotes:
			e.rec.Notes = cString(fl.data)
		case entCreated:
			e.rec.Times.Created = unpackTime(fl.data)
		case entModified:
			e.rec.Times.Modified = unpackTime(fl.data)
		case entAccessed:
			e.rec.Times.Accessed = unpackTime(fl.data)
		case entExpires:
			e.rec.Times.Expires = unpackTime(fl.data)
			e.rec.Times.Expiry = !e.rec.Times.Expires.IsZero()
		case entBinaryDesc:
			e.binaryName = cString(fl.data)
		case entBinaryData:
			e.binary = append([]byte(nil), fl.data...)
		}
	}
	if e.rec.ID == uuid.Nil {
		e.rec.ID = uuid.New()
	}
	return e
}

// Meta-stream entries carry application data and are not shown to users.
const (
	metaTitle    = "Meta-Info"
	metaUsername = "SYSTEM"
	metaURL      = "$"
	metaBinDesc  = "bin-stream"
)

func (e entry) isMetaStream() bool {
	return e.rec.Title == metaTitle && e.rec.Username == metaUsername &&
		e.rec.URL == metaURL && e.binaryName == metaBinDesc && e.rec.Notes != ""
}
