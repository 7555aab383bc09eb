package kdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/cryptox"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/google/uuid"
)

// Encode serializes c into a KeePass 1.x file. Only the first attachment of
// a record is written; history, custom fields and custom icons are dropped.
func (a *Adaptor) Encode(ctx context.Context, c *format.Content, creds format.Credentials) ([]byte, error) {
	meta, ok := c.Meta.(*Metadata)
	if !ok {
		meta = NewMetadata(a.rounds, a.cipher)
	}
	composite := compositeKey(creds)
	if composite == nil {
		return nil, fmt.Errorf("kdb encode: %w: a password or key file is required", common.ErrorValidation)
	}
	defer common.WipeByteArray(composite)

	w := &fieldWriter{}
	ids, numGroups := writeGroups(w, c.Tree, meta)
	numEntries, err := writeEntries(w, c, ids)
	if err != nil {
		return nil, err
	}
	if numGroups > 0 {
		first := ids[c.Tree.ChildGroups(c.Tree.Root())[0].ID]
		for _, ms := range meta.MetaStreams {
			writeMetaStream(w, first, ms)
			numEntries++
		}
	}
	plain := w.buf.Bytes()

	rounds := meta.Rounds
	if rounds == 0 {
		rounds = a.rounds
	}
	h := &header{
		flags:       flagSHA2 | flagRijndael,
		version:     version,
		masterSeed:  common.GenerateRandByteArray(16),
		iv:          common.GenerateRandByteArray(16),
		numGroups:   numGroups,
		numEntries:  numEntries,
		contentHash: cryptox.SHA256(plain),
		transSeed:   common.GenerateRandByteArray(32),
		rounds:      rounds,
	}
	if meta.Cipher == cryptox.Twofish {
		h.flags = flagSHA2 | flagTwofish
	}

	transformed, err := cryptox.AESKDF(ctx, composite, h.transSeed, uint64(rounds))
	if err != nil {
		return nil, err
	}
	key := cryptox.SHA256(h.masterSeed, transformed)
	defer common.WipeByteArray(key)

	body, err := cryptox.EncryptCBC(meta.Cipher, key, h.iv, plain)
	if err != nil {
		return nil, fmt.Errorf("kdb encode: %w", err)
	}
	return append(h.bytes(), body...), nil
}

// writeGroups writes all groups in pre-order and returns the file id of each.
func writeGroups(w *fieldWriter, tree *node.Tree, meta *Metadata) (map[uuid.UUID]uint32, uint32) {
	ids := map[uuid.UUID]uint32{}
	used := map[uint32]bool{}
	tree.Walk(func(n *node.Node) bool {
		if n.IsGroup && n.ID != tree.Root().ID {
			if id, ok := groupIDFromUUID(n.ID); ok && !used[id] {
				ids[n.ID] = id
				used[id] = true
			}
		}
		return true
	})

	next := uint32(1)
	var count uint32
	tree.Walk(func(n *node.Node) bool {
		if !n.IsGroup || n.ID == tree.Root().ID {
			return true
		}
		id, ok := ids[n.ID]
		if !ok {
			for used[next] {
				next++
			}
			id = next
			used[id] = true
			ids[n.ID] = id
		}

		level := make([]byte, 2)
		binary.LittleEndian.PutUint16(level, uint16(len(tree.Path(n.ID))-2))

		w.writeUint32(grpID, id)
		w.writeString(grpName, n.Title)
		w.writeTime(grpCreated, n.Times.Created)
		w.writeTime(grpModified, n.Times.Modified)
		w.writeTime(grpAccessed, n.Times.Accessed)
		w.writeTime(grpExpires, expiry(n))
		w.writeUint32(grpImage, uint32(n.Icon.Index))
		w.write(grpLevel, level)
		w.writeUint32(grpFlags, meta.GroupFlags[id])
		w.end()
		count++
		return true
	})
	return ids, count
}

func writeEntries(w *fieldWriter, c *format.Content, ids map[uuid.UUID]uint32) (uint32, error) {
	var (
		count uint32
		err   error
	)
	tree := c.Tree
	tree.Walk(func(n *node.Node) bool {
		if err != nil {
			return false
		}
		if n.IsGroup {
			return true
		}
		p := tree.Parent(n)
		gid, ok := ids[p.ID]
		if !ok {
			err = fmt.Errorf("kdb encode: %w: record %q is not inside a group", common.ErrorValidation, n.Title)
			return false
		}

		var (
			binName string
			binData []byte
		)
		if len(n.Attachments) > 0 {
			ref := n.Attachments[0]
			if ref.Index < 0 || ref.Index >= len(c.Attachments) {
				err = fmt.Errorf("kdb encode: record %q: %w: attachment %d", n.Title, common.ErrorNotFound, ref.Index)
				return false
			}
			binName, binData = ref.Filename, c.Attachments[ref.Index].Data
		}

		w.write(entUUID, n.ID[:])
		w.writeUint32(entGroupID, gid)
		w.writeUint32(entImage, uint32(n.Icon.Index))
		w.writeString(entTitle, n.Title)
		w.writeString(entURL, n.URL)
		w.writeString(entUsername, n.Username)
		w.writeString(entPassword, n.Password)
		w.writeString(entNotes, n.Notes)
		w.writeTime(entCreated, n.Times.Created)
		w.writeTime(entModified, n.Times.Modified)
		w.writeTime(entAccessed, n.Times.Accessed)
		w.writeTime(entExpires, expiry(n))
		w.writeString(entBinaryDesc, binName)
		w.write(entBinaryData, binData)
		w.end()
		count++
		return true
	})
	return count, err
}

func writeMetaStream(w *fieldWriter, groupID uint32, ms MetaStream) {
	now := node.Now()
	w.write(entUUID, make([]byte, 16))
	w.writeUint32(entGroupID, groupID)
	w.writeUint32(entImage, 0)
	w.writeString(entTitle, metaTitle)
	w.writeString(entURL, metaURL)
	w.writeString(entUsername, metaUsername)
	w.writeString(entPassword, "")
	w.writeString(entNotes, ms.Description)
	w.writeTime(entCreated, now)
	w.writeTime(entModified, now)
	w.writeTime(entAccessed, now)
	w.writeTime(entExpires, neverExpires)
	w.writeString(entBinaryDesc, metaBinDesc)
	w.write(entBinaryData, ms.Data)
	w.end()
}

func expiry(n *node.Node) time.Time {
	if n.Times.Expiry {
		return n.Times.Expires
	}
	return neverExpires
}
