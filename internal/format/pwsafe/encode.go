package pwsafe

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/cryptox"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/node"
)

var (
	errKeyFile            = errors.New("password safe databases do not support key files")
	errUnterminatedHeader = errors.New("unterminated header")
)

// Encode serializes c into a Password Safe v3 file. Attachments, custom
// fields and custom icons are not representable and are not written.
func (a *Adaptor) Encode(ctx context.Context, c *format.Content, creds format.Credentials) ([]byte, error) {
	if len(creds.KeyFileDigest) > 0 {
		return nil, fmt.Errorf("%w: %w", format.ErrUnsupported, errKeyFile)
	}
	meta, ok := c.Meta.(*Metadata)
	if !ok {
		meta = NewMetadata(a.iterations)
	}
	iter := meta.Iterations
	if iter < MinIterations {
		iter = a.iterations
	}

	salt := common.GenerateRandByteArray(saltSize)
	stretched, err := cryptox.StretchKeySHA256(ctx, password(creds), salt, iter)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(stretched)

	k := common.GenerateRandByteArray(32)
	defer common.WipeByteArray(k)
	l := common.GenerateRandByteArray(32)
	defer common.WipeByteArray(l)
	iv := common.GenerateRandByteArray(16)

	b12, err := cryptox.EncryptECB(cryptox.Twofish, stretched, k)
	if err != nil {
		return nil, err
	}
	b34, err := cryptox.EncryptECB(cryptox.Twofish, stretched, l)
	if err != nil {
		return nil, err
	}

	w := &fieldWriter{mac: hmac.New(sha256.New, l)}
	writeHeader(w, meta, c.Tree)
	writeRecords(w, c.Tree)

	body, err := cryptox.EncryptCBCNoPadding(cryptox.Twofish, k, iv, w.buf.Bytes())
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.WriteString(tag)
	out.Write(salt)
	iterBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(iterBytes, iter)
	out.Write(iterBytes)
	out.Write(cryptox.SHA256(stretched))
	out.Write(b12)
	out.Write(b34)
	out.Write(iv)
	out.Write(body)
	out.WriteString(eofMarker)
	out.Write(w.mac.Sum(nil))
	return out.Bytes(), nil
}

func writeHeader(w *fieldWriter, m *Metadata, tree *node.Tree) {
	v := make([]byte, 2)
	binary.LittleEndian.PutUint16(v, m.Version)
	w.write(hdrVersion, v)
	w.write(hdrUUID, m.UUID[:])
	w.writeString(hdrNonDefaultPrefs, m.NonDefaultPrefs)
	w.writeTime(hdrLastSaveTime, m.LastSave)
	w.writeString(hdrLastSaveApp, m.LastSaveApp)
	w.writeString(hdrLastSaveUser, m.LastSaveUser)
	w.writeString(hdrLastSaveHost, m.LastSaveHost)
	w.writeString(hdrDatabaseName, m.DatabaseName)
	w.writeString(hdrDescription, m.Description)

	tree.Walk(func(n *node.Node) bool {
		if n.IsGroup && n.ID != tree.Root().ID && len(n.ChildIDs()) == 0 {
			w.write(hdrEmptyGroup, []byte(groupPath(tree, n)))
		}
		return true
	})

	for _, f := range m.Unknown {
		w.write(f.Type, f.Data)
	}
	w.write(fldEnd, nil)
}

func writeRecords(w *fieldWriter, tree *node.Tree) {
	tree.Walk(func(n *node.Node) bool {
		if n.IsGroup {
			return true
		}
		w.write(fldUUID, n.ID[:])
		if p := tree.Parent(n); p != nil && p.ID != tree.Root().ID {
			w.write(fldGroup, []byte(groupPath(tree, p)))
		}
		w.write(fldTitle, []byte(n.Title))
		w.write(fldPassword, []byte(n.Password))
		w.writeString(fldUsername, n.Username)
		w.writeString(fldNotes, n.Notes)
		w.writeString(fldURL, n.URL)
		w.writeString(fldEmail, n.Email)
		w.writeString(fldTwoFactor, n.OTP)
		w.writeTime(fldCreated, n.Times.Created)
		w.writeTime(fldAccessed, n.Times.Accessed)
		w.writeTime(fldModified, n.Times.Modified)
		if n.Times.Expiry {
			w.writeTime(fldExpires, n.Times.Expires)
		}

		if len(n.History) > 0 {
			entries := make([]historyEntry, 0, len(n.History))
			for _, h := range n.History {
				entries = append(entries, historyEntry{changed: h.Times.Modified, password: h.Password})
			}
			w.writeString(fldHistory, encodeHistory(entries))
		}
		w.write(fldEnd, nil)
		return true
	})
}

// groupPath is the dotted path of g below the virtual root.
func groupPath(tree *node.Tree, g *node.Node) string {
	path := tree.Path(g.ID)
	titles := make([]string, 0, len(path))
	for _, n := range path[1:] {
		titles = append(titles, n.Title)
	}
	return joinPath(titles)
}
