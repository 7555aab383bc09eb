package pwsafe

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/cryptox"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/google/uuid"
)

// Decode decrypts and parses a Password Safe v3 file.
func (a *Adaptor) Decode(ctx context.Context, data []byte, creds format.Credentials) (*format.Content, error) {
	const f = format.PasswordSafe

	if !a.Sniff(data) {
		return nil, format.Malformed(f, "missing PWS3 tag")
	}
	if len(data) < headerSize+trailerSize {
		return nil, format.Malformed(f, "file truncated")
	}
	if len(creds.KeyFileDigest) > 0 {
		return nil, &format.DecodeError{Format: f, Kind: format.ErrUnsupported, Err: errKeyFile}
	}

	salt := data[4:36]
	iter := binary.LittleEndian.Uint32(data[36:40])
	hashP := data[40:72]
	b12 := data[72:104]
	b34 := data[104:136]
	iv := data[136:152]

	body := data[headerSize : len(data)-trailerSize]
	eof := data[len(data)-trailerSize : len(data)-32]
	mac := data[len(data)-32:]

	if !bytes.Equal(eof, []byte(eofMarker)) {
		return nil, format.Malformed(f, "missing EOF marker")
	}
	if len(body)%blockSize != 0 {
		return nil, format.Malformed(f, "body is not block aligned")
	}
	if iter < MinIterations {
		return nil, format.Malformed(f, "iteration count %d below minimum", iter)
	}

	stretched, err := cryptox.StretchKeySHA256(ctx, password(creds), salt, iter)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(stretched)

	if subtle.ConstantTimeCompare(cryptox.SHA256(stretched), hashP) != 1 {
		return nil, format.AuthFailed(f)
	}

	k, err := cryptox.DecryptECB(cryptox.Twofish, stretched, b12)
	if err != nil {
		return nil, format.AuthFailed(f)
	}
	defer common.WipeByteArray(k)
	l, err := cryptox.DecryptECB(cryptox.Twofish, stretched, b34)
	if err != nil {
		return nil, format.AuthFailed(f)
	}
	defer common.WipeByteArray(l)

	var plain []byte
	if len(body) > 0 {
		plain, err = cryptox.DecryptCBCNoPadding(cryptox.Twofish, k, iv, body)
		if err != nil {
			return nil, format.AuthFailed(f)
		}
	}

	fields, err := readFields(plain)
	if err != nil {
		return nil, format.AuthFailed(f)
	}

	h := hmac.New(sha256.New, l)
	for _, fl := range fields {
		h.Write(fl.data)
	}
	if !hmac.Equal(h.Sum(nil), mac) {
		return nil, format.AuthFailed(f)
	}

	meta := &Metadata{Iterations: iter}
	rest, emptyGroups, err := parseHeader(fields, meta)
	if err != nil {
		return nil, format.Malformed(f, "%v", err)
	}

	tree, err := node.NewTree(node.NewGroup(""))
	if err != nil {
		return nil, err
	}
	b := &treeBuilder{tree: tree, groups: map[string]*node.Node{}}

	for len(rest) > 0 {
		end := indexOfEnd(rest)
		if end < 0 {
			return nil, format.Malformed(f, "unterminated record")
		}
		rec := rest[:end]
		rest = rest[end+1:]
		if err := b.addRecord(rec); err != nil {
			return nil, format.Malformed(f, "%v", err)
		}
	}

	for _, p := range emptyGroups {
		if _, err := b.group(splitPath(p)); err != nil {
			return nil, format.Malformed(f, "%v", err)
		}
	}

	return &format.Content{Tree: tree, Meta: meta}, nil
}

func indexOfEnd(fields []field) int {
	for i, fl := range fields {
		if fl.typ == fldEnd {
			return i
		}
	}
	return -1
}

func parseHeader(fields []field, meta *Metadata) ([]field, []string, error) {
	var empty []string
	for i, fl := range fields {
		switch fl.typ {
		case fldEnd:
			return fields[i+1:], empty, nil
		case hdrVersion:
			if len(fl.data) == 2 {
				meta.Version = binary.LittleEndian.Uint16(fl.data)
			}
		case hdrUUID:
			if id, err := uuid.FromBytes(fl.data); err == nil {
				meta.UUID = id
			}
		case hdrNonDefaultPrefs:
			meta.NonDefaultPrefs = string(fl.data)
		case hdrLastSaveTime:
			meta.LastSave = decodeTime(fl.data)
		case hdrLastSaveApp:
			meta.LastSaveApp = string(fl.data)
		case hdrLastSaveUser:
			meta.LastSaveUser = string(fl.data)
		case hdrLastSaveHost:
			meta.LastSaveHost = string(fl.data)
		case hdrDatabaseName:
			meta.DatabaseName = string(fl.data)
		case hdrDescription:
			meta.Description = string(fl.data)
		case hdrEmptyGroup:
			empty = append(empty, string(fl.data))
		default:
			meta.Unknown = append(meta.Unknown, RawField{Type: fl.typ, Data: fl.data})
		}
	}
	return nil, nil, errUnterminatedHeader
}

type treeBuilder struct {
	tree   *node.Tree
	groups map[string]*node.Node
}

// group returns the group at path, creating missing levels in order.
func (b *treeBuilder) group(path []string) (*node.Node, error) {
	parent := b.tree.Root()
	for i := range path {
		key := joinPath(path[:i+1])
		g, ok := b.groups[key]
		if !ok {
			g = node.NewGroup(path[i])
			if err := b.tree.Add(parent.ID, g); err != nil {
				return nil, err
			}
			b.groups[key] = g
		}
		parent = g
	}
	return parent, nil
}

func (b *treeBuilder) addRecord(fields []field) error {
	r := &node.Node{}
	var (
		groupPath string
		history   []historyEntry
	)

	for _, fl := range fields {
		switch fl.typ {
		case fldUUID:
			id, err := uuid.FromBytes(fl.data)
			if err != nil {
				return err
			}
			r.ID = id
		case fldGroup:
			groupPath = string(fl.data)
		case fldTitle:
			r.Title = string(fl.data)
		case fldUsername:
			r.Username = string(fl.data)
		case fldNotes:
			r.Notes = string(fl.data)
		case fldPassword:
			r.Password = string(fl.data)
		case fldCreated:
			r.Times.Created = decodeTime(fl.data)
		case fldAccessed:
			r.Times.Accessed = decodeTime(fl.data)
		case fldModified:
			r.Times.Modified = decodeTime(fl.data)
		case fldExpires:
			r.Times.Expires = decodeTime(fl.data)
			r.Times.Expiry = !r.Times.Expires.IsZero()
		case fldURL:
			r.URL = string(fl.data)
		case fldEmail:
			r.Email = string(fl.data)
		case fldTwoFactor:
			r.OTP = string(fl.data)
		case fldHistory:
			h, err := decodeHistory(string(fl.data))
			if err != nil {
				return err
			}
			history = h
		}
	}

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	// Only old passwords are stored; every other field of a version is the
	// record's current value.
	for _, h := range history {
		snap := r.Snapshot()
		snap.Password = h.password
		snap.Times.Modified = h.changed
		r.History = append(r.History, snap)
	}

	parent, err := b.group(splitPath(groupPath))
	if err != nil {
		return err
	}
	return b.tree.Add(parent.ID, r)
}

func password(c format.Credentials) []byte {
	if c.Password == nil {
		return nil
	}
	return []byte(*c.Password)
}
