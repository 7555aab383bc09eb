// Package kdb implements the KeePass 1.x container.
//
// The 124-byte clear header is followed by an AES-256 or Twofish CBC body
// holding all groups, then all entries. Groups form a tree through their
// level field: a group belongs to the nearest preceding group one level up.
package kdb

import (
	"encoding/binary"

	"github.com/dmitrijs2005/gophsafe/internal/cryptox"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/node"
)

const (
	sig1       = 0x9AA2D903
	sig2       = 0xB54BFB65
	version    = 0x00030004
	versionMsk = 0xFFFFFF00
	headerSize = 124

	flagSHA2     = 1
	flagRijndael = 2
	flagArcFour  = 4
	flagTwofish  = 8

	// DefaultRounds is the AES-KDF round count for new databases.
	DefaultRounds = 60000

	// BackupGroupTitle names the root-level group KeePass 1.x keeps deleted
	// and superseded entries in.
	BackupGroupTitle = "Backup"

	defaultGroupTitle = "General"
)

type header struct {
	flags       uint32
	version     uint32
	masterSeed  []byte
	iv          []byte
	numGroups   uint32
	numEntries  uint32
	contentHash []byte
	transSeed   []byte
	rounds      uint32
}

func parseHeader(data []byte) (*header, error) {
	if len(data) < headerSize {
		return nil, format.Malformed(format.KeePass1, "header truncated")
	}
	le := binary.LittleEndian
	if le.Uint32(data[0:4]) != sig1 || le.Uint32(data[4:8]) != sig2 {
		return nil, format.Malformed(format.KeePass1, "bad signature")
	}
	h := &header{
		flags:       le.Uint32(data[8:12]),
		version:     le.Uint32(data[12:16]),
		masterSeed:  data[16:32],
		iv:          data[32:48],
		numGroups:   le.Uint32(data[48:52]),
		numEntries:  le.Uint32(data[52:56]),
		contentHash: data[56:88],
		transSeed:   data[88:120],
		rounds:      le.Uint32(data[120:124]),
	}
	if h.version&versionMsk != version&versionMsk {
		return nil, format.Malformed(format.KeePass1, "unsupported version %#x", h.version)
	}
	return h, nil
}

func (h *header) bytes() []byte {
	le := binary.LittleEndian
	out := make([]byte, headerSize)
	le.PutUint32(out[0:4], sig1)
	le.PutUint32(out[4:8], sig2)
	le.PutUint32(out[8:12], h.flags)
	le.PutUint32(out[12:16], h.version)
	copy(out[16:32], h.masterSeed)
	copy(out[32:48], h.iv)
	le.PutUint32(out[48:52], h.numGroups)
	le.PutUint32(out[52:56], h.numEntries)
	copy(out[56:88], h.contentHash)
	copy(out[88:120], h.transSeed)
	le.PutUint32(out[120:124], h.rounds)
	return out
}

func (h *header) cipher() (cryptox.BlockCipher, bool) {
	switch {
	case h.flags&flagRijndael != 0:
		return cryptox.AES256, true
	case h.flags&flagTwofish != 0:
		return cryptox.Twofish, true
	}
	return 0, false
}

// Option configures the adaptor.
type Option func(*Adaptor)

// WithRounds sets the AES-KDF round count for new databases.
func WithRounds(n uint32) Option {
	return func(a *Adaptor) {
		if n > 0 {
			a.rounds = n
		}
	}
}

// WithTwofish makes new databases use Twofish instead of AES-256.
func WithTwofish() Option {
	return func(a *Adaptor) { a.cipher = cryptox.Twofish }
}

// Adaptor is the KeePass 1.x codec.
type Adaptor struct {
	rounds uint32
	cipher cryptox.BlockCipher
}

// New returns a KeePass 1.x adaptor.
func New(opts ...Option) *Adaptor {
	a := &Adaptor{rounds: DefaultRounds, cipher: cryptox.AES256}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adaptor) Format() format.Format { return format.KeePass1 }

func (a *Adaptor) FileExtension() string { return "kdb" }

func (a *Adaptor) Features() format.Features {
	return format.Features{
		LegacyBackup:   true,
		MaxAttachments: 1,
		KeyFile:        true,
	}
}

// Sniff checks both header signatures.
func (a *Adaptor) Sniff(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	le := binary.LittleEndian
	return le.Uint32(data[0:4]) == sig1 && le.Uint32(data[4:8]) == sig2
}

// Probe checks the transform round count and file size.
func (a *Adaptor) Probe(data []byte, limits format.Limits) error {
	h, err := parseHeader(data)
	if err != nil {
		return err
	}
	if limits.MaxFileSizeBytes > 0 && uint64(len(data)) > limits.MaxFileSizeBytes {
		return format.Unsafe(format.KeePass1, "file size %d exceeds %d", len(data), limits.MaxFileSizeBytes)
	}
	if limits.MaxKDFIterations > 0 && uint64(h.rounds) > limits.MaxKDFIterations {
		return format.Unsafe(format.KeePass1, "transform rounds %d exceed %d", h.rounds, limits.MaxKDFIterations)
	}
	return nil
}

// NewContent returns a database with a single top-level group, since entries
// cannot live under the root.
func (a *Adaptor) NewContent() (*format.Content, error) {
	tree, err := node.NewTree(node.NewGroup(""))
	if err != nil {
		return nil, err
	}
	g := node.NewGroup(defaultGroupTitle)
	if err := tree.Add(tree.Root().ID, g); err != nil {
		return nil, err
	}
	return &format.Content{Tree: tree, Meta: NewMetadata(a.rounds, a.cipher)}, nil
}

// compositeKey follows KeePass 1.x: the password hash alone, the key file
// digest alone, or the hash of both.
func compositeKey(c format.Credentials) []byte {
	switch {
	case c.Password != nil && len(c.KeyFileDigest) > 0:
		return cryptox.SHA256(cryptox.SHA256([]byte(*c.Password)), c.KeyFileDigest)
	case c.Password != nil:
		return cryptox.SHA256([]byte(*c.Password))
	case len(c.KeyFileDigest) == cryptox.KeyFileDigestSize:
		return append([]byte(nil), c.KeyFileDigest...)
	}
	return nil
}
