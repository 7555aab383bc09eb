// Package kdbx implements the KeePass 2.x containers, KDBX 3.1 and KDBX 4.
//
// Both versions share the outer header layout (field sizes differ), the XML
// document and the protected-value scheme. 3.1 wraps the XML in a hashed
// block stream inside the cipher; 4 authenticates the header and every
// encrypted block with HMAC-SHA256 and moves binaries into an inner header.
package kdbx

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/dmitrijs2005/gophsafe/internal/cryptox"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/google/uuid"
)

// Defaults for new databases.
const (
	DefaultAESRounds         = 60000
	DefaultArgon2Iterations  = 2
	DefaultArgon2MemoryKiB   = 64 * 1024
	DefaultArgon2Parallelism = 2

	// RootGroupTitle is the name of the root group of a new database.
	RootGroupTitle = "Root"
)

// Option configures the adaptor.
type Option func(*Adaptor)

// WithAESKDF makes new KDBX 4 databases use AES-KDF, and sets the rounds
// for KDBX 3.1.
func WithAESKDF(rounds uint64) Option {
	return func(a *Adaptor) {
		if rounds > 0 {
			a.aesRounds = rounds
			a.argon2 = false
		}
	}
}

// WithArgon2id sets the Argon2id parameters for new KDBX 4 databases.
func WithArgon2id(iterations, memoryKiB uint64, parallelism uint32) Option {
	return func(a *Adaptor) {
		if iterations > 0 && memoryKiB > 0 && parallelism > 0 {
			a.argon2 = true
			a.argonIter, a.argonMemKiB, a.argonPar = iterations, memoryKiB, parallelism
		}
	}
}

// WithCipher sets the payload cipher for new databases.
func WithCipher(id uuid.UUID) Option {
	return func(a *Adaptor) {
		if _, err := ivSize(id); err == nil {
			a.cipher = id
		}
	}
}

// Adaptor is the codec for one KDBX major version.
type Adaptor struct {
	version format.Format
	cipher  uuid.UUID

	aesRounds   uint64
	argon2      bool
	argonIter   uint64
	argonMemKiB uint64
	argonPar    uint32
}

func newAdaptor(v format.Format, opts []Option) *Adaptor {
	a := &Adaptor{
		version:     v,
		cipher:      CipherAES256,
		aesRounds:   DefaultAESRounds,
		argon2:      v == format.KeePass4,
		argonIter:   DefaultArgon2Iterations,
		argonMemKiB: DefaultArgon2MemoryKiB,
		argonPar:    DefaultArgon2Parallelism,
	}
	for _, o := range opts {
		o(a)
	}
	if v == format.KeePass {
		a.argon2 = false
	}
	return a
}

// NewKDBX3 returns the KDBX 3.1 adaptor.
func NewKDBX3(opts ...Option) *Adaptor { return newAdaptor(format.KeePass, opts) }

// NewKDBX4 returns the KDBX 4 adaptor.
func NewKDBX4(opts ...Option) *Adaptor { return newAdaptor(format.KeePass4, opts) }

func (a *Adaptor) Format() format.Format { return a.version }

func (a *Adaptor) FileExtension() string { return "kdbx" }

func (a *Adaptor) Features() format.Features {
	return format.Features{
		RecycleBin:       true,
		History:          true,
		CustomFields:     true,
		Email:            true,
		OTP:              true,
		MaxAttachments:   -1,
		CustomIcons:      true,
		KeyFile:          true,
		RecordsUnderRoot: true,
	}
}

func (a *Adaptor) v4() bool { return a.version == format.KeePass4 }

func (a *Adaptor) newKDF() KDFParams {
	if a.argon2 && a.v4() {
		return Argon2idParams(a.argonIter, a.argonMemKiB, a.argonPar)
	}
	return AESKDFParams(a.aesRounds)
}

// Sniff checks the signatures and the major version.
func (a *Adaptor) Sniff(data []byte) bool {
	switch sniffVersion(data) {
	case versionMajor3:
		return a.version == format.KeePass
	case versionMajor4:
		return a.version == format.KeePass4
	}
	return false
}

// Probe reads the outer header and checks the KDF cost against limits.
func (a *Adaptor) Probe(data []byte, limits format.Limits) error {
	h, err := a.header(data)
	if err != nil {
		return err
	}
	if limits.MaxFileSizeBytes > 0 && uint64(len(data)) > limits.MaxFileSizeBytes {
		return format.Unsafe(a.version, "file size %d exceeds %d", len(data), limits.MaxFileSizeBytes)
	}
	return h.kdf.checkLimits(a.version, limits)
}

// NewContent returns an empty database with a root group.
func (a *Adaptor) NewContent() (*format.Content, error) {
	tree, err := node.NewTree(node.NewGroup(RootGroupTitle))
	if err != nil {
		return nil, err
	}
	meta := NewMetadata(a.version, a.newKDF())
	meta.Cipher = a.cipher
	return &format.Content{Tree: tree, Meta: meta}, nil
}

// header parses the outer header and normalizes 3.1 AES parameters into kdf.
func (a *Adaptor) header(data []byte) (*outerHeader, error) {
	h, err := readHeader(data)
	if err != nil {
		return nil, format.Malformed(a.version, "%w", err)
	}
	if h.v4() != a.v4() {
		return nil, format.Malformed(a.version, "file is KDBX %d.%d", h.major, h.minor)
	}
	if !h.v4() {
		h.kdf = KDFParams{UUID: KDFAES, Seed: h.transformSeed, Rounds: h.transformRounds}
	}
	return h, nil
}

func decryptPayload(cipherID uuid.UUID, key, iv, data []byte) ([]byte, error) {
	n, err := ivSize(cipherID)
	if err != nil {
		return nil, err
	}
	if len(iv) != n {
		return nil, fmt.Errorf("iv must be %d bytes", n)
	}
	switch cipherID {
	case CipherChaCha20:
		return cryptox.XORChaCha20(key, iv, data)
	case CipherTwofish:
		return cryptox.DecryptCBC(cryptox.Twofish, key, iv, data)
	default:
		return cryptox.DecryptCBC(cryptox.AES256, key, iv, data)
	}
}

func encryptPayload(cipherID uuid.UUID, key, iv, data []byte) ([]byte, error) {
	switch cipherID {
	case CipherChaCha20:
		return cryptox.XORChaCha20(key, iv, data)
	case CipherTwofish:
		return cryptox.EncryptCBC(cryptox.Twofish, key, iv, data)
	default:
		return cryptox.EncryptCBC(cryptox.AES256, key, iv, data)
	}
}

func parseXML(b []byte) (*xmlFile, error) {
	doc := &xmlFile{}
	if err := xml.NewDecoder(bytes.NewReader(b)).Decode(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func marshalXML(doc *xmlFile) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="utf-8" standalone="yes"?>` + "\n")
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "\t")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
