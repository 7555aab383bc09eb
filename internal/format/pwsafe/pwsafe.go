// Package pwsafe implements the Password Safe v3 container.
//
// File layout:
//
//	"PWS3" | salt(32) | iter(4) | H(P')(32) | B1B2(32) | B3B4(32) | IV(16)
//	| Twofish-CBC(header fields, record fields) | "PWS3-EOFPWS3-EOF" | HMAC(32)
//
// P' is the stretched password; B1B2 and B3B4 wrap the record key K and the
// HMAC key L with Twofish-ECB under P'.
package pwsafe

import (
	"bytes"
	"encoding/binary"

	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/node"
)

const (
	tag            = "PWS3"
	eofMarker      = "PWS3-EOFPWS3-EOF"
	saltSize       = 32
	headerSize     = 4 + saltSize + 4 + 32 + 32 + 32 + 16
	trailerSize    = 16 + 32
	MinIterations  = 2048
	DefaultVersion = 0x030D

	DefaultIterations = 262144
)

// Option configures the adaptor.
type Option func(*Adaptor)

// WithIterations sets the key stretch iteration count for new databases.
func WithIterations(n uint32) Option {
	return func(a *Adaptor) {
		if n >= MinIterations {
			a.iterations = n
		}
	}
}

// Adaptor is the Password Safe v3 codec.
type Adaptor struct {
	iterations uint32
}

// New returns a Password Safe v3 adaptor.
func New(opts ...Option) *Adaptor {
	a := &Adaptor{iterations: DefaultIterations}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adaptor) Format() format.Format { return format.PasswordSafe }

func (a *Adaptor) FileExtension() string { return "psafe3" }

func (a *Adaptor) Features() format.Features {
	return format.Features{
		History:          true,
		PasswordOnlyHist: true,
		Email:            true,
		OTP:              true,
		MaxAttachments:   0,
		TitleRequired:    true,
		RecordsUnderRoot: true,
		UniqueGroupNames: true,
	}
}

// Sniff checks the "PWS3" tag.
func (a *Adaptor) Sniff(data []byte) bool {
	return len(data) >= len(tag) && bytes.Equal(data[:len(tag)], []byte(tag))
}

// Probe inspects the iteration count in the clear header.
func (a *Adaptor) Probe(data []byte, limits format.Limits) error {
	if !a.Sniff(data) || len(data) < headerSize {
		return format.Malformed(format.PasswordSafe, "header truncated")
	}
	if limits.MaxFileSizeBytes > 0 && uint64(len(data)) > limits.MaxFileSizeBytes {
		return format.Unsafe(format.PasswordSafe, "file size %d exceeds %d", len(data), limits.MaxFileSizeBytes)
	}
	iter := binary.LittleEndian.Uint32(data[36:40])
	if limits.MaxKDFIterations > 0 && uint64(iter) > limits.MaxKDFIterations {
		return format.Unsafe(format.PasswordSafe, "iterations %d exceed %d", iter, limits.MaxKDFIterations)
	}
	return nil
}

// NewContent returns an empty database: a virtual root group and metadata.
func (a *Adaptor) NewContent() (*format.Content, error) {
	tree, err := node.NewTree(node.NewGroup(""))
	if err != nil {
		return nil, err
	}
	return &format.Content{Tree: tree, Meta: NewMetadata(a.iterations)}, nil
}
