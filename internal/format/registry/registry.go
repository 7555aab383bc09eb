// Package registry maps format tags to adaptors and answers the static
// questions asked of an unknown blob: which format, which extension, is it
// safe to process unattended.
package registry

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/format/kdb"
	"github.com/dmitrijs2005/gophsafe/internal/format/kdbx"
	"github.com/dmitrijs2005/gophsafe/internal/format/pwsafe"
)

// Options carries the KDF costs used for new databases.
type Options struct {
	PasswordSafeIterations uint32
	AESKDFRounds           uint64
	Argon2Iterations       uint64
	Argon2MemoryKiB        uint64
	Argon2Parallelism      uint32
}

// Registry is an ordered set of adaptors. Sniffing tries them in order.
type Registry struct {
	adaptors []format.Adaptor
}

// New returns a registry over adaptors.
func New(adaptors ...format.Adaptor) *Registry {
	return &Registry{adaptors: adaptors}
}

// Default returns a registry with every supported format.
func Default(o Options) *Registry {
	var (
		kdbxOpts []kdbx.Option
		kdbOpts  []kdb.Option
	)
	if o.AESKDFRounds > 0 {
		kdbxOpts = append(kdbxOpts, kdbx.WithAESKDF(o.AESKDFRounds))
		if o.AESKDFRounds <= 0xFFFFFFFF {
			kdbOpts = append(kdbOpts, kdb.WithRounds(uint32(o.AESKDFRounds)))
		}
	}
	kdbx4Opts := append([]kdbx.Option(nil), kdbxOpts...)
	if o.Argon2Iterations > 0 {
		kdbx4Opts = append(kdbx4Opts, kdbx.WithArgon2id(o.Argon2Iterations, o.Argon2MemoryKiB, o.Argon2Parallelism))
	}

	return New(
		kdbx.NewKDBX4(kdbx4Opts...),
		kdbx.NewKDBX3(kdbxOpts...),
		kdb.New(kdbOpts...),
		pwsafe.New(pwsafe.WithIterations(o.PasswordSafeIterations)),
	)
}

// Adaptor returns the adaptor for f.
func (r *Registry) Adaptor(f format.Format) (format.Adaptor, error) {
	for _, a := range r.adaptors {
		if a.Format() == f {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: no adaptor for %s", format.ErrFormatUnrecognized, f)
}

// Formats lists the registered formats in sniffing order.
func (r *Registry) Formats() []format.Format {
	out := make([]format.Format, 0, len(r.adaptors))
	for _, a := range r.adaptors {
		out = append(out, a.Format())
	}
	return out
}

// LikelyFormat returns the first format whose adaptor recognizes the header,
// or format.Unknown. It never fails.
func (r *Registry) LikelyFormat(data []byte) format.Format {
	if a := r.sniff(data); a != nil {
		return a.Format()
	}
	return format.Unknown
}

func (r *Registry) sniff(data []byte) format.Adaptor {
	for _, a := range r.adaptors {
		if a.Sniff(data) {
			return a
		}
	}
	return nil
}

// IsValid reports whether data is a recognizable database with a parseable
// header. It does not need credentials.
func (r *Registry) IsValid(data []byte) error {
	a := r.sniff(data)
	if a == nil {
		return format.ErrFormatUnrecognized
	}
	return a.Probe(data, format.Limits{})
}

// IsUnsafeToAutoProcess reports whether an automated caller should refuse to
// decode data: it is recognized but its header asks for more work than
// limits allow, or it cannot be parsed at all.
func (r *Registry) IsUnsafeToAutoProcess(data []byte, limits format.Limits) bool {
	a := r.sniff(data)
	if a == nil {
		return false
	}
	return a.Probe(data, limits) != nil
}

var (
	keepassSig1 = []byte{0x03, 0xD9, 0xA2, 0x9A}
	magicPrefix = []struct {
		prefix []byte
		ext    string
	}{
		{[]byte("PK\x03\x04"), "zip"},
		{[]byte{0x1F, 0x8B}, "gz"},
		{[]byte("%PDF"), "pdf"},
		{[]byte("\x89PNG"), "png"},
		{[]byte("<?xml"), "xml"},
		{[]byte("PWS"), "psafe3"},
	}
)

// LikelyExtension guesses a file extension for diagnostics. Recognized data
// gets its format's extension; otherwise a few well-known magic numbers are
// tried, and anything else is "dat".
func (r *Registry) LikelyExtension(data []byte) string {
	if a := r.sniff(data); a != nil {
		return a.FileExtension()
	}
	if bytes.HasPrefix(data, keepassSig1) && len(data) >= 8 {
		// KeePass family signature with an unknown second signature or version.
		switch binary.LittleEndian.Uint32(data[4:8]) {
		case 0xB54BFB65:
			return "kdb"
		default:
			return "kdbx"
		}
	}
	for _, m := range magicPrefix {
		if bytes.HasPrefix(data, m.prefix) {
			return m.ext
		}
	}
	return "dat"
}
