// Package format defines the contract shared by the container format
// adaptors: format tags, credentials, decoded content, safety limits and the
// typed decode errors.
package format

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/google/uuid"
)

// Format identifies a container format.
type Format int

const (
	Unknown Format = iota
	PasswordSafe
	KeePass1
	KeePass
	KeePass4
)

func (f Format) String() string {
	switch f {
	case PasswordSafe:
		return "PasswordSafe"
	case KeePass1:
		return "KeePass1"
	case KeePass:
		return "KeePass"
	case KeePass4:
		return "KeePass4"
	default:
		return "Unknown"
	}
}

// ParseFormat maps a name as produced by String (case-insensitive, with a few
// common aliases) back to a Format.
func ParseFormat(s string) (Format, error) {
	switch normalize(s) {
	case "passwordsafe", "psafe3", "pwsafe":
		return PasswordSafe, nil
	case "keepass1", "kdb":
		return KeePass1, nil
	case "keepass", "kdbx3", "kdbx31":
		return KeePass, nil
	case "keepass4", "kdbx", "kdbx4":
		return KeePass4, nil
	}
	return Unknown, fmt.Errorf("unknown format %q", s)
}

func normalize(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c+'a'-'A')
		case c == '.' || c == ' ' || c == '-' || c == '_':
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// Features describes what a container can represent. The session layer
// validates mutations against it.
type Features struct {
	RecycleBin       bool
	LegacyBackup     bool
	History          bool
	PasswordOnlyHist bool
	CustomFields     bool
	Email            bool
	OTP              bool
	MaxAttachments   int // -1 means unlimited
	CustomIcons      bool
	KeyFile          bool
	TitleRequired    bool
	RecordsUnderRoot bool
	UniqueGroupNames bool
}

// Credentials is the master credential. A nil Password means "no password",
// which differs from an empty one for formats that hash the password.
type Credentials struct {
	Password      *string
	KeyFileDigest []byte
}

// NewCredentials builds credentials from an optional password and key file digest.
func NewCredentials(password *string, keyFileDigest []byte) Credentials {
	c := Credentials{KeyFileDigest: append([]byte(nil), keyFileDigest...)}
	if password != nil {
		p := *password
		c.Password = &p
	}
	if len(c.KeyFileDigest) == 0 {
		c.KeyFileDigest = nil
	}
	return c
}

// PasswordCredentials is a shorthand for password-only credentials.
func PasswordCredentials(password string) Credentials {
	return Credentials{Password: &password}
}

// IsEmpty reports whether neither a password nor a key file is set.
func (c Credentials) IsEmpty() bool {
	return c.Password == nil && len(c.KeyFileDigest) == 0
}

// Wipe zeroes the key file digest and drops the password reference.
func (c *Credentials) Wipe() {
	for i := range c.KeyFileDigest {
		c.KeyFileDigest[i] = 0
	}
	c.KeyFileDigest = nil
	c.Password = nil
}

// Limits bounds the work a header may ask for before a background caller
// should refuse to process it automatically.
type Limits struct {
	MaxKDFMemoryBytes uint64
	MaxKDFIterations  uint64
	MaxFileSizeBytes  uint64
}

// DefaultLimits mirror what an autofill-style extension can afford.
func DefaultLimits() Limits {
	return Limits{
		MaxKDFMemoryBytes: 64 << 20,
		MaxKDFIterations:  50_000_000,
		MaxFileSizeBytes:  64 << 20,
	}
}

// Metadata is the format-specific descriptive data of a database.
type Metadata interface {
	Format() Format
	// Properties returns human-readable key/value pairs for diagnostics.
	Properties() []Property
}

// RecycleBinMeta is implemented by metadata of formats that remember which
// group is the recycle bin.
type RecycleBinMeta interface {
	RecycleBin() (enabled bool, id uuid.UUID)
	SetRecycleBin(id uuid.UUID)
}

// HistoryLimiter is implemented by metadata that caps per-record history.
// A negative value means unlimited.
type HistoryLimiter interface {
	HistoryMaxItems() int
}

// SaveStamper is implemented by metadata that records the last save.
type SaveStamper interface {
	StampSave(now time.Time, app string)
}

// Tombstoner is implemented by metadata that tracks permanently deleted ids
// for merge tools.
type Tombstoner interface {
	AddDeletedObject(id uuid.UUID, at time.Time)
}

// Property is a descriptive metadata pair.
type Property struct {
	Key   string
	Value string
}

// Content is everything an adaptor decodes from or encodes into a container.
type Content struct {
	Tree        *node.Tree
	Meta        Metadata
	Attachments []node.Attachment
	Icons       []node.CustomIcon
}

// Adaptor is the codec for one container format.
type Adaptor interface {
	Format() Format
	Features() Features
	FileExtension() string

	// Sniff inspects the header region only and never fails.
	Sniff(data []byte) bool
	// Probe reports ErrUnsafeInput when the header asks for more work than limits allow.
	Probe(data []byte, limits Limits) error

	// NewContent returns the content of a new, empty database.
	NewContent() (*Content, error)
	Decode(ctx context.Context, data []byte, creds Credentials) (*Content, error)
	Encode(ctx context.Context, c *Content, creds Credentials) ([]byte, error)
}

var (
	ErrFormatUnrecognized   = errors.New("format not recognized")
	ErrAuthenticationFailed = errors.New("authentication failed: wrong credentials or corrupted data")
	ErrMalformed            = errors.New("malformed database")
	ErrUnsafeInput          = errors.New("database exceeds safe processing limits")
	ErrUnsupported          = errors.New("unsupported by format")
)

// DecodeError reports a failed decode with the format that was attempted.
type DecodeError struct {
	Format Format
	Kind   error
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil && e.Err != e.Kind {
		return fmt.Sprintf("%s: %v: %v", e.Format, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Format, e.Kind)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Malformed builds a malformed-structure decode error.
func Malformed(f Format, format string, args ...any) error {
	return &DecodeError{Format: f, Kind: ErrMalformed, Err: fmt.Errorf(format, args...)}
}

// AuthFailed builds an authentication-failure decode error. The cause is
// intentionally dropped so a wrong key cannot be told from corruption.
func AuthFailed(f Format) error {
	return &DecodeError{Format: f, Kind: ErrAuthenticationFailed}
}

// Unsafe builds an unsafe-input error.
func Unsafe(f Format, format string, args ...any) error {
	return &DecodeError{Format: f, Kind: ErrUnsafeInput, Err: fmt.Errorf(format, args...)}
}
