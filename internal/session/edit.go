package session

import (
	"encoding/base32"
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/database"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/format/kdbx"
	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/google/uuid"
)

// attached returns the live model after checking that n belongs to it.
func (s *Session) attached(n *node.Node) (*database.Database, error) {
	db, err := s.live()
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("%w: node", common.ErrorNotFound)
	}
	if got, ok := db.Node(n.ID); !ok || got != n {
		return nil, fmt.Errorf("%w: node %s", common.ErrorNotFound, n.SerializationID())
	}
	return db, nil
}

// historyLimit is the metadata history cap when the format has one.
func (s *Session) historyLimit(db *database.Database) int {
	if h, ok := db.Metadata().(format.HistoryLimiter); ok {
		return h.HistoryMaxItems()
	}
	return s.opts.historyMax
}

func (s *Session) appendHistory(db *database.Database, n *node.Node, snap *node.Node) {
	n.History = append(n.History, snap)
	if max := s.historyLimit(db); max >= 0 && len(n.History) > max {
		n.History = append([]*node.Node(nil), n.History[len(n.History)-max:]...)
	}
}

// edit applies change to n and emits kind. Records of formats that keep
// history get their previous state appended first; formats that only keep
// password history are snapshotted for password changes alone. change must
// leave n untouched when it fails. An icon change that lands on the current
// icon records nothing.
func (s *Session) edit(n *node.Node, kind EventKind, change func(db *database.Database) error) error {
	db, err := s.attached(n)
	if err != nil {
		return err
	}

	snap := n.Snapshot()
	if err := change(db); err != nil {
		return err
	}
	if kind == IconChanged && n.Icon == snap.Icon {
		return nil
	}

	f := db.Features()
	if n.IsRecord() && f.History && (!f.PasswordOnlyHist || kind == PasswordChanged) {
		s.appendHistory(db, n, snap)
	}
	n.Touch()
	s.emit(Event{Kind: kind, NodeID: n.ID})
	return nil
}

// setString edits the text field picked from n, skipping the edit when the
// value is unchanged.
func (s *Session) setString(n *node.Node, kind EventKind, pick func(*node.Fields) *string, value string) error {
	if _, err := s.attached(n); err != nil {
		return err
	}
	field := pick(&n.Fields)
	if *field == value {
		return nil
	}
	return s.edit(n, kind, func(*database.Database) error {
		*field = value
		return nil
	})
}

func titleField(f *node.Fields) *string    { return &f.Title }
func usernameField(f *node.Fields) *string { return &f.Username }
func emailField(f *node.Fields) *string    { return &f.Email }
func urlField(f *node.Fields) *string      { return &f.URL }
func passwordField(f *node.Fields) *string { return &f.Password }
func notesField(f *node.Fields) *string    { return &f.Notes }
func otpField(f *node.Fields) *string      { return &f.OTP }

// SetTitle changes the title of n. Formats that require titles reject an
// empty one.
func (s *Session) SetTitle(n *node.Node, title string) error {
	db, err := s.attached(n)
	if err != nil {
		return err
	}
	if strings.TrimSpace(title) == "" && (n.IsGroup || db.Features().TitleRequired) {
		return fmt.Errorf("%w: title is required", common.ErrorValidation)
	}
	if parent := db.Tree().Parent(n); parent != nil && n.IsGroup && n.Title != title && db.Features().UniqueGroupNames {
		probe := &node.Node{ID: n.ID, IsGroup: true, Fields: node.Fields{Title: title}}
		if err := db.ValidateAdd(parent, probe); err != nil {
			return err
		}
	}
	return s.setString(n, TitleChanged, titleField, title)
}

func (s *Session) SetUsername(n *node.Node, username string) error {
	return s.setString(n, UsernameChanged, usernameField, username)
}

// SetEmail fails with format.ErrUnsupported when the format has no email
// field.
func (s *Session) SetEmail(n *node.Node, email string) error {
	db, err := s.attached(n)
	if err != nil {
		return err
	}
	if !db.Features().Email && email != "" {
		return fmt.Errorf("%s email: %w", db.Format(), format.ErrUnsupported)
	}
	return s.setString(n, EmailChanged, emailField, email)
}

func (s *Session) SetURL(n *node.Node, address string) error {
	return s.setString(n, URLChanged, urlField, address)
}

func (s *Session) SetPassword(n *node.Node, password string) error {
	return s.setString(n, PasswordChanged, passwordField, password)
}

func (s *Session) SetNotes(n *node.Node, notes string) error {
	return s.setString(n, NotesChanged, notesField, notes)
}

// SetIcon sets a built-in icon.
func (s *Session) SetIcon(n *node.Node, index int) error {
	return s.edit(n, IconChanged, func(db *database.Database) error {
		return db.SetNodeIcon(n, index)
	})
}

// SetExistingCustomIcon points n at an icon already in the pool.
func (s *Session) SetExistingCustomIcon(n *node.Node, id uuid.UUID) error {
	return s.edit(n, IconChanged, func(db *database.Database) error {
		return db.SetNodeExistingCustomIcon(n, id)
	})
}

// SetCustomIcon pools image data and points n at it.
func (s *Session) SetCustomIcon(n *node.Node, data []byte) error {
	return s.edit(n, IconChanged, func(db *database.Database) error {
		_, err := db.SetNodeCustomIcon(n, data)
		return err
	})
}

func (s *Session) checkCustomKey(db *database.Database, n *node.Node, key string) error {
	if !db.Features().CustomFields {
		return fmt.Errorf("%s custom fields: %w", db.Format(), format.ErrUnsupported)
	}
	if n.IsGroup {
		return fmt.Errorf("%w: custom fields belong to records", common.ErrorValidation)
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: custom field key is required", common.ErrorValidation)
	}
	if kdbx.IsStandardKey(key) {
		return fmt.Errorf("%w: %q is a reserved field name", common.ErrorValidation, key)
	}
	return nil
}

// SetCustomField adds the field named key or replaces its value.
func (s *Session) SetCustomField(n *node.Node, key, value string, protected bool) error {
	db, err := s.attached(n)
	if err != nil {
		return err
	}
	if err := s.checkCustomKey(db, n, key); err != nil {
		return err
	}
	if cf, ok := n.CustomField(key); ok && cf.Value == value && cf.Protected == protected {
		return nil
	}
	return s.edit(n, CustomFieldsChanged, func(*database.Database) error {
		n.SetCustomField(node.CustomField{Key: key, Value: value, Protected: protected})
		return nil
	})
}

// RemoveCustomField deletes the field named key.
func (s *Session) RemoveCustomField(n *node.Node, key string) error {
	if _, err := s.attached(n); err != nil {
		return err
	}
	if _, ok := n.CustomField(key); !ok {
		return fmt.Errorf("%w: custom field %q", common.ErrorNotFound, key)
	}
	return s.edit(n, CustomFieldsChanged, func(*database.Database) error {
		n.RemoveCustomField(key)
		return nil
	})
}

func (s *Session) AddAttachment(n *node.Node, a database.NamedAttachment) error {
	return s.edit(n, AttachmentsChanged, func(db *database.Database) error {
		_, err := db.AddNodeAttachment(n, a)
		return err
	})
}

func (s *Session) RemoveAttachment(n *node.Node, index int) error {
	return s.edit(n, AttachmentsChanged, func(db *database.Database) error {
		return db.RemoveNodeAttachment(n, index)
	})
}

// SetOTP stores a one-time password seed. Both otpauth:// URLs and bare
// base32 secrets are accepted.
func (s *Session) SetOTP(n *node.Node, otp string) error {
	db, err := s.attached(n)
	if err != nil {
		return err
	}
	if !db.Features().OTP {
		return fmt.Errorf("%s one-time passwords: %w", db.Format(), format.ErrUnsupported)
	}
	if n.IsGroup {
		return fmt.Errorf("%w: one-time passwords belong to records", common.ErrorValidation)
	}
	normalized, err := normalizeOTP(otp)
	if err != nil {
		return err
	}
	return s.setString(n, OTPChanged, otpField, normalized)
}

// ClearOTP removes the one-time password seed.
func (s *Session) ClearOTP(n *node.Node) error {
	return s.setString(n, OTPChanged, otpField, "")
}

func normalizeOTP(otp string) (string, error) {
	otp = strings.TrimSpace(otp)
	if strings.HasPrefix(strings.ToLower(otp), "otpauth://") {
		u, err := url.Parse(otp)
		if err != nil || u.Query().Get("secret") == "" {
			return "", fmt.Errorf("%w: malformed otpauth url", common.ErrorValidation)
		}
		return otp, nil
	}

	secret := strings.ToUpper(strings.Join(strings.Fields(otp), ""))
	if secret == "" {
		return "", fmt.Errorf("%w: empty one-time password seed", common.ErrorValidation)
	}
	if _, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.TrimRight(secret, "=")); err != nil {
		return "", fmt.Errorf("%w: seed is not base32", common.ErrorValidation)
	}
	return secret, nil
}
