package session

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/database"
	"github.com/dmitrijs2005/gophsafe/internal/logging"
	"github.com/dmitrijs2005/gophsafe/internal/passgen"
)

// State is the lock state of a Session.
type State int

const (
	Locked State = iota
	Unlocking
	Unlocked
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocking:
		return "unlocking"
	case Unlocked:
		return "unlocked"
	}
	return "unknown"
}

// DefaultHistoryMaxItems caps record history for formats whose metadata
// carries no limit of its own.
const DefaultHistoryMaxItems = 10

type options struct {
	log        logging.Logger
	dbOpts     []database.Option
	historyMax int
	generator  passgen.Options
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the session logger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithDatabaseOptions sets the options used when the session unlocks.
func WithDatabaseOptions(opts ...database.Option) Option {
	return func(o *options) { o.dbOpts = append(o.dbOpts, opts...) }
}

// WithHistoryMaxItems caps history for formats without a metadata limit. A
// negative value keeps everything.
func WithHistoryMaxItems(n int) Option {
	return func(o *options) { o.historyMax = n }
}

// WithGenerator sets the password generator options used by AddNewRecord.
func WithGenerator(g passgen.Options) Option {
	return func(o *options) { o.generator = g }
}

// Session wraps one database document and, while unlocked, its decoded model.
type Session struct {
	data     []byte
	db       *database.Database
	state    State
	selected string

	subs    []subscriber
	nextSub int

	opts options
	log  logging.Logger
}

func newSession(data []byte, opts []Option) *Session {
	o := options{
		log:        logging.NopLogger{},
		historyMax: DefaultHistoryMaxItems,
		generator:  passgen.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Session{data: data, opts: o, log: o.log}
}

// NewLocked returns a locked session over the document bytes.
func NewLocked(data []byte, opts ...Option) *Session {
	return newSession(data, opts)
}

// NewUnlocked returns a session over an already opened database. data may be
// nil for a database that has never been saved.
func NewUnlocked(data []byte, db *database.Database, selectedItem string, opts ...Option) *Session {
	s := newSession(data, opts)
	s.db = db
	s.state = Unlocked
	s.selected = selectedItem
	return s
}

// State returns the current lock state.
func (s *Session) State() State { return s.state }

func (s *Session) IsLocked() bool { return s.state != Unlocked }

// Database returns the live model, or nil while locked.
func (s *Session) Database() *database.Database { return s.db }

// Data returns the document bytes as last loaded or serialized.
func (s *Session) Data() []byte { return s.data }

func (s *Session) SelectedItem() string { return s.selected }

func (s *Session) SetSelectedItem(serializationID string) { s.selected = serializationID }

func (s *Session) live() (*database.Database, error) {
	if s.state != Unlocked || s.db == nil {
		return nil, common.ErrorLocked
	}
	return s.db, nil
}

// Lock discards the decoded model. Unsaved changes are lost; selectedItem is
// kept for the next unlock.
func (s *Session) Lock(ctx context.Context, selectedItem string) {
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	s.state = Locked
	s.selected = selectedItem
	s.log.Info(ctx, "session locked", "state", s.state.String())
}

// Unlock decodes the document bytes with the given credentials. On failure
// the session stays locked and the decode error is returned.
func (s *Session) Unlock(ctx context.Context, password *string, keyFileDigest []byte) error {
	if s.state != Locked {
		return common.ErrorAlreadyUnlock
	}

	s.state = Unlocking
	s.log.Debug(ctx, "unlocking", "state", s.state.String(), "bytes", len(s.data))

	opts := append([]database.Option{database.WithLogger(s.log)}, s.opts.dbOpts...)
	db, err := database.OpenExisting(ctx, s.data, password, keyFileDigest, opts...)
	if err != nil {
		s.state = Locked
		s.log.Warn(ctx, "unlock failed", "state", s.state.String())
		return err
	}

	s.db = db
	s.state = Unlocked
	s.log.Info(ctx, "session unlocked", "state", s.state.String(), "format", db.Format().String())
	return nil
}

// Serialize encodes the live model and makes the result the session's
// document bytes.
func (s *Session) Serialize(ctx context.Context) ([]byte, error) {
	db, err := s.live()
	if err != nil {
		return nil, err
	}
	out, err := db.Serialize(ctx)
	if err != nil {
		return nil, err
	}
	s.data = out
	return out, nil
}

// SetMasterCredentials replaces the credentials used by the next Serialize.
func (s *Session) SetMasterCredentials(password *string, keyFileDigest []byte) error {
	db, err := s.live()
	if err != nil {
		return err
	}
	if err := db.SetMasterCredentials(password, keyFileDigest); err != nil {
		return fmt.Errorf("set master credentials: %w", err)
	}
	return nil
}

// GeneratePassword returns a password built with the session generator
// options.
func (s *Session) GeneratePassword() (string, error) {
	return passgen.Generate(s.opts.generator)
}
