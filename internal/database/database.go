// Package database is the aggregate root of an open credential database: the
// node tree, the format metadata, the attachment and custom icon pools, the
// master credentials and the adaptor used to load and save them.
//
// A Database is owned by a single caller and does no internal locking.
// Collaborators read the tree through it and change it through the session
// layer.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/deref"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/format/registry"
	"github.com/dmitrijs2005/gophsafe/internal/logging"
	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/google/uuid"
)

// Generator is written into metadata of formats that record the saving app.
const Generator = "gophsafe"

type options struct {
	registry   *registry.Registry
	logger     logging.Logger
	derefDepth int
	browse     BrowseOptions
}

// Option configures a Database.
type Option func(*options)

// WithRegistry selects the adaptors used to sniff, decode and encode.
func WithRegistry(r *registry.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithLogger sets the logger. Libraries default to logging.NopLogger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDereferenceMaxDepth caps field reference expansion passes.
func WithDereferenceMaxDepth(n int) Option {
	return func(o *options) { o.derefDepth = n }
}

// WithBrowseOptions sets the ordering and subtitles of browse listings.
func WithBrowseOptions(b BrowseOptions) Option {
	return func(o *options) { o.browse = b }
}

func buildOptions(opts []Option) options {
	o := options{
		logger:     logging.NopLogger{},
		derefDepth: deref.DefaultMaxDepth,
		browse:     DefaultBrowseOptions(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.registry == nil {
		o.registry = registry.Default(registry.Options{})
	}
	return o
}

// Database is an open, unlocked credential database.
type Database struct {
	adaptor     format.Adaptor
	tree        *node.Tree
	meta        format.Metadata
	attachments []node.Attachment
	icons       []node.CustomIcon
	creds       format.Credentials

	deref  *deref.Engine
	log    logging.Logger
	browse BrowseOptions
	closed bool
}

func newDatabase(a format.Adaptor, c *format.Content, creds format.Credentials, o options) *Database {
	d := &Database{
		adaptor:     a,
		tree:        c.Tree,
		meta:        c.Meta,
		attachments: c.Attachments,
		icons:       c.Icons,
		creds:       creds,
		log:         o.logger.With("format", a.Format().String()),
		browse:      o.browse,
	}
	d.deref = deref.New(d.AllRecords, deref.WithMaxDepth(o.derefDepth))
	return d
}

// IsValid reports whether data looks like a supported database with a
// readable header. No credentials are needed.
func IsValid(data []byte, opts ...Option) error {
	return buildOptions(opts).registry.IsValid(data)
}

// LikelyFormat sniffs data. It never fails; unrecognized data is format.Unknown.
func LikelyFormat(data []byte, opts ...Option) format.Format {
	return buildOptions(opts).registry.LikelyFormat(data)
}

// LikelyExtension guesses a file extension for data, for diagnostics only.
func LikelyExtension(data []byte, opts ...Option) string {
	return buildOptions(opts).registry.LikelyExtension(data)
}

// IsUnsafeToAutoProcess reports whether an unattended caller should refuse
// to open data because its header asks for more work than limits allow.
func IsUnsafeToAutoProcess(data []byte, limits format.Limits, opts ...Option) bool {
	return buildOptions(opts).registry.IsUnsafeToAutoProcess(data, limits)
}

func checkCredentials(a format.Adaptor, creds format.Credentials) error {
	if creds.IsEmpty() {
		return fmt.Errorf("%w: a password or key file is required", common.ErrorValidation)
	}
	if len(creds.KeyFileDigest) > 0 && !a.Features().KeyFile {
		return fmt.Errorf("%s key files: %w", a.Format(), format.ErrUnsupported)
	}
	return nil
}

// CreateNew returns an empty database of format f protected by the given
// password and/or key file digest.
func CreateNew(password *string, keyFileDigest []byte, f format.Format, opts ...Option) (*Database, error) {
	o := buildOptions(opts)
	a, err := o.registry.Adaptor(f)
	if err != nil {
		return nil, err
	}
	creds := format.NewCredentials(password, keyFileDigest)
	if err := checkCredentials(a, creds); err != nil {
		return nil, err
	}

	c, err := a.NewContent()
	if err != nil {
		return nil, fmt.Errorf("new %s content: %w", f, err)
	}
	d := newDatabase(a, c, creds, o)
	d.log.Info(context.Background(), "database created", "nodes", d.tree.Len())
	return d, nil
}

// OpenExisting sniffs data and decodes it with the matching adaptor.
// Failures are *format.DecodeError values.
func OpenExisting(ctx context.Context, data []byte, password *string, keyFileDigest []byte, opts ...Option) (*Database, error) {
	return open(ctx, data, format.NewCredentials(password, keyFileDigest), buildOptions(opts))
}

func open(ctx context.Context, data []byte, creds format.Credentials, o options) (*Database, error) {
	f := o.registry.LikelyFormat(data)
	if f == format.Unknown {
		o.logger.Warn(ctx, "open failed: unrecognized format", "bytes", len(data))
		return nil, &format.DecodeError{Format: format.Unknown, Kind: format.ErrFormatUnrecognized}
	}
	a, err := o.registry.Adaptor(f)
	if err != nil {
		return nil, err
	}

	c, err := a.Decode(ctx, data, creds)
	if err != nil {
		o.logger.Warn(ctx, "open failed", "format", f.String(), "bytes", len(data), "kind", errorKind(err))
		return nil, err
	}

	d := newDatabase(a, c, creds, o)
	d.log.Info(ctx, "database opened", "bytes", len(data), "nodes", d.tree.Len())
	return d, nil
}

func errorKind(err error) string {
	for _, k := range []error{
		format.ErrAuthenticationFailed, format.ErrMalformed, format.ErrUnsafeInput,
		format.ErrUnsupported, context.Canceled, context.DeadlineExceeded,
	} {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "other"
}

// OpenAsync decodes data in the background and calls done exactly once. If
// ctx is cancelled before the result is delivered, done receives ctx.Err()
// and no database.
func OpenAsync(ctx context.Context, data []byte, creds format.Credentials, done func(*Database, error), opts ...Option) {
	o := buildOptions(opts)
	creds = format.NewCredentials(creds.Password, creds.KeyFileDigest)
	go func() {
		d, err := open(ctx, data, creds, o)
		if cerr := ctx.Err(); cerr != nil {
			if d != nil {
				d.Close()
			}
			done(nil, cerr)
			return
		}
		done(d, err)
	}()
}

// Serialize encodes the database with its adaptor and master credentials.
func (d *Database) Serialize(ctx context.Context) ([]byte, error) {
	if d.closed {
		return nil, common.ErrorLocked
	}
	if s, ok := d.meta.(format.SaveStamper); ok {
		s.StampSave(node.Now(), Generator)
	}

	c := &format.Content{Tree: d.tree, Meta: d.meta, Attachments: d.attachments, Icons: d.icons}
	out, err := d.adaptor.Encode(ctx, c, d.creds)
	if err != nil {
		d.log.Error(ctx, "serialize failed", "kind", errorKind(err))
		return nil, fmt.Errorf("serialize %s: %w", d.adaptor.Format(), err)
	}
	d.log.Info(ctx, "database serialized", "bytes", len(out), "nodes", d.tree.Len())
	return out, nil
}

// Close zeroes the credentials and pool contents. The database cannot be used
// afterwards.
func (d *Database) Close() {
	if d.closed {
		return
	}
	d.creds.Wipe()
	for i := range d.attachments {
		common.WipeByteArray(d.attachments[i].Data)
	}
	for i := range d.icons {
		common.WipeByteArray(d.icons[i].Data)
	}
	d.attachments, d.icons = nil, nil
	d.closed = true
}

// IsClosed reports whether Close was called.
func (d *Database) IsClosed() bool { return d.closed }

// SetMasterCredentials replaces the credentials used by the next Serialize.
func (d *Database) SetMasterCredentials(password *string, keyFileDigest []byte) error {
	creds := format.NewCredentials(password, keyFileDigest)
	if err := checkCredentials(d.adaptor, creds); err != nil {
		return err
	}
	d.creds.Wipe()
	d.creds = creds
	d.log.Info(context.Background(), "master credentials changed", "key_file", len(creds.KeyFileDigest) > 0)
	return nil
}

// HasPassword reports whether the master credentials include a password.
func (d *Database) HasPassword() bool { return d.creds.Password != nil }

// HasKeyFile reports whether the master credentials include a key file digest.
func (d *Database) HasKeyFile() bool { return len(d.creds.KeyFileDigest) > 0 }

func (d *Database) Format() format.Format     { return d.adaptor.Format() }
func (d *Database) Features() format.Features { return d.adaptor.Features() }
func (d *Database) FileExtension() string     { return d.adaptor.FileExtension() }
func (d *Database) Metadata() format.Metadata { return d.meta }

// Tree exposes the node arena for reading.
func (d *Database) Tree() *node.Tree { return d.tree }

// Root returns the root group.
func (d *Database) Root() *node.Node { return d.tree.Root() }

// Node looks a node up by id.
func (d *Database) Node(id uuid.UUID) (*node.Node, bool) { return d.tree.Get(id) }

// Logger returns the database logger, tagged with the format.
func (d *Database) Logger() logging.Logger { return d.log }

// HistoryMaxItems is the history cap stored in metadata, or -1 when the
// format does not keep one.
func (d *Database) HistoryMaxItems() int {
	if h, ok := d.meta.(format.HistoryLimiter); ok {
		return h.HistoryMaxItems()
	}
	return -1
}
