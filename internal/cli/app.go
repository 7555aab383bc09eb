package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/config"
	"github.com/dmitrijs2005/gophsafe/internal/cryptox"
	"github.com/dmitrijs2005/gophsafe/internal/database"
	"github.com/dmitrijs2005/gophsafe/internal/filex"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/format/registry"
	"github.com/dmitrijs2005/gophsafe/internal/logging"
	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/dmitrijs2005/gophsafe/internal/safes"
	"github.com/dmitrijs2005/gophsafe/internal/session"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

var ErrNoSafe = errors.New("no database loaded")

// App is the shell state: the loaded database file, its session and the
// current position in the tree.
type App struct {
	cfg   *config.Config
	log   logging.Logger
	store *safes.Store

	safe *safes.Safe
	path string
	sess *session.Session

	cwd     uuid.UUID
	listing []*node.Node
	dirty   bool

	reader    *bufio.Reader
	out       io.Writer
	now       func() time.Time
	lastInput time.Time
}

// NewApp builds a shell reading commands from in and writing to out. store
// may be nil, in which case nothing is remembered between runs.
func NewApp(cfg *config.Config, log logging.Logger, store *safes.Store, in io.Reader, out io.Writer) *App {
	return &App{
		cfg:    cfg,
		log:    log,
		store:  store,
		reader: bufio.NewReader(in),
		out:    out,
		now:    time.Now,
	}
}

func (a *App) databaseOptions() []database.Option {
	return []database.Option{
		database.WithRegistry(registry.Default(a.cfg.RegistryOptions())),
		database.WithLogger(a.log),
		database.WithDereferenceMaxDepth(a.cfg.DereferenceMaxDepth),
	}
}

func (a *App) sessionOptions() []session.Option {
	return []session.Option{
		session.WithLogger(a.log),
		session.WithDatabaseOptions(a.databaseOptions()...),
		session.WithHistoryMaxItems(a.cfg.HistoryMaxItems),
		session.WithGenerator(a.cfg.GeneratorOptions()),
	}
}

func (a *App) attach(s *session.Session) {
	a.sess = s
	a.dirty = false
	a.listing = nil
	s.Subscribe(func(e session.Event) {
		a.dirty = true
		a.log.Debug(context.Background(), "change", "event", e.Kind.String(), "id", e.NodeID.String())
	})
}

// Load reads the database at path into a locked session. safe is the
// registry entry for path, if there is one.
func (a *App) Load(ctx context.Context, path string, safe *safes.Safe) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	opts := a.databaseOptions()
	if database.LikelyFormat(data, opts...) == format.Unknown {
		return fmt.Errorf("%s is not a recognized database (looks like a .%s file): %w",
			path, database.LikelyExtension(data, opts...), format.ErrFormatUnrecognized)
	}
	if database.IsUnsafeToAutoProcess(data, a.cfg.FormatLimits(), opts...) {
		fmt.Fprintln(a.out, "Warning: this database exceeds the configured safety limits and may take long to open.")
	}

	a.attach(session.NewLocked(data, a.sessionOptions()...))
	a.path = path
	a.safe = safe
	if safe != nil {
		a.sess.SetSelectedItem(safe.LastSelectedItem)
	}
	a.log.Info(ctx, "database loaded", "bytes", len(data))
	return nil
}

// Create makes a new empty database of format f at path and registers it
// under nickname when a registry is available.
func (a *App) Create(ctx context.Context, path string, f format.Format, nickname string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s already exists", common.ErrorValidation, path)
	}

	pw, err := GetNewPassword(a.out)
	if err != nil {
		return err
	}
	password := string(pw)
	common.WipeByteArray(pw)

	db, err := database.CreateNew(&password, nil, f, a.databaseOptions()...)
	if err != nil {
		return err
	}
	a.attach(session.NewUnlocked(nil, db, "", a.sessionOptions()...))
	a.path = path
	a.cwd = db.Root().ID

	if err := a.Save(ctx); err != nil {
		return err
	}

	if a.store != nil && nickname != "" {
		abs, _ := filepath.Abs(path)
		safe := &safes.Safe{Nickname: nickname, Path: abs, Format: f.String()}
		if err := a.store.Safes.Add(ctx, safe); err != nil {
			return fmt.Errorf("register %s: %w", nickname, err)
		}
		a.safe = safe
	}
	return nil
}

func (a *App) isUnlocked() bool {
	return a.sess != nil && !a.sess.IsLocked()
}

func (a *App) live() (*session.Session, *database.Database, error) {
	if a.sess == nil {
		return nil, nil, ErrNoSafe
	}
	if a.sess.IsLocked() {
		return nil, nil, common.ErrorLocked
	}
	return a.sess, a.sess.Database(), nil
}

// Unlock prompts for the master password and an optional key file.
func (a *App) Unlock(ctx context.Context) error {
	if a.sess == nil {
		return ErrNoSafe
	}
	if !a.sess.IsLocked() {
		return common.ErrorAlreadyUnlock
	}

	pw, err := GetPassword(a.out, "Master password")
	if err != nil {
		return err
	}
	password := string(pw)
	common.WipeByteArray(pw)

	var digest []byte
	keyFile, err := GetSimpleText(a.reader, "Key file (empty for none)", a.out)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if keyFile != "" {
		data, err := os.ReadFile(keyFile)
		if err != nil {
			return fmt.Errorf("read key file: %w", err)
		}
		digest = cryptox.KeyFileDigest(data)
	}

	var pwArg *string
	if password != "" || digest == nil {
		pwArg = &password
	}
	if err := a.sess.Unlock(ctx, pwArg, digest); err != nil {
		return err
	}

	a.restoreSelection()
	if a.store != nil && a.safe != nil {
		if err := a.store.Safes.MarkOpened(ctx, a.safe.ID, a.sess.SelectedItem()); err != nil {
			a.log.Warn(ctx, "failed to update registry", "error", err)
		}
	}
	fmt.Fprintf(a.out, "Unlocked %s (%s, %d records)\n", a.name(), a.sess.Database().Format(), a.sess.Database().NumberOfRecords())
	return nil
}

// restoreSelection moves to the group of the remembered item.
func (a *App) restoreSelection() {
	db := a.sess.Database()
	a.cwd = db.Root().ID
	n, ok := db.NodeBySerializationID(a.sess.SelectedItem())
	if !ok {
		return
	}
	if !n.IsGroup {
		if n = db.Tree().Parent(n); n == nil {
			return
		}
	}
	a.cwd = n.ID
}

func (a *App) selection() string {
	if !a.isUnlocked() {
		return a.sess.SelectedItem()
	}
	if n, ok := a.sess.Database().Node(a.cwd); ok {
		return n.SerializationID()
	}
	return ""
}

// Lock discards the decoded database. Unsaved changes are lost.
func (a *App) Lock(ctx context.Context) error {
	if _, _, err := a.live(); err != nil {
		return err
	}
	if a.dirty {
		fmt.Fprintln(a.out, "Unsaved changes were discarded.")
	}
	selected := a.selection()
	a.sess.Lock(ctx, selected)
	a.listing = nil
	a.dirty = false

	if a.store != nil && a.safe != nil {
		if err := a.store.Safes.SetLastSelectedItem(ctx, a.safe.ID, selected); err != nil {
			a.log.Warn(ctx, "failed to update registry", "error", err)
		}
	}
	fmt.Fprintln(a.out, "Locked.")
	return nil
}

// Save serializes the database and atomically replaces the file.
func (a *App) Save(ctx context.Context) error {
	s, _, err := a.live()
	if err != nil {
		return err
	}
	data, err := s.Serialize(ctx)
	if err != nil {
		return err
	}
	if err := filex.WriteFileAtomic(a.path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", a.path, err)
	}
	a.dirty = false

	if a.store != nil && a.safe != nil {
		if err := a.store.Safes.SetLastSelectedItem(ctx, a.safe.ID, a.selection()); err != nil {
			a.log.Warn(ctx, "failed to update registry", "error", err)
		}
	}
	fmt.Fprintf(a.out, "Saved %s (%s)\n", a.path, humanize.Bytes(uint64(len(data))))
	return nil
}

// checkIdle locks the database when no command arrived for longer than the
// configured unlock timeout.
func (a *App) checkIdle(ctx context.Context) {
	now := a.now()
	idle := now.Sub(a.lastInput)
	a.lastInput = now
	if a.cfg.UnlockTimeout <= 0 || !a.isUnlocked() || idle < a.cfg.UnlockTimeout {
		return
	}
	fmt.Fprintf(a.out, "Idle for %s, locking.\n", idle.Round(time.Second))
	_ = a.Lock(ctx)
}

func (a *App) name() string {
	if a.safe != nil {
		return a.safe.Nickname
	}
	return filepath.Base(a.path)
}

// status is shown in the prompt: database name, current group and a star for
// unsaved changes.
func (a *App) status() string {
	if a.sess == nil {
		return ""
	}
	if !a.isUnlocked() {
		return a.name() + " (locked)"
	}
	db := a.sess.Database()
	where := "/"
	if n, ok := db.Node(a.cwd); ok {
		where = db.GroupPathDisplayString(n)
	}
	s := a.name() + ":" + where
	if a.dirty {
		s += "*"
	}
	return s
}

// Run starts the shell and returns when the user exits or input ends.
func (a *App) Run(ctx context.Context) {
	fmt.Fprintln(a.out, "Welcome to gophsafe (type 'help' for commands)")
	a.lastInput = a.now()
	if a.sess != nil && a.sess.IsLocked() {
		if err := a.Unlock(ctx); err != nil {
			fmt.Fprintln(a.out, "error:", err)
		}
	}
	runREPL(ctx, a, a.status, a.reader)
	if a.sess != nil && a.isUnlocked() {
		if a.dirty {
			fmt.Fprintln(a.out, "Unsaved changes were discarded.")
		}
		a.sess.Lock(ctx, a.selection())
	}
}
