package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/config"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/logging"
	"github.com/dmitrijs2005/gophsafe/internal/safes"
	"github.com/dmitrijs2005/gophsafe/internal/session"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.Argon2 = config.Argon2{Iterations: 1, MemoryKiB: 64, Parallelism: 1}
	cfg.AESKDFRounds = 100
	cfg.PasswordSafeIterations = 2048
	return cfg
}

func newTestApp(t *testing.T, input string, store *safes.Store) (*App, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	a := NewApp(testConfig(), logging.NopLogger{}, store, strings.NewReader(input), &out)
	return a, &out
}

func openStore(t *testing.T) *safes.Store {
	t.Helper()
	st, err := safes.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestApp_CreateEditLockUnlock(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "main.kdbx")
	store := openStore(t)

	// new password twice, Add keeps the generated password, unlock
	stubPasswords(t, "P1", "P1", "", "P1")
	a, out := newTestApp(t, "u\n\n\n", store)

	require.NoError(t, a.Create(ctx, path, format.KeePass4, "main"))
	require.FileExists(t, path)
	require.Contains(t, out.String(), "Saved "+path)

	require.NoError(t, a.Mkdir(ctx, []string{"Work"}))
	require.NoError(t, a.Cd(ctx, []string{"Work"}))
	require.NoError(t, a.Add(ctx, []string{"Email"}))
	require.True(t, a.dirty)
	require.Equal(t, "main:Work*", a.status())

	require.NoError(t, a.Save(ctx))
	require.False(t, a.dirty)
	require.NoError(t, a.Lock(ctx))
	require.Equal(t, "main (locked)", a.status())

	err := a.List(ctx, nil)
	require.ErrorIs(t, err, common.ErrorLocked)

	saved, err := store.Safes.Get(ctx, "main")
	require.NoError(t, err)
	require.Equal(t, format.KeePass4.String(), saved.Format)
	require.NotEmpty(t, saved.LastSelectedItem)

	out.Reset()
	require.NoError(t, a.Unlock(ctx))
	require.Contains(t, out.String(), "Unlocked main")
	require.Equal(t, "main:Work", a.status())

	out.Reset()
	require.NoError(t, a.List(ctx, nil))
	require.Contains(t, out.String(), "Email")
	require.Contains(t, out.String(), "(u)")

	out.Reset()
	require.NoError(t, a.Show(ctx, []string{"1"}))
	require.Contains(t, out.String(), mask)
	require.Contains(t, out.String(), "Username:  u")

	out.Reset()
	require.NoError(t, a.Find(ctx, []string{"email"}))
	require.Contains(t, out.String(), "Work")

	err = a.Unlock(ctx)
	require.ErrorIs(t, err, common.ErrorAlreadyUnlock)
}

func TestApp_UnlockWrongPassword(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "main.kdbx")

	stubPasswords(t, "P1", "P1", "nope")
	a, _ := newTestApp(t, "\n", nil)
	require.NoError(t, a.Create(ctx, path, format.KeePass4, ""))
	require.NoError(t, a.Lock(ctx))

	err := a.Unlock(ctx)
	require.ErrorIs(t, err, format.ErrAuthenticationFailed)
	require.False(t, a.isUnlocked())
}

func TestApp_CreateRefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.kdbx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	a, _ := newTestApp(t, "", nil)
	err := a.Create(context.Background(), path, format.KeePass4, "")
	require.ErrorIs(t, err, common.ErrorValidation)
}

func TestApp_LoadUnrecognized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.bin")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a database"), 0o600))

	a, _ := newTestApp(t, "", nil)
	err := a.Load(context.Background(), path, nil)
	require.ErrorIs(t, err, format.ErrFormatUnrecognized)
}

func TestApp_LoadThenUnlock(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.kdb")

	stubPasswords(t, "P1", "P1", "P1")
	creator, _ := newTestApp(t, "", nil)
	require.NoError(t, creator.Create(ctx, path, format.KeePass1, ""))

	a, _ := newTestApp(t, "\n", nil)
	require.ErrorIs(t, a.Unlock(ctx), ErrNoSafe)
	require.NoError(t, a.Load(ctx, path, nil))
	require.Equal(t, "legacy.kdb (locked)", a.status())
	require.NoError(t, a.Unlock(ctx))
	require.Equal(t, format.KeePass1, a.sess.Database().Format())
}

func TestApp_IdleLock(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "main.kdbx")

	stubPasswords(t, "P1", "P1")
	a, out := newTestApp(t, "", nil)
	require.NoError(t, a.Create(ctx, path, format.KeePass4, ""))
	a.cfg.UnlockTimeout = time.Minute

	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := t0
	a.now = func() time.Time { return clock }
	a.lastInput = t0

	clock = t0.Add(30 * time.Second)
	a.checkIdle(ctx)
	require.True(t, a.isUnlocked())

	clock = clock.Add(2 * time.Minute)
	a.checkIdle(ctx)
	require.False(t, a.isUnlocked())
	require.Contains(t, out.String(), "Idle for 2m0s, locking.")
}

func TestApp_Import(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.kdbx")
	csvPath := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"Title,Username,Password,Group\n"+
			"Mail,alice,pw1,Work\n"+
			"Bank,bob,pw2,\n"), 0o600))

	stubPasswords(t, "P1", "P1")
	a, out := newTestApp(t, "", nil)
	require.NoError(t, a.Create(ctx, path, format.KeePass4, ""))

	require.NoError(t, a.Import(ctx, []string{csvPath}))
	require.Contains(t, out.String(), "Imported 2 of 2 rows")
	require.Equal(t, 2, a.sess.Database().NumberOfRecords())

	out.Reset()
	require.NoError(t, a.List(ctx, []string{"/Work"}))
	require.Contains(t, out.String(), "Mail")
}

func TestReadCSV(t *testing.T) {
	rows, err := readCSV(strings.NewReader("Title,Username\nA,a\nB\n"))
	require.NoError(t, err)
	require.Equal(t, []session.Row{
		{{Key: "Title", Value: "A"}, {Key: "Username", Value: "a"}},
		{{Key: "Title", Value: "B"}},
	}, rows)

	rows, err = readCSV(strings.NewReader(""))
	require.NoError(t, err)
	require.Nil(t, rows)

	_, err = readCSV(strings.NewReader("a,b\n\"unterminated\n"))
	require.Error(t, err)
}
