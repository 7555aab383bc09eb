package session

import (
	"bytes"
	"context"
	"testing"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/database"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func savedDocument(t *testing.T) []byte {
	t.Helper()
	s, _ := newTestSession(t, format.KeePass4)
	r := addRecord(t, s, "Email")
	require.NoError(t, s.SetUsername(r, "u"))
	data, err := s.Serialize(context.Background())
	require.NoError(t, err)
	return data
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "locked", Locked.String())
	assert.Equal(t, "unlocking", Unlocking.String())
	assert.Equal(t, "unlocked", Unlocked.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestUnlockLockCycle(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	s := NewLocked(savedDocument(t),
		WithLogger(logging.New(&buf, "debug")),
		WithDatabaseOptions(database.WithRegistry(fastRegistry())),
	)
	require.True(t, s.IsLocked())
	require.Nil(t, s.Database())

	err := s.Unlock(ctx, ptr("wrong"), nil)
	require.ErrorIs(t, err, format.ErrAuthenticationFailed)
	assert.Equal(t, Locked, s.State())
	assert.Nil(t, s.Database())

	require.NoError(t, s.Unlock(ctx, ptr("P1"), nil))
	assert.Equal(t, Unlocked, s.State())
	require.NotNil(t, s.Database())
	require.ErrorIs(t, s.Unlock(ctx, ptr("P1"), nil), common.ErrorAlreadyUnlock)

	rec := s.Database().ActiveRecords()[0]
	db := s.Database()
	s.Lock(ctx, rec.SerializationID())
	assert.Equal(t, Locked, s.State())
	assert.Nil(t, s.Database())
	assert.True(t, db.IsClosed())
	assert.Equal(t, rec.SerializationID(), s.SelectedItem())

	require.ErrorIs(t, s.SetTitle(rec, "x"), common.ErrorLocked)
	_, err = s.Serialize(ctx)
	require.ErrorIs(t, err, common.ErrorLocked)

	require.NoError(t, s.Unlock(ctx, ptr("P1"), nil))
	again, err := s.ItemBySerializationID(s.SelectedItem())
	require.NoError(t, err)
	assert.Equal(t, "u", again.Username)

	logs := buf.String()
	assert.Contains(t, logs, "state=unlocking")
	assert.Contains(t, logs, "state=unlocked")
	assert.Contains(t, logs, "state=locked")
	assert.NotContains(t, logs, "P1")
}

func TestUnlock_Cancelled(t *testing.T) {
	s := NewLocked(savedDocument(t), WithDatabaseOptions(database.WithRegistry(fastRegistry())))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, s.Unlock(ctx, ptr("P1"), nil))
	assert.Equal(t, Locked, s.State())
	assert.Nil(t, s.Database())
}

func TestSerializeAndMasterCredentials(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, format.KeePass4)
	addRecord(t, s, "a")

	require.NoError(t, s.SetMasterCredentials(ptr("P2"), nil))
	data, err := s.Serialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, data, s.Data())

	s.Lock(ctx, "")
	require.ErrorIs(t, s.SetMasterCredentials(ptr("P3"), nil), common.ErrorLocked)
	require.ErrorIs(t, s.Unlock(ctx, ptr("P1"), nil), format.ErrAuthenticationFailed)
	require.NoError(t, s.Unlock(ctx, ptr("P2"), nil))
	assert.Equal(t, 1, s.Database().NumberOfRecords())
}

func TestSetMasterCredentials_Invalid(t *testing.T) {
	s, _ := newTestSession(t, format.PasswordSafe)
	err := s.SetMasterCredentials(nil, make([]byte, 32))
	require.Error(t, err)
	assert.True(t, s.Database().HasPassword())
}

func TestGeneratePassword(t *testing.T) {
	s, _ := newTestSession(t, format.KeePass4)
	pw, err := s.GeneratePassword()
	require.NoError(t, err)
	assert.Len(t, pw, 20)
}
