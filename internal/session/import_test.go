package session

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRows() []Row {
	return []Row{
		{
			{Key: "Title", Value: "Mail"},
			{Key: "Username", Value: "alice"},
			{Key: "Password", Value: "pw"},
			{Key: "URL", Value: "https://mail"},
			{Key: "Group", Value: "Work/Mail"},
			{Key: "Security Question", Value: "pet"},
		},
		{
			{Key: "title", Value: ""},
			{Key: " LOGIN ", Value: "bob"},
			{Key: "Email", Value: "b@example.com"},
			{Key: "TOTP", Value: "JBSWY3DPEHPK3PXP"},
			{Key: "Notes", Value: "hi"},
		},
	}
}

func TestImportRows_KeePass(t *testing.T) {
	s, events := newTestSession(t, format.KeePass4)
	root := s.Database().Root()

	added, err := s.ImportRows(context.Background(), root, sampleRows())
	require.NoError(t, err)
	require.Len(t, added, 2)

	mail := added[0]
	assert.Equal(t, "Work/Mail", s.Database().GroupPathDisplayString(mail))
	assert.Equal(t, "alice", mail.Username)
	assert.Equal(t, "https://mail", mail.URL)
	cf, ok := mail.CustomField("Security Question")
	require.True(t, ok)
	assert.Equal(t, "pet", cf.Value)

	second := added[1]
	assert.Equal(t, UntitledRecord, second.Title)
	assert.Equal(t, root.ID, second.Parent())
	assert.Equal(t, "bob", second.Username)
	assert.Equal(t, "b@example.com", second.Email)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", second.OTP)
	assert.Equal(t, "hi", second.Notes)

	assert.Equal(t, []EventKind{ItemAdded, ItemAdded, ItemAdded, ItemAdded}, kinds(*events))

	_, err = s.ImportRows(context.Background(), root, []Row{{{Key: "group", Value: "work"}, {Key: "title", Value: "x"}}})
	require.NoError(t, err)
	assert.Len(t, s.Database().ActiveGroups(), 2, "existing groups are reused")
}

func TestImportRows_NotesFallback(t *testing.T) {
	s, _ := newTestSession(t, format.KeePass1)
	general := recordParent(s)

	added, err := s.ImportRows(context.Background(), general, sampleRows()[1:])
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Empty(t, added[0].Email)
	assert.Empty(t, added[0].OTP)
	assert.Equal(t, "hi\nEmail: b@example.com\nTOTP: JBSWY3DPEHPK3PXP", added[0].Notes)
}

func TestImportRows_Errors(t *testing.T) {
	ctx := context.Background()
	s, events := newTestSession(t, format.KeePass1)

	added, err := s.ImportRows(ctx, s.Database().Root(), sampleRows()[1:])
	require.ErrorIs(t, err, common.ErrorValidation)
	assert.Empty(t, added)
	assert.Empty(t, *events)

	r := addRecord(t, s, "r")
	_, err = s.ImportRows(ctx, r, sampleRows())
	require.ErrorIs(t, err, node.ErrParentNotGroup)

	_, err = s.ImportRows(ctx, node.NewGroup("detached"), sampleRows())
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRowValue(t *testing.T) {
	row := Row{{Key: " User Name ", Value: "a"}, {Key: "url", Value: "b"}}
	v, ok := row.Value("user name")
	require.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = row.Value("missing")
	assert.False(t, ok)
}
