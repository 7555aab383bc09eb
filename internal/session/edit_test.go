package session

import (
	"testing"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/database"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/format/kdbx"
	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func historyTitles(n *node.Node) []string {
	out := make([]string, 0, len(n.History))
	for _, h := range n.History {
		out = append(out, h.Title)
	}
	return out
}

func TestEdit_CapturesHistory(t *testing.T) {
	s, events := newTestSession(t, format.KeePass4)
	r := addRecord(t, s, "a")

	require.NoError(t, s.SetTitle(r, "b"))
	require.NoError(t, s.SetTitle(r, "b"))
	require.NoError(t, s.SetUsername(r, "u"))

	assert.Equal(t, "b", r.Title)
	assert.Equal(t, []string{"a", "b"}, historyTitles(r))
	assert.Equal(t, "", r.History[1].Username)
	assert.Equal(t, []EventKind{ItemAdded, TitleChanged, UsernameChanged}, kinds(*events))
}

func TestEdit_HistoryLimit(t *testing.T) {
	t.Run("metadata limit", func(t *testing.T) {
		s, _ := newTestSession(t, format.KeePass4)
		s.Database().Metadata().(*kdbx.Metadata).HistoryMax = 2
		r := addRecord(t, s, "0")
		for _, title := range []string{"1", "2", "3"} {
			require.NoError(t, s.SetTitle(r, title))
		}
		assert.Equal(t, []string{"1", "2"}, historyTitles(r))
	})

	t.Run("session limit", func(t *testing.T) {
		s, _ := newTestSession(t, format.PasswordSafe, WithHistoryMaxItems(1))
		r := addRecord(t, s, "r")
		require.NoError(t, s.SetPassword(r, "p1"))
		require.NoError(t, s.SetPassword(r, "p2"))
		require.Len(t, r.History, 1)
		assert.Equal(t, "p1", r.History[0].Password)
	})
}

func TestEdit_FormatHistoryRules(t *testing.T) {
	t.Run("password only", func(t *testing.T) {
		s, _ := newTestSession(t, format.PasswordSafe)
		r := addRecord(t, s, "r")
		require.NoError(t, s.SetTitle(r, "renamed"))
		require.NoError(t, s.SetNotes(r, "n"))
		assert.Empty(t, r.History)

		require.NoError(t, s.SetPassword(r, "new"))
		require.Len(t, r.History, 1)
		assert.Equal(t, "", r.History[0].Password)
	})

	t.Run("no history", func(t *testing.T) {
		s, _ := newTestSession(t, format.KeePass1)
		r := addRecord(t, s, "r")
		require.NoError(t, s.SetPassword(r, "new"))
		assert.Empty(t, r.History)
	})

	t.Run("groups", func(t *testing.T) {
		s, _ := newTestSession(t, format.KeePass4)
		g, err := s.AddNewGroup(s.Database().Root(), "g")
		require.NoError(t, err)
		require.NoError(t, s.SetTitle(g, "h"))
		assert.Empty(t, g.History)
	})
}

func TestSetTitle_Validation(t *testing.T) {
	s, events := newTestSession(t, format.PasswordSafe)
	r := addRecord(t, s, "r")
	require.ErrorIs(t, s.SetTitle(r, "  "), common.ErrorValidation)
	assert.Equal(t, "r", r.Title)

	root := s.Database().Root()
	_, err := s.AddNewGroup(root, "A")
	require.NoError(t, err)
	b, err := s.AddNewGroup(root, "B")
	require.NoError(t, err)
	require.ErrorIs(t, s.SetTitle(b, "a"), common.ErrorValidation)
	assert.Equal(t, "B", b.Title)
	assert.Len(t, *events, 3)

	k, _ := newTestSession(t, format.KeePass4)
	kr := addRecord(t, k, "r")
	require.NoError(t, k.SetTitle(kr, ""))
}

func TestEdit_DetachedNode(t *testing.T) {
	s, _ := newTestSession(t, format.KeePass4)
	require.ErrorIs(t, s.SetTitle(node.NewRecord("x"), "y"), common.ErrorNotFound)
	require.ErrorIs(t, s.SetNotes(nil, "y"), common.ErrorNotFound)
}

func TestSetEmail(t *testing.T) {
	s, events := newTestSession(t, format.KeePass1)
	r := addRecord(t, s, "r")
	require.ErrorIs(t, s.SetEmail(r, "a@b"), format.ErrUnsupported)
	require.NoError(t, s.SetEmail(r, ""))
	assert.Len(t, *events, 1)

	k, kevents := newTestSession(t, format.KeePass4)
	kr := addRecord(t, k, "r")
	require.NoError(t, k.SetEmail(kr, "a@b"))
	require.NoError(t, k.SetURL(kr, "https://b"))
	assert.Equal(t, "a@b", kr.Email)
	assert.Equal(t, []EventKind{ItemAdded, EmailChanged, URLChanged}, kinds(*kevents))
}

func TestCustomFields(t *testing.T) {
	s, events := newTestSession(t, format.KeePass4)
	r := addRecord(t, s, "r")

	require.NoError(t, s.SetCustomField(r, "PIN", "1234", true))
	require.NoError(t, s.SetCustomField(r, "PIN", "1234", true))
	cf, ok := r.CustomField("PIN")
	require.True(t, ok)
	assert.True(t, cf.Protected)

	require.ErrorIs(t, s.SetCustomField(r, "Password", "x", false), common.ErrorValidation)
	require.ErrorIs(t, s.SetCustomField(r, " ", "x", false), common.ErrorValidation)
	require.ErrorIs(t, s.SetCustomField(s.Database().Root(), "k", "x", false), common.ErrorValidation)

	require.ErrorIs(t, s.RemoveCustomField(r, "missing"), common.ErrorNotFound)
	require.NoError(t, s.RemoveCustomField(r, "PIN"))
	assert.Empty(t, r.Custom)
	assert.Equal(t, []EventKind{ItemAdded, CustomFieldsChanged, CustomFieldsChanged}, kinds(*events))
	assert.Len(t, r.History, 2)

	p, _ := newTestSession(t, format.PasswordSafe)
	pr := addRecord(t, p, "r")
	require.ErrorIs(t, p.SetCustomField(pr, "k", "v", false), format.ErrUnsupported)
}

func TestOTP(t *testing.T) {
	s, events := newTestSession(t, format.KeePass4)
	r := addRecord(t, s, "r")

	require.NoError(t, s.SetOTP(r, "jbsw y3dp ehpk 3pxp"))
	assert.Equal(t, "JBSWY3DPEHPK3PXP", r.OTP)

	uri := "otpauth://totp/Example:alice?secret=JBSWY3DPEHPK3PXP&issuer=Example"
	require.NoError(t, s.SetOTP(r, uri))
	assert.Equal(t, uri, r.OTP)

	require.ErrorIs(t, s.SetOTP(r, "not base32!"), common.ErrorValidation)
	require.ErrorIs(t, s.SetOTP(r, "otpauth://totp/x?issuer=y"), common.ErrorValidation)
	require.ErrorIs(t, s.SetOTP(r, ""), common.ErrorValidation)
	assert.Equal(t, uri, r.OTP)

	require.NoError(t, s.ClearOTP(r))
	assert.Empty(t, r.OTP)
	assert.Equal(t, []EventKind{ItemAdded, OTPChanged, OTPChanged, OTPChanged}, kinds(*events))

	k, _ := newTestSession(t, format.KeePass1)
	kr := addRecord(t, k, "r")
	require.ErrorIs(t, k.SetOTP(kr, "JBSWY3DPEHPK3PXP"), format.ErrUnsupported)
}

func TestAttachmentsAndIcons(t *testing.T) {
	s, events := newTestSession(t, format.KeePass4)
	r := addRecord(t, s, "r")

	require.NoError(t, s.AddAttachment(r, database.NamedAttachment{Filename: "a.txt", Data: []byte("a")}))
	require.Len(t, r.Attachments, 1)
	require.Len(t, r.History, 1)
	assert.Empty(t, r.History[0].Attachments)

	require.ErrorIs(t, s.RemoveAttachment(r, 3), common.ErrorNotFound)
	assert.Len(t, r.History, 1, "failed edits leave no history")
	require.NoError(t, s.RemoveAttachment(r, 0))
	assert.Empty(t, r.Attachments)

	require.NoError(t, s.SetIcon(r, 5))
	require.ErrorIs(t, s.SetIcon(r, -1), common.ErrorValidation)
	require.NoError(t, s.SetCustomIcon(r, []byte("png")))
	id := r.Icon.Custom
	require.NoError(t, s.SetIcon(r, 1))
	require.NoError(t, s.SetExistingCustomIcon(r, id))
	assert.Equal(t, id, r.Icon.Custom)

	assert.Equal(t, []EventKind{
		ItemAdded, AttachmentsChanged, AttachmentsChanged,
		IconChanged, IconChanged, IconChanged, IconChanged,
	}, kinds(*events))
}

func TestIcons_UnchangedRecordsNothing(t *testing.T) {
	s, events := newTestSession(t, format.KeePass4)
	r := addRecord(t, s, "r")
	require.NoError(t, s.SetIcon(r, 5))
	require.NoError(t, s.SetCustomIcon(r, []byte("png")))
	id := r.Icon.Custom
	history := len(r.History)
	*events = nil

	require.NoError(t, s.SetCustomIcon(r, []byte("png")))
	require.NoError(t, s.SetExistingCustomIcon(r, id))
	assert.Equal(t, id, r.Icon.Custom)
	assert.Len(t, r.History, history)
	assert.Empty(t, *events)

	require.NoError(t, s.SetIcon(r, 7))
	require.NoError(t, s.SetIcon(r, 7))
	assert.Len(t, r.History, history+1)
	assert.Equal(t, []EventKind{IconChanged}, kinds(*events))
	assert.Len(t, s.Database().CustomIcons(), 1)
}
