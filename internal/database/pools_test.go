package database

import (
	"testing"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachments_DedupAndRefCounts(t *testing.T) {
	d := newDB(t, format.KeePass4)
	a := addRecord(t, d, d.Root(), "a", "", "")
	b := addRecord(t, d, d.Root(), "b", "", "")

	ra, err := d.AddNodeAttachment(a, NamedAttachment{Filename: "key.pem", Data: []byte("same")})
	require.NoError(t, err)
	rb, err := d.AddNodeAttachment(b, NamedAttachment{Filename: "copy.pem", Data: []byte("same")})
	require.NoError(t, err)
	_, err = d.AddNodeAttachment(b, NamedAttachment{Filename: "other", Data: []byte("different")})
	require.NoError(t, err)

	assert.Equal(t, ra.Index, rb.Index, "identical content is pooled once")
	assert.Len(t, d.Attachments(), 2)
	assert.Equal(t, 2, d.AttachmentRefCount(ra.Index))

	data, ok := d.AttachmentData(rb)
	require.True(t, ok)
	assert.Equal(t, "same", string(data))
	_, ok = d.AttachmentData(node.AttachmentRef{Index: 9})
	assert.False(t, ok)

	require.NoError(t, d.RemoveNodeAttachment(a, 0))
	assert.Empty(t, a.Attachments)
	assert.Equal(t, 1, d.AttachmentRefCount(ra.Index))
	assert.Len(t, d.Attachments(), 2, "removal does not shrink the pool")
	require.ErrorIs(t, d.RemoveNodeAttachment(a, 0), common.ErrorNotFound)
}

func TestAttachments_HistoryKeepsPoolEntryAlive(t *testing.T) {
	d := newDB(t, format.KeePass4)
	r := addRecord(t, d, d.Root(), "r", "", "")
	ref, err := d.AddNodeAttachment(r, NamedAttachment{Filename: "f", Data: []byte("v1")})
	require.NoError(t, err)

	r.History = append(r.History, r.Snapshot())
	require.NoError(t, d.SetNodeAttachments(r, nil))

	assert.Equal(t, 1, d.AttachmentRefCount(ref.Index))
	removed, _ := d.CompactPools()
	assert.Zero(t, removed)
	assert.Len(t, d.Attachments(), 1)
}

func TestCompactPools(t *testing.T) {
	d := newDB(t, format.KeePass4)
	r := addRecord(t, d, d.Root(), "r", "", "")

	require.NoError(t, d.SetNodeAttachments(r, []NamedAttachment{
		{Filename: "a", Data: []byte("a")},
		{Filename: "b", Data: []byte("b")},
		{Filename: "c", Data: []byte("c")},
	}))
	require.NoError(t, d.RemoveNodeAttachment(r, 0))
	require.NoError(t, d.RemoveNodeAttachment(r, 0))

	unused, err := d.SetNodeCustomIcon(r, []byte("icon-1"))
	require.NoError(t, err)
	used, err := d.SetNodeCustomIcon(r, []byte("icon-2"))
	require.NoError(t, err)
	assert.Zero(t, d.IconRefCount(unused))
	assert.Equal(t, 1, d.IconRefCount(used))

	attachments, icons := d.CompactPools()
	assert.Equal(t, 2, attachments)
	assert.Equal(t, 1, icons)

	require.Len(t, d.Attachments(), 1)
	require.Len(t, r.Attachments, 1)
	assert.Equal(t, 0, r.Attachments[0].Index)
	data, ok := d.AttachmentData(r.Attachments[0])
	require.True(t, ok)
	assert.Equal(t, "c", string(data))

	require.Len(t, d.CustomIcons(), 1)
	assert.Equal(t, used, d.CustomIcons()[0].ID)
}

func TestAttachments_FormatLimits(t *testing.T) {
	t.Run("single attachment", func(t *testing.T) {
		d := newDB(t, format.KeePass1)
		general := d.Tree().ChildGroups(d.Root())[0]
		r := addRecord(t, d, general, "r", "", "")

		_, err := d.AddNodeAttachment(r, NamedAttachment{Filename: "a", Data: []byte("a")})
		require.NoError(t, err)
		_, err = d.AddNodeAttachment(r, NamedAttachment{Filename: "b", Data: []byte("b")})
		require.ErrorIs(t, err, common.ErrorValidation)
		require.Len(t, r.Attachments, 1)
	})

	t.Run("unsupported", func(t *testing.T) {
		d := newDB(t, format.PasswordSafe)
		r := addRecord(t, d, d.Root(), "r", "", "")
		_, err := d.AddNodeAttachment(r, NamedAttachment{Filename: "a", Data: []byte("a")})
		require.ErrorIs(t, err, format.ErrUnsupported)
		require.NoError(t, d.SetNodeAttachments(r, nil))
	})

	t.Run("groups", func(t *testing.T) {
		d := newDB(t, format.KeePass4)
		_, err := d.AddNodeAttachment(d.Root(), NamedAttachment{Filename: "a"})
		require.ErrorIs(t, err, common.ErrorValidation)
	})
}

func TestIcons(t *testing.T) {
	d := newDB(t, format.KeePass4)
	a := addRecord(t, d, d.Root(), "a", "", "")
	b := addRecord(t, d, d.Root(), "b", "", "")

	ia, err := d.SetNodeCustomIcon(a, []byte("png"))
	require.NoError(t, err)
	ib, err := d.SetNodeCustomIcon(b, []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, ia, ib)
	assert.Len(t, d.CustomIcons(), 1)
	assert.Equal(t, 2, d.IconRefCount(ia))

	require.NoError(t, d.SetNodeIcon(b, 12))
	assert.Equal(t, node.Icon{Index: 12}, b.Icon)
	assert.Equal(t, 1, d.IconRefCount(ia))
	require.ErrorIs(t, d.SetNodeIcon(b, -1), common.ErrorValidation)

	require.NoError(t, d.SetNodeExistingCustomIcon(b, ia))
	assert.Equal(t, ia, b.Icon.Custom)
	require.ErrorIs(t, d.SetNodeExistingCustomIcon(b, uuid.New()), common.ErrorNotFound)

	_, err = d.SetNodeCustomIcon(a, nil)
	require.ErrorIs(t, err, common.ErrorValidation)

	_, err = newDB(t, format.PasswordSafe).SetNodeCustomIcon(a, []byte("png"))
	require.ErrorIs(t, err, format.ErrUnsupported)
}
