package database

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListings(t *testing.T) {
	d := newDB(t, format.KeePass4)
	work := addGroup(t, d, d.Root(), "Work")
	addRecord(t, d, work, "a", "", "")
	b := addRecord(t, d, d.Root(), "b", "", "")
	require.NoError(t, d.Recycle(b))

	assert.Equal(t, []string{"Work", "a", RecycleBinTitle, "b"}, titles(d.AllNodes()))
	assert.Equal(t, []string{"a", "b"}, titles(d.AllRecords()))
	assert.Equal(t, []string{"Work", RecycleBinTitle}, titles(d.AllGroups()))
	assert.Equal(t, []string{"a"}, titles(d.ActiveRecords()))
	assert.Equal(t, []string{"Work"}, titles(d.ActiveGroups()))
	assert.Equal(t, 1, d.NumberOfRecords())
	assert.Equal(t, 1, d.NumberOfGroups())
}

func TestMostPopularAndSets(t *testing.T) {
	d := newDB(t, format.KeePass4)
	root := d.Root()
	addRecord(t, d, root, "1", "bob", "x")
	addRecord(t, d, root, "2", "alice", "y")
	addRecord(t, d, root, "3", "alice", "x")
	addRecord(t, d, root, "4", "bob", "")
	addRecord(t, d, root, "5", "", "")

	assert.Equal(t, "bob", d.MostPopularUsername(), "ties go to the first seen value")
	assert.Equal(t, "x", d.MostPopularPassword())
	assert.Equal(t, "", d.MostPopularEmail())

	if diff := cmp.Diff([]string{"alice", "bob"}, d.UsernameSet()); diff != "" {
		t.Errorf("UsernameSet mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"x", "y"}, d.PasswordSet()); diff != "" {
		t.Errorf("PasswordSet mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, d.EmailSet())
	assert.Empty(t, d.URLSet())
}

func TestNodeBySerializationID(t *testing.T) {
	d := newDB(t, format.KeePass4)
	g := addGroup(t, d, d.Root(), "Work")
	r := addRecord(t, d, g, "a", "", "")

	got, ok := d.NodeBySerializationID(r.SerializationID())
	require.True(t, ok)
	assert.Same(t, r, got)

	got, ok = d.NodeBySerializationID(g.ID.String())
	require.True(t, ok)
	assert.Same(t, g, got)

	_, ok = d.NodeBySerializationID("r:not-a-uuid")
	assert.False(t, ok)
}

func TestGroupPathDisplayString(t *testing.T) {
	d := newDB(t, format.KeePass4)
	work := addGroup(t, d, d.Root(), "Work")
	infra := addGroup(t, d, work, "Infra")
	r := addRecord(t, d, infra, "db", "", "")
	top := addRecord(t, d, d.Root(), "top", "", "")

	assert.Equal(t, "/", d.GroupPathDisplayString(d.Root()))
	assert.Equal(t, "Work/Infra", d.GroupPathDisplayString(infra))
	assert.Equal(t, "Work/Infra", d.GroupPathDisplayString(r))
	assert.Equal(t, "/", d.GroupPathDisplayString(top))
	assert.Equal(t, "Work", d.SearchParentGroupPathDisplayString(infra))
	assert.Equal(t, "Work/Infra", d.SearchParentGroupPathDisplayString(r))
	assert.Equal(t, "", d.SearchParentGroupPathDisplayString(d.Root()))
}

func TestSortItemsForBrowse(t *testing.T) {
	d := newDB(t, format.KeePass4)
	root := d.Root()
	c := addRecord(t, d, root, "charlie", "z", "")
	g := addGroup(t, d, root, "Zeta")
	a := addRecord(t, d, root, "Alpha", "y", "")
	b := addRecord(t, d, root, "bravo", "x", "")

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Times.Created = base
	a.Times.Created = base.Add(time.Hour)
	b.Times.Created = base.Add(2 * time.Hour)
	g.Times.Created = base.Add(3 * time.Hour)

	items := d.Tree().Children(root)

	tests := []struct {
		name string
		opts BrowseOptions
		want []string
	}{
		{name: "default", opts: DefaultBrowseOptions(), want: []string{"Zeta", "Alpha", "bravo", "charlie"}},
		{name: "title descending", opts: BrowseOptions{Sort: SortTitle, Descending: true}, want: []string{"Zeta", "charlie", "bravo", "Alpha"}},
		{name: "username", opts: BrowseOptions{Sort: SortUsername}, want: []string{"Zeta", "bravo", "Alpha", "charlie"}},
		{name: "created", opts: BrowseOptions{Sort: SortCreated, FoldersOnTop: true}, want: []string{"Zeta", "charlie", "Alpha", "bravo"}},
		{name: "tree order", opts: BrowseOptions{Sort: SortTree}, want: []string{"charlie", "Zeta", "Alpha", "bravo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d.SetBrowseOptions(tt.opts)
			assert.Equal(t, tt.opts, d.BrowseOptions())
			assert.Equal(t, tt.want, titles(d.SortItemsForBrowse(items)))
		})
	}
	assert.Equal(t, []string{"charlie", "Zeta", "Alpha", "bravo"}, titles(items), "input is not reordered")
}

func TestBrowseItemSubtitle(t *testing.T) {
	d := newDB(t, format.KeePass4)
	work := addGroup(t, d, d.Root(), "Work")
	r := addRecord(t, d, work, "db", "admin", "")
	r.Email = "ops@example.com"
	r.URL = "https://db"
	r.Notes = "first line\nsecond line"
	empty := addGroup(t, d, d.Root(), "Empty")

	assert.Equal(t, "1 item", d.BrowseItemSubtitle(work))
	assert.Equal(t, "0 items", d.BrowseItemSubtitle(empty))
	addRecord(t, d, work, "other", "", "")
	assert.Equal(t, "2 items", d.BrowseItemSubtitle(work))

	tests := []struct {
		field SubtitleField
		want  string
	}{
		{SubtitleNone, ""},
		{SubtitleUsername, "admin"},
		{SubtitleEmail, "ops@example.com"},
		{SubtitleURL, "https://db"},
		{SubtitleNotes, "first line"},
		{SubtitleGroupPath, "Work"},
	}
	for _, tt := range tests {
		d.SetBrowseOptions(BrowseOptions{Subtitle: tt.field})
		assert.Equal(t, tt.want, d.BrowseItemSubtitle(r))
	}

	r.Times.Modified = time.Now().Add(-3 * time.Hour)
	d.SetBrowseOptions(BrowseOptions{Subtitle: SubtitleModified})
	assert.Equal(t, "3 hours ago", d.BrowseItemSubtitle(r))
}
