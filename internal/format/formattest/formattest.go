// Package formattest provides helpers for testing format adaptors: a sample
// tree exercising every feature a format supports, and a canonical view of a
// tree for comparisons.
package formattest

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Item is a canonical, comparable view of a node and its subtree.
type Item struct {
	Group       bool
	ID          uuid.UUID
	Fields      node.Fields
	Icon        node.Icon
	Times       node.Times
	Attachments []node.AttachmentRef
	History     []Item
	Children    []Item
}

// Options controls what Canonical keeps.
type Options struct {
	// IgnoreGroupIdentity drops ids and times of groups, for formats that do
	// not store them.
	IgnoreGroupIdentity bool
	// IgnoreIcons drops icons, for formats without icon support.
	IgnoreIcons bool
}

// Canonical converts tree into an Item. Children are ordered groups first,
// then records, each by title, so formats that do not preserve interleaving
// still compare equal.
func Canonical(tree *node.Tree, opts Options) Item {
	return canonical(tree, tree.Root(), opts)
}

func canonical(tree *node.Tree, n *node.Node, opts Options) Item {
	it := item(n, opts)
	for _, c := range tree.Children(n) {
		it.Children = append(it.Children, canonical(tree, c, opts))
	}
	sort.SliceStable(it.Children, func(i, j int) bool {
		a, b := it.Children[i], it.Children[j]
		if a.Group != b.Group {
			return a.Group
		}
		return strings.Compare(a.Fields.Title, b.Fields.Title) < 0
	})
	return it
}

func item(n *node.Node, opts Options) Item {
	it := Item{
		Group:       n.IsGroup,
		ID:          n.ID,
		Fields:      n.Fields,
		Icon:        n.Icon,
		Times:       n.Times,
		Attachments: n.Attachments,
	}
	if n.IsGroup && opts.IgnoreGroupIdentity {
		it.ID = uuid.Nil
		it.Times = node.Times{}
	}
	if opts.IgnoreIcons {
		it.Icon = node.Icon{}
	}
	for _, h := range n.History {
		it.History = append(it.History, item(h, opts))
	}
	return it
}

// RequireSameTree fails the test when the canonical views of want and got differ.
func RequireSameTree(t *testing.T, want, got *node.Tree, opts Options) {
	t.Helper()
	diff := cmp.Diff(Canonical(want, opts), Canonical(got, opts), cmpopts.EquateEmpty())
	require.Empty(t, diff, "trees differ (-want +got)")
}

var fixedTime = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func fixedTimes() node.Times {
	return node.Times{Created: fixedTime, Modified: fixedTime.Add(time.Hour), Accessed: fixedTime.Add(2 * time.Hour)}
}

// Populate fills the content returned by an adaptor's NewContent with a
// sample tree using every feature in f:
//
//	root
//	├── Work
//	│   ├── Email (username u, password p, url, notes, email, otp)
//	│   └── Projects
//	│       └── Repo (history, custom fields, attachments, custom icon)
//	├── Empty
//	└── Loose (directly under root when the format allows it)
func Populate(t *testing.T, c *format.Content, f format.Features) {
	t.Helper()
	tree := c.Tree
	root := tree.Root()

	work := node.NewGroup("Work")
	work.Times = fixedTimes()
	require.NoError(t, tree.Add(root.ID, work))

	email := node.NewRecord("Email")
	email.Username = "u"
	email.Password = "p"
	email.URL = "https://mail.example.com"
	email.Notes = "line one\nline two"
	if f.Email {
		email.Email = "u@example.com"
	}
	if f.OTP {
		email.OTP = "otpauth://totp/Example:u?secret=JBSWY3DPEHPK3PXP"
	}
	email.Times = fixedTimes()
	require.NoError(t, tree.Add(work.ID, email))

	projects := node.NewGroup("Projects.2024")
	projects.Times = fixedTimes()
	require.NoError(t, tree.Add(work.ID, projects))

	repo := node.NewRecord("Repo")
	repo.Username = "git"
	repo.Password = "current-ünïcode-pässword"
	repo.Times = fixedTimes()
	repo.Times.Expiry = true
	repo.Times.Expires = fixedTime.Add(24 * time.Hour)

	if f.History {
		old := repo.Snapshot()
		old.Password = "older"
		old.Times.Modified = fixedTime.Add(-time.Hour)
		repo.History = append(repo.History, old)
	}
	if f.CustomFields {
		repo.SetCustomField(node.CustomField{Key: "PIN", Value: "1234", Protected: true})
		repo.SetCustomField(node.CustomField{Key: "Branch", Value: "main"})
	}
	if f.MaxAttachments != 0 {
		c.Attachments = append(c.Attachments, node.Attachment{Data: []byte("attachment-bytes")})
		repo.Attachments = []node.AttachmentRef{{Filename: "key.pem", Index: len(c.Attachments) - 1}}
	}
	if f.CustomIcons {
		icon := node.CustomIcon{ID: uuid.New(), Data: []byte("\x89PNG fake icon")}
		c.Icons = append(c.Icons, icon)
		repo.Icon = node.Icon{Custom: icon.ID}
	}
	require.NoError(t, tree.Add(projects.ID, repo))

	empty := node.NewGroup("Empty")
	empty.Times = fixedTimes()
	require.NoError(t, tree.Add(root.ID, empty))

	loose := node.NewRecord("Loose")
	loose.Password = "loose-pw"
	loose.Times = fixedTimes()
	parent := root.ID
	if !f.RecordsUnderRoot {
		parent = empty.ID
	}
	require.NoError(t, tree.Add(parent, loose))
}
