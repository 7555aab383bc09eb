package database

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/dmitrijs2005/gophsafe/internal/deref"
	"github.com/dmitrijs2005/gophsafe/internal/node"
)

// Scope selects the fields a search looks at.
type Scope int

const (
	ScopeTitle Scope = iota
	ScopeUsername
	ScopePassword
	ScopeURL
	ScopeAll
)

func (s Scope) String() string {
	switch s {
	case ScopeTitle:
		return "title"
	case ScopeUsername:
		return "username"
	case ScopePassword:
		return "password"
	case ScopeURL:
		return "url"
	default:
		return "all"
	}
}

// GetSearchTerms splits a query into whitespace separated terms.
func GetSearchTerms(text string) []string { return deref.GetSearchTerms(text) }

// IsDereferenceableText reports whether text may contain field references.
func (d *Database) IsDereferenceableText(text string) bool {
	return deref.IsDereferenceableText(text)
}

// Dereference expands field references in text in the context of n.
func (d *Database) Dereference(text string, n *node.Node) string {
	return d.deref.Dereference(text, n)
}

func (d *Database) value(text string, n *node.Node, dereference bool) string {
	if dereference {
		return d.deref.Dereference(text, n)
	}
	return text
}

// excluded returns the slots of the subtrees hidden from search and active
// listings.
func (d *Database) excluded(includeBackup, includeRecycleBin bool) *roaring.Bitmap {
	set := roaring.New()
	if !includeRecycleBin {
		if bin := d.RecycleBinNode(); bin != nil {
			set.Or(d.tree.Subtree(bin.ID))
		}
	}
	if !includeBackup {
		if b := d.LegacyBackupNode(); b != nil {
			set.Or(d.tree.Subtree(b.ID))
		}
	}
	return set
}

// Search returns the records matching every term of query within scope.
// Matching is a case-insensitive substring test, against dereferenced values
// when dereference is set. An empty query matches nothing.
func (d *Database) Search(query string, scope Scope, dereference, includeBackup, includeRecycleBin bool) []*node.Node {
	terms := GetSearchTerms(query)
	if len(terms) == 0 {
		return nil
	}
	skip := d.excluded(includeBackup, includeRecycleBin)

	var out []*node.Node
	d.tree.Walk(func(n *node.Node) bool {
		if d.tree.InSet(skip, n) {
			return false
		}
		if n.IsGroup {
			return true
		}
		if d.matchesAllTerms(terms, scope, n, dereference) {
			out = append(out, n)
		}
		return true
	})
	return out
}

func (d *Database) matchesAllTerms(terms []string, scope Scope, n *node.Node, dereference bool) bool {
	for _, t := range terms {
		if !d.matches(t, scope, n, dereference) {
			return false
		}
	}
	return true
}

func (d *Database) matches(text string, scope Scope, n *node.Node, dereference bool) bool {
	switch scope {
	case ScopeTitle:
		return d.IsTitleMatches(text, n, dereference)
	case ScopeUsername:
		return d.IsUsernameMatches(text, n, dereference)
	case ScopePassword:
		return d.IsPasswordMatches(text, n, dereference)
	case ScopeURL:
		return d.IsURLMatches(text, n, dereference)
	default:
		return d.IsAllFieldsMatches(text, n, dereference)
	}
}

func (d *Database) IsTitleMatches(text string, n *node.Node, dereference bool) bool {
	return deref.ContainsFold(d.value(n.Title, n, dereference), text)
}

func (d *Database) IsUsernameMatches(text string, n *node.Node, dereference bool) bool {
	return deref.ContainsFold(d.value(n.Username, n, dereference), text)
}

func (d *Database) IsPasswordMatches(text string, n *node.Node, dereference bool) bool {
	return deref.ContainsFold(d.value(n.Password, n, dereference), text)
}

func (d *Database) IsURLMatches(text string, n *node.Node, dereference bool) bool {
	return deref.ContainsFold(d.value(n.URL, n, dereference), text)
}

// IsAllFieldsMatches tests title, username, password, url, email, notes and
// custom field values.
func (d *Database) IsAllFieldsMatches(text string, n *node.Node, dereference bool) bool {
	if d.IsTitleMatches(text, n, dereference) ||
		d.IsUsernameMatches(text, n, dereference) ||
		d.IsPasswordMatches(text, n, dereference) ||
		d.IsURLMatches(text, n, dereference) ||
		deref.ContainsFold(d.value(n.Email, n, dereference), text) ||
		deref.ContainsFold(d.value(n.Notes, n, dereference), text) {
		return true
	}
	for _, cf := range n.Custom {
		if deref.ContainsFold(d.value(cf.Value, n, dereference), text) {
			return true
		}
	}
	return false
}
