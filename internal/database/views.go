package database

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/dustin/go-humanize"
)

// collect walks the tree in pre-order, skipping the root, excluded subtrees
// and anything keep rejects.
func (d *Database) collect(active bool, keep func(*node.Node) bool) []*node.Node {
	skip := d.excluded(!active, !active)
	root := d.Root()

	var out []*node.Node
	d.tree.Walk(func(n *node.Node) bool {
		if d.tree.InSet(skip, n) {
			return false
		}
		if n != root && keep(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

func isRecord(n *node.Node) bool { return !n.IsGroup }
func isGroup(n *node.Node) bool  { return n.IsGroup }
func anyNode(*node.Node) bool    { return true }

// AllNodes lists every node except the root in pre-order.
func (d *Database) AllNodes() []*node.Node { return d.collect(false, anyNode) }

// AllRecords lists every record, recycled and backed up ones included.
func (d *Database) AllRecords() []*node.Node { return d.collect(false, isRecord) }

// AllGroups lists every group except the root.
func (d *Database) AllGroups() []*node.Node { return d.collect(false, isGroup) }

// ActiveRecords lists records outside the recycle bin and backup group.
func (d *Database) ActiveRecords() []*node.Node { return d.collect(true, isRecord) }

// ActiveGroups lists groups outside the recycle bin and backup group.
func (d *Database) ActiveGroups() []*node.Node { return d.collect(true, isGroup) }

func (d *Database) NumberOfRecords() int { return len(d.ActiveRecords()) }
func (d *Database) NumberOfGroups() int  { return len(d.ActiveGroups()) }

// mostPopular tallies the non-empty values of field over active records. Ties
// go to the value seen first.
func (d *Database) mostPopular(field func(*node.Node) string) string {
	counts := make(map[string]int)
	var order []string
	for _, r := range d.ActiveRecords() {
		v := field(r)
		if v == "" {
			continue
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}

	best, bestCount := "", 0
	for _, v := range order {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

func username(n *node.Node) string { return n.Username }
func password(n *node.Node) string { return n.Password }
func email(n *node.Node) string    { return n.Email }
func url(n *node.Node) string      { return n.URL }

func (d *Database) MostPopularUsername() string { return d.mostPopular(username) }
func (d *Database) MostPopularPassword() string { return d.mostPopular(password) }
func (d *Database) MostPopularEmail() string    { return d.mostPopular(email) }

// set returns the distinct non-empty values of field over active records,
// sorted.
func (d *Database) set(field func(*node.Node) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range d.ActiveRecords() {
		v := field(r)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (d *Database) UsernameSet() []string { return d.set(username) }
func (d *Database) EmailSet() []string    { return d.set(email) }
func (d *Database) URLSet() []string      { return d.set(url) }
func (d *Database) PasswordSet() []string { return d.set(password) }

// NodeBySerializationID finds a node by the string produced by
// node.SerializationID.
func (d *Database) NodeBySerializationID(s string) (*node.Node, bool) {
	id, ok := node.ParseSerializationID(s)
	if !ok {
		return nil, false
	}
	return d.tree.Get(id)
}

// GroupPathDisplayString joins the titles from below the root down to n (or
// to n's group, for a record) with "/". The root itself is "/".
func (d *Database) GroupPathDisplayString(n *node.Node) string {
	if n == nil {
		return ""
	}
	g := n
	if !n.IsGroup {
		if g = d.tree.Parent(n); g == nil {
			return ""
		}
	}
	path := d.tree.Path(g.ID)
	if len(path) <= 1 {
		return "/"
	}
	titles := make([]string, 0, len(path)-1)
	for _, p := range path[1:] {
		titles = append(titles, p.Title)
	}
	return strings.Join(titles, "/")
}

// SearchParentGroupPathDisplayString is the path of the group containing n,
// as shown under search results.
func (d *Database) SearchParentGroupPathDisplayString(n *node.Node) string {
	if n == nil {
		return ""
	}
	p := d.tree.Parent(n)
	if p == nil {
		return ""
	}
	return d.GroupPathDisplayString(p)
}

// SortField orders browse listings.
type SortField int

const (
	SortTree SortField = iota
	SortTitle
	SortUsername
	SortCreated
	SortModified
)

// SubtitleField selects the second line shown for a record.
type SubtitleField int

const (
	SubtitleNone SubtitleField = iota
	SubtitleUsername
	SubtitleEmail
	SubtitleURL
	SubtitleNotes
	SubtitleModified
	SubtitleCreated
	SubtitleGroupPath
)

// BrowseOptions control SortItemsForBrowse and BrowseItemSubtitle.
type BrowseOptions struct {
	Sort         SortField
	Descending   bool
	FoldersOnTop bool
	Subtitle     SubtitleField
}

// DefaultBrowseOptions sorts by title with groups first and shows usernames.
func DefaultBrowseOptions() BrowseOptions {
	return BrowseOptions{Sort: SortTitle, FoldersOnTop: true, Subtitle: SubtitleUsername}
}

// SetBrowseOptions changes the browse ordering and subtitles.
func (d *Database) SetBrowseOptions(b BrowseOptions) { d.browse = b }

// BrowseOptions returns the current browse settings.
func (d *Database) BrowseOptions() BrowseOptions { return d.browse }

// SortItemsForBrowse returns a sorted copy of items.
func (d *Database) SortItemsForBrowse(items []*node.Node) []*node.Node {
	out := append([]*node.Node(nil), items...)
	b := d.browse

	less := func(x, y *node.Node) int {
		switch b.Sort {
		case SortTitle:
			return strings.Compare(strings.ToLower(d.Dereference(x.Title, x)), strings.ToLower(d.Dereference(y.Title, y)))
		case SortUsername:
			return strings.Compare(strings.ToLower(d.Dereference(x.Username, x)), strings.ToLower(d.Dereference(y.Username, y)))
		case SortCreated:
			return x.Times.Created.Compare(y.Times.Created)
		case SortModified:
			return x.Times.Modified.Compare(y.Times.Modified)
		}
		return 0
	}

	sort.SliceStable(out, func(i, j int) bool {
		x, y := out[i], out[j]
		if b.FoldersOnTop && x.IsGroup != y.IsGroup {
			return x.IsGroup
		}
		c := less(x, y)
		if b.Descending {
			return c > 0
		}
		return c < 0
	})
	return out
}

// BrowseItemSubtitle is the second line shown for n in a listing. Groups show
// how many items they hold.
func (d *Database) BrowseItemSubtitle(n *node.Node) string {
	if n.IsGroup {
		count := len(n.ChildIDs())
		if count == 1 {
			return "1 item"
		}
		return fmt.Sprintf("%d items", count)
	}

	switch d.browse.Subtitle {
	case SubtitleUsername:
		return d.Dereference(n.Username, n)
	case SubtitleEmail:
		return n.Email
	case SubtitleURL:
		return d.Dereference(n.URL, n)
	case SubtitleNotes:
		notes := d.Dereference(n.Notes, n)
		if i := strings.IndexByte(notes, '\n'); i >= 0 {
			notes = notes[:i]
		}
		return notes
	case SubtitleModified:
		return humanize.Time(n.Times.Modified)
	case SubtitleCreated:
		return humanize.Time(n.Times.Created)
	case SubtitleGroupPath:
		return d.SearchParentGroupPathDisplayString(n)
	}
	return ""
}
