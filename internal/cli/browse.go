package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/database"
	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/dustin/go-humanize"
)

const mask = "********"

func (a *App) current(db *database.Database) *node.Node {
	if n, ok := db.Node(a.cwd); ok && n.IsGroup {
		return n
	}
	a.cwd = db.Root().ID
	return db.Root()
}

// resolve finds an item by its number in the last listing, its title in the
// current group or its serialization id.
func (a *App) resolve(db *database.Database, arg string) (*node.Node, error) {
	if i, err := strconv.Atoi(arg); err == nil {
		if i < 1 || i > len(a.listing) {
			return nil, fmt.Errorf("%w: no item number %d, run ls first", common.ErrorNotFound, i)
		}
		n := a.listing[i-1]
		if _, ok := db.Node(n.ID); !ok {
			return nil, fmt.Errorf("%w: item %d is gone", common.ErrorNotFound, i)
		}
		return n, nil
	}
	for _, c := range db.Tree().Children(a.current(db)) {
		if strings.EqualFold(c.Title, arg) {
			return c, nil
		}
	}
	if n, ok := db.NodeBySerializationID(arg); ok {
		return n, nil
	}
	return nil, fmt.Errorf("%w: %q", common.ErrorNotFound, arg)
}

// resolveGroupPath walks a slash separated path of group titles, from the
// root when it starts with "/" and from the current group otherwise.
func (a *App) resolveGroupPath(db *database.Database, path string) (*node.Node, error) {
	cur := a.current(db)
	if strings.HasPrefix(path, "/") {
		cur = db.Root()
	}
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if p := db.Tree().Parent(cur); p != nil {
				cur = p
			}
			continue
		}
		var next *node.Node
		for _, g := range db.Tree().ChildGroups(cur) {
			if strings.EqualFold(g.Title, part) {
				next = g
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("%w: group %q", common.ErrorNotFound, part)
		}
		cur = next
	}
	return cur, nil
}

func (a *App) printListing(db *database.Database, items []*node.Node, withPath bool) {
	a.listing = items
	if len(items) == 0 {
		fmt.Fprintln(a.out, "(empty)")
		return
	}
	for i, n := range items {
		marker := " "
		if n.IsGroup {
			marker = "+"
		}
		line := fmt.Sprintf("%3d %s %s", i+1, marker, db.Dereference(n.Title, n))
		sub := db.BrowseItemSubtitle(n)
		if withPath {
			sub = db.SearchParentGroupPathDisplayString(n)
		}
		if sub != "" {
			line += "  (" + sub + ")"
		}
		fmt.Fprintln(a.out, line)
	}
}

// List prints the current group, or the group named by args[0].
func (a *App) List(ctx context.Context, args []string) error {
	_, db, err := a.live()
	if err != nil {
		return err
	}
	g := a.current(db)
	if len(args) > 0 {
		if g, err = a.resolveGroupPath(db, args[0]); err != nil {
			return err
		}
	}
	items := db.SortItemsForBrowse(db.Tree().Children(g))
	if bin := db.RecycleBinNode(); bin != nil {
		// The recycle bin is always listed last.
		for i, n := range items {
			if n.ID == bin.ID {
				items = append(append(items[:i:i], items[i+1:]...), bin)
				break
			}
		}
	}
	a.printListing(db, items, false)
	return nil
}

// Cd changes the current group.
func (a *App) Cd(ctx context.Context, args []string) error {
	_, db, err := a.live()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		a.cwd = db.Root().ID
		return nil
	}
	g, err := a.resolveTarget(db, args[0])
	if err != nil {
		return err
	}
	a.cwd = g.ID
	a.sess.SetSelectedItem(g.SerializationID())
	return nil
}

// resolveTarget accepts a listing number, a child title or a group path.
func (a *App) resolveTarget(db *database.Database, arg string) (*node.Node, error) {
	if !strings.Contains(arg, "/") && arg != ".." && arg != "." {
		if n, err := a.resolve(db, arg); err == nil {
			if !n.IsGroup {
				return nil, fmt.Errorf("%w: %q is not a group", common.ErrorValidation, arg)
			}
			return n, nil
		}
	}
	return a.resolveGroupPath(db, arg)
}

// Show prints a record. "-p" reveals the password and protected fields.
func (a *App) Show(ctx context.Context, args []string) error {
	_, db, err := a.live()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("%w: usage: show <item> [-p]", common.ErrorValidation)
	}
	n, err := a.resolve(db, args[0])
	if err != nil {
		return err
	}
	reveal := len(args) > 1 && args[1] == "-p"
	a.sess.SetSelectedItem(n.SerializationID())

	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(a.out, "%-10s %s\n", label+":", value)
		}
	}
	secret := func(value string) string {
		if value == "" || reveal {
			return value
		}
		return mask
	}

	field("Title", db.Dereference(n.Title, n))
	if n.IsGroup {
		field("Items", db.BrowseItemSubtitle(n))
	} else {
		field("Username", db.Dereference(n.Username, n))
		field("Password", secret(db.Dereference(n.Password, n)))
		field("URL", db.Dereference(n.URL, n))
		field("Email", n.Email)
		if n.OTP != "" {
			field("OTP", secret(n.OTP))
		}
		for _, cf := range n.Custom {
			v := db.Dereference(cf.Value, n)
			if cf.Protected {
				v = secret(v)
			}
			field(cf.Key, v)
		}
		for _, ref := range n.Attachments {
			data, _ := db.AttachmentData(ref)
			field("Attached", fmt.Sprintf("%s (%s)", ref.Filename, humanize.Bytes(uint64(len(data)))))
		}
		if len(n.History) > 0 {
			field("History", fmt.Sprintf("%d versions", len(n.History)))
		}
	}
	field("Notes", db.Dereference(n.Notes, n))
	field("Group", db.SearchParentGroupPathDisplayString(n))
	field("Modified", humanize.Time(n.Times.Modified))
	field("Created", n.Times.Created.Local().Format("2006-01-02 15:04"))
	return nil
}

// Find searches all fields of active records, dereferencing values.
func (a *App) Find(ctx context.Context, args []string) error {
	_, db, err := a.live()
	if err != nil {
		return err
	}
	query := strings.Join(args, " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: usage: find <terms>", common.ErrorValidation)
	}
	a.printListing(db, db.Search(query, database.ScopeAll, true, false, false), true)
	return nil
}

// Info prints a summary of the database.
func (a *App) Info(ctx context.Context) error {
	_, db, err := a.live()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%-22s %s\n", "File:", a.path)
	fmt.Fprintf(a.out, "%-22s %s\n", "Format:", db.Format())
	fmt.Fprintf(a.out, "%-22s %s\n", "Records:", humanize.Comma(int64(db.NumberOfRecords())))
	fmt.Fprintf(a.out, "%-22s %s\n", "Groups:", humanize.Comma(int64(db.NumberOfGroups())))
	if u := db.MostPopularUsername(); u != "" {
		fmt.Fprintf(a.out, "%-22s %s\n", "Most used username:", u)
	}
	fmt.Fprintf(a.out, "%-22s %s\n", "Unique passwords:", humanize.Comma(int64(len(db.PasswordSet()))))
	fmt.Fprintf(a.out, "%-22s %d\n", "Attachments:", len(db.Attachments()))
	for _, p := range db.Metadata().Properties() {
		fmt.Fprintf(a.out, "%-22s %s\n", p.Key+":", p.Value)
	}
	return nil
}
