package cli

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/database"
	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/dmitrijs2005/gophsafe/internal/session"
	"github.com/dustin/go-humanize"
)

func usage(u string) error {
	return fmt.Errorf("%w: usage: %s", common.ErrorValidation, u)
}

// Add creates a record in the current group and asks for its fields. Empty
// answers keep the suggested values.
func (a *App) Add(ctx context.Context, args []string) error {
	s, db, err := a.live()
	if err != nil {
		return err
	}
	r, err := s.AddNewRecord(a.current(db))
	if err != nil {
		return err
	}

	title := strings.Join(args, " ")
	if title == "" {
		if title, err = GetSimpleText(a.reader, "Title", a.out); err != nil {
			return err
		}
	}
	if title != "" {
		if err := s.SetTitle(r, title); err != nil {
			return err
		}
	}

	username, err := GetSimpleText(a.reader, fmt.Sprintf("Username [%s]", r.Username), a.out)
	if err != nil {
		return err
	}
	if username != "" {
		if err := s.SetUsername(r, username); err != nil {
			return err
		}
	}

	pw, err := GetPassword(a.out, "Password (empty to keep the generated one)")
	if err != nil {
		return err
	}
	if len(pw) > 0 {
		err = s.SetPassword(r, string(pw))
		common.WipeByteArray(pw)
		if err != nil {
			return err
		}
	}

	u, err := GetSimpleText(a.reader, "URL", a.out)
	if err != nil {
		return err
	}
	if err := s.SetURL(r, u); err != nil {
		return err
	}

	s.SetSelectedItem(r.SerializationID())
	fmt.Fprintf(a.out, "Added %q\n", r.Title)
	return nil
}

// Mkdir creates a group in the current group.
func (a *App) Mkdir(ctx context.Context, args []string) error {
	s, db, err := a.live()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return usage("mkdir <title>")
	}
	_, err = s.AddNewGroup(a.current(db), strings.Join(args, " "))
	return err
}

// Edit changes one field of an item:
//
//	edit <item> title|username|password|url|email|notes|otp|icon [value]
//	edit <item> field <name>=<value>
//	edit <item> unfield <name>
//
// A missing value is prompted for. An empty password generates a new one.
func (a *App) Edit(ctx context.Context, args []string) error {
	s, db, err := a.live()
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return usage("edit <item> <field> [value]")
	}
	n, err := a.resolve(db, args[0])
	if err != nil {
		return err
	}
	what := strings.ToLower(args[1])
	value := strings.Join(args[2:], " ")
	given := len(args) > 2

	ask := func(prompt string) (string, error) {
		if given {
			return value, nil
		}
		return GetSimpleText(a.reader, prompt, a.out)
	}

	switch what {
	case "title":
		v, err := ask("Title")
		if err != nil {
			return err
		}
		return s.SetTitle(n, v)
	case "username", "user":
		v, err := ask("Username")
		if err != nil {
			return err
		}
		return s.SetUsername(n, v)
	case "url":
		v, err := ask("URL")
		if err != nil {
			return err
		}
		return s.SetURL(n, v)
	case "email":
		v, err := ask("Email")
		if err != nil {
			return err
		}
		return s.SetEmail(n, v)
	case "otp":
		v, err := ask("OTP secret or otpauth:// URL (empty to clear)")
		if err != nil {
			return err
		}
		if v == "" {
			return s.ClearOTP(n)
		}
		return s.SetOTP(n, v)
	case "icon":
		v, err := ask("Icon number")
		if err != nil {
			return err
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: icon must be a number", common.ErrorValidation)
		}
		return s.SetIcon(n, i)
	case "notes":
		v := value
		if !given {
			if v, err = GetMultiline(a.reader, "Notes", a.out); err != nil {
				return err
			}
		}
		return s.SetNotes(n, v)
	case "password", "pass":
		return a.editPassword(s, n, value, given)
	case "field":
		if !given {
			fields, err := GetFields(a.reader, a.out)
			if err != nil {
				return err
			}
			for _, f := range fields {
				if err := s.SetCustomField(n, f.Key, f.Value, false); err != nil {
					return err
				}
			}
			return nil
		}
		f, err := parseField(value)
		if err != nil {
			return err
		}
		return s.SetCustomField(n, f.Key, f.Value, false)
	case "unfield":
		if !given {
			return usage("edit <item> unfield <name>")
		}
		return s.RemoveCustomField(n, value)
	}
	return fmt.Errorf("%w: unknown field %q", common.ErrorValidation, what)
}

func (a *App) editPassword(s *session.Session, n *node.Node, value string, given bool) error {
	if !given {
		pw, err := GetPassword(a.out, "Password (empty to generate)")
		if err != nil {
			return err
		}
		value = string(pw)
		common.WipeByteArray(pw)
	}
	if value == "" {
		gen, err := s.GeneratePassword()
		if err != nil {
			return err
		}
		value = gen
		fmt.Fprintln(a.out, "Generated a new password.")
	}
	return s.SetPassword(n, value)
}

// Remove deletes an item, through the recycle bin when there is one.
func (a *App) Remove(ctx context.Context, args []string) error {
	s, db, err := a.live()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return usage("rm <item>")
	}
	n, err := a.resolve(db, args[0])
	if err != nil {
		return err
	}
	title := n.Title
	recycle := s.DeleteWillRecycle(n)
	if err := s.DeleteItem(ctx, n); err != nil {
		return err
	}
	a.listing = nil
	if recycle {
		fmt.Fprintf(a.out, "Moved %q to the recycle bin\n", title)
	} else {
		fmt.Fprintf(a.out, "Deleted %q\n", title)
	}
	return nil
}

// Move re-parents an item under a group path.
func (a *App) Move(ctx context.Context, args []string) error {
	s, db, err := a.live()
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return usage("mv <item> <group>")
	}
	n, err := a.resolve(db, args[0])
	if err != nil {
		return err
	}
	target, err := a.resolveTarget(db, args[1])
	if err != nil {
		return err
	}
	if err := s.ValidateChangeParent(target, n); err != nil {
		return err
	}
	return s.ChangeParent(target, n)
}

// History lists the previous versions of a record, oldest first.
func (a *App) History(ctx context.Context, args []string) error {
	_, db, err := a.live()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return usage("history <item>")
	}
	n, err := a.resolve(db, args[0])
	if err != nil {
		return err
	}
	if len(n.History) == 0 {
		fmt.Fprintln(a.out, "(no history)")
		return nil
	}
	for i, h := range n.History {
		fmt.Fprintf(a.out, "%3d  %-24s %-20s %s\n", i+1, h.Title, h.Username, humanize.Time(h.Times.Modified))
	}
	return nil
}

func (a *App) historyArgs(db *database.Database, args []string, verb string) (*node.Node, int, error) {
	if len(args) < 2 {
		return nil, 0, usage(verb + " <item> <version>")
	}
	n, err := a.resolve(db, args[0])
	if err != nil {
		return nil, 0, err
	}
	i, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: version must be a number", common.ErrorValidation)
	}
	return n, i - 1, nil
}

// Restore brings back a previous version; the replaced state joins the
// history.
func (a *App) Restore(ctx context.Context, args []string) error {
	s, db, err := a.live()
	if err != nil {
		return err
	}
	n, i, err := a.historyArgs(db, args, "restore")
	if err != nil {
		return err
	}
	return s.RestoreHistoryItem(n, i)
}

// Forget drops a previous version for good.
func (a *App) Forget(ctx context.Context, args []string) error {
	s, db, err := a.live()
	if err != nil {
		return err
	}
	n, i, err := a.historyArgs(db, args, "forget")
	if err != nil {
		return err
	}
	return s.DeleteHistoryItem(n, i)
}

// Attach adds a file to a record.
func (a *App) Attach(ctx context.Context, args []string) error {
	s, db, err := a.live()
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return usage("attach <item> <file>")
	}
	n, err := a.resolve(db, args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[1], err)
	}
	return s.AddAttachment(n, database.NamedAttachment{Filename: filepath.Base(args[1]), Data: data})
}

// Detach removes the numbered attachment of a record.
func (a *App) Detach(ctx context.Context, args []string) error {
	s, db, err := a.live()
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return usage("detach <item> <number>")
	}
	n, err := a.resolve(db, args[0])
	if err != nil {
		return err
	}
	i, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: attachment must be a number", common.ErrorValidation)
	}
	return s.RemoveAttachment(n, i-1)
}

// readCSV turns a spreadsheet export into import rows. The first record is
// the header.
func readCSV(r io.Reader) ([]session.Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	var rows []session.Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		row := make(session.Row, 0, len(header))
		for i, key := range header {
			if i < len(rec) {
				row = append(row, session.Field{Key: key, Value: rec[i]})
			}
		}
		rows = append(rows, row)
	}
}

// Import reads a CSV file into the current group.
func (a *App) Import(ctx context.Context, args []string) error {
	s, db, err := a.live()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return usage("import <file.csv>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := readCSV(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}
	added, err := s.ImportRows(ctx, a.current(db), rows)
	fmt.Fprintf(a.out, "Imported %d of %d rows\n", len(added), len(rows))
	return err
}

// Generate prints a password from the configured generator.
func (a *App) Generate(ctx context.Context) error {
	if a.sess == nil {
		return ErrNoSafe
	}
	pw, err := a.sess.GeneratePassword()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, pw)
	return nil
}

// Passwd changes the master password. It takes effect on the next save.
func (a *App) Passwd(ctx context.Context) error {
	s, _, err := a.live()
	if err != nil {
		return err
	}
	pw, err := GetNewPassword(a.out)
	if err != nil {
		return err
	}
	password := string(pw)
	common.WipeByteArray(pw)

	if err := s.SetMasterCredentials(&password, nil); err != nil {
		return err
	}
	a.dirty = true
	fmt.Fprintln(a.out, "Master password changed, save to apply.")
	return nil
}
