package session

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/gophsafe/internal/database"
	"github.com/dmitrijs2005/gophsafe/internal/format/kdbx"
	"github.com/dmitrijs2005/gophsafe/internal/node"
)

// Field is one column of an import row.
type Field struct {
	Key   string
	Value string
}

// Row is one spreadsheet row, columns in header order.
type Row []Field

// Value returns the first column whose header matches key, ignoring case.
func (r Row) Value(key string) (string, bool) {
	for _, f := range r {
		if strings.EqualFold(strings.TrimSpace(f.Key), key) {
			return f.Value, true
		}
	}
	return "", false
}

type column int

const (
	colExtra column = iota
	colTitle
	colGroup
	colUsername
	colEmail
	colPassword
	colURL
	colNotes
	colOTP
)

var columns = map[string]column{
	"title":    colTitle,
	"group":    colGroup,
	"username": colUsername,
	"login":    colUsername,
	"email":    colEmail,
	"password": colPassword,
	"url":      colURL,
	"notes":    colNotes,
	"otp":      colOTP,
	"totp":     colOTP,
}

// ImportRows creates one record per row under parent. A "group" column holds
// a slash separated path of groups below parent, created as needed. Columns
// the format cannot store natively become custom fields where supported and
// are appended to the notes otherwise. Records are added one by one, so an
// error leaves the rows before it imported; they are returned with the error.
func (s *Session) ImportRows(ctx context.Context, parent *node.Node, rows []Row) ([]*node.Node, error) {
	db, err := s.attached(parent)
	if err != nil {
		return nil, err
	}
	if !parent.IsGroup {
		return nil, node.ErrParentNotGroup
	}

	var added []*node.Node
	for _, row := range rows {
		r, group := s.recordFromRow(db, row)

		target := parent
		if group != "" {
			if target, err = s.ensureGroupPath(parent, group); err != nil {
				return added, err
			}
		}
		if err := s.AddItem(target, r); err != nil {
			return added, err
		}
		added = append(added, r)
	}

	s.log.Info(ctx, "rows imported", "rows", len(rows), "records", len(added))
	return added, nil
}

func (s *Session) recordFromRow(db *database.Database, row Row) (*node.Node, string) {
	f := db.Features()
	r := node.NewRecord("")
	var group string
	var extra []Field

	for _, fl := range row {
		if fl.Value == "" {
			continue
		}
		switch columns[strings.ToLower(strings.TrimSpace(fl.Key))] {
		case colTitle:
			r.Title = fl.Value
		case colGroup:
			group = fl.Value
		case colUsername:
			r.Username = fl.Value
		case colPassword:
			r.Password = fl.Value
		case colURL:
			r.URL = fl.Value
		case colNotes:
			r.Notes = fl.Value
		case colEmail:
			if f.Email {
				r.Email = fl.Value
			} else {
				extra = append(extra, fl)
			}
		case colOTP:
			if otp, err := normalizeOTP(fl.Value); err == nil && f.OTP {
				r.OTP = otp
			} else {
				extra = append(extra, fl)
			}
		default:
			extra = append(extra, fl)
		}
	}

	for _, fl := range extra {
		key := strings.TrimSpace(fl.Key)
		if f.CustomFields && key != "" && !kdbx.IsStandardKey(key) {
			r.SetCustomField(node.CustomField{Key: key, Value: fl.Value})
			continue
		}
		if r.Notes != "" {
			r.Notes += "\n"
		}
		r.Notes += key + ": " + fl.Value
	}

	if strings.TrimSpace(r.Title) == "" {
		r.Title = UntitledRecord
	}
	return r, group
}

// ensureGroupPath walks path below parent, matching existing groups by title
// and adding the missing ones.
func (s *Session) ensureGroupPath(parent *node.Node, path string) (*node.Node, error) {
	db := s.db
	cur := parent
	for _, part := range strings.Split(path, "/") {
		part = strings.TrimSpace(part)
		if part == "" {
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
			g, err := s.AddNewGroup(cur, part)
			if err != nil {
				return nil, err
			}
			next = g
		}
		cur = next
	}
	return cur, nil
}
