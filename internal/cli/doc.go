// Package cli implements the interactive gophsafe shell.
//
// The shell opens one database file at a time through a session.Session and
// offers commands to browse groups, inspect and edit records, search, manage
// history and attachments, import spreadsheet rows and save the result. The
// safes registry remembers where each database lives and which item was
// selected last.
package cli
