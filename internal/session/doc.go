// Package session is the mutation layer over an unlocked database.
//
// A Session owns the document bytes of one database file. While unlocked it
// holds the decoded database.Database and routes every change through
// checked mutators that capture history, keep recycle-bin rules and notify
// subscribers. Locking discards the decoded model and keeps the document bytes
// and the last selected item, so the same file can be unlocked again.
//
// A Session is not safe for concurrent use.
package session
