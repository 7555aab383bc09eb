// Package safes keeps the registry of known databases: a nickname, the file
// path, the container format and the item that was selected when the
// database was last locked.
//
// # Overview
//
// The registry lives in a small SQLite database (modernc.org/sqlite) whose
// schema is managed by goose migrations embedded in internal/migrations.
// SQLiteRepository implements Repository over a dbx.DBTX, so it works on
// both *sql.DB and *sql.Tx.
//
// Typical Usage
//
//	store, _ := safes.Open(ctx, "file:safes.db")
//	defer store.Close()
//	_ = store.Safes.Add(ctx, &safes.Safe{Nickname: "work", Path: p, Format: "KeePass4"})
//	list, _ := store.Safes.List(ctx)
package safes
