package safes

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gophsafe/internal/dbx"
	"github.com/dmitrijs2005/gophsafe/internal/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Store owns the registry connection.
type Store struct {
	DB    *sql.DB
	Safes Repository
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Open connects to the sqlite registry at dsn and migrates it.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db, Safes: NewSQLiteRepository(db)}, nil
}

// Tx runs fn with a repository bound to a transaction. The changes are
// committed when fn returns nil and rolled back otherwise.
func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	return dbx.WithTx(ctx, s.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, NewSQLiteRepository(tx))
	})
}

// Close closes the connection.
func (s *Store) Close() error {
	return s.DB.Close()
}
