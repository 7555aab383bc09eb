package safes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

func (r *SQLiteRepository) Add(ctx context.Context, s *Safe) error {
	if err := s.normalize(r.now()); err != nil {
		return fmt.Errorf("invalid safe: %w", err)
	}

	query := `INSERT INTO safes (id, nickname, path, format, last_selected_item, created_at, last_opened_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Nickname, s.Path, s.Format, s.LastSelectedItem, unix(s.CreatedAt), unix(s.LastOpenedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateNickname, s.Nickname)
	}
	if err != nil {
		return fmt.Errorf("failed to insert safe: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, idOrNickname string) (*Safe, error) {
	query := `SELECT id, nickname, path, format, last_selected_item, created_at, last_opened_at
			FROM safes WHERE id = ? OR nickname = ? LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, idOrNickname, idOrNickname)

	s, err := scanSafe(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: safe %q", common.ErrorNotFound, idOrNickname)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get safe: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*Safe, error) {
	query := `SELECT id, nickname, path, format, last_selected_item, created_at, last_opened_at
			FROM safes ORDER BY nickname`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list safes: %w", err)
	}
	defer rows.Close()

	var result []*Safe
	for rows.Next() {
		s, err := scanSafe(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan safe row: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate safe rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Rename(ctx context.Context, id, nickname string) error {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return fmt.Errorf("invalid nickname: %w", common.ErrorValidation)
	}
	err := dbx.ExecOne(ctx, r.db, `UPDATE safes SET nickname = ? WHERE id = ?`, nickname, id)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateNickname, nickname)
	}
	if err != nil {
		return fmt.Errorf("failed to rename safe: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkOpened(ctx context.Context, id, selectedItem string) error {
	err := dbx.ExecOne(ctx, r.db, `UPDATE safes SET last_opened_at = ?, last_selected_item = ? WHERE id = ?`,
		unix(r.now()), selectedItem, id)
	if err != nil {
		return fmt.Errorf("failed to mark safe opened: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SetLastSelectedItem(ctx context.Context, id, selectedItem string) error {
	err := dbx.ExecOne(ctx, r.db, `UPDATE safes SET last_selected_item = ? WHERE id = ?`, selectedItem, id)
	if err != nil {
		return fmt.Errorf("failed to set last selected item: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if err := dbx.ExecOne(ctx, r.db, `DELETE FROM safes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete safe: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSafe(row scanner) (*Safe, error) {
	var (
		s                 Safe
		created, lastOpen int64
	)
	if err := row.Scan(&s.ID, &s.Nickname, &s.Path, &s.Format, &s.LastSelectedItem, &created, &lastOpen); err != nil {
		return nil, err
	}
	s.CreatedAt = fromUnix(created)
	s.LastOpenedAt = fromUnix(lastOpen)
	return &s, nil
}
