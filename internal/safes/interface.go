package safes

import "context"

// Repository describes the operations on registered databases.
type Repository interface {
	// Add registers a new database. The id and creation time are filled in
	// when empty.
	Add(ctx context.Context, s *Safe) error

	// Get returns a database by id or nickname.
	Get(ctx context.Context, idOrNickname string) (*Safe, error)

	// List returns every database ordered by nickname.
	List(ctx context.Context) ([]*Safe, error)

	// Rename changes the nickname.
	Rename(ctx context.Context, id, nickname string) error

	// MarkOpened records a successful unlock and the selection to restore.
	MarkOpened(ctx context.Context, id, selectedItem string) error

	// SetLastSelectedItem stores the selection retained across a lock.
	SetLastSelectedItem(ctx context.Context, id, selectedItem string) error

	// Delete unregisters a database. The file itself is untouched.
	Delete(ctx context.Context, id string) error
}
