package session

import (
	"testing"

	"github.com/dmitrijs2005/gophsafe/internal/database"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/format/registry"
	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/stretchr/testify/require"
)

func fastRegistry() *registry.Registry {
	return registry.Default(registry.Options{
		PasswordSafeIterations: 2048,
		AESKDFRounds:           100,
		Argon2Iterations:       1,
		Argon2MemoryKiB:        64,
		Argon2Parallelism:      1,
	})
}

func ptr(s string) *string { return &s }

// newTestSession returns an unlocked session over a fresh database of format f
// and records every event it emits.
func newTestSession(t *testing.T, f format.Format, opts ...Option) (*Session, *[]Event) {
	t.Helper()
	db, err := database.CreateNew(ptr("P1"), nil, f, database.WithRegistry(fastRegistry()))
	require.NoError(t, err)

	opts = append([]Option{WithDatabaseOptions(database.WithRegistry(fastRegistry()))}, opts...)
	s := NewUnlocked(nil, db, "", opts...)

	var events []Event
	s.Subscribe(func(e Event) { events = append(events, e) })
	return s, &events
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

// recordParent is a group records may be added to in every format.
func recordParent(s *Session) *node.Node {
	db := s.Database()
	if db.Features().RecordsUnderRoot {
		return db.Root()
	}
	return db.Tree().ChildGroups(db.Root())[0]
}

func addRecord(t *testing.T, s *Session, title string) *node.Node {
	t.Helper()
	r := node.NewRecord(title)
	require.NoError(t, s.AddItem(recordParent(s), r))
	return r
}
