package database

import (
	"testing"

	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/format/registry"
	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/stretchr/testify/require"
)

// fastRegistry keeps KDF costs at their minimum so tests stay quick.
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

func newDB(t *testing.T, f format.Format, opts ...Option) *Database {
	t.Helper()
	opts = append([]Option{WithRegistry(fastRegistry())}, opts...)
	d, err := CreateNew(ptr("P1"), nil, f, opts...)
	require.NoError(t, err)
	return d
}

func addGroup(t *testing.T, d *Database, parent *node.Node, title string) *node.Node {
	t.Helper()
	g := node.NewGroup(title)
	require.NoError(t, d.AddNode(parent, g))
	return g
}

func addRecord(t *testing.T, d *Database, parent *node.Node, title, user, pass string) *node.Node {
	t.Helper()
	r := node.NewRecord(title)
	r.Username = user
	r.Password = pass
	require.NoError(t, d.AddNode(parent, r))
	return r
}

func titles(ns []*node.Node) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Title)
	}
	return out
}
