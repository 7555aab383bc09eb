package node

import (
	"testing"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T) (*Tree, *Node, *Node, *Node) {
	t.Helper()
	tree, err := NewTree(NewGroup("root"))
	require.NoError(t, err)

	work := NewGroup("Work")
	require.NoError(t, tree.Add(tree.Root().ID, work))
	sub := NewGroup("Sub")
	require.NoError(t, tree.Add(work.ID, sub))
	rec := NewRecord("Email")
	require.NoError(t, tree.Add(sub.ID, rec))

	return tree, work, sub, rec
}

func TestNewTree_RootMustBeGroup(t *testing.T) {
	_, err := NewTree(NewRecord("x"))
	require.ErrorIs(t, err, ErrInvalidRoot)

	_, err = NewTree(nil)
	require.ErrorIs(t, err, ErrInvalidRoot)
}

func TestTree_AddAndLookup(t *testing.T) {
	tree, work, sub, rec := newTestTree(t)

	assert.Equal(t, 4, tree.Len())
	got, ok := tree.Get(rec.ID)
	require.True(t, ok)
	assert.Same(t, rec, got)
	assert.Same(t, sub, tree.Parent(rec))
	assert.Nil(t, tree.Parent(tree.Root()))
	assert.Equal(t, []*Node{sub}, tree.ChildGroups(work))
	assert.Equal(t, []*Node{rec}, tree.ChildRecords(sub))
	require.NoError(t, tree.Check())
}

func TestTree_AddRejectsRecordParentAndReattach(t *testing.T) {
	tree, work, _, rec := newTestTree(t)

	err := tree.Add(rec.ID, NewRecord("child"))
	require.ErrorIs(t, err, ErrParentNotGroup)
	require.ErrorIs(t, err, common.ErrorValidation)

	err = tree.Add(work.ID, rec)
	require.ErrorIs(t, err, ErrAlreadyAttached)

	err = tree.Add(uuid.New(), NewRecord("orphan"))
	require.ErrorIs(t, err, common.ErrorNotFound)
	require.NoError(t, tree.Check())
}

func TestTree_MoveRejectsCycles(t *testing.T) {
	tree, work, sub, rec := newTestTree(t)

	tests := []struct {
		name      string
		id, to    uuid.UUID
		wantError error
	}{
		{"into itself", work.ID, work.ID, ErrMoveIntoSelf},
		{"into descendant", work.ID, sub.ID, ErrMoveIntoSelf},
		{"into record", sub.ID, rec.ID, ErrParentNotGroup},
		{"root", tree.Root().ID, work.ID, ErrRootImmutable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tree.ValidateMove(tt.id, tt.to), tt.wantError)
			require.ErrorIs(t, tree.Move(tt.id, tt.to), tt.wantError)
			assert.Same(t, work, tree.Parent(sub))
			assert.Equal(t, tree.Root().ID, work.Parent())
			require.NoError(t, tree.Check())
		})
	}
}

func TestTree_Move(t *testing.T) {
	tree, work, sub, rec := newTestTree(t)

	require.NoError(t, tree.Move(rec.ID, work.ID))
	assert.Same(t, work, tree.Parent(rec))
	assert.Empty(t, tree.Children(sub))
	assert.Equal(t, []uuid.UUID{sub.ID, rec.ID}, work.ChildIDs())

	// moving to the current parent is a no-op
	require.NoError(t, tree.Move(rec.ID, work.ID))
	assert.Equal(t, []uuid.UUID{sub.ID, rec.ID}, work.ChildIDs())
	require.NoError(t, tree.Check())
}

func TestTree_RemoveSubtree(t *testing.T) {
	tree, work, sub, rec := newTestTree(t)

	removed, err := tree.Remove(work.ID)
	require.NoError(t, err)
	assert.Equal(t, []*Node{work, sub, rec}, removed)
	assert.Equal(t, 1, tree.Len())
	_, ok := tree.Get(rec.ID)
	assert.False(t, ok)
	require.NoError(t, tree.Check())

	_, err = tree.Remove(tree.Root().ID)
	require.ErrorIs(t, err, ErrRootImmutable)
}

func TestTree_SubtreeAndPath(t *testing.T) {
	tree, work, sub, rec := newTestTree(t)

	set := tree.Subtree(sub.ID)
	assert.True(t, tree.InSet(set, sub))
	assert.True(t, tree.InSet(set, rec))
	assert.False(t, tree.InSet(set, work))
	assert.False(t, tree.InSet(set, tree.Root()))

	assert.Equal(t, []*Node{tree.Root(), work, sub, rec}, tree.Path(rec.ID))
	assert.True(t, tree.IsAncestor(work.ID, rec.ID))
	assert.False(t, tree.IsAncestor(rec.ID, work.ID))
}

func TestTree_WalkPreOrderAndSkip(t *testing.T) {
	tree, work, sub, _ := newTestTree(t)
	other := NewRecord("Other")
	require.NoError(t, tree.Add(tree.Root().ID, other))

	var titles []string
	tree.Walk(func(n *Node) bool {
		titles = append(titles, n.Title)
		return n.ID != sub.ID
	})
	assert.Equal(t, []string{"root", "Work", "Sub", "Other"}, titles)
	_ = work
}
