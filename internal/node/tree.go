package node

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring"
	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/google/uuid"
)

var (
	ErrMoveIntoSelf       = fmt.Errorf("%w: node cannot be moved into itself or its descendants", common.ErrorValidation)
	ErrParentNotGroup     = fmt.Errorf("%w: parent is not a group", common.ErrorValidation)
	ErrRootImmutable      = fmt.Errorf("%w: root cannot be moved or removed", common.ErrorValidation)
	ErrAlreadyAttached    = fmt.Errorf("%w: node is already attached to a tree", common.ErrorValidation)
	ErrDetachedWithKids   = fmt.Errorf("%w: detached node must not carry children", common.ErrorValidation)
	ErrInvalidRoot        = errors.New("tree root must be a group")
	ErrInvariantViolation = errors.New("tree invariant violated")
)

// Tree is an arena of nodes rooted at a single group.
//
// Every attached node gets a uint32 slot that is never reused, which lets
// callers describe node sets as roaring bitmaps.
type Tree struct {
	root     uuid.UUID
	nodes    map[uuid.UUID]*Node
	nextSlot uint32
}

// NewTree creates a tree whose root is the given group.
func NewTree(root *Node) (*Tree, error) {
	if root == nil || !root.IsGroup {
		return nil, ErrInvalidRoot
	}
	if root.attached || len(root.children) > 0 {
		return nil, ErrAlreadyAttached
	}

	t := &Tree{root: root.ID, nodes: make(map[uuid.UUID]*Node)}
	t.attach(root, uuid.Nil)
	return t, nil
}

func (t *Tree) attach(n *Node, parent uuid.UUID) {
	n.parent = parent
	n.slot = t.nextSlot
	n.attached = true
	t.nextSlot++
	t.nodes[n.ID] = n
}

func notFound(id uuid.UUID) error {
	return fmt.Errorf("%w: node %s", common.ErrorNotFound, id)
}

// Root returns the root group.
func (t *Tree) Root() *Node { return t.nodes[t.root] }

// Len returns the number of attached nodes, root included.
func (t *Tree) Len() int { return len(t.nodes) }

// Get looks a node up by id.
func (t *Tree) Get(id uuid.UUID) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Parent returns the parent of n, or nil for the root.
func (t *Tree) Parent(n *Node) *Node {
	if n == nil || n.parent == uuid.Nil {
		return nil
	}
	return t.nodes[n.parent]
}

// Children returns the children of n in order.
func (t *Tree) Children(n *Node) []*Node {
	out := make([]*Node, 0, len(n.children))
	for _, id := range n.children {
		out = append(out, t.nodes[id])
	}
	return out
}

// ChildGroups returns the child groups of n in order.
func (t *Tree) ChildGroups(n *Node) []*Node {
	var out []*Node
	for _, c := range t.Children(n) {
		if c.IsGroup {
			out = append(out, c)
		}
	}
	return out
}

// ChildRecords returns the child records of n in order.
func (t *Tree) ChildRecords(n *Node) []*Node {
	var out []*Node
	for _, c := range t.Children(n) {
		if !c.IsGroup {
			out = append(out, c)
		}
	}
	return out
}

// Add attaches the detached node n as the last child of parent.
func (t *Tree) Add(parent uuid.UUID, n *Node) error {
	p, ok := t.nodes[parent]
	if !ok {
		return notFound(parent)
	}
	if !p.IsGroup {
		return ErrParentNotGroup
	}
	if n.attached {
		return ErrAlreadyAttached
	}
	if len(n.children) > 0 {
		return ErrDetachedWithKids
	}
	if _, dup := t.nodes[n.ID]; dup {
		return fmt.Errorf("%w: duplicate node id %s", common.ErrorValidation, n.ID)
	}

	t.attach(n, parent)
	p.children = append(p.children, n.ID)
	return nil
}

// IsAncestor reports whether ancestor is id itself or one of its ancestors.
func (t *Tree) IsAncestor(ancestor, id uuid.UUID) bool {
	for cur := id; cur != uuid.Nil; {
		if cur == ancestor {
			return true
		}
		n, ok := t.nodes[cur]
		if !ok {
			return false
		}
		cur = n.parent
	}
	return false
}

// ValidateMove checks that id can be re-parented under newParent without
// changing anything.
func (t *Tree) ValidateMove(id, newParent uuid.UUID) error {
	n, ok := t.nodes[id]
	if !ok {
		return notFound(id)
	}
	p, ok := t.nodes[newParent]
	if !ok {
		return notFound(newParent)
	}
	if id == t.root {
		return ErrRootImmutable
	}
	if !p.IsGroup {
		return ErrParentNotGroup
	}
	if t.IsAncestor(n.ID, p.ID) {
		return ErrMoveIntoSelf
	}
	return nil
}

// Move re-parents id as the last child of newParent.
func (t *Tree) Move(id, newParent uuid.UUID) error {
	if err := t.ValidateMove(id, newParent); err != nil {
		return err
	}

	n := t.nodes[id]
	if n.parent == newParent {
		return nil
	}
	t.unlink(n)
	n.parent = newParent
	p := t.nodes[newParent]
	p.children = append(p.children, id)
	return nil
}

func (t *Tree) unlink(n *Node) {
	p := t.nodes[n.parent]
	for i, c := range p.children {
		if c == n.ID {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
}

// Remove detaches id and its whole subtree. The removed nodes are returned in
// pre-order and may be re-attached with Add one by one.
func (t *Tree) Remove(id uuid.UUID) ([]*Node, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, notFound(id)
	}
	if id == t.root {
		return nil, ErrRootImmutable
	}

	var removed []*Node
	t.WalkFrom(id, func(c *Node) bool {
		removed = append(removed, c)
		return true
	})

	t.unlink(n)
	for _, c := range removed {
		delete(t.nodes, c.ID)
		c.attached = false
		c.parent = uuid.Nil
	}
	return removed, nil
}

// Walk visits every node in pre-order starting at the root. Returning false
// from fn skips the node's subtree.
func (t *Tree) Walk(fn func(*Node) bool) {
	t.WalkFrom(t.root, fn)
}

// WalkFrom visits id and its subtree in pre-order.
func (t *Tree) WalkFrom(id uuid.UUID, fn func(*Node) bool) {
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.ChildIDs() {
		t.WalkFrom(c, fn)
	}
}

// Subtree returns the slots of id and all its descendants.
func (t *Tree) Subtree(id uuid.UUID) *roaring.Bitmap {
	bm := roaring.New()
	t.WalkFrom(id, func(n *Node) bool {
		bm.Add(n.slot)
		return true
	})
	return bm
}

// InSet reports whether n's slot is a member of set.
func (t *Tree) InSet(set *roaring.Bitmap, n *Node) bool {
	return n.attached && set.Contains(n.slot)
}

// Path returns the nodes from the root down to id, inclusive.
func (t *Tree) Path(id uuid.UUID) []*Node {
	var rev []*Node
	for cur := id; cur != uuid.Nil; {
		n, ok := t.nodes[cur]
		if !ok {
			return nil
		}
		rev = append(rev, n)
		cur = n.parent
	}

	out := make([]*Node, len(rev))
	for i, n := range rev {
		out[len(rev)-1-i] = n
	}
	return out
}

// Check verifies the structural invariants: a single group root, every other
// node reachable through exactly one parent link, and no record with children.
func (t *Tree) Check() error {
	root, ok := t.nodes[t.root]
	if !ok || !root.IsGroup || root.parent != uuid.Nil {
		return fmt.Errorf("%w: bad root", ErrInvariantViolation)
	}

	seen := make(map[uuid.UUID]int, len(t.nodes))
	for _, n := range t.nodes {
		if !n.IsGroup && len(n.children) > 0 {
			return fmt.Errorf("%w: record %s has children", ErrInvariantViolation, n.ID)
		}
		for _, c := range n.children {
			child, ok := t.nodes[c]
			if !ok || child.parent != n.ID {
				return fmt.Errorf("%w: broken link %s -> %s", ErrInvariantViolation, n.ID, c)
			}
			seen[c]++
		}
	}

	for id := range t.nodes {
		if id == t.root {
			continue
		}
		if seen[id] != 1 {
			return fmt.Errorf("%w: node %s has %d parents", ErrInvariantViolation, id, seen[id])
		}
	}

	count := 0
	t.Walk(func(*Node) bool { count++; return true })
	if count != len(t.nodes) {
		return fmt.Errorf("%w: %d nodes unreachable", ErrInvariantViolation, len(t.nodes)-count)
	}
	return nil
}
