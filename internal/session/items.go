package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/node"
)

// UntitledRecord is the title given to records created by AddNewRecord.
const UntitledRecord = "Untitled"

// ItemBySerializationID looks up a live node.
func (s *Session) ItemBySerializationID(id string) (*node.Node, error) {
	db, err := s.live()
	if err != nil {
		return nil, err
	}
	n, ok := db.NodeBySerializationID(id)
	if !ok {
		return nil, fmt.Errorf("%w: item %s", common.ErrorNotFound, id)
	}
	return n, nil
}

// AddItem attaches the detached node n under parent.
func (s *Session) AddItem(parent, n *node.Node) error {
	db, err := s.live()
	if err != nil {
		return err
	}
	if n == nil {
		return fmt.Errorf("%w: node", common.ErrorValidation)
	}
	if strings.TrimSpace(n.Title) == "" && (n.IsGroup || db.Features().TitleRequired) {
		return fmt.Errorf("%w: title is required", common.ErrorValidation)
	}
	if err := db.AddNode(parent, n); err != nil {
		return err
	}
	s.emit(Event{Kind: ItemAdded, NodeID: n.ID})
	return nil
}

// AddNewRecord creates a record under parent titled "Untitled", using the
// most popular username and a freshly generated password.
func (s *Session) AddNewRecord(parent *node.Node) (*node.Node, error) {
	db, err := s.live()
	if err != nil {
		return nil, err
	}
	pw, err := s.GeneratePassword()
	if err != nil {
		return nil, fmt.Errorf("generate password: %w", err)
	}

	r := node.NewRecord(UntitledRecord)
	r.Username = db.MostPopularUsername()
	r.Password = pw
	if err := s.AddItem(parent, r); err != nil {
		return nil, err
	}
	return r, nil
}

// AddNewGroup creates a group called title under parent.
func (s *Session) AddNewGroup(parent *node.Node, title string) (*node.Node, error) {
	g := node.NewGroup(title)
	if err := s.AddItem(parent, g); err != nil {
		return nil, err
	}
	return g, nil
}

// DeleteWillRecycle reports whether DeleteItem would move n to the recycle
// bin rather than remove it.
func (s *Session) DeleteWillRecycle(n *node.Node) bool {
	db, err := s.attached(n)
	if err != nil {
		return false
	}
	return db.CanRecycle(n)
}

// DeleteItem recycles n when the recycle bin is enabled and n is not already
// in it. Otherwise n and its subtree are removed for good.
func (s *Session) DeleteItem(ctx context.Context, n *node.Node) error {
	db, err := s.attached(n)
	if err != nil {
		return err
	}

	if db.CanRecycle(n) {
		if err := db.Recycle(n); err != nil {
			return err
		}
		s.log.Debug(ctx, "item recycled", "id", n.SerializationID())
	} else {
		removed, err := db.DeletePermanently(n)
		if err != nil {
			return err
		}
		s.log.Debug(ctx, "item deleted", "id", n.SerializationID(), "nodes", len(removed))
	}

	if s.selected == n.SerializationID() {
		s.selected = ""
	}
	s.emit(Event{Kind: ItemDeleted, NodeID: n.ID})
	return nil
}

// ValidateChangeParent checks a move without making it.
func (s *Session) ValidateChangeParent(parent, n *node.Node) error {
	db, err := s.attached(n)
	if err != nil {
		return err
	}
	return db.ValidateMove(n, parent)
}

// ChangeParent moves n under parent. Moves into n itself, into one of its
// descendants or under a record are rejected and change nothing. Moving n
// to the group it is already in is a no-op.
func (s *Session) ChangeParent(parent, n *node.Node) error {
	db, err := s.attached(n)
	if err != nil {
		return err
	}
	if err := db.ValidateMove(n, parent); err != nil {
		return err
	}
	if n.Parent() == parent.ID {
		return nil
	}
	if err := db.Move(n, parent); err != nil {
		return err
	}
	n.Times.Accessed = node.Now()
	s.emit(Event{Kind: ParentChanged, NodeID: n.ID})
	return nil
}

func historyEntry(n *node.Node, index int) (*node.Node, error) {
	if index < 0 || index >= len(n.History) {
		return nil, fmt.Errorf("%w: history item %d", common.ErrorNotFound, index)
	}
	return n.History[index], nil
}

// DeleteHistoryItem drops the history snapshot at index.
func (s *Session) DeleteHistoryItem(n *node.Node, index int) error {
	if _, err := s.attached(n); err != nil {
		return err
	}
	h, err := historyEntry(n, index)
	if err != nil {
		return err
	}
	n.History = append(n.History[:index:index], n.History[index+1:]...)
	s.emit(Event{Kind: HistoryItemDeleted, NodeID: n.ID, Historical: h})
	return nil
}

// RestoreHistoryItem copies the snapshot at index over the live fields of n
// and appends the state it replaced to the history. Formats that only keep
// old passwords restore the password alone.
func (s *Session) RestoreHistoryItem(n *node.Node, index int) error {
	db, err := s.attached(n)
	if err != nil {
		return err
	}
	h, err := historyEntry(n, index)
	if err != nil {
		return err
	}

	pre := n.Snapshot()
	if db.Features().PasswordOnlyHist {
		n.Password = h.Password
		n.Times.Modified = h.Times.Modified
	} else {
		n.RestoreFrom(h)
	}
	s.appendHistory(db, n, pre)
	n.Touch()
	s.emit(Event{Kind: HistoryItemRestored, NodeID: n.ID, Historical: h})
	return nil
}
