package database

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/format/kdb"
	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/google/uuid"
)

const (
	RecycleBinTitle = "Recycle Bin"
	recycleBinIcon  = 43
)

// RecycleBinEnabled reports whether deletes go to a recycle bin: the format
// supports one and its metadata has it switched on.
func (d *Database) RecycleBinEnabled() bool {
	if !d.Features().RecycleBin {
		return false
	}
	m, ok := d.meta.(format.RecycleBinMeta)
	if !ok {
		return false
	}
	enabled, _ := m.RecycleBin()
	return enabled
}

// RecycleBinNode returns the recycle bin group, or nil if there is none yet.
func (d *Database) RecycleBinNode() *node.Node {
	m, ok := d.meta.(format.RecycleBinMeta)
	if !ok {
		return nil
	}
	_, id := m.RecycleBin()
	if id == uuid.Nil {
		return nil
	}
	n, ok := d.tree.Get(id)
	if !ok || !n.IsGroup {
		return nil
	}
	return n
}

// CreateNewRecycleBinNode returns the recycle bin, creating it directly under
// root when it does not exist.
func (d *Database) CreateNewRecycleBinNode() (*node.Node, error) {
	if n := d.RecycleBinNode(); n != nil {
		return n, nil
	}
	m, ok := d.meta.(format.RecycleBinMeta)
	if !ok || !d.Features().RecycleBin {
		return nil, fmt.Errorf("%s recycle bin: %w", d.Format(), format.ErrUnsupported)
	}

	bin := node.NewGroup(RecycleBinTitle)
	bin.Icon = node.Icon{Index: recycleBinIcon}
	if err := d.tree.Add(d.Root().ID, bin); err != nil {
		return nil, err
	}
	m.SetRecycleBin(bin.ID)
	return bin, nil
}

// LegacyBackupNode returns the KeePass 1.x backup group, or nil.
func (d *Database) LegacyBackupNode() *node.Node {
	if !d.Features().LegacyBackup {
		return nil
	}
	for _, g := range d.tree.ChildGroups(d.Root()) {
		if g.Title == kdb.BackupGroupTitle {
			return g
		}
	}
	return nil
}

// IsInRecycleBin reports whether n is the recycle bin or inside it.
func (d *Database) IsInRecycleBin(n *node.Node) bool {
	bin := d.RecycleBinNode()
	return bin != nil && d.tree.IsAncestor(bin.ID, n.ID)
}

// ValidateAdd checks that n may be attached under parent.
func (d *Database) ValidateAdd(parent *node.Node, n *node.Node) error {
	if parent == nil || !parent.IsGroup {
		return node.ErrParentNotGroup
	}
	if _, ok := d.tree.Get(parent.ID); !ok {
		return fmt.Errorf("%w: parent %s", common.ErrorNotFound, parent.ID)
	}
	return d.checkPlacement(parent, n)
}

func (d *Database) checkPlacement(parent, n *node.Node) error {
	f := d.Features()
	if !n.IsGroup && !f.RecordsUnderRoot && parent.ID == d.Root().ID {
		return fmt.Errorf("%w: %s records cannot be placed under the root", common.ErrorValidation, d.Format())
	}
	if n.IsGroup && f.UniqueGroupNames {
		for _, g := range d.tree.ChildGroups(parent) {
			if g.ID != n.ID && strings.EqualFold(g.Title, n.Title) {
				return fmt.Errorf("%w: group %q already exists here", common.ErrorValidation, n.Title)
			}
		}
	}
	return nil
}

// AddNode attaches the detached node n as the last child of parent.
func (d *Database) AddNode(parent *node.Node, n *node.Node) error {
	if err := d.ValidateAdd(parent, n); err != nil {
		return err
	}
	return d.tree.Add(parent.ID, n)
}

// ValidateMove checks that n can be re-parented under parent without
// changing anything.
func (d *Database) ValidateMove(n, parent *node.Node) error {
	if n == nil || parent == nil {
		return fmt.Errorf("%w: node", common.ErrorNotFound)
	}
	if err := d.tree.ValidateMove(n.ID, parent.ID); err != nil {
		return err
	}
	if parent.ID != d.Root().ID && d.isSpecialGroup(n) {
		return fmt.Errorf("%w: %q must stay directly under the root", common.ErrorValidation, n.Title)
	}
	return d.checkPlacement(parent, n)
}

// isSpecialGroup reports whether n is the recycle bin or the legacy backup
// group.
func (d *Database) isSpecialGroup(n *node.Node) bool {
	if bin := d.RecycleBinNode(); bin != nil && bin.ID == n.ID {
		return true
	}
	backup := d.LegacyBackupNode()
	return backup != nil && backup.ID == n.ID
}

// Move re-parents n under parent.
func (d *Database) Move(n, parent *node.Node) error {
	if err := d.ValidateMove(n, parent); err != nil {
		return err
	}
	return d.tree.Move(n.ID, parent.ID)
}

// CanRecycle reports whether deleting n would move it to the recycle bin
// instead of removing it.
func (d *Database) CanRecycle(n *node.Node) bool {
	if !d.RecycleBinEnabled() || n.ID == d.Root().ID {
		return false
	}
	return !d.IsInRecycleBin(n)
}

// Recycle moves n into the recycle bin, creating the bin when needed.
func (d *Database) Recycle(n *node.Node) error {
	if !d.CanRecycle(n) {
		return fmt.Errorf("%w: %s cannot be recycled", common.ErrorValidation, n.SerializationID())
	}
	if err := d.tree.ValidateMove(n.ID, d.Root().ID); err != nil {
		return err
	}
	bin, err := d.CreateNewRecycleBinNode()
	if err != nil {
		return err
	}
	n.Times.Accessed = node.Now()
	return d.tree.Move(n.ID, bin.ID)
}

// DeletePermanently removes n and its subtree. Formats that track deleted
// objects get a tombstone for every removed node.
func (d *Database) DeletePermanently(n *node.Node) ([]*node.Node, error) {
	bin := d.RecycleBinNode()
	removed, err := d.tree.Remove(n.ID)
	if err != nil {
		return nil, err
	}

	if t, ok := d.meta.(format.Tombstoner); ok {
		now := node.Now()
		for _, r := range removed {
			t.AddDeletedObject(r.ID, now)
		}
	}
	if bin != nil && bin.ID == n.ID {
		if m, ok := d.meta.(format.RecycleBinMeta); ok {
			m.SetRecycleBin(uuid.Nil)
		}
	}
	return removed, nil
}
