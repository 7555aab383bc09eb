package database

import (
	"bytes"
	"fmt"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/google/uuid"
)

// NamedAttachment is attachment content together with its file name.
type NamedAttachment struct {
	Filename  string
	Data      []byte
	Protected bool
}

// Attachments returns the attachment pool. Index i is attachment id i.
func (d *Database) Attachments() []node.Attachment { return d.attachments }

// CustomIcons returns the custom icon pool.
func (d *Database) CustomIcons() []node.CustomIcon { return d.icons }

// AttachmentData returns the pooled content behind ref.
func (d *Database) AttachmentData(ref node.AttachmentRef) ([]byte, bool) {
	if ref.Index < 0 || ref.Index >= len(d.attachments) {
		return nil, false
	}
	return d.attachments[ref.Index].Data, true
}

// CustomIconData returns the pooled image for id.
func (d *Database) CustomIconData(id uuid.UUID) ([]byte, bool) {
	for _, ic := range d.icons {
		if ic.ID == id {
			return ic.Data, true
		}
	}
	return nil, false
}

func (d *Database) checkAttachable(n *node.Node, count int) error {
	if n == nil || n.IsGroup {
		return fmt.Errorf("%w: attachments belong to records", common.ErrorValidation)
	}
	max := d.Features().MaxAttachments
	switch {
	case max == 0:
		return fmt.Errorf("%s attachments: %w", d.Format(), format.ErrUnsupported)
	case max > 0 && count > max:
		return fmt.Errorf("%w: %s allows %d attachment(s) per record", common.ErrorValidation, d.Format(), max)
	}
	return nil
}

// poolAttachment returns the index of identical content, adding it if new.
func (d *Database) poolAttachment(a NamedAttachment) int {
	for i, p := range d.attachments {
		if p.Protected == a.Protected && bytes.Equal(p.Data, a.Data) {
			return i
		}
	}
	data := append([]byte(nil), a.Data...)
	d.attachments = append(d.attachments, node.Attachment{Data: data, Protected: a.Protected})
	return len(d.attachments) - 1
}

// AddNodeAttachment adds a to the pool (reusing identical content) and
// appends a reference to n.
func (d *Database) AddNodeAttachment(n *node.Node, a NamedAttachment) (node.AttachmentRef, error) {
	if err := d.checkAttachable(n, len(n.Attachments)+1); err != nil {
		return node.AttachmentRef{}, err
	}
	ref := node.AttachmentRef{Filename: a.Filename, Index: d.poolAttachment(a)}
	n.Attachments = append(n.Attachments, ref)
	return ref, nil
}

// RemoveNodeAttachment drops the i-th reference of n. The pool entry stays
// until CompactPools.
func (d *Database) RemoveNodeAttachment(n *node.Node, i int) error {
	if n == nil || i < 0 || i >= len(n.Attachments) {
		return fmt.Errorf("%w: attachment %d", common.ErrorNotFound, i)
	}
	n.Attachments = append(n.Attachments[:i:i], n.Attachments[i+1:]...)
	return nil
}

// SetNodeAttachments replaces every attachment reference of n.
func (d *Database) SetNodeAttachments(n *node.Node, as []NamedAttachment) error {
	if len(as) > 0 {
		if err := d.checkAttachable(n, len(as)); err != nil {
			return err
		}
	}
	refs := make([]node.AttachmentRef, 0, len(as))
	for _, a := range as {
		refs = append(refs, node.AttachmentRef{Filename: a.Filename, Index: d.poolAttachment(a)})
	}
	n.Attachments = refs
	return nil
}

// SetNodeIcon sets a built-in icon.
func (d *Database) SetNodeIcon(n *node.Node, index int) error {
	if index < 0 {
		return fmt.Errorf("%w: icon index %d", common.ErrorValidation, index)
	}
	n.Icon = node.Icon{Index: index}
	return nil
}

// SetNodeExistingCustomIcon points n at an icon already in the pool.
func (d *Database) SetNodeExistingCustomIcon(n *node.Node, id uuid.UUID) error {
	if _, ok := d.CustomIconData(id); !ok {
		return fmt.Errorf("%w: custom icon %s", common.ErrorNotFound, id)
	}
	n.Icon = node.Icon{Index: n.Icon.Index, Custom: id}
	return nil
}

// SetNodeCustomIcon pools image data (reusing an identical icon) and points
// n at it.
func (d *Database) SetNodeCustomIcon(n *node.Node, data []byte) (uuid.UUID, error) {
	if !d.Features().CustomIcons {
		return uuid.Nil, fmt.Errorf("%s custom icons: %w", d.Format(), format.ErrUnsupported)
	}
	if len(data) == 0 {
		return uuid.Nil, fmt.Errorf("%w: empty icon", common.ErrorValidation)
	}

	id := uuid.Nil
	for _, ic := range d.icons {
		if bytes.Equal(ic.Data, data) {
			id = ic.ID
			break
		}
	}
	if id == uuid.Nil {
		id = uuid.New()
		d.icons = append(d.icons, node.CustomIcon{ID: id, Data: append([]byte(nil), data...)})
	}
	n.Icon = node.Icon{Index: n.Icon.Index, Custom: id}
	return id, nil
}

// eachReferrer visits every live node and history snapshot.
func (d *Database) eachReferrer(fn func(*node.Node)) {
	d.tree.Walk(func(n *node.Node) bool {
		fn(n)
		for _, h := range n.History {
			fn(h)
		}
		return true
	})
}

// AttachmentRefCount counts references to pool entry index, history included.
func (d *Database) AttachmentRefCount(index int) int {
	count := 0
	d.eachReferrer(func(n *node.Node) {
		for _, r := range n.Attachments {
			if r.Index == index {
				count++
			}
		}
	})
	return count
}

// IconRefCount counts references to custom icon id, history included.
func (d *Database) IconRefCount(id uuid.UUID) int {
	count := 0
	d.eachReferrer(func(n *node.Node) {
		if n.Icon.Custom == id {
			count++
		}
	})
	return count
}

// CompactPools drops pool entries nothing references and renumbers the
// attachment references. It returns how many attachments and icons went.
func (d *Database) CompactPools() (attachments, icons int) {
	remap := make(map[int]int, len(d.attachments))
	var kept []node.Attachment
	for i, a := range d.attachments {
		if d.AttachmentRefCount(i) == 0 {
			common.WipeByteArray(a.Data)
			attachments++
			continue
		}
		remap[i] = len(kept)
		kept = append(kept, a)
	}
	if attachments > 0 {
		d.eachReferrer(func(n *node.Node) {
			for i := range n.Attachments {
				n.Attachments[i].Index = remap[n.Attachments[i].Index]
			}
		})
	}
	d.attachments = kept

	var keptIcons []node.CustomIcon
	for _, ic := range d.icons {
		if d.IconRefCount(ic.ID) == 0 {
			icons++
			continue
		}
		keptIcons = append(keptIcons, ic)
	}
	d.icons = keptIcons
	return attachments, icons
}
