// Package node defines the entities of a credential tree: groups and records,
// their fields, icons, attachment references and history snapshots.
//
// Nodes never own each other directly. A Tree is an arena of nodes addressed
// by id; parent and child links are stored as ids.
package node

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CustomField is a user-defined key/value pair on a record.
type CustomField struct {
	Key       string
	Value     string
	Protected bool
}

// AttachmentRef points from a record into the database attachment pool.
type AttachmentRef struct {
	Filename string
	Index    int
}

// Attachment is one entry of the database attachment pool.
type Attachment struct {
	Data      []byte
	Protected bool
}

// CustomIcon is one entry of the database custom icon pool.
type CustomIcon struct {
	ID   uuid.UUID
	Data []byte
}

// Icon is either a built-in icon index or a reference into the custom icon pool.
type Icon struct {
	Index  int
	Custom uuid.UUID
}

// IsCustom reports whether the icon references the custom icon pool.
func (i Icon) IsCustom() bool { return i.Custom != uuid.Nil }

// Times holds the timestamps tracked for a node, in UTC with second precision.
type Times struct {
	Created  time.Time
	Modified time.Time
	Accessed time.Time
	Expires  time.Time
	Expiry   bool
}

// Fields is the editable field state of a node. Groups only use Title and Notes.
type Fields struct {
	Title    string
	Username string
	Password string
	URL      string
	Notes    string
	Email    string
	OTP      string
	Custom   []CustomField
}

// Node is a group or a record.
type Node struct {
	ID      uuid.UUID
	IsGroup bool
	Fields
	Icon        Icon
	Times       Times
	Attachments []AttachmentRef
	History     []*Node

	parent   uuid.UUID
	children []uuid.UUID
	slot     uint32
	attached bool
}

// Now returns the current time truncated the way node timestamps are stored.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func newNode(group bool, title string) *Node {
	now := Now()
	return &Node{
		ID:      uuid.New(),
		IsGroup: group,
		Fields:  Fields{Title: title},
		Times:   Times{Created: now, Modified: now, Accessed: now},
	}
}

// NewGroup returns a detached group with a fresh id.
func NewGroup(title string) *Node {
	n := newNode(true, title)
	n.Icon.Index = 48
	return n
}

// NewRecord returns a detached record with a fresh id.
func NewRecord(title string) *Node {
	return newNode(false, title)
}

// IsRecord reports whether n is a record.
func (n *Node) IsRecord() bool { return !n.IsGroup }

// SerializationID is a string form of the id that is stable across sessions.
func (n *Node) SerializationID() string {
	if n.IsGroup {
		return "g:" + n.ID.String()
	}
	return "r:" + n.ID.String()
}

// ParseSerializationID extracts the node id from a serialization id. Plain
// uuid strings are accepted too.
func ParseSerializationID(s string) (uuid.UUID, bool) {
	if i := strings.IndexByte(s, ':'); i == 1 {
		s = s[2:]
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Parent returns the parent id, or uuid.Nil for the root and detached nodes.
func (n *Node) Parent() uuid.UUID { return n.parent }

// ChildIDs returns a copy of the ordered child ids.
func (n *Node) ChildIDs() []uuid.UUID {
	return append([]uuid.UUID(nil), n.children...)
}

// Touch updates the modification and access times.
func (n *Node) Touch() {
	now := Now()
	n.Times.Modified = now
	n.Times.Accessed = now
}

// CustomField returns the custom field named key.
func (n *Node) CustomField(key string) (CustomField, bool) {
	for _, f := range n.Custom {
		if f.Key == key {
			return f, true
		}
	}
	return CustomField{}, false
}

// SetCustomField replaces the field named f.Key or appends it.
func (n *Node) SetCustomField(f CustomField) {
	for i := range n.Custom {
		if n.Custom[i].Key == f.Key {
			n.Custom[i] = f
			return
		}
	}
	n.Custom = append(n.Custom, f)
}

// RemoveCustomField deletes the field named key and reports whether it existed.
func (n *Node) RemoveCustomField(key string) bool {
	for i := range n.Custom {
		if n.Custom[i].Key == key {
			n.Custom = append(n.Custom[:i], n.Custom[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot copies the field state of n into a detached node with the same id.
// History and children are not copied.
func (n *Node) Snapshot() *Node {
	s := &Node{
		ID:          n.ID,
		IsGroup:     n.IsGroup,
		Fields:      n.Fields.clone(),
		Icon:        n.Icon,
		Times:       n.Times,
		Attachments: append([]AttachmentRef(nil), n.Attachments...),
	}
	return s
}

// RestoreFrom overwrites the field state of n with the snapshot's.
func (n *Node) RestoreFrom(s *Node) {
	n.Fields = s.Fields.clone()
	n.Icon = s.Icon
	n.Attachments = append([]AttachmentRef(nil), s.Attachments...)
	created := n.Times.Created
	n.Times = s.Times
	n.Times.Created = created
}

// Clone deep-copies n including history, but not tree links.
func (n *Node) Clone() *Node {
	c := n.Snapshot()
	for _, h := range n.History {
		c.History = append(c.History, h.Clone())
	}
	return c
}

func (f Fields) clone() Fields {
	c := f
	c.Custom = append([]CustomField(nil), f.Custom...)
	return c
}
