package session

import (
	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/google/uuid"
)

// EventKind names a change made through a Session.
type EventKind int

const (
	CustomFieldsChanged EventKind = iota + 1
	PasswordChanged
	TitleChanged
	UsernameChanged
	EmailChanged
	URLChanged
	NotesChanged
	IconChanged
	AttachmentsChanged
	OTPChanged
	ItemAdded
	ItemDeleted
	ParentChanged
	HistoryItemDeleted
	HistoryItemRestored
)

var eventNames = map[EventKind]string{
	CustomFieldsChanged: "custom-fields-changed",
	PasswordChanged:     "password-changed",
	TitleChanged:        "title-changed",
	UsernameChanged:     "username-changed",
	EmailChanged:        "email-changed",
	URLChanged:          "url-changed",
	NotesChanged:        "notes-changed",
	IconChanged:         "icon-changed",
	AttachmentsChanged:  "attachments-changed",
	OTPChanged:          "otp-changed",
	ItemAdded:           "item-added",
	ItemDeleted:         "item-deleted",
	ParentChanged:       "parent-changed",
	HistoryItemDeleted:  "history-item-deleted",
	HistoryItemRestored: "history-item-restored",
}

func (k EventKind) String() string {
	if s, ok := eventNames[k]; ok {
		return s
	}
	return "unknown"
}

// Event describes one completed mutation. Historical is set for history
// events and holds the snapshot that was deleted or restored.
type Event struct {
	Kind       EventKind
	NodeID     uuid.UUID
	Historical *node.Node
}

// Listener receives events synchronously, in mutation order.
type Listener func(Event)

type subscriber struct {
	id int
	fn Listener
}

// Subscribe registers l and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (s *Session) Subscribe(l Listener) (unsubscribe func()) {
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: l})

	return func() {
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Session) emit(e Event) {
	// Listeners may unsubscribe while being notified.
	subs := append([]subscriber(nil), s.subs...)
	for _, sub := range subs {
		sub.fn(e)
	}
}
