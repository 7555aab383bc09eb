package session

import (
	"testing"

	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribe_OrderAndUnsubscribe(t *testing.T) {
	s, events := newTestSession(t, format.KeePass4)
	r := addRecord(t, s, "a")

	var second []EventKind
	unsubscribe := s.Subscribe(func(e Event) { second = append(second, e.Kind) })

	require.NoError(t, s.SetTitle(r, "b"))
	require.NoError(t, s.SetPassword(r, "p"))
	unsubscribe()
	unsubscribe()
	require.NoError(t, s.SetNotes(r, "n"))

	assert.Equal(t, []EventKind{ItemAdded, TitleChanged, PasswordChanged, NotesChanged}, kinds(*events))
	assert.Equal(t, []EventKind{TitleChanged, PasswordChanged}, second)
	for _, e := range *events {
		assert.Equal(t, r.ID, e.NodeID)
	}
}

func TestSubscribe_UnsubscribeDuringDelivery(t *testing.T) {
	s, events := newTestSession(t, format.KeePass4)
	r := addRecord(t, s, "a")

	calls := 0
	var unsubscribe func()
	unsubscribe = s.Subscribe(func(Event) {
		calls++
		unsubscribe()
	})

	require.NoError(t, s.SetTitle(r, "b"))
	require.NoError(t, s.SetTitle(r, "c"))
	assert.Equal(t, 1, calls)
	assert.Len(t, *events, 3)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "title-changed", TitleChanged.String())
	assert.Equal(t, "history-item-restored", HistoryItemRestored.String())
	assert.Equal(t, "unknown", EventKind(0).String())
}
