package kdbx

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophsafe/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnprotect_FollowsDocumentOrder(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	enc, err := cryptox.NewProtectedStream(cryptox.StreamChaCha20, key)
	require.NoError(t, err)
	first := base64.StdEncoding.EncodeToString(enc.XOR([]byte("in subgroup")))
	second := base64.StdEncoding.EncodeToString(enc.XOR([]byte("at root")))

	// The subgroup precedes the root entry, the reverse of encoder order.
	doc := `<?xml version="1.0" encoding="utf-8"?>
<KeePassFile><Meta><Generator>other</Generator></Meta><Root><Group><Name>Root</Name>
<Group><Name>Sub</Name><Entry><String><Key>Password</Key><Value Protected="True">` + first + `</Value></String></Entry></Group>
<Entry><String><Key>Password</Key><Value Protected="True">` + second + `</Value></String></Entry>
</Group></Root></KeePassFile>`

	f, err := parseXML([]byte(doc))
	require.NoError(t, err)
	dec, err := cryptox.NewProtectedStream(cryptox.StreamChaCha20, key)
	require.NoError(t, err)
	require.NoError(t, f.unprotectAll(dec))

	assert.Equal(t, "at root", f.Root.Group.Entries[0].Strings[0].Value.Text)
	assert.Equal(t, "in subgroup", f.Root.Group.Groups[0].Entries[0].Strings[0].Value.Text)
}

func TestProtect_RoundTripsThroughMarshal(t *testing.T) {
	key := []byte("stream key")
	f := &xmlFile{}
	f.Root.Group.Entries = []*xmlEntry{{
		Strings: []*xmlString{
			{Key: "Password", Value: &xmlValue{Text: "s3cret", Protected: true}},
			{Key: "Notes", Value: &xmlValue{Text: "plain"}},
		},
		History: []*xmlEntry{{Strings: []*xmlString{{Key: "Password", Value: &xmlValue{Text: "old", Protected: true}}}}},
	}}
	f.Root.Group.Groups = []*xmlGroup{{Name: "Sub", Entries: []*xmlEntry{{
		Strings: []*xmlString{{Key: "PIN", Value: &xmlValue{Text: "1234", Protected: true}}},
	}}}}

	s, err := cryptox.NewProtectedStream(cryptox.StreamSalsa20, key)
	require.NoError(t, err)
	f.protectAll(s)
	assert.NotEqual(t, "s3cret", f.Root.Group.Entries[0].Strings[0].Value.Text)

	b, err := marshalXML(f)
	require.NoError(t, err)
	back, err := parseXML(b)
	require.NoError(t, err)
	s, err = cryptox.NewProtectedStream(cryptox.StreamSalsa20, key)
	require.NoError(t, err)
	require.NoError(t, back.unprotectAll(s))

	e := back.Root.Group.Entries[0]
	assert.Equal(t, "s3cret", e.Strings[0].Value.Text)
	assert.Equal(t, "plain", e.Strings[1].Value.Text)
	assert.Equal(t, "old", e.History[0].Strings[0].Value.Text)
	assert.Equal(t, "1234", back.Root.Group.Groups[0].Entries[0].Strings[0].Value.Text)
}

func TestTimes(t *testing.T) {
	tm := time.Date(2023, 7, 14, 9, 26, 53, 0, time.UTC)

	assert.Equal(t, "2023-07-14T09:26:53Z", formatTime(tm, false))
	for _, v4 := range []bool{false, true} {
		assert.Equal(t, tm, parseTime(formatTime(tm, v4)))
		assert.True(t, parseTime(formatTime(time.Time{}, v4)).IsZero())
	}
	assert.True(t, parseTime("garbage").IsZero())
	assert.True(t, parseTime("").IsZero())
}

func TestBool(t *testing.T) {
	var b xmlBool
	require.NoError(t, b.UnmarshalText([]byte(" TRUE ")))
	assert.True(t, bool(b))
	require.NoError(t, b.UnmarshalText([]byte("null")))
	assert.False(t, bool(b))

	out, err := xmlBool(true).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "True", string(out))
}
