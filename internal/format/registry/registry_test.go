package registry

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cheap = Options{
	PasswordSafeIterations: 2048,
	AESKDFRounds:           100,
	Argon2Iterations:       1,
	Argon2MemoryKiB:        64,
	Argon2Parallelism:      1,
}

func encodeEmpty(t *testing.T, r *Registry, f format.Format) []byte {
	t.Helper()
	a, err := r.Adaptor(f)
	require.NoError(t, err)
	c, err := a.NewContent()
	require.NoError(t, err)
	data, err := a.Encode(context.Background(), c, format.PasswordCredentials("pw"))
	require.NoError(t, err)
	return data
}

func TestLikelyFormat(t *testing.T) {
	r := Default(cheap)
	for _, f := range []format.Format{format.PasswordSafe, format.KeePass1, format.KeePass, format.KeePass4} {
		t.Run(f.String(), func(t *testing.T) {
			data := encodeEmpty(t, r, f)
			assert.Equal(t, f, r.LikelyFormat(data))
			assert.NoError(t, r.IsValid(data))
			assert.False(t, r.IsUnsafeToAutoProcess(data, format.DefaultLimits()))

			a, _ := r.Adaptor(f)
			assert.Equal(t, a.FileExtension(), r.LikelyExtension(data))
		})
	}
}

func TestLikelyFormat_Total(t *testing.T) {
	r := Default(cheap)
	inputs := [][]byte{
		nil,
		{},
		{0x03},
		[]byte("PWS"),
		{0x03, 0xD9, 0xA2, 0x9A, 0x67, 0xFB, 0x4B, 0xB5},
		make([]byte, 4096),
	}
	for _, in := range inputs {
		assert.Equal(t, format.Unknown, r.LikelyFormat(in))
		assert.ErrorIs(t, r.IsValid(in), format.ErrFormatUnrecognized)
		assert.False(t, r.IsUnsafeToAutoProcess(in, format.DefaultLimits()))
	}
}

func TestLikelyExtension(t *testing.T) {
	r := Default(cheap)
	tests := []struct {
		in   []byte
		want string
	}{
		{nil, "dat"},
		{[]byte("PK\x03\x04rest"), "zip"},
		{[]byte("<?xml version"), "xml"},
		{[]byte("PWS2"), "psafe3"},
		{[]byte{0x03, 0xD9, 0xA2, 0x9A, 0x67, 0xFB, 0x4B, 0xB5}, "kdbx"},
		{[]byte{0x03, 0xD9, 0xA2, 0x9A, 0x65, 0xFB, 0x4B, 0xB5}, "kdb"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.LikelyExtension(tt.in))
	}
}

func TestIsUnsafeToAutoProcess(t *testing.T) {
	r := Default(Options{AESKDFRounds: 5000, PasswordSafeIterations: 2048, Argon2Iterations: 1, Argon2MemoryKiB: 64, Argon2Parallelism: 1})
	data := encodeEmpty(t, r, format.KeePass)

	assert.False(t, r.IsUnsafeToAutoProcess(data, format.Limits{MaxKDFIterations: 5000}))
	assert.True(t, r.IsUnsafeToAutoProcess(data, format.Limits{MaxKDFIterations: 10}))
	assert.True(t, r.IsUnsafeToAutoProcess(data[:20], format.DefaultLimits()))
}

func TestAdaptor_Unknown(t *testing.T) {
	r := New()
	_, err := r.Adaptor(format.KeePass)
	require.ErrorIs(t, err, format.ErrFormatUnrecognized)
	assert.Empty(t, r.Formats())
}
