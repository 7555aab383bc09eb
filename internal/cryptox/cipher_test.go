package cryptox

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCBC_RoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	iv := bytes.Repeat([]byte{0x22}, 16)

	tests := []struct {
		name string
		c    BlockCipher
		in   []byte
	}{
		{"aes empty", AES256, nil},
		{"aes short", AES256, []byte("hello")},
		{"aes aligned", AES256, bytes.Repeat([]byte("a"), 32)},
		{"twofish", Twofish, []byte("the quick brown fox")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := EncryptCBC(tt.c, key, iv, tt.in)
			require.NoError(t, err)
			require.Zero(t, len(ct)%16)

			pt, err := DecryptCBC(tt.c, key, iv, ct)
			require.NoError(t, err)
			assert.Equal(t, string(tt.in), string(pt))
		})
	}
}

func TestDecryptCBC_WrongKeyFailsPadding(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	other := bytes.Repeat([]byte{0x12}, 32)
	iv := bytes.Repeat([]byte{0x22}, 16)

	ct, err := EncryptCBC(AES256, key, iv, bytes.Repeat([]byte("x"), 40))
	require.NoError(t, err)

	// a wrong key almost always produces invalid padding; if it happens to
	// produce valid padding the plaintext must still differ.
	pt, err := DecryptCBC(AES256, other, iv, ct)
	if err == nil {
		assert.NotEqual(t, bytes.Repeat([]byte("x"), 40), pt)
	} else {
		assert.ErrorIs(t, err, ErrBadPadding)
	}
}

func TestECB_RoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x33}, 32)
	data := bytes.Repeat([]byte{0x44}, 32)

	ct, err := EncryptECB(Twofish, key, data)
	require.NoError(t, err)
	require.NotEqual(t, data, ct)

	pt, err := DecryptECB(Twofish, key, ct)
	require.NoError(t, err)
	assert.Equal(t, data, pt)
}

func TestXORChaCha20_Symmetric(t *testing.T) {
	key := bytes.Repeat([]byte{1}, 32)
	nonce := bytes.Repeat([]byte{2}, 12)

	ct, err := XORChaCha20(key, nonce, []byte("payload"))
	require.NoError(t, err)
	pt, err := XORChaCha20(key, nonce, ct)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(pt))
}
