package kdbx

import (
	"context"
	"encoding/xml"
	"testing"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/cryptox"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/format/formattest"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Cheap KDF settings keep the tests fast.
var (
	fastAES    = WithAESKDF(100)
	fastArgon2 = WithArgon2id(1, 64, 1)
)

func sample(t *testing.T, a *Adaptor) *format.Content {
	t.Helper()
	c, err := a.NewContent()
	require.NoError(t, err)
	formattest.Populate(t, c, a.Features())
	return c
}

func requireSameMeta(t *testing.T, want, got format.Metadata) {
	t.Helper()
	diff := cmp.Diff(want, got,
		cmpopts.IgnoreFields(KDFParams{}, "Seed"),
		cmpopts.EquateEmpty(),
	)
	require.Empty(t, diff, "metadata differs (-want +got)")
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		a    *Adaptor
	}{
		{"kdbx3 aes", NewKDBX3(fastAES)},
		{"kdbx3 chacha20", NewKDBX3(fastAES, WithCipher(CipherChaCha20))},
		{"kdbx4 argon2id", NewKDBX4(fastArgon2)},
		{"kdbx4 aes-kdf", NewKDBX4(fastAES)},
		{"kdbx4 twofish", NewKDBX4(fastArgon2, WithCipher(CipherTwofish))},
		{"kdbx4 chacha20", NewKDBX4(fastArgon2, WithCipher(CipherChaCha20))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := sample(t, tt.a)
			creds := format.PasswordCredentials("correct horse")

			data, err := tt.a.Encode(context.Background(), orig, creds)
			require.NoError(t, err)
			require.True(t, tt.a.Sniff(data))

			got, err := tt.a.Decode(context.Background(), data, creds)
			require.NoError(t, err)
			require.NoError(t, got.Tree.Check())

			formattest.RequireSameTree(t, orig.Tree, got.Tree, formattest.Options{})
			assert.Equal(t, orig.Attachments, got.Attachments)
			assert.Equal(t, orig.Icons, got.Icons)
			requireSameMeta(t, orig.Meta, got.Meta)
		})
	}
}

func TestRoundTrip_UncompressedWithExtras(t *testing.T) {
	a := NewKDBX4(fastArgon2)
	c := sample(t, a)
	meta := c.Meta.(*Metadata)
	meta.Compression = false
	meta.DatabaseName = "Team vault"
	meta.CustomData = []CustomDataItem{{Key: "k", Value: "v"}}

	email := c.Tree.ChildRecords(c.Tree.ChildGroups(c.Tree.Root())[0])[0]
	meta.NodeExtras = map[uuid.UUID][]RawElement{
		email.ID: {{XMLName: xml.Name{Local: "Tags"}, Inner: "mail;work"}},
	}
	meta.AddDeletedObject(uuid.New(), meta.MasterKeyChanged)

	creds := format.PasswordCredentials("pw")
	data, err := a.Encode(context.Background(), c, creds)
	require.NoError(t, err)
	got, err := a.Decode(context.Background(), data, creds)
	require.NoError(t, err)

	requireSameMeta(t, meta, got.Meta)
	assert.Equal(t, "mail;work", got.Meta.(*Metadata).NodeExtras[email.ID][0].Inner)
}

func TestDecode_Credentials(t *testing.T) {
	kf := cryptox.SHA256([]byte("key file"))
	pw := "pw"

	for _, a := range []*Adaptor{NewKDBX3(fastAES), NewKDBX4(fastArgon2)} {
		t.Run(a.Format().String(), func(t *testing.T) {
			data, err := a.Encode(context.Background(), sample(t, a), format.NewCredentials(&pw, kf))
			require.NoError(t, err)

			_, err = a.Decode(context.Background(), data, format.NewCredentials(&pw, kf))
			require.NoError(t, err)

			for _, bad := range []format.Credentials{
				format.PasswordCredentials(pw),
				format.NewCredentials(nil, kf),
				format.PasswordCredentials("other"),
				{},
			} {
				_, err = a.Decode(context.Background(), data, bad)
				require.ErrorIs(t, err, format.ErrAuthenticationFailed)
			}
		})
	}
}

func TestDecode_Tampered(t *testing.T) {
	for _, a := range []*Adaptor{NewKDBX3(fastAES), NewKDBX4(fastAES)} {
		t.Run(a.Format().String(), func(t *testing.T) {
			creds := format.PasswordCredentials("pw")
			data, err := a.Encode(context.Background(), sample(t, a), creds)
			require.NoError(t, err)

			for _, off := range []int{len(data) - 40, len(data) / 2} {
				tampered := append([]byte(nil), data...)
				tampered[off] ^= 0x01
				_, err = a.Decode(context.Background(), tampered, creds)
				require.Error(t, err)
				if !assert.ErrorIs(t, err, format.ErrAuthenticationFailed) {
					t.Logf("offset %d: %v", off, err)
				}
			}
		})
	}
}

func TestDecode_Argon2dUnsupported(t *testing.T) {
	h := &outerHeader{
		major:      versionMajor4,
		cipherID:   CipherAES256,
		masterSeed: common.GenerateRandByteArray(32),
		iv:         common.GenerateRandByteArray(16),
		kdf:        KDFParams{UUID: KDFArgon2d, Seed: common.GenerateRandByteArray(32)},
	}
	data := append(h.bytes(), make([]byte, 64)...)

	a := NewKDBX4()
	_, err := a.Decode(context.Background(), data, format.PasswordCredentials("pw"))
	require.ErrorIs(t, err, format.ErrMalformed)
	require.ErrorIs(t, err, ErrUnsupportedKDF)

	require.ErrorIs(t, a.Probe(data, format.DefaultLimits()), format.ErrMalformed)
}

func TestDecode_WrongVersionForAdaptor(t *testing.T) {
	data, err := NewKDBX4(fastArgon2).Encode(context.Background(), sample(t, NewKDBX4(fastArgon2)), format.PasswordCredentials("pw"))
	require.NoError(t, err)

	a3 := NewKDBX3(fastAES)
	assert.False(t, a3.Sniff(data))
	_, err = a3.Decode(context.Background(), data, format.PasswordCredentials("pw"))
	require.ErrorIs(t, err, format.ErrMalformed)
}

func TestDecode_Cancelled(t *testing.T) {
	a := NewKDBX3(fastAES)
	data, err := a.Encode(context.Background(), sample(t, a), format.PasswordCredentials("pw"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Decode(ctx, data, format.PasswordCredentials("pw"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestProbe(t *testing.T) {
	a4 := NewKDBX4(WithArgon2id(3, 64, 1))
	data, err := a4.Encode(context.Background(), sample(t, a4), format.PasswordCredentials("pw"))
	require.NoError(t, err)

	require.NoError(t, a4.Probe(data, format.DefaultLimits()))
	require.ErrorIs(t, a4.Probe(data, format.Limits{MaxKDFMemoryBytes: 32 * 1024}), format.ErrUnsafeInput)
	require.ErrorIs(t, a4.Probe(data, format.Limits{MaxKDFIterations: 2}), format.ErrUnsafeInput)

	a3 := NewKDBX3(WithAESKDF(5000))
	data, err = a3.Encode(context.Background(), sample(t, a3), format.PasswordCredentials("pw"))
	require.NoError(t, err)
	require.NoError(t, a3.Probe(data, format.Limits{MaxKDFIterations: 5000}))
	require.ErrorIs(t, a3.Probe(data, format.Limits{MaxKDFIterations: 4999}), format.ErrUnsafeInput)
}

func TestSniff(t *testing.T) {
	a3, a4 := NewKDBX3(), NewKDBX4()
	for _, b := range [][]byte{nil, []byte("PWS3"), make([]byte, 12)} {
		assert.False(t, a3.Sniff(b))
		assert.False(t, a4.Sniff(b))
	}
}
