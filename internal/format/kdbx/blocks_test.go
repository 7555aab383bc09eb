package kdbx

import (
	"bytes"
	"testing"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashedBlocks(t *testing.T) {
	for _, size := range []int{0, 10, blockSize, blockSize + 7} {
		data := bytes.Repeat([]byte{0xAB}, size)
		out, err := readHashedBlocks(writeHashedBlocks(data))
		require.NoError(t, err)
		assert.Equal(t, len(data), len(out))
		assert.True(t, bytes.Equal(data, out))
	}

	stream := writeHashedBlocks([]byte("payload"))
	stream[41] ^= 1
	_, err := readHashedBlocks(stream)
	require.ErrorIs(t, err, errBlockIntegrity)

	_, err = readHashedBlocks(stream[:20])
	require.ErrorIs(t, err, errBlockTruncated)
}

func TestHMACBlocks(t *testing.T) {
	base := common.GenerateRandByteArray(64)
	for _, size := range []int{0, 10, blockSize + 7} {
		data := bytes.Repeat([]byte{0x5A}, size)
		out, err := readHMACBlocks(writeHMACBlocks(data, base), base)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(data, out))
	}

	stream := writeHMACBlocks([]byte("payload"), base)
	_, err := readHMACBlocks(stream, common.GenerateRandByteArray(64))
	require.ErrorIs(t, err, errBlockIntegrity)

	// Dropping the terminating block is detected.
	_, err = readHMACBlocks(stream[:36+7], base)
	require.ErrorIs(t, err, errBlockTruncated)
}

func TestVariantDict(t *testing.T) {
	p := Argon2idParams(4, 1024, 2)
	got, err := parseKDFParams(p.bytes())
	require.NoError(t, err)
	assert.Equal(t, p, got)

	a := AESKDFParams(12345)
	got, err = parseKDFParams(a.bytes())
	require.NoError(t, err)
	assert.Equal(t, a, got)

	b := p.bytes()
	_, err = parseKDFParams(b[:len(b)-3])
	require.Error(t, err)

	bad := KDFParams{UUID: KDFArgon2id, Seed: make([]byte, 32), Iterations: 1, MemoryBytes: 1024, Parallelism: 4}
	_, err = parseKDFParams(bad.bytes())
	require.Error(t, err)
}
