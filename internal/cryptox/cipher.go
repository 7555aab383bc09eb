package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/twofish"
)

// ErrBadPadding is returned when CBC plaintext does not end in valid PKCS#7
// padding. With a wrong key this is the usual symptom.
var ErrBadPadding = errors.New("invalid padding")

// BlockCipher selects the block cipher used in CBC mode.
type BlockCipher int

const (
	AES256 BlockCipher = iota
	Twofish
)

func (c BlockCipher) newBlock(key []byte) (cipher.Block, error) {
	switch c {
	case Twofish:
		return twofish.NewCipher(key)
	default:
		return aes.NewCipher(key)
	}
}

// EncryptCBC pads plaintext with PKCS#7 and encrypts it in CBC mode.
func EncryptCBC(c BlockCipher, key, iv, plaintext []byte) ([]byte, error) {
	block, err := c.newBlock(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != block.BlockSize() {
		return nil, ErrInvalidKeySize
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// DecryptCBC decrypts ciphertext in CBC mode and strips PKCS#7 padding.
func DecryptCBC(c BlockCipher, key, iv, ciphertext []byte) ([]byte, error) {
	out, err := DecryptCBCNoPadding(c, key, iv, ciphertext)
	if err != nil {
		return nil, err
	}
	return pkcs7Unpad(out, 16)
}

// EncryptCBCNoPadding encrypts block-aligned plaintext in CBC mode.
func EncryptCBCNoPadding(c BlockCipher, key, iv, plaintext []byte) ([]byte, error) {
	block, err := c.newBlock(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != block.BlockSize() || len(plaintext)%block.BlockSize() != 0 {
		return nil, ErrInvalidKeySize
	}
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintext)
	return out, nil
}

// DecryptCBCNoPadding decrypts block-aligned ciphertext in CBC mode.
func DecryptCBCNoPadding(c BlockCipher, key, iv, ciphertext []byte) ([]byte, error) {
	block, err := c.newBlock(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != block.BlockSize() {
		return nil, ErrInvalidKeySize
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, ErrBadPadding
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

// EncryptECB encrypts a single-or-multi block buffer with Twofish or AES in ECB
// mode. It is only used to wrap keys.
func EncryptECB(c BlockCipher, key, data []byte) ([]byte, error) {
	block, err := c.newBlock(key)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(data)%bs != 0 {
		return nil, ErrInvalidKeySize
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += bs {
		block.Encrypt(out[i:i+bs], data[i:i+bs])
	}
	return out, nil
}

// DecryptECB is the inverse of EncryptECB.
func DecryptECB(c BlockCipher, key, data []byte) ([]byte, error) {
	block, err := c.newBlock(key)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(data)%bs != 0 {
		return nil, ErrInvalidKeySize
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += bs {
		block.Decrypt(out[i:i+bs], data[i:i+bs])
	}
	return out, nil
}

// XORChaCha20 applies the ChaCha20 keystream (32-byte key, 12-byte nonce) to
// data. Encryption and decryption are the same operation.
func XORChaCha20(key, nonce, data []byte) ([]byte, error) {
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append(make([]byte, 0, len(b)+n), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, ErrBadPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrBadPadding
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, ErrBadPadding
		}
	}
	return b[:len(b)-n], nil
}
