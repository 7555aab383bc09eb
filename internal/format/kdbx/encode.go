package kdbx

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/cryptox"
	"github.com/dmitrijs2005/gophsafe/internal/format"
)

// Encode serializes c into a KDBX file of the adaptor's version. Seeds, IVs
// and the protected stream key are regenerated on every call.
func (a *Adaptor) Encode(ctx context.Context, c *format.Content, creds format.Credentials) ([]byte, error) {
	meta, ok := c.Meta.(*Metadata)
	if !ok {
		meta = NewMetadata(a.version, a.newKDF())
	}
	composite := compositeKey(creds)
	if composite == nil {
		return nil, fmt.Errorf("kdbx encode: %w: a password or key file is required", common.ErrorValidation)
	}
	defer common.WipeByteArray(composite)

	h := &outerHeader{
		cipherID:   meta.Cipher,
		masterSeed: common.GenerateRandByteArray(32),
	}
	if _, err := ivSize(h.cipherID); err != nil {
		h.cipherID = a.cipher
	}
	n, _ := ivSize(h.cipherID)
	h.iv = common.GenerateRandByteArray(n)
	if meta.Compression {
		h.compression = compressionGzip
	}

	kdf := meta.KDF.withFreshSeed()
	if kdf.UUID != KDFAES && kdf.UUID != KDFArgon2id {
		kdf = a.newKDF()
	}
	if !a.v4() && kdf.UUID != KDFAES {
		kdf = AESKDFParams(a.aesRounds)
	}
	h.kdf = kdf

	doc, err := encodeDocument(c, meta, a.v4())
	if err != nil {
		return nil, fmt.Errorf("kdbx encode: %w", err)
	}

	transformed, err := kdf.derive(ctx, composite)
	if err != nil {
		return nil, err
	}
	key := cryptox.SHA256(h.masterSeed, transformed)
	defer common.WipeByteArray(key)

	if a.v4() {
		return a.encode4(h, doc, c, transformed, key)
	}
	return a.encode3(h, doc, key)
}

func (a *Adaptor) encode3(h *outerHeader, doc *xmlFile, key []byte) ([]byte, error) {
	h.major, h.minor = versionMajor3, versionMinor3
	h.transformSeed = h.kdf.Seed
	h.transformRounds = h.kdf.Rounds
	h.protectedStreamKey = common.GenerateRandByteArray(32)
	h.streamStartBytes = common.GenerateRandByteArray(32)
	h.innerStreamID = cryptox.StreamSalsa20
	hdr := h.bytes()

	doc.Meta.HeaderHash = base64.StdEncoding.EncodeToString(cryptox.SHA256(hdr))
	stream, err := cryptox.NewProtectedStream(h.innerStreamID, h.protectedStreamKey)
	if err != nil {
		return nil, err
	}
	doc.protectAll(stream)

	payload, err := marshalXML(doc)
	if err != nil {
		return nil, fmt.Errorf("kdbx encode: %w", err)
	}
	if h.compression == compressionGzip {
		payload = gzipBytes(payload)
	}

	plain := append(append([]byte(nil), h.streamStartBytes...), writeHashedBlocks(payload)...)
	enc, err := encryptPayload(h.cipherID, key, h.iv, plain)
	if err != nil {
		return nil, fmt.Errorf("kdbx encode: %w", err)
	}
	return append(append([]byte(nil), hdr...), enc...), nil
}

func (a *Adaptor) encode4(h *outerHeader, doc *xmlFile, c *format.Content, transformed, key []byte) ([]byte, error) {
	h.major, h.minor = versionMajor4, versionMinor4
	hdr := h.bytes()

	inner := &innerHeader{
		streamID:  cryptox.StreamChaCha20,
		streamKey: common.GenerateRandByteArray(64),
		binaries:  c.Attachments,
	}
	stream, err := cryptox.NewProtectedStream(inner.streamID, inner.streamKey)
	if err != nil {
		return nil, err
	}
	doc.protectAll(stream)

	xmlBytes, err := marshalXML(doc)
	if err != nil {
		return nil, fmt.Errorf("kdbx encode: %w", err)
	}
	payload := append(inner.bytes(), xmlBytes...)
	if h.compression == compressionGzip {
		payload = gzipBytes(payload)
	}

	enc, err := encryptPayload(h.cipherID, key, h.iv, payload)
	if err != nil {
		return nil, fmt.Errorf("kdbx encode: %w", err)
	}

	base := hmacBaseKey(h.masterSeed, transformed)
	defer common.WipeByteArray(base)

	out := append([]byte(nil), hdr...)
	out = append(out, cryptox.SHA256(hdr)...)
	out = append(out, headerHMAC(base, hdr)...)
	out = append(out, writeHMACBlocks(enc, base)...)
	return out, nil
}
