package kdbx

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/subtle"
	"encoding/base64"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/cryptox"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/node"
)

// Decode decrypts, authenticates and parses a KDBX file.
func (a *Adaptor) Decode(ctx context.Context, data []byte, creds format.Credentials) (*format.Content, error) {
	h, err := a.header(data)
	if err != nil {
		return nil, err
	}
	composite := compositeKey(creds)
	if composite == nil {
		return nil, format.AuthFailed(a.version)
	}
	defer common.WipeByteArray(composite)

	if h.v4() {
		return a.decode4(ctx, data, h, composite)
	}
	return a.decode3(ctx, data, h, composite)
}

func (a *Adaptor) decode3(ctx context.Context, data []byte, h *outerHeader, composite []byte) (*format.Content, error) {
	f := a.version

	transformed, err := h.kdf.derive(ctx, composite)
	if err != nil {
		return nil, err
	}
	key := cryptox.SHA256(h.masterSeed, transformed)
	defer common.WipeByteArray(key)

	plain, err := decryptPayload(h.cipherID, key, h.iv, data[len(h.raw):])
	if err != nil {
		return nil, format.AuthFailed(f)
	}
	if len(plain) < 32 || subtle.ConstantTimeCompare(plain[:32], h.streamStartBytes) != 1 {
		return nil, format.AuthFailed(f)
	}
	payload, err := readHashedBlocks(plain[32:])
	if err != nil {
		return nil, format.AuthFailed(f)
	}
	if h.compression == compressionGzip {
		if payload, err = gunzip(payload); err != nil {
			return nil, format.Malformed(f, "gzip: %v", err)
		}
	}

	doc, err := parseXML(payload)
	if err != nil {
		return nil, format.Malformed(f, "xml: %v", err)
	}
	if doc.Meta.HeaderHash != "" {
		want := base64.StdEncoding.EncodeToString(cryptox.SHA256(h.raw))
		if doc.Meta.HeaderHash != want {
			return nil, format.AuthFailed(f)
		}
	}

	stream, err := cryptox.NewProtectedStream(h.innerStreamID, h.protectedStreamKey)
	if err != nil {
		return nil, format.Malformed(f, "%w", err)
	}
	return a.finish(doc, h, stream, nil)
}

func (a *Adaptor) decode4(ctx context.Context, data []byte, h *outerHeader, composite []byte) (*format.Content, error) {
	f := a.version

	pos := len(h.raw)
	if len(data) < pos+64 {
		return nil, format.Malformed(f, "header checksums truncated")
	}
	if subtle.ConstantTimeCompare(cryptox.SHA256(h.raw), data[pos:pos+32]) != 1 {
		return nil, format.AuthFailed(f)
	}

	transformed, err := h.kdf.derive(ctx, composite)
	if err != nil {
		return nil, err
	}
	base := hmacBaseKey(h.masterSeed, transformed)
	defer common.WipeByteArray(base)
	if !hmac.Equal(headerHMAC(base, h.raw), data[pos+32:pos+64]) {
		return nil, format.AuthFailed(f)
	}

	ciphertext, err := readHMACBlocks(data[pos+64:], base)
	if err != nil {
		return nil, format.AuthFailed(f)
	}
	key := cryptox.SHA256(h.masterSeed, transformed)
	defer common.WipeByteArray(key)

	payload, err := decryptPayload(h.cipherID, key, h.iv, ciphertext)
	if err != nil {
		return nil, format.AuthFailed(f)
	}
	if h.compression == compressionGzip {
		if payload, err = gunzip(payload); err != nil {
			return nil, format.Malformed(f, "gzip: %v", err)
		}
	}

	inner, rest, err := readInnerHeader(payload)
	if err != nil {
		return nil, format.Malformed(f, "%w", err)
	}
	doc, err := parseXML(rest)
	if err != nil {
		return nil, format.Malformed(f, "xml: %v", err)
	}
	stream, err := cryptox.NewProtectedStream(inner.streamID, inner.streamKey)
	if err != nil {
		return nil, format.Malformed(f, "%w", err)
	}
	pool := append([]node.Attachment{}, inner.binaries...)
	return a.finish(doc, h, stream, pool)
}

func (a *Adaptor) finish(doc *xmlFile, h *outerHeader, stream cryptox.ProtectedStream, pool []node.Attachment) (*format.Content, error) {
	f := a.version
	if err := doc.unprotectAll(stream); err != nil {
		return nil, format.Malformed(f, "protected value: %v", err)
	}
	meta := &Metadata{
		Version:     f,
		Cipher:      h.cipherID,
		Compression: h.compression == compressionGzip,
		KDF:         h.kdf,
	}
	meta.KDF.Seed = bytes.Clone(h.kdf.Seed)

	c, err := decodeDocument(doc, meta, pool)
	if err != nil {
		return nil, format.Malformed(f, "%w", err)
	}
	return c, nil
}
