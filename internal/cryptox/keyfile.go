package cryptox

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"strings"
)

// KeyFileDigestSize is the size of the digest every key file is reduced to.
const KeyFileDigestSize = 32

type xmlKeyFile struct {
	XMLName xml.Name `xml:"KeyFile"`
	Version string   `xml:"Meta>Version"`
	Data    string   `xml:"Key>Data"`
}

// KeyFileDigest reduces the contents of a key file to the fixed-size digest
// that is mixed into the composite key, following the KeePass rules:
//
//   - exactly 32 bytes are used as is;
//   - 64 hexadecimal characters are decoded;
//   - an XML key file (version 1.0 base64 or 2.0 hex) yields its key data;
//   - anything else is hashed with SHA-256.
func KeyFileDigest(data []byte) []byte {
	if len(data) == KeyFileDigestSize {
		return append([]byte(nil), data...)
	}

	if len(data) == 2*KeyFileDigestSize {
		if b, err := hex.DecodeString(string(data)); err == nil {
			return b
		}
	}

	if b, ok := xmlKeyFileData(data); ok {
		return b
	}

	sum := sha256.Sum256(data)
	return sum[:]
}

func xmlKeyFileData(data []byte) ([]byte, bool) {
	trimmed := bytes.TrimSpace(data)
	if !bytes.HasPrefix(trimmed, []byte("<")) {
		return nil, false
	}

	var kf xmlKeyFile
	if err := xml.Unmarshal(trimmed, &kf); err != nil {
		return nil, false
	}

	raw := strings.TrimSpace(kf.Data)
	if strings.HasPrefix(kf.Version, "2.") {
		b, err := hex.DecodeString(strings.Join(strings.Fields(raw), ""))
		if err != nil || len(b) != KeyFileDigestSize {
			return nil, false
		}
		return b, true
	}

	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(b) != KeyFileDigestSize {
		return nil, false
	}
	return b, true
}
