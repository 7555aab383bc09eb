package kdb

import (
	"fmt"

	"github.com/dmitrijs2005/gophsafe/internal/cryptox"
	"github.com/dmitrijs2005/gophsafe/internal/format"
)

// Metadata is what a KeePass 1.x file stores besides the tree.
type Metadata struct {
	Version uint32
	Cipher  cryptox.BlockCipher
	Rounds  uint32

	// GroupFlags keeps the per-group flags word, keyed by the group id in
	// the file, for groups decoded from a file.
	GroupFlags map[uint32]uint32

	// MetaStreams are the application-private entries KeePass hides from
	// the tree, in file order.
	MetaStreams []MetaStream
}

// MetaStream is a hidden "Meta-Info" entry.
type MetaStream struct {
	Description string
	Data        []byte
}

// NewMetadata returns metadata for a new database.
func NewMetadata(rounds uint32, c cryptox.BlockCipher) *Metadata {
	return &Metadata{Version: version, Cipher: c, Rounds: rounds}
}

func (m *Metadata) Format() format.Format { return format.KeePass1 }

func (m *Metadata) Properties() []format.Property {
	cipher := "AES-256"
	if m.Cipher == cryptox.Twofish {
		cipher = "Twofish"
	}
	return []format.Property{
		{Key: "Version", Value: fmt.Sprintf("%d.%d", m.Version>>16, m.Version&0xffff)},
		{Key: "Cipher", Value: cipher},
		{Key: "Transform Rounds", Value: fmt.Sprint(m.Rounds)},
		{Key: "Meta Streams", Value: fmt.Sprint(len(m.MetaStreams))},
	}
}
