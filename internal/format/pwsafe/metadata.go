package pwsafe

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/google/uuid"
)

// Metadata is the Password Safe v3 header.
type Metadata struct {
	Version         uint16
	UUID            uuid.UUID
	Iterations      uint32
	NonDefaultPrefs string
	LastSave        time.Time
	LastSaveApp     string
	LastSaveUser    string
	LastSaveHost    string
	DatabaseName    string
	Description     string

	// Unknown holds header fields this package does not interpret, in file order.
	Unknown []RawField
}

// RawField is an uninterpreted header field.
type RawField struct {
	Type byte
	Data []byte
}

// NewMetadata returns header defaults for a new database.
func NewMetadata(iterations uint32) *Metadata {
	return &Metadata{Version: DefaultVersion, UUID: uuid.New(), Iterations: iterations}
}

func (m *Metadata) Format() format.Format { return format.PasswordSafe }

// StampSave records who saved the database and when.
func (m *Metadata) StampSave(now time.Time, app string) {
	m.LastSave = now.UTC().Truncate(time.Second)
	m.LastSaveApp = app
}

func (m *Metadata) Properties() []format.Property {
	props := []format.Property{
		{Key: "Version", Value: fmt.Sprintf("%d.%02d", m.Version>>8, m.Version&0xff)},
		{Key: "UUID", Value: m.UUID.String()},
		{Key: "Key Stretch Iterations", Value: fmt.Sprint(m.Iterations)},
	}
	if !m.LastSave.IsZero() {
		props = append(props, format.Property{Key: "Last Saved", Value: m.LastSave.Format(time.RFC3339)})
	}
	for _, p := range []format.Property{
		{Key: "Last Saved By App", Value: m.LastSaveApp},
		{Key: "Last Saved By User", Value: m.LastSaveUser},
		{Key: "Last Saved On Host", Value: m.LastSaveHost},
		{Key: "Database Name", Value: m.DatabaseName},
		{Key: "Description", Value: m.Description},
	} {
		if p.Value != "" {
			props = append(props, p)
		}
	}
	return props
}
