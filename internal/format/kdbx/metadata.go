package kdbx

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// DefaultHistoryMaxItems is the KeePass default per-entry history size.
const DefaultHistoryMaxItems = 10

// Metadata is the outer header configuration plus the XML Meta block.
type Metadata struct {
	Version     format.Format
	Cipher      uuid.UUID
	Compression bool
	KDF         KDFParams

	Generator              string
	DatabaseName           string
	DatabaseNameChanged    time.Time
	DatabaseDescription    string
	DefaultUserName        string
	MaintenanceHistoryDays int
	Color                  string
	MasterKeyChanged       time.Time
	MasterKeyChangeRec     int64
	MasterKeyChangeForce   int64
	MemoryProtection       MemoryProtection
	RecycleBinEnabled      bool
	RecycleBinUUID         uuid.UUID
	RecycleBinChanged      time.Time
	EntryTemplatesGroup    uuid.UUID
	HistoryMax             int
	HistoryMaxSize         int64
	LastSelectedGroup      uuid.UUID
	LastTopVisibleGroup    uuid.UUID
	CustomData             []CustomDataItem
	DeletedObjects         []DeletedObject

	// Extra holds Meta children this package does not interpret.
	Extra []RawElement
	// NodeExtras holds uninterpreted children of groups and entries (tags,
	// auto-type, colours and the like), keyed by node id.
	NodeExtras map[uuid.UUID][]RawElement
}

// MemoryProtection says which standard fields are written protected.
type MemoryProtection struct {
	Title, UserName, Password, URL, Notes bool
}

type CustomDataItem struct {
	Key, Value string
}

// DeletedObject records a permanently deleted node for merge tools.
type DeletedObject struct {
	UUID uuid.UUID
	Time time.Time
}

// NewMetadata returns metadata for a new database of version f.
func NewMetadata(f format.Format, kdf KDFParams) *Metadata {
	now := time.Now().UTC().Truncate(time.Second)
	return &Metadata{
		Version:                f,
		Cipher:                 CipherAES256,
		Compression:            true,
		KDF:                    kdf,
		Generator:              "gophsafe",
		DatabaseNameChanged:    now,
		MaintenanceHistoryDays: 365,
		MasterKeyChanged:       now,
		MasterKeyChangeRec:     -1,
		MasterKeyChangeForce:   -1,
		MemoryProtection:       MemoryProtection{Password: true},
		RecycleBinEnabled:      true,
		RecycleBinChanged:      now,
		HistoryMax:             DefaultHistoryMaxItems,
		HistoryMaxSize:         6 * 1024 * 1024,
	}
}

func (m *Metadata) Format() format.Format { return m.Version }

func (m *Metadata) RecycleBin() (bool, uuid.UUID) { return m.RecycleBinEnabled, m.RecycleBinUUID }

func (m *Metadata) SetRecycleBin(id uuid.UUID) {
	m.RecycleBinUUID = id
	m.RecycleBinChanged = time.Now().UTC().Truncate(time.Second)
}

func (m *Metadata) HistoryMaxItems() int { return m.HistoryMax }

func (m *Metadata) StampSave(now time.Time, app string) {
	if app != "" {
		m.Generator = app
	}
}

func (m *Metadata) AddDeletedObject(id uuid.UUID, at time.Time) {
	m.DeletedObjects = append(m.DeletedObjects, DeletedObject{UUID: id, Time: at.UTC().Truncate(time.Second)})
}

func (m *Metadata) Properties() []format.Property {
	cipher := "AES-256"
	switch m.Cipher {
	case CipherChaCha20:
		cipher = "ChaCha20"
	case CipherTwofish:
		cipher = "Twofish"
	}
	props := []format.Property{
		{Key: "Format", Value: m.Version.String()},
		{Key: "Generator", Value: m.Generator},
		{Key: "Cipher", Value: cipher},
	}
	if m.KDF.isArgon2() {
		props = append(props,
			format.Property{Key: "KDF", Value: "Argon2id"},
			format.Property{Key: "KDF Iterations", Value: fmt.Sprint(m.KDF.Iterations)},
			format.Property{Key: "KDF Memory", Value: humanize.IBytes(m.KDF.MemoryBytes)},
			format.Property{Key: "KDF Parallelism", Value: fmt.Sprint(m.KDF.Parallelism)},
		)
	} else {
		props = append(props,
			format.Property{Key: "KDF", Value: "AES-KDF"},
			format.Property{Key: "KDF Rounds", Value: humanize.Comma(int64(m.KDF.Rounds))},
		)
	}
	if m.DatabaseName != "" {
		props = append(props, format.Property{Key: "Database Name", Value: m.DatabaseName})
	}
	props = append(props,
		format.Property{Key: "Recycle Bin", Value: fmt.Sprint(m.RecycleBinEnabled)},
		format.Property{Key: "History Max Items", Value: fmt.Sprint(m.HistoryMax)},
		format.Property{Key: "Deleted Objects", Value: fmt.Sprint(len(m.DeletedObjects))},
	)
	return props
}
