package kdbx

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophsafe/internal/cryptox"
	"github.com/google/uuid"
)

// The XML document inside the payload. Known elements are mapped; unknown
// children of Meta, Group and Entry are carried through as raw elements.

type xmlFile struct {
	XMLName xml.Name `xml:"KeePassFile"`
	Meta    xmlMeta  `xml:"Meta"`
	Root    xmlRoot  `xml:"Root"`
}

type xmlMeta struct {
	Generator                  string              `xml:"Generator"`
	HeaderHash                 string              `xml:"HeaderHash,omitempty"`
	DatabaseName               string              `xml:"DatabaseName"`
	DatabaseNameChanged        string              `xml:"DatabaseNameChanged,omitempty"`
	DatabaseDescription        string              `xml:"DatabaseDescription"`
	DatabaseDescriptionChanged string              `xml:"DatabaseDescriptionChanged,omitempty"`
	DefaultUserName            string              `xml:"DefaultUserName"`
	MaintenanceHistoryDays     int                 `xml:"MaintenanceHistoryDays"`
	Color                      string              `xml:"Color"`
	MasterKeyChanged           string              `xml:"MasterKeyChanged,omitempty"`
	MasterKeyChangeRec         int64               `xml:"MasterKeyChangeRec"`
	MasterKeyChangeForce       int64               `xml:"MasterKeyChangeForce"`
	MemoryProtection           xmlMemoryProtection `xml:"MemoryProtection"`
	CustomIcons                []xmlIcon           `xml:"CustomIcons>Icon"`
	RecycleBinEnabled          xmlBool             `xml:"RecycleBinEnabled"`
	RecycleBinUUID             string              `xml:"RecycleBinUUID"`
	RecycleBinChanged          string              `xml:"RecycleBinChanged,omitempty"`
	EntryTemplatesGroup        string              `xml:"EntryTemplatesGroup"`
	HistoryMaxItems            int                 `xml:"HistoryMaxItems"`
	HistoryMaxSize             int64               `xml:"HistoryMaxSize"`
	LastSelectedGroup          string              `xml:"LastSelectedGroup"`
	LastTopVisibleGroup        string              `xml:"LastTopVisibleGroup"`
	Binaries                   []*xmlBinary        `xml:"Binaries>Binary"`
	CustomData                 []xmlItem           `xml:"CustomData>Item"`
	Extra                      []RawElement        `xml:",any"`
}

type xmlMemoryProtection struct {
	ProtectTitle    xmlBool `xml:"ProtectTitle"`
	ProtectUserName xmlBool `xml:"ProtectUserName"`
	ProtectPassword xmlBool `xml:"ProtectPassword"`
	ProtectURL      xmlBool `xml:"ProtectURL"`
	ProtectNotes    xmlBool `xml:"ProtectNotes"`
}

type xmlIcon struct {
	UUID string `xml:"UUID"`
	Data string `xml:"Data"`
}

type xmlItem struct {
	Key   string `xml:"Key"`
	Value string `xml:"Value"`
}

// xmlBinary is a KDBX 3.1 pool entry in Meta.
type xmlBinary struct {
	ID         int     `xml:"ID,attr"`
	Compressed xmlBool `xml:"Compressed,attr,omitempty"`
	Protected  xmlBool `xml:"Protected,attr,omitempty"`
	Text       string  `xml:",chardata"`

	offset int64
}

type xmlRoot struct {
	Group          xmlGroup           `xml:"Group"`
	DeletedObjects []xmlDeletedObject `xml:"DeletedObjects>DeletedObject"`
}

type xmlDeletedObject struct {
	UUID         string `xml:"UUID"`
	DeletionTime string `xml:"DeletionTime"`
}

type xmlTimes struct {
	LastModificationTime string  `xml:"LastModificationTime"`
	CreationTime         string  `xml:"CreationTime"`
	LastAccessTime       string  `xml:"LastAccessTime"`
	ExpiryTime           string  `xml:"ExpiryTime"`
	Expires              xmlBool `xml:"Expires"`
	UsageCount           int     `xml:"UsageCount"`
	LocationChanged      string  `xml:"LocationChanged"`
}

type xmlGroup struct {
	UUID           string       `xml:"UUID"`
	Name           string       `xml:"Name"`
	Notes          string       `xml:"Notes"`
	IconID         int          `xml:"IconID"`
	CustomIconUUID string       `xml:"CustomIconUUID,omitempty"`
	Times          xmlTimes     `xml:"Times"`
	Extra          []RawElement `xml:",any"`
	Entries        []*xmlEntry  `xml:"Entry"`
	Groups         []*xmlGroup  `xml:"Group"`
}

type xmlEntry struct {
	UUID           string       `xml:"UUID"`
	IconID         int          `xml:"IconID"`
	CustomIconUUID string       `xml:"CustomIconUUID,omitempty"`
	Times          xmlTimes     `xml:"Times"`
	Strings        []*xmlString `xml:"String"`
	Binaries       []xmlRef     `xml:"Binary"`
	Extra          []RawElement `xml:",any"`
	History        []*xmlEntry  `xml:"History>Entry"`
}

type xmlString struct {
	Key   string    `xml:"Key"`
	Value *xmlValue `xml:"Value"`
}

type xmlValue struct {
	Protected       xmlBool `xml:"Protected,attr,omitempty"`
	ProtectInMemory xmlBool `xml:"ProtectInMemory,attr,omitempty"`
	Text            string  `xml:",chardata"`

	offset int64
}

type xmlRef struct {
	Key   string `xml:"Key"`
	Value struct {
		Ref int `xml:"Ref,attr"`
	} `xml:"Value"`
}

// RawElement is an XML element kept verbatim.
type RawElement struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   string     `xml:",innerxml"`
}

type xmlBool bool

func (b xmlBool) MarshalText() ([]byte, error) {
	if b {
		return []byte("True"), nil
	}
	return []byte("False"), nil
}

func (b *xmlBool) UnmarshalText(t []byte) error {
	*b = xmlBool(strings.EqualFold(strings.TrimSpace(string(t)), "true"))
	return nil
}

// The offsets recorded while decoding restore document order for the
// protected stream, whatever order the elements are visited in later.

func (v *xmlValue) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	off := d.InputOffset()
	type plain xmlValue
	var p plain
	if err := d.DecodeElement(&p, &start); err != nil {
		return err
	}
	*v = xmlValue(p)
	v.offset = off
	return nil
}

func (b *xmlBinary) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	off := d.InputOffset()
	type plain xmlBinary
	var p plain
	if err := d.DecodeElement(&p, &start); err != nil {
		return err
	}
	*b = xmlBinary(p)
	b.offset = off
	return nil
}

// protectable is a value masked with the inner random stream when Protected.
type protectable interface {
	isProtected() bool
	position() int64
	unprotect(s cryptox.ProtectedStream) error
	protect(s cryptox.ProtectedStream)
}

func (v *xmlValue) isProtected() bool { return bool(v.Protected) }
func (v *xmlValue) position() int64   { return v.offset }

func (v *xmlValue) unprotect(s cryptox.ProtectedStream) error {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(v.Text))
	if err != nil {
		return err
	}
	v.Text = string(s.XOR(raw))
	return nil
}

func (v *xmlValue) protect(s cryptox.ProtectedStream) {
	v.Text = base64.StdEncoding.EncodeToString(s.XOR([]byte(v.Text)))
}

func (b *xmlBinary) isProtected() bool { return bool(b.Protected) }
func (b *xmlBinary) position() int64   { return b.offset }

func (b *xmlBinary) unprotect(s cryptox.ProtectedStream) error {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b.Text))
	if err != nil {
		return err
	}
	b.Text = base64.StdEncoding.EncodeToString(s.XOR(raw))
	return nil
}

func (b *xmlBinary) protect(s cryptox.ProtectedStream) {
	raw, _ := base64.StdEncoding.DecodeString(b.Text)
	b.Text = base64.StdEncoding.EncodeToString(s.XOR(raw))
}

// protectedValues lists the protected values in the order the encoder
// writes them: Meta binaries, then each group's entries (strings before
// history) ahead of its subgroups.
func (f *xmlFile) protectedValues() []protectable {
	var out []protectable
	for _, b := range f.Meta.Binaries {
		if b.isProtected() {
			out = append(out, b)
		}
	}
	var entry func(e *xmlEntry)
	entry = func(e *xmlEntry) {
		for _, s := range e.Strings {
			if s.Value != nil && s.Value.isProtected() {
				out = append(out, s.Value)
			}
		}
		for _, h := range e.History {
			entry(h)
		}
	}
	var group func(g *xmlGroup)
	group = func(g *xmlGroup) {
		for _, e := range g.Entries {
			entry(e)
		}
		for _, sub := range g.Groups {
			group(sub)
		}
	}
	group(&f.Root.Group)
	return out
}

// unprotectAll unmasks protected values in document order.
func (f *xmlFile) unprotectAll(s cryptox.ProtectedStream) error {
	vals := f.protectedValues()
	sort.SliceStable(vals, func(i, j int) bool { return vals[i].position() < vals[j].position() })
	for _, v := range vals {
		if err := v.unprotect(s); err != nil {
			return err
		}
	}
	return nil
}

func (f *xmlFile) protectAll(s cryptox.ProtectedStream) {
	for _, v := range f.protectedValues() {
		v.protect(s)
	}
}

// ticksEpoch is 0001-01-01T00:00:00Z in Unix seconds.
const ticksEpoch = -62135596800

func formatTime(t time.Time, v4 bool) string {
	t = t.UTC()
	if !v4 {
		return t.Format(time.RFC3339)
	}
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(t.Unix()-ticksEpoch))
	return base64.StdEncoding.EncodeToString(b)
}

// parseTime accepts both the ISO 8601 and the base64 seconds form, whatever
// the file version.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if strings.ContainsAny(s, "-:") {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}
		}
		return t.UTC()
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(b) != 8 {
		return time.Time{}
	}
	return time.Unix(int64(binary.LittleEndian.Uint64(b))+ticksEpoch, 0).UTC()
}

func formatUUID(u uuid.UUID) string {
	return base64.StdEncoding.EncodeToString(u[:])
}

func parseUUID(s string) uuid.UUID {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil || len(b) != 16 {
		return uuid.Nil
	}
	u, _ := uuid.FromBytes(b)
	return u
}
