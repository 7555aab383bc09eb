package kdbx

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/google/uuid"
)

// Standard entry string keys.
const (
	keyTitle    = "Title"
	keyUserName = "UserName"
	keyPassword = "Password"
	keyURL      = "URL"
	keyNotes    = "Notes"
	keyEmail    = "Email"
	keyOTP      = "otp"
)

// IsStandardKey reports whether key names a built-in entry string. Custom
// fields cannot use these keys.
func IsStandardKey(key string) bool {
	switch key {
	case keyTitle, keyUserName, keyPassword, keyURL, keyNotes, keyEmail, keyOTP:
		return true
	}
	return false
}

type decoder struct {
	meta  *Metadata
	c     *format.Content
	refs  map[int]int
	icons map[uuid.UUID]bool
}

// decodeDocument maps the unmasked XML onto content. pool holds the KDBX 4
// inner header binaries and is nil for KDBX 3.1.
func decodeDocument(doc *xmlFile, meta *Metadata, pool []node.Attachment) (*format.Content, error) {
	d := &decoder{meta: meta, c: &format.Content{Meta: meta}, refs: map[int]int{}, icons: map[uuid.UUID]bool{}}
	d.meta.fromXML(&doc.Meta)

	for _, ic := range doc.Meta.CustomIcons {
		id := parseUUID(ic.UUID)
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ic.Data))
		if err != nil || id == uuid.Nil {
			return nil, fmt.Errorf("custom icon %q: invalid", ic.UUID)
		}
		d.c.Icons = append(d.c.Icons, node.CustomIcon{ID: id, Data: data})
		d.icons[id] = true
	}

	if pool != nil {
		d.c.Attachments = pool
		for i := range pool {
			d.refs[i] = i
		}
	} else {
		for _, b := range doc.Meta.Binaries {
			data, err := decodeMetaBinary(b)
			if err != nil {
				return nil, fmt.Errorf("binary %d: %w", b.ID, err)
			}
			d.refs[b.ID] = len(d.c.Attachments)
			d.c.Attachments = append(d.c.Attachments, node.Attachment{Data: data, Protected: bool(b.Protected)})
		}
	}

	root, err := d.group(&doc.Root.Group)
	if err != nil {
		return nil, err
	}
	tree, err := node.NewTree(root)
	if err != nil {
		return nil, err
	}
	d.c.Tree = tree
	if err := d.children(&doc.Root.Group, root); err != nil {
		return nil, err
	}

	for _, o := range doc.Root.DeletedObjects {
		meta.DeletedObjects = append(meta.DeletedObjects, DeletedObject{UUID: parseUUID(o.UUID), Time: parseTime(o.DeletionTime)})
	}
	return d.c, nil
}

func (d *decoder) children(xg *xmlGroup, g *node.Node) error {
	for _, xe := range xg.Entries {
		e, err := d.entry(xe)
		if err != nil {
			return err
		}
		for _, xh := range xe.History {
			h, err := d.entry(xh)
			if err != nil {
				return err
			}
			h.ID = e.ID
			e.History = append(e.History, h)
		}
		if err := d.c.Tree.Add(g.ID, e); err != nil {
			return err
		}
		d.keepExtras(e.ID, xe.Extra)
	}
	for _, xsub := range xg.Groups {
		sub, err := d.group(xsub)
		if err != nil {
			return err
		}
		if err := d.c.Tree.Add(g.ID, sub); err != nil {
			return err
		}
		if err := d.children(xsub, sub); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) keepExtras(id uuid.UUID, extra []RawElement) {
	if len(extra) == 0 {
		return
	}
	if d.meta.NodeExtras == nil {
		d.meta.NodeExtras = map[uuid.UUID][]RawElement{}
	}
	d.meta.NodeExtras[id] = extra
}

func (d *decoder) icon(index int, custom string) node.Icon {
	ic := node.Icon{Index: index}
	if id := parseUUID(custom); d.icons[id] {
		ic.Custom = id
	}
	return ic
}

func (d *decoder) group(xg *xmlGroup) (*node.Node, error) {
	g := &node.Node{
		ID:      parseUUID(xg.UUID),
		IsGroup: true,
		Icon:    d.icon(xg.IconID, xg.CustomIconUUID),
		Times:   xg.Times.toNode(),
	}
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	g.Title = xg.Name
	g.Notes = xg.Notes
	d.keepExtras(g.ID, xg.Extra)
	return g, nil
}

func (d *decoder) entry(xe *xmlEntry) (*node.Node, error) {
	e := &node.Node{
		ID:    parseUUID(xe.UUID),
		Icon:  d.icon(xe.IconID, xe.CustomIconUUID),
		Times: xe.Times.toNode(),
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	for _, s := range xe.Strings {
		var (
			val       string
			protected bool
		)
		if s.Value != nil {
			val = s.Value.Text
			protected = bool(s.Value.Protected || s.Value.ProtectInMemory)
		}
		switch s.Key {
		case keyTitle:
			e.Title = val
		case keyUserName:
			e.Username = val
		case keyPassword:
			e.Password = val
		case keyURL:
			e.URL = val
		case keyNotes:
			e.Notes = val
		case keyEmail:
			e.Email = val
		case keyOTP:
			e.OTP = val
		default:
			e.Custom = append(e.Custom, node.CustomField{Key: s.Key, Value: val, Protected: protected})
		}
	}

	for _, b := range xe.Binaries {
		idx, ok := d.refs[b.Value.Ref]
		if !ok {
			return nil, fmt.Errorf("entry %s references missing binary %d", e.ID, b.Value.Ref)
		}
		e.Attachments = append(e.Attachments, node.AttachmentRef{Filename: b.Key, Index: idx})
	}
	return e, nil
}

func (t xmlTimes) toNode() node.Times {
	return node.Times{
		Created:  parseTime(t.CreationTime),
		Modified: parseTime(t.LastModificationTime),
		Accessed: parseTime(t.LastAccessTime),
		Expires:  parseTime(t.ExpiryTime),
		Expiry:   bool(t.Expires),
	}
}

func fromNodeTimes(t node.Times, v4 bool) xmlTimes {
	return xmlTimes{
		CreationTime:         formatTime(t.Created, v4),
		LastModificationTime: formatTime(t.Modified, v4),
		LastAccessTime:       formatTime(t.Accessed, v4),
		ExpiryTime:           formatTime(t.Expires, v4),
		Expires:              xmlBool(t.Expiry),
		LocationChanged:      formatTime(t.Modified, v4),
	}
}

func decodeMetaBinary(b *xmlBinary) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b.Text))
	if err != nil {
		return nil, err
	}
	if !b.Compressed {
		return raw, nil
	}
	return gunzip(raw)
}

func gunzip(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func gzipBytes(b []byte) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Write(b)
	w.Close()
	return buf.Bytes()
}

func (m *Metadata) fromXML(x *xmlMeta) {
	m.Generator = x.Generator
	m.DatabaseName = x.DatabaseName
	m.DatabaseNameChanged = parseTime(x.DatabaseNameChanged)
	m.DatabaseDescription = x.DatabaseDescription
	m.DefaultUserName = x.DefaultUserName
	m.MaintenanceHistoryDays = x.MaintenanceHistoryDays
	m.Color = x.Color
	m.MasterKeyChanged = parseTime(x.MasterKeyChanged)
	m.MasterKeyChangeRec = x.MasterKeyChangeRec
	m.MasterKeyChangeForce = x.MasterKeyChangeForce
	m.MemoryProtection = MemoryProtection{
		Title:    bool(x.MemoryProtection.ProtectTitle),
		UserName: bool(x.MemoryProtection.ProtectUserName),
		Password: bool(x.MemoryProtection.ProtectPassword),
		URL:      bool(x.MemoryProtection.ProtectURL),
		Notes:    bool(x.MemoryProtection.ProtectNotes),
	}
	m.RecycleBinEnabled = bool(x.RecycleBinEnabled)
	m.RecycleBinUUID = parseUUID(x.RecycleBinUUID)
	m.RecycleBinChanged = parseTime(x.RecycleBinChanged)
	m.EntryTemplatesGroup = parseUUID(x.EntryTemplatesGroup)
	m.HistoryMax = x.HistoryMaxItems
	m.HistoryMaxSize = x.HistoryMaxSize
	m.LastSelectedGroup = parseUUID(x.LastSelectedGroup)
	m.LastTopVisibleGroup = parseUUID(x.LastTopVisibleGroup)
	for _, it := range x.CustomData {
		m.CustomData = append(m.CustomData, CustomDataItem{Key: it.Key, Value: it.Value})
	}
	m.Extra = x.Extra
}

func (m *Metadata) toXML(v4 bool) xmlMeta {
	x := xmlMeta{
		Generator:              m.Generator,
		DatabaseName:           m.DatabaseName,
		DatabaseNameChanged:    formatTime(m.DatabaseNameChanged, v4),
		DatabaseDescription:    m.DatabaseDescription,
		DefaultUserName:        m.DefaultUserName,
		MaintenanceHistoryDays: m.MaintenanceHistoryDays,
		Color:                  m.Color,
		MasterKeyChanged:       formatTime(m.MasterKeyChanged, v4),
		MasterKeyChangeRec:     m.MasterKeyChangeRec,
		MasterKeyChangeForce:   m.MasterKeyChangeForce,
		MemoryProtection: xmlMemoryProtection{
			ProtectTitle:    xmlBool(m.MemoryProtection.Title),
			ProtectUserName: xmlBool(m.MemoryProtection.UserName),
			ProtectPassword: xmlBool(m.MemoryProtection.Password),
			ProtectURL:      xmlBool(m.MemoryProtection.URL),
			ProtectNotes:    xmlBool(m.MemoryProtection.Notes),
		},
		RecycleBinEnabled:   xmlBool(m.RecycleBinEnabled),
		RecycleBinUUID:      formatUUID(m.RecycleBinUUID),
		RecycleBinChanged:   formatTime(m.RecycleBinChanged, v4),
		EntryTemplatesGroup: formatUUID(m.EntryTemplatesGroup),
		HistoryMaxItems:     m.HistoryMax,
		HistoryMaxSize:      m.HistoryMaxSize,
		LastSelectedGroup:   formatUUID(m.LastSelectedGroup),
		LastTopVisibleGroup: formatUUID(m.LastTopVisibleGroup),
		Extra:               m.Extra,
	}
	for _, it := range m.CustomData {
		x.CustomData = append(x.CustomData, xmlItem{Key: it.Key, Value: it.Value})
	}
	return x
}

type encoder struct {
	meta *Metadata
	c    *format.Content
	v4   bool
}

// encodeDocument builds the XML document for c. Protected values are still
// in clear text.
func encodeDocument(c *format.Content, meta *Metadata, v4 bool) (*xmlFile, error) {
	e := &encoder{meta: meta, c: c, v4: v4}
	doc := &xmlFile{Meta: meta.toXML(v4)}

	for _, ic := range c.Icons {
		doc.Meta.CustomIcons = append(doc.Meta.CustomIcons, xmlIcon{UUID: formatUUID(ic.ID), Data: base64.StdEncoding.EncodeToString(ic.Data)})
	}
	if !v4 {
		for i, a := range c.Attachments {
			data := a.Data
			b := &xmlBinary{ID: i, Protected: xmlBool(a.Protected)}
			if meta.Compression {
				data = gzipBytes(data)
				b.Compressed = true
			}
			b.Text = base64.StdEncoding.EncodeToString(data)
			doc.Meta.Binaries = append(doc.Meta.Binaries, b)
		}
	}

	root := c.Tree.Root()
	g, err := e.group(root)
	if err != nil {
		return nil, err
	}
	doc.Root.Group = *g

	for _, o := range meta.DeletedObjects {
		doc.Root.DeletedObjects = append(doc.Root.DeletedObjects, xmlDeletedObject{UUID: formatUUID(o.UUID), DeletionTime: formatTime(o.Time, v4)})
	}
	return doc, nil
}

func (e *encoder) group(g *node.Node) (*xmlGroup, error) {
	xg := &xmlGroup{
		UUID:   formatUUID(g.ID),
		Name:   g.Title,
		Notes:  g.Notes,
		IconID: g.Icon.Index,
		Times:  fromNodeTimes(g.Times, e.v4),
		Extra:  e.meta.NodeExtras[g.ID],
	}
	if g.Icon.IsCustom() {
		xg.CustomIconUUID = formatUUID(g.Icon.Custom)
	}
	for _, r := range e.c.Tree.ChildRecords(g) {
		xe, err := e.entry(r, true)
		if err != nil {
			return nil, err
		}
		xg.Entries = append(xg.Entries, xe)
	}
	for _, sub := range e.c.Tree.ChildGroups(g) {
		xs, err := e.group(sub)
		if err != nil {
			return nil, err
		}
		xg.Groups = append(xg.Groups, xs)
	}
	return xg, nil
}

func (e *encoder) entry(n *node.Node, withHistory bool) (*xmlEntry, error) {
	mp := e.meta.MemoryProtection
	xe := &xmlEntry{
		UUID:   formatUUID(n.ID),
		IconID: n.Icon.Index,
		Times:  fromNodeTimes(n.Times, e.v4),
	}
	if n.Icon.IsCustom() {
		xe.CustomIconUUID = formatUUID(n.Icon.Custom)
	}
	str := func(key, val string, protected bool) {
		xe.Strings = append(xe.Strings, &xmlString{Key: key, Value: &xmlValue{Text: val, Protected: xmlBool(protected)}})
	}
	str(keyTitle, n.Title, mp.Title)
	str(keyUserName, n.Username, mp.UserName)
	str(keyPassword, n.Password, mp.Password)
	str(keyURL, n.URL, mp.URL)
	str(keyNotes, n.Notes, mp.Notes)
	if n.Email != "" {
		str(keyEmail, n.Email, false)
	}
	if n.OTP != "" {
		str(keyOTP, n.OTP, true)
	}
	for _, cf := range n.Custom {
		str(cf.Key, cf.Value, cf.Protected)
	}

	for _, a := range n.Attachments {
		if a.Index < 0 || a.Index >= len(e.c.Attachments) {
			return nil, fmt.Errorf("entry %s: attachment %d out of range", n.ID, a.Index)
		}
		ref := xmlRef{Key: a.Filename}
		ref.Value.Ref = a.Index
		xe.Binaries = append(xe.Binaries, ref)
	}

	if withHistory {
		xe.Extra = e.meta.NodeExtras[n.ID]
		for _, h := range n.History {
			xh, err := e.entry(h, false)
			if err != nil {
				return nil, err
			}
			xe.History = append(xe.History, xh)
		}
	}
	return xe, nil
}
