// Package deref expands field references and placeholders in record fields
// and holds the text matching rules shared by search.
//
// Supported tokens, matched case-insensitively:
//
//	{REF:W@S:text}  field W of the first record whose field S contains text
//	{TITLE} {USERNAME} {PASSWORD} {URL} {NOTES}  fields of the same record
//	{S:key}  custom field key of the same record
//
// W and S are one of T (title), U (username), P (password), A (url),
// N (notes), I (id); S may also be O (any custom field).
package deref

import (
	"strings"

	"github.com/dmitrijs2005/gophsafe/internal/node"
	"github.com/google/uuid"
)

const (
	DefaultMaxDepth  = 10
	DefaultMaxLength = 64 * 1024
)

// Option configures an Engine.
type Option func(*Engine)

// WithMaxDepth caps the number of expansion passes.
func WithMaxDepth(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// WithMaxLength stops expansion once the text would grow past n bytes.
func WithMaxLength(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxLength = n
		}
	}
}

// Engine resolves tokens against a set of records.
type Engine struct {
	records   func() []*node.Node
	maxDepth  int
	maxLength int
}

// New returns an engine. records lists the candidates for {REF:...} lookups
// and is called at most once per Dereference.
func New(records func() []*node.Node, opts ...Option) *Engine {
	e := &Engine{records: records, maxDepth: DefaultMaxDepth, maxLength: DefaultMaxLength}
	for _, o := range opts {
		o(e)
	}
	return e
}

// IsDereferenceableText reports whether text contains anything that looks
// like a token.
func IsDereferenceableText(text string) bool {
	i := strings.IndexByte(text, '{')
	return i >= 0 && strings.IndexByte(text[i:], '}') > 0
}

// Dereference expands the tokens in text in the context of record n. Each
// pass replaces every token once without rescanning what it inserted; passes
// repeat until nothing changes or a cap is hit. Tokens that do not resolve
// are left as they are.
func (e *Engine) Dereference(text string, n *node.Node) string {
	if n == nil || !IsDereferenceableText(text) {
		return text
	}
	var all []*node.Node
	loaded := false
	lookup := func() []*node.Node {
		if !loaded && e.records != nil {
			all, loaded = e.records(), true
		}
		return all
	}

	cur := text
	for depth := 0; depth < e.maxDepth; depth++ {
		next, changed := e.pass(cur, n, lookup)
		if !changed || len(next) > e.maxLength {
			break
		}
		cur = next
	}
	return cur
}

func (e *Engine) pass(text string, n *node.Node, lookup func() []*node.Node) (string, bool) {
	var (
		b       strings.Builder
		changed bool
	)
	for {
		open := strings.IndexByte(text, '{')
		if open < 0 {
			b.WriteString(text)
			break
		}
		end := strings.IndexByte(text[open:], '}')
		if end < 0 {
			b.WriteString(text)
			break
		}
		end += open

		b.WriteString(text[:open])
		token := text[open+1 : end]
		if v, ok := e.resolve(token, n, lookup); ok {
			b.WriteString(v)
			changed = changed || v != text[open:end+1]
		} else {
			b.WriteString(text[open : end+1])
		}
		text = text[end+1:]
	}
	return b.String(), changed
}

func (e *Engine) resolve(token string, n *node.Node, lookup func() []*node.Node) (string, bool) {
	upper := strings.ToUpper(token)
	switch upper {
	case "TITLE":
		return n.Title, true
	case "USERNAME":
		return n.Username, true
	case "PASSWORD":
		return n.Password, true
	case "URL":
		return n.URL, true
	case "NOTES":
		return n.Notes, true
	}

	switch {
	case strings.HasPrefix(upper, "S:"):
		return customField(n, token[2:])
	case strings.HasPrefix(upper, "REF:"):
		return e.reference(token[4:], lookup)
	}
	return "", false
}

// reference resolves "W@S:text".
func (e *Engine) reference(ref string, lookup func() []*node.Node) (string, bool) {
	if len(ref) < 4 || ref[1] != '@' || ref[3] != ':' {
		return "", false
	}
	want := upperByte(ref[0])
	by := upperByte(ref[2])
	text := ref[4:]
	if want == 'O' || !isFieldCode(want) || (!isFieldCode(by) && by != 'O') {
		return "", false
	}

	for _, r := range lookup() {
		if r.IsGroup || !refMatches(r, by, text) {
			continue
		}
		return fieldByCode(r, want), true
	}
	return "", false
}

func refMatches(r *node.Node, by byte, text string) bool {
	switch by {
	case 'I':
		id, err := uuid.Parse(strings.TrimSpace(text))
		if err != nil {
			return false
		}
		return r.ID == id
	case 'O':
		for _, cf := range r.Custom {
			if ContainsFold(cf.Value, text) {
				return true
			}
		}
		return false
	}
	return ContainsFold(fieldByCode(r, by), text)
}

func fieldByCode(r *node.Node, code byte) string {
	switch code {
	case 'T':
		return r.Title
	case 'U':
		return r.Username
	case 'P':
		return r.Password
	case 'A':
		return r.URL
	case 'N':
		return r.Notes
	case 'I':
		return strings.ToUpper(strings.ReplaceAll(r.ID.String(), "-", ""))
	}
	return ""
}

func isFieldCode(c byte) bool {
	return strings.IndexByte("TUPANI", c) >= 0
}

func upperByte(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

func customField(n *node.Node, key string) (string, bool) {
	if cf, ok := n.CustomField(key); ok {
		return cf.Value, true
	}
	for _, cf := range n.Custom {
		if strings.EqualFold(cf.Key, key) {
			return cf.Value, true
		}
	}
	return "", false
}
