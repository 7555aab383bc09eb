package pwsafe

import "strings"

// Groups are stored as dot-separated paths; a literal dot inside a group
// title is escaped with a backslash.

func joinPath(titles []string) string {
	parts := make([]string, len(titles))
	for i, t := range titles {
		parts[i] = strings.ReplaceAll(t, ".", `\.`)
	}
	return strings.Join(parts, ".")
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}

	var (
		parts []string
		cur   strings.Builder
	)
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch {
		case c == '\\' && i+1 < len(path) && path[i+1] == '.':
			cur.WriteByte('.')
			i++
		case c == '.':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(parts, cur.String())
}
