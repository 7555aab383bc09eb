package pwsafe

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// defaultHistoryMax is the per-record history size written when a record has
// fewer entries than this.
const defaultHistoryMax = 3

type historyEntry struct {
	changed  time.Time
	password string
}

// encodeHistory produces the "fmmnn" + n*("TTTTTTTTLLLL"+password) form, with
// hexadecimal status, max, count, time_t and character length.
func encodeHistory(entries []historyEntry) string {
	if len(entries) == 0 {
		return ""
	}
	max := defaultHistoryMax
	if len(entries) > max {
		max = len(entries)
	}
	if max > 0xff {
		max = 0xff
		entries = entries[len(entries)-max:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "1%02x%02x", max, len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "%08x%04x%s", uint32(e.changed.Unix()), utf8.RuneCountInString(e.password), e.password)
	}
	return b.String()
}

func decodeHistory(s string) ([]historyEntry, error) {
	if len(s) < 5 {
		return nil, fmt.Errorf("history too short")
	}
	count, err := strconv.ParseUint(s[3:5], 16, 8)
	if err != nil {
		return nil, fmt.Errorf("history count: %w", err)
	}

	rest := s[5:]
	out := make([]historyEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(rest) < 12 {
			return nil, fmt.Errorf("history entry %d truncated", i)
		}
		ts, err := strconv.ParseUint(rest[:8], 16, 32)
		if err != nil {
			return nil, fmt.Errorf("history time: %w", err)
		}
		n, err := strconv.ParseUint(rest[8:12], 16, 16)
		if err != nil {
			return nil, fmt.Errorf("history length: %w", err)
		}
		rest = rest[12:]

		end := 0
		for j := uint64(0); j < n; j++ {
			if end >= len(rest) {
				return nil, fmt.Errorf("history entry %d truncated", i)
			}
			_, size := utf8.DecodeRuneInString(rest[end:])
			end += size
		}
		out = append(out, historyEntry{changed: time.Unix(int64(ts), 0).UTC(), password: rest[:end]})
		rest = rest[end:]
	}
	return out, nil
}
