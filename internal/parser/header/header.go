// Package header maps source column names onto schema field names.
package header

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const bom = "\uFEFF"

// Fold converts header text into a lowercase ASCII identifier: accents are
// stripped, separators collapse into one underscore and anything else is
// dropped. An empty result becomes "col".
func Fold(s string) string {
	s = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, bom)))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}

	var b strings.Builder
	under := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			under = false
		case r == '_' || r == ' ' || r == '-' || r == '.' || r == '/':
			if !under {
				b.WriteByte('_')
				under = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "col"
	}
	return name
}

// Mapper resolves source names to target column positions.
type Mapper struct {
	explicit map[string]string // folded source name -> target
	exact    map[string]int
	folded   map[string]int
	fold     bool
}

// NewMapper builds a mapper for columns. headerMap renames source headers and
// is matched case-insensitively, since config loaders lowercase map keys.
// With fold set, headers that match no column exactly are compared by their
// folded form.
func NewMapper(columns []string, headerMap map[string]string, fold bool) *Mapper {
	m := &Mapper{
		explicit: make(map[string]string, len(headerMap)),
		exact:    make(map[string]int, len(columns)),
		folded:   make(map[string]int, len(columns)),
		fold:     fold,
	}
	for src, dst := range headerMap {
		m.explicit[strings.ToLower(strings.TrimSpace(src))] = dst
	}
	for i, c := range columns {
		m.exact[c] = i
		if _, dup := m.folded[Fold(c)]; !dup {
			m.folded[Fold(c)] = i
		}
	}
	return m
}

// Index returns the target column index for a source name, or -1.
func (m *Mapper) Index(name string) int {
	name = strings.TrimSpace(strings.TrimPrefix(name, bom))
	if dst, ok := m.explicit[strings.ToLower(name)]; ok {
		name = dst
	}
	if i, ok := m.exact[name]; ok {
		return i
	}
	if !m.fold {
		return -1
	}
	if i, ok := m.folded[Fold(name)]; ok {
		return i
	}
	return -1
}

// Targets maps every source header to its column index (-1 when unmapped).
func (m *Mapper) Targets(headers []string) []int {
	out := make([]int, len(headers))
	for i, h := range headers {
		out[i] = m.Index(h)
	}
	return out
}
