package transformer

import (
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// Dedup policies.
const (
	KeepFirst = "keep-first"
	KeepLast  = "keep-last"
)

// DedupRows collapses rows that share the values at keyIdx, keeping one
// winner per key in the position of its first occurrence. An upsert batch
// must not touch the same key twice (Postgres rejects it), so every keyed
// batch goes through here. rows is not modified.
func DedupRows(rows [][]any, keyIdx []int, policy string) [][]any {
	if len(rows) < 2 || len(keyIdx) == 0 {
		return rows
	}
	pos := make(map[xxh3.Uint128]int, len(rows))
	out := make([][]any, 0, len(rows))
	var b strings.Builder
	for _, row := range rows {
		b.Reset()
		for _, i := range keyIdx {
			writeKeyPart(&b, row[i])
		}
		h := xxh3.HashString128(b.String())
		if at, seen := pos[h]; seen {
			if policy != KeepFirst {
				out[at] = row
			}
			continue
		}
		pos[h] = len(out)
		out = append(out, row)
	}
	return out
}

func writeKeyPart(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteString("\x00")
	case string:
		fmt.Fprintf(b, "s%d:%s", len(t), t)
	case time.Time:
		fmt.Fprintf(b, "t%d", t.UnixNano())
	default:
		s := fmt.Sprint(t)
		fmt.Fprintf(b, "v%d:%s", len(s), s)
	}
}
