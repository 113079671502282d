// Package csv streams delimited text into records aligned to a target schema.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"go.uber.org/zap"

	"normalize/internal/config"
	"normalize/internal/parser/header"
	"normalize/internal/records"
)

const logEveryN = 50_000

// Rows streams r as records keyed by columns. Cells are strings, or nil when
// empty or absent; typing happens downstream.
//
// Header handling:
//   - has_header (default true): the first line names the source columns. Names
//     go through header_map (source -> column), then match columns exactly,
//     then, unless fold_headers is false, by their folded form.
//   - Without a header, columns map positionally (or use options.columns).
//
// Tuning: comma (default ','), trim_space (default true), lazy_quotes,
// fields_per_record (0 = variable).
//
// Malformed lines go to onErr and are skipped. A header that cannot be read
// ends the stream with an error.
func Rows(ctx context.Context, r io.Reader, columns []string, opt config.Options, log *zap.Logger, onErr func(line int, err error)) iter.Seq2[records.Record, error] {
	if log == nil {
		log = zap.NewNop()
	}
	return func(yield func(records.Record, error) bool) {
		trim := opt.Bool("trim_space", true)

		cr := csv.NewReader(r)
		cr.Comma = opt.Rune("comma", ',')
		cr.LazyQuotes = opt.Bool("lazy_quotes", false)
		cr.ReuseRecord = true
		if n := opt.Int("fields_per_record", 0); n != 0 {
			cr.FieldsPerRecord = n
		} else {
			cr.FieldsPerRecord = -1
		}

		line := 0
		read := func() ([]string, error) { line++; return cr.Read() }

		// colIx[target] = source index, or -1
		colIx := make([]int, len(columns))
		for i := range colIx {
			colIx[i] = -1
		}
		if opt.Bool("has_header", true) {
			hdr, err := read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("csv: read header: %w", err))
				return
			}
			m := header.NewMapper(columns, opt.StringMap("header_map"), opt.Bool("fold_headers", true))
			for si, t := range m.Targets(hdr) {
				if t >= 0 && colIx[t] < 0 {
					colIx[t] = si
				}
			}
			for t, si := range colIx {
				if si < 0 {
					log.Warn("csv: column not in header", zap.String("column", columns[t]))
				}
			}
		} else {
			positional := columns
			if names := opt.StringSlice("columns"); len(names) > 0 {
				positional = names
			}
			m := header.NewMapper(columns, nil, false)
			for si, name := range positional {
				if t := m.Index(name); t >= 0 {
					colIx[t] = si
				}
			}
		}

		emitted := 0
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			rec, err := read()
			if errors.Is(err, io.EOF) {
				log.Debug("csv: done", zap.Int("line", line), zap.Int("emitted", emitted))
				return
			}
			if err != nil {
				var pe *csv.ParseError
				if !errors.As(err, &pe) {
					yield(nil, fmt.Errorf("csv: read: %w", err))
					return
				}
				if onErr != nil {
					onErr(line, fmt.Errorf("csv read: %w", err))
				}
				continue
			}

			row := make(records.Record, len(columns))
			for t, c := range columns {
				si := colIx[t]
				if si < 0 || si >= len(rec) {
					row[c] = nil
					continue
				}
				v := rec[si]
				if trim {
					v = strings.TrimSpace(v)
				}
				if v == "" {
					row[c] = nil
				} else {
					row[c] = v
				}
			}

			if !yield(row, nil) {
				return
			}
			emitted++
			if emitted%logEveryN == 0 {
				log.Info("reader: progress", zap.Int("line", line), zap.Int("emitted", emitted))
			}
		}
	}
}
