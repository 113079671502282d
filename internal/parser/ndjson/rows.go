// Package ndjson streams JSON documents into records aligned to a target
// schema.
//
// Accepted shapes:
//   - newline-delimited (or simply concatenated) objects: {...}\n{...}
//   - a root array of objects: [ {...}, {...} ]
//   - an envelope object holding the records in an array field: {"data": [...]}
//   - a single object, treated as one record
package ndjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"go.uber.org/zap"

	"normalize/internal/config"
	"normalize/internal/parser/header"
	"normalize/internal/records"
)

const logEveryN = 50_000

// Rows decodes r and yields one record per JSON object, keyed by columns.
// Numbers stay json.Number so integers keep full precision until coercion.
// Nested objects and arrays are kept as their compact JSON text.
//
// Keys are mapped like CSV headers: header_map first, then an exact match,
// then the folded name unless fold_headers is false. Non-object records go to
// onErr and are skipped; a syntax error ends the stream.
func Rows(ctx context.Context, r io.Reader, columns []string, opt config.Options, log *zap.Logger, onErr func(line int, err error)) iter.Seq2[records.Record, error] {
	if log == nil {
		log = zap.NewNop()
	}
	return func(yield func(records.Record, error) bool) {
		dec := json.NewDecoder(r)
		dec.UseNumber()

		m := header.NewMapper(columns, opt.StringMap("header_map"), opt.Bool("fold_headers", true))
		targets := map[string]int{}
		index := func(k string) int {
			t, ok := targets[k]
			if !ok {
				t = m.Index(k)
				targets[k] = t
			}
			return t
		}

		n := 0
		// emit reports whether the stream should continue.
		emit := func(v any) bool {
			n++
			obj, ok := v.(map[string]any)
			if !ok {
				if onErr != nil {
					onErr(n, fmt.Errorf("ndjson: record is not an object (got %T)", v))
				}
				return true
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return false
			}

			row := make(records.Record, len(columns))
			for _, c := range columns {
				row[c] = nil
			}
			for k, val := range obj {
				t := index(k)
				if t < 0 {
					continue
				}
				if cur := row[columns[t]]; cur != nil {
					continue // first key that maps to a column wins
				}
				row[columns[t]] = flatten(val)
			}
			if !yield(row, nil) {
				return false
			}
			if n%logEveryN == 0 {
				log.Info("reader: progress", zap.Int("emitted", n))
			}
			return true
		}

		for first := true; ; first = false {
			var v any
			err := dec.Decode(&v)
			if errors.Is(err, io.EOF) {
				log.Debug("ndjson: done", zap.Int("records", n))
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("ndjson: decode record %d: %w", n+1, err))
				return
			}

			var batch []any
			switch root := v.(type) {
			case []any:
				if first {
					batch = root
				}
			case map[string]any:
				if first {
					batch = envelope(root)
				}
			}
			if batch == nil {
				if !emit(v) {
					return
				}
				continue
			}
			for _, elem := range batch {
				if !emit(elem) {
					return
				}
			}
		}
	}
}

// envelope returns the records of an object whose only array field holds
// objects, or nil when root is itself a record.
func envelope(root map[string]any) []any {
	var found []any
	for _, v := range root {
		arr, ok := v.([]any)
		if !ok || len(arr) == 0 {
			continue
		}
		for _, e := range arr {
			if _, ok := e.(map[string]any); !ok {
				return nil
			}
		}
		if found != nil {
			return nil
		}
		found = arr
	}
	if found == nil {
		return nil
	}
	// An envelope carries the array plus scalar metadata at most.
	for _, v := range root {
		if _, nested := v.(map[string]any); nested {
			return nil
		}
	}
	return found
}

func flatten(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(b)
	}
	return v
}
