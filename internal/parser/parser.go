// Package parser selects the record reader for a configured input format.
package parser

import (
	"context"
	"fmt"
	"io"
	"iter"

	"go.uber.org/zap"

	"normalize/internal/config"
	"normalize/internal/parser/csv"
	"normalize/internal/parser/ndjson"
	"normalize/internal/records"
)

// Kinds lists the accepted parser.kind values.
var Kinds = []string{"csv", "ndjson"}

// Rows returns the record stream for cfg.Kind over r. Every record carries
// all of columns; fields missing from the input are nil.
func Rows(ctx context.Context, cfg config.Parser, r io.Reader, columns []string, log *zap.Logger, onErr func(line int, err error)) (iter.Seq2[records.Record, error], error) {
	switch cfg.Kind {
	case "", "csv":
		return csv.Rows(ctx, r, columns, cfg.Options, log, onErr), nil
	case "ndjson", "json", "jsonl":
		return ndjson.Rows(ctx, r, columns, cfg.Options, log, onErr), nil
	default:
		return nil, fmt.Errorf("parser: unsupported kind %q", cfg.Kind)
	}
}
