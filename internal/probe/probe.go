// Package probe samples the start of a source and drafts the resource part of
// a pipeline: field names, inferred types, a primary key candidate and
// low-cardinality columns that are worth factoring out into groups.
//
// Types are inferred with the same coercion rules the run applies, so a draft
// schema accepts every sampled value.
package probe

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"normalize/internal/config"
	"normalize/internal/datasource"
	"normalize/internal/parser/header"
	"normalize/internal/records"
	"normalize/internal/transformer"
)

// Options control sampling.
type Options struct {
	// MaxBytes is read from the start of the source. Default 4 MiB.
	MaxBytes int64
	// MaxRows caps the sampled records. Default 10000.
	MaxRows int
	// GroupRatio is the largest distinct/rows ratio of a group candidate.
	// Default 0.1.
	GroupRatio float64
}

func (o Options) withDefaults() Options {
	if o.MaxBytes <= 0 {
		o.MaxBytes = 4 << 20
	}
	if o.MaxRows <= 0 {
		o.MaxRows = 10_000
	}
	if o.GroupRatio <= 0 {
		o.GroupRatio = 0.1
	}
	return o
}

// Column describes one sampled column.
type Column struct {
	Header   string `json:"header"`
	Field    string `json:"field"`
	Type     string `json:"type"`
	Empty    int    `json:"empty"`
	Distinct int    `json:"distinct"`
}

// Result is the outcome of a probe.
type Result struct {
	Rows     int             `json:"rows"`
	Columns  []Column        `json:"columns"`
	Resource config.Resource `json:"resource"`
	// HeaderMap maps source headers to field names where they differ.
	HeaderMap map[string]string `json:"header_map,omitempty"`
	// Groups lists low-cardinality string columns, one group each.
	Groups []config.Group `json:"groups,omitempty"`
}

// Source samples the source of p with its parser settings. Only the parser
// kind and the csv comma are used; the schema is what is being drafted.
func Source(ctx context.Context, src config.Source, p config.Parser, name string, opt Options) (Result, error) {
	opt = opt.withDefaults()
	rc, err := datasource.Open(ctx, src)
	if err != nil {
		return Result{}, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, opt.MaxBytes))
	if err != nil {
		return Result{}, fmt.Errorf("probe: read sample: %w", err)
	}
	return Sample(data, p, name, opt)
}

// Sample drafts a resource from raw bytes.
func Sample(data []byte, p config.Parser, name string, opt Options) (Result, error) {
	opt = opt.withDefaults()

	var (
		headers []string
		rows    [][]string
		err     error
	)
	switch p.Kind {
	case "", "csv":
		headers, rows, err = readCSVSample(data, p.Options.Rune("comma", ','), opt.MaxRows)
	case "ndjson", "json", "jsonl":
		headers, rows, err = readJSONSample(data, opt.MaxRows)
	default:
		err = fmt.Errorf("probe: unsupported parser kind %q", p.Kind)
	}
	if err != nil {
		return Result{}, err
	}
	if len(headers) == 0 {
		return Result{}, errors.New("probe: sample holds no columns")
	}
	return draft(name, headers, rows, opt), nil
}

func draft(name string, headers []string, rows [][]string, opt Options) Result {
	res := Result{Rows: len(rows), Resource: config.Resource{Name: name}}
	seen := map[string]int{}
	for i, h := range headers {
		field := header.Fold(h)
		if n := seen[field]; n > 0 {
			field += "_" + strconv.Itoa(n+1)
		}
		seen[field]++
		if field != h {
			if res.HeaderMap == nil {
				res.HeaderMap = map[string]string{}
			}
			res.HeaderMap[h] = field
		}

		values, empty, distinct := column(rows, i)
		c := Column{Header: h, Field: field, Type: inferType(values), Empty: empty, Distinct: distinct}
		res.Columns = append(res.Columns, c)
		res.Resource.Schema.Fields = append(res.Resource.Schema.Fields, records.Field{Name: field, Type: c.Type})
	}

	for _, c := range res.Columns {
		// first integer column that is complete and unique in the sample
		if c.Type == records.TypeInteger && c.Empty == 0 && c.Distinct == res.Rows && res.Rows > 0 {
			res.Resource.Schema.PrimaryKey = []string{c.Field}
			break
		}
	}
	if res.Rows >= 10 {
		for _, c := range res.Columns {
			if c.Type != records.TypeString || c.Distinct == 0 {
				continue
			}
			if float64(c.Distinct) <= opt.GroupRatio*float64(res.Rows) {
				res.Groups = append(res.Groups, config.Group{Fields: []string{c.Field}, Ref: c.Field + "_id"})
			}
		}
	}
	return res
}

// column returns the non-empty values of column i plus its empty and
// distinct counts.
func column(rows [][]string, i int) (values []string, empty, distinct int) {
	uniq := map[string]struct{}{}
	for _, row := range rows {
		if i >= len(row) || row[i] == "" {
			empty++
			continue
		}
		values = append(values, row[i])
		uniq[row[i]] = struct{}{}
	}
	return values, empty, len(uniq)
}

// candidate types, narrowest first
var candidates = []string{
	records.TypeInteger,
	records.TypeBoolean,
	records.TypeNumber,
	records.TypeDatetime,
	records.TypeDate,
}

var plans = func() map[string]*transformer.Plan {
	m := make(map[string]*transformer.Plan, len(candidates))
	for _, t := range candidates {
		m[t] = transformer.Compile(records.Schema{Fields: []records.Field{{Name: "v", Type: t}}}, transformer.Spec{})
	}
	return m
}()

// inferType returns the narrowest type every value coerces to. Columns
// without values are strings.
func inferType(values []string) string {
	if len(values) == 0 {
		return records.TypeString
	}
	for _, t := range candidates {
		ok := true
		for _, v := range values {
			if err := plans[t].Apply(records.Record{"v": v}); err != nil {
				ok = false
				break
			}
		}
		if ok {
			return t
		}
	}
	return records.TypeString
}

// readCSVSample reads a header and up to maxRows rows, skipping malformed and
// misaligned lines. The sample is cut at its last newline first.
func readCSVSample(data []byte, comma rune, maxRows int) ([]string, [][]string, error) {
	if i := bytes.LastIndexByte(data, '\n'); i > 0 {
		data = data[:i+1]
	}
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\uFEFF"))))
	r.Comma = comma
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	var headers []string
	for headers == nil {
		rec, err := r.Read()
		if err == io.EOF {
			return nil, nil, nil
		}
		if err != nil || len(rec) == 0 {
			continue
		}
		headers = rec
	}

	rows := make([][]string, 0, min(maxRows, 1024))
	for len(rows) < maxRows {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil || len(rec) != len(headers) {
			continue
		}
		rows = append(rows, rec)
	}
	return headers, rows, nil
}

// readJSONSample decodes objects from a stream of objects or a root array.
// A sample cut in the middle of a record keeps the records before it.
// Columns appear in first-seen key order; nested values are kept as JSON
// text.
func readJSONSample(data []byte, maxRows int) ([]string, [][]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var (
		headers []string
		pos     = map[string]int{}
		objs    []map[string]json.RawMessage
	)
	add := func(keys []string, o map[string]json.RawMessage) {
		for _, k := range keys {
			if _, ok := pos[k]; !ok {
				pos[k] = len(headers)
				headers = append(headers, k)
			}
		}
		objs = append(objs, o)
	}

	tok, err := dec.Token()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("probe: decode: %w", err)
	}
	inArray := tok == json.Delim('[')
	if !inArray && tok != json.Delim('{') {
		return nil, nil, fmt.Errorf("probe: expected an object or array, got %v", tok)
	}
	for len(objs) < maxRows {
		if inArray {
			if !dec.More() {
				break
			}
			if tok, err = dec.Token(); err != nil || tok != json.Delim('{') {
				break
			}
		} else if len(objs) > 0 {
			if tok, err = dec.Token(); err != nil || tok != json.Delim('{') {
				break
			}
		}
		keys, o, err := readObject(dec)
		if err != nil {
			if len(objs) == 0 {
				return nil, nil, fmt.Errorf("probe: decode record 1: %w", err)
			}
			break
		}
		add(keys, o)
	}

	rows := make([][]string, 0, len(objs))
	for _, o := range objs {
		row := make([]string, len(headers))
		for k, raw := range o {
			row[pos[k]] = jsonText(raw)
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

// readObject reads the members of an object whose opening brace has been
// consumed, in document order.
func readObject(dec *json.Decoder) ([]string, map[string]json.RawMessage, error) {
	var keys []string
	o := map[string]json.RawMessage{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		k, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		if _, dup := o[k]; !dup {
			keys = append(keys, k)
		}
		o[k] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, o, nil
}

func jsonText(raw json.RawMessage) string {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return string(raw)
	}
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return string(bytes.TrimSpace(raw))
	}
}
