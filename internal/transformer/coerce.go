// Package transformer turns parsed records into typed records ready for key
// calculation and database writes.
//
// Coercion follows the resource schema: a per-field plan is compiled once so
// the hot loop does no type-name lookups. Values that are already typed
// (booleans and numbers from JSON input) pass through the same plan.
package transformer

import (
	"encoding/json"
	"fmt"
	"iter"
	"math"
	"strconv"
	"strings"
	"time"

	"normalize/internal/records"
)

// Spec tunes coercion.
type Spec struct {
	// Layout is the date layout tried first (e.g. "02.01.2006"). ISO dates
	// and DD.MM.YYYY are always accepted.
	Layout string `json:"layout"`
	// DatetimeLayout is the datetime layout tried first. RFC 3339 and
	// "2006-01-02 15:04:05" are always accepted.
	DatetimeLayout string `json:"datetime_layout"`
	// Truthy/Falsy replace the default boolean vocabulary.
	Truthy []string `json:"truthy"`
	Falsy  []string `json:"falsy"`
}

// Plan coerces records of one schema.
type Plan struct {
	fields []fieldPlan
}

type fieldPlan struct {
	name   string
	typ    string
	coerce func(v any) (any, error)
}

// Compile builds a plan for s.
func Compile(s records.Schema, spec Spec) *Plan {
	truthy, falsy := lowerSet(spec.Truthy), lowerSet(spec.Falsy)
	custom := truthy != nil || falsy != nil

	p := &Plan{fields: make([]fieldPlan, len(s.Fields))}
	for i, f := range s.Fields {
		fp := fieldPlan{name: f.Name, typ: f.Type}
		switch f.Type {
		case records.TypeInteger:
			fp.coerce = toInt
		case records.TypeNumber:
			fp.coerce = toFloat
		case records.TypeBoolean:
			fp.coerce = func(v any) (any, error) { return toBool(v, custom, truthy, falsy) }
		case records.TypeDate:
			fp.coerce = func(v any) (any, error) { return toDate(v, spec.Layout) }
		case records.TypeDatetime:
			fp.coerce = func(v any) (any, error) { return toDatetime(v, spec.DatetimeLayout) }
		case records.TypeAny:
			fp.coerce = func(v any) (any, error) { return v, nil }
		default:
			fp.coerce = toText
		}
		p.fields[i] = fp
	}
	return p
}

// Apply coerces r in place. Empty strings become nil. Fields the schema does
// not declare are left alone.
func (p *Plan) Apply(r records.Record) error {
	for _, f := range p.fields {
		v, ok := r[f.name]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr {
			s = strings.TrimSpace(s)
			if s == "" {
				r[f.name] = nil
				continue
			}
			v = s
		}
		out, err := f.coerce(v)
		if err != nil {
			return fmt.Errorf("field %q (%s): %w", f.name, f.typ, err)
		}
		r[f.name] = out
	}
	return nil
}

// Coerce applies p to every record of src. Records that fail are dropped and
// reported to onReject (which may be nil). Upstream errors pass through.
func Coerce(src iter.Seq2[records.Record, error], p *Plan, onReject func(records.Record, error)) iter.Seq2[records.Record, error] {
	return func(yield func(records.Record, error) bool) {
		for rec, err := range src {
			if err == nil {
				if err := p.Apply(rec); err != nil {
					if onReject != nil {
						onReject(rec, err)
					}
					continue
				}
			}
			if !yield(rec, err) {
				return
			}
		}
	}
}

func lowerSet(in []string) map[string]struct{} {
	if len(in) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(in))
	for _, s := range in {
		m[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return m
}

func toText(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case []byte:
		return string(t), nil
	case bool, int, int64, float64:
		return fmt.Sprint(t), nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

func toInt(v any) (any, error) {
	switch t := v.(type) {
	case string:
		if i, ok := toIntFast(t); ok {
			return i, nil
		}
		return nil, fmt.Errorf("invalid integer %q", t)
	case json.Number:
		return toInt(t.String())
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<63 {
			return int64(t), nil
		}
		return nil, fmt.Errorf("invalid integer %v", t)
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

// toIntFast parses integers and only falls back to float parsing when the
// text contains a '.' (inputs like "42.0").
func toIntFast(s string) (int64, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if strings.IndexByte(s, '.') >= 0 {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<63 {
			return int64(f), true
		}
	}
	return 0, false
}

func toFloat(v any) (any, error) {
	switch t := v.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.Replace(t, ",", ".", 1), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t)
		}
		return f, nil
	case json.Number:
		return toFloat(t.String())
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case float64:
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

func toBool(v any, custom bool, truthy, falsy map[string]struct{}) (any, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		ls := strings.ToLower(t)
		if custom {
			if _, ok := truthy[ls]; ok {
				return true, nil
			}
			if _, ok := falsy[ls]; ok {
				return false, nil
			}
			return nil, fmt.Errorf("invalid boolean %q", t)
		}
		switch ls {
		case "1", "t", "true", "yes", "y", "ano":
			return true, nil
		case "0", "f", "false", "no", "n", "ne":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean %q", t)
	case json.Number:
		return toBool(t.String(), custom, truthy, falsy)
	case int64:
		return t != 0, nil
	case int:
		return t != 0, nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

func toDate(v any, layout string) (any, error) {
	s, ok := v.(string)
	if !ok {
		if t, isTime := v.(time.Time); isTime {
			return t, nil
		}
		return nil, fmt.Errorf("unsupported value %T", v)
	}
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if t, ok := parseCZDate(s); ok {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	// database drivers may hand dates back as full timestamps
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return nil, fmt.Errorf("invalid date %q", s)
}

func toDatetime(v any, layout string) (any, error) {
	s, ok := v.(string)
	if !ok {
		if t, isTime := v.(time.Time); isTime {
			return t, nil
		}
		return nil, fmt.Errorf("unsupported value %T", v)
	}
	for _, l := range []string{layout, time.RFC3339Nano, time.DateTime} {
		if l == "" {
			continue
		}
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("invalid datetime %q", s)
}

// parseCZDate parses "02.01.2006" (DD.MM.YYYY) without allocating.
func parseCZDate(s string) (time.Time, bool) {
	if len(s) != 10 || s[2] != '.' || s[5] != '.' {
		return time.Time{}, false
	}
	d1, d0 := s[0]-'0', s[1]-'0'
	m1, m0 := s[3]-'0', s[4]-'0'
	y3, y2, y1, y0 := s[6]-'0', s[7]-'0', s[8]-'0', s[9]-'0'
	if d1 > 9 || d0 > 9 || m1 > 9 || m0 > 9 || y3 > 9 || y2 > 9 || y1 > 9 || y0 > 9 {
		return time.Time{}, false
	}
	day := int(d1)*10 + int(d0)
	mon := int(m1)*10 + int(m0)
	year := int(y3)*1000 + int(y2)*100 + int(y1)*10 + int(y0)
	if mon < 1 || mon > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(mon), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}
