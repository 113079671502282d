package normalize

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"

	"normalize/internal/records"
)

// Key is the deduplication key of a record for one group. It is an opaque,
// comparable byte string; two keys are equal iff the records agree on every
// keyed field.
type Key string

// value tags of the key encoding.
const (
	tagNull   byte = 0x00
	tagInt    byte = 'i'
	tagUint   byte = 'u'
	tagFloat  byte = 'f'
	tagString byte = 's'
	tagBool   byte = 'b'
	tagTime   byte = 't'
	tagOther  byte = 'x'
)

// KeyCalc derives keys from a fixed, ordered list of field names.
type KeyCalc struct {
	fields []string
}

// NewKeyCalc returns a KeyCalc over fields. The order of fields matters.
func NewKeyCalc(fields []string) KeyCalc {
	return KeyCalc{fields: slices.Clone(fields)}
}

// Fields returns the keyed field names.
func (k KeyCalc) Fields() []string { return slices.Clone(k.fields) }

// Key computes the key of r. Missing fields key the same as nil.
func (k KeyCalc) Key(r records.Record) Key {
	b := make([]byte, 0, 16*len(k.fields))
	for _, f := range k.fields {
		b = appendValue(b, r[f])
	}
	return Key(b)
}

// appendValue writes a type-tagged encoding of v. Variable-length payloads
// are length-prefixed so the concatenation stays unambiguous.
func appendValue(b []byte, v any) []byte {
	switch t := v.(type) {
	case nil:
		return append(b, tagNull)
	case string:
		return appendString(b, tagString, t)
	case []byte:
		return appendString(b, tagString, string(t))
	case bool:
		if t {
			return append(b, tagBool, 1)
		}
		return append(b, tagBool, 0)
	case int:
		return appendInt(b, int64(t))
	case int8:
		return appendInt(b, int64(t))
	case int16:
		return appendInt(b, int64(t))
	case int32:
		return appendInt(b, int64(t))
	case int64:
		return appendInt(b, t)
	case uint:
		return appendUint(b, uint64(t))
	case uint8:
		return appendUint(b, uint64(t))
	case uint16:
		return appendUint(b, uint64(t))
	case uint32:
		return appendUint(b, uint64(t))
	case uint64:
		return appendUint(b, t)
	case float32:
		return appendFloat(b, float64(t))
	case float64:
		return appendFloat(b, t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return appendInt(b, i)
		}
		if f, err := t.Float64(); err == nil {
			return appendFloat(b, f)
		}
		return appendString(b, tagString, t.String())
	case time.Time:
		b = append(b, tagTime)
		b = binary.AppendVarint(b, t.Unix())
		return binary.AppendVarint(b, int64(t.Nanosecond()))
	default:
		return appendString(b, tagOther, fmt.Sprintf("%T:%v", v, v))
	}
}

func appendInt(b []byte, i int64) []byte {
	b = append(b, tagInt)
	return binary.AppendVarint(b, i)
}

func appendUint(b []byte, u uint64) []byte {
	if u <= math.MaxInt64 {
		return appendInt(b, int64(u))
	}
	b = append(b, tagUint)
	return binary.AppendUvarint(b, u)
}

// appendFloat keys integral floats as integers so 10 and 10.0 collide, the
// same way numeric equality treats them.
func appendFloat(b []byte, f float64) []byte {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return appendInt(b, int64(f))
	}
	b = append(b, tagFloat)
	return binary.BigEndian.AppendUint64(b, math.Float64bits(f))
}

func appendString(b []byte, tag byte, s string) []byte {
	b = append(b, tag)
	b = binary.AppendUvarint(b, uint64(len(s)))
	return append(b, s...)
}
