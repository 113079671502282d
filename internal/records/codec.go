package records

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

// Encode serializes r as a MessagePack map. Supported values are the scalar
// kinds MessagePack knows about (ints, floats, strings, bytes, bools, nil and
// time.Time).
func Encode(r Record) ([]byte, error) {
	b, err := msgp.AppendMapStrIntf(nil, map[string]any(r))
	if err != nil {
		return nil, fmt.Errorf("records: encode: %w", err)
	}
	return b, nil
}

// Decode parses a row written by Encode. Integers decode as int64 (or uint64
// for values written unsigned).
func Decode(b []byte) (Record, error) {
	m, _, err := msgp.ReadMapStrIntfBytes(b, nil)
	if err != nil {
		return nil, fmt.Errorf("records: decode: %w", err)
	}
	return Record(m), nil
}
