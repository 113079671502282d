package normalize

import (
	"errors"
	"fmt"
)

var (
	// ErrNoResource is returned when the matcher selects no resource.
	ErrNoResource = errors.New("no resource matches")

	// ErrAmbiguousResource is returned when the matcher selects more than
	// one resource.
	ErrAmbiguousResource = errors.New("more than one resource matches")

	// ErrInvalidGroup is returned for a malformed group declaration.
	ErrInvalidGroup = errors.New("invalid group")

	// ErrDuplicateExistingKey is returned when two existing dimension rows
	// share a deduplication key.
	ErrDuplicateExistingKey = errors.New("duplicate key in existing rows")

	// ErrInvalidSurrogateID is returned when an existing dimension row does
	// not carry a usable integer in its index field.
	ErrInvalidSurrogateID = errors.New("invalid surrogate id")

	// ErrMainNotDrained is returned by a dimension stream that is iterated
	// before the main stream has been fully consumed.
	ErrMainNotDrained = errors.New("main stream not drained")
)

// ConfigError reports a configuration problem detected before any record is
// read. It wraps one of the sentinel errors above.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("normalize: %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(op string, sentinel error, format string, a ...any) error {
	return &ConfigError{Op: op, Err: fmt.Errorf("%w: "+format, append([]any{sentinel}, a...)...)}
}

// ErrMainConsumed is returned when the main stream is iterated a second
// time. The main stream is single-pass.
var ErrMainConsumed = errors.New("main stream already consumed")
