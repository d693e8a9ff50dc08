package codec

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why bytes could not be turned into a value.
type ErrorKind uint8

const (
	// KindTruncated means the input ended early. A fresh read of the same
	// object may succeed.
	KindTruncated ErrorKind = iota + 1
	// KindCorrupt means the input is not in the expected format at all.
	KindCorrupt
	// KindSchemaMismatch means the input is well formed but does not fit the
	// target type.
	KindSchemaMismatch
	// KindTooLarge means the decoded payload would exceed the configured
	// size limit.
	KindTooLarge
)

var (
	ErrTruncated      = errors.New("truncated input")
	ErrCorrupt        = errors.New("corrupt input")
	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrTooLarge       = errors.New("payload too large")
)

func (k ErrorKind) String() string {
	switch k {
	case KindTruncated:
		return "truncated"
	case KindCorrupt:
		return "corrupt"
	case KindSchemaMismatch:
		return "schema mismatch"
	case KindTooLarge:
		return "too large"
	}
	return "unknown"
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindTruncated:
		return ErrTruncated
	case KindCorrupt:
		return ErrCorrupt
	case KindSchemaMismatch:
		return ErrSchemaMismatch
	case KindTooLarge:
		return ErrTooLarge
	}
	return nil
}

// Error is returned by every codec operation.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("codec %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("codec %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Retryable reports whether err is a truncation, the only codec failure that a
// later redelivery can fix.
func Retryable(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == KindTruncated
}

func newError(op string, kind ErrorKind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}
