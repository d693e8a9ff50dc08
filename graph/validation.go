package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidNode is matched by every *ValidationError.
var ErrInvalidNode = errors.New("invalid node")

// ValidationError reports every required field a builder was missing and every
// field holding an unusable value.
type ValidationError struct {
	Kind    Kind
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return fmt.Sprintf("build %s: %s", e.Kind, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidNode }

// Has reports whether field is listed as missing or invalid.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Missing {
		if f == field {
			return true
		}
	}
	for _, f := range e.Invalid {
		if f == field {
			return true
		}
	}
	return false
}

// fieldSet records which builder setters have been called.
type fieldSet uint32

func (s fieldSet) has(f fieldSet) bool { return s&f != 0 }

// checklist accumulates failures so Build can report all of them at once.
type checklist struct {
	kind    Kind
	missing []string
	invalid []string
}

func (c *checklist) require(name string, ok bool) {
	if !ok {
		c.missing = append(c.missing, name)
	}
}

func (c *checklist) reject(name string, bad bool) {
	if bad {
		c.invalid = append(c.invalid, name)
	}
}

func (c *checklist) err() error {
	if len(c.missing) == 0 && len(c.invalid) == 0 {
		return nil
	}
	return &ValidationError{Kind: c.kind, Missing: c.missing, Invalid: c.invalid}
}
