// Package envelope unwraps queue message bodies into payload descriptors.
//
// Three body shapes are recognised by probing their structure: a direct S3
// event notification, an SNS notification whose Message is an S3 event, and a
// base64 encoded binary payload carried inline.
package envelope

import (
	"errors"
	"fmt"
)

// ErrMalformed is matched by every *Error.
var ErrMalformed = errors.New("malformed envelope")

// Shape names the envelope layout a body was resolved as.
type Shape uint8

const (
	ShapeDirect Shape = iota + 1
	ShapeWrapped
	ShapeInline
)

func (s Shape) String() string {
	switch s {
	case ShapeDirect:
		return "direct"
	case ShapeWrapped:
		return "wrapped"
	case ShapeInline:
		return "inline"
	}
	return "unknown"
}

// Location addresses one object in blob storage.
type Location struct {
	Bucket string
	Key    string
	Size   int64
}

func (l Location) String() string { return "s3://" + l.Bucket + "/" + l.Key }

// Descriptor points at one payload: either a blob Location or inline bytes.
type Descriptor struct {
	Shape    Shape
	Location Location
	Inline   []byte
}

func (d Descriptor) IsInline() bool { return d.Shape == ShapeInline }

func (d Descriptor) String() string {
	if d.IsInline() {
		return fmt.Sprintf("inline(%d bytes)", len(d.Inline))
	}
	return d.Location.String()
}

// Error reports which layer of the envelope could not be decoded.
type Error struct {
	Layer string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("malformed envelope: %s: %v", e.Layer, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrMalformed }

func malformed(layer string, format string, args ...any) *Error {
	return &Error{Layer: layer, Err: fmt.Errorf(format, args...)}
}
