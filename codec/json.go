package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DecodeText decodes a single JSON document into T. Input that stops before
// the document is complete is truncated, a value of the wrong JSON type for a
// field of T is a schema mismatch, and anything else that is not JSON is
// corrupt.
func DecodeText[T any](data []byte) (T, error) {
	var zero, out T

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&out); err != nil {
		return zero, classifyJSON(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return zero, newError("decode text", KindCorrupt, fmt.Errorf("trailing data after document at offset %d", dec.InputOffset()))
	}
	return out, nil
}

func classifyJSON(err error) error {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return newError("decode text", KindTruncated, err)
	case errors.As(err, &typeErr):
		return newError("decode text", KindSchemaMismatch, err)
	case errors.As(err, &syntaxErr):
		return newError("decode text", KindCorrupt, err)
	}
	return newError("decode text", KindSchemaMismatch, err)
}
