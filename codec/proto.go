package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/structpb"
)

// DecodeStructured decodes protobuf wire data into msg.
//
// The wire data is scanned before decoding so that a short read is reported as
// truncated rather than corrupt. Well formed data that carries fields msg does
// not declare, or that fails msg's own validation, is a schema mismatch.
func DecodeStructured(data []byte, msg proto.Message) error {
	if err := scanWire(data); err != nil {
		return err
	}
	if err := proto.Unmarshal(data, msg); err != nil {
		return newError("decode structured", KindSchemaMismatch, err)
	}
	if field, ok := firstUnknown(msg.ProtoReflect()); ok {
		return newError("decode structured", KindSchemaMismatch,
			fmt.Errorf("unknown field in %s", field))
	}
	return nil
}

func scanWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return wireError(n)
		}
		b = b[n:]
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return wireError(m)
		}
		b = b[m:]
	}
	return nil
}

func wireError(n int) error {
	err := protowire.ParseError(n)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return newError("decode structured", KindTruncated, err)
	}
	return newError("decode structured", KindCorrupt, err)
}

// firstUnknown walks m and its populated sub-messages looking for unknown
// fields. It returns the full name of the first message that holds any.
func firstUnknown(m protoreflect.Message) (protoreflect.FullName, bool) {
	if len(m.GetUnknown()) > 0 {
		return m.Descriptor().FullName(), true
	}
	var (
		name  protoreflect.FullName
		found bool
	)
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		switch {
		case fd.IsList() && fd.Message() != nil:
			l := v.List()
			for i := 0; i < l.Len() && !found; i++ {
				name, found = firstUnknown(l.Get(i).Message())
			}
		case fd.IsMap() && fd.MapValue().Message() != nil:
			v.Map().Range(func(_ protoreflect.MapKey, mv protoreflect.Value) bool {
				name, found = firstUnknown(mv.Message())
				return !found
			})
		case fd.Message() != nil && !fd.IsList() && !fd.IsMap():
			name, found = firstUnknown(v.Message())
		}
		return !found
	})
	return name, found
}

// StructAs decodes a binary google.protobuf.Struct and maps it onto T through
// its JSON form, so event types written for JSON payloads can also consume the
// structured binary mode.
func StructAs[T any](data []byte) (T, error) {
	var zero T
	var s structpb.Struct
	if err := DecodeStructured(data, &s); err != nil {
		return zero, err
	}
	b, err := protojson.Marshal(&s)
	if err != nil {
		return zero, newError("decode structured", KindSchemaMismatch, err)
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return zero, newError("decode structured", KindSchemaMismatch, err)
	}
	return out, nil
}
