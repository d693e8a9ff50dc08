package envelope

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

const s3TestEvent = "s3:TestEvent"

// Option configures a Resolver.
type Option func(*Resolver)

// WithInlineNotifications makes a notification whose Message is JSON but not an
// S3 event resolve to one inline descriptor carrying that JSON.
func WithInlineNotifications() Option {
	return func(r *Resolver) { r.inlineNotifications = true }
}

// Resolver turns message bodies into descriptors. It holds no mutable state
// and is safe for concurrent use.
type Resolver struct {
	inlineNotifications bool
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// shapeHint holds just enough of a JSON body to tell the shapes apart.
type shapeHint struct {
	Records json.RawMessage `json:"Records"`
	Message *string         `json:"Message"`
	Event   string          `json:"Event"`
}

func (p shapeHint) hasRecords() bool {
	return len(p.Records) > 0 && !bytes.Equal(p.Records, []byte("null"))
}

// Resolve returns the payload descriptors named by body in envelope order. S3
// test notifications resolve to no descriptors. Any decode failure is an *Error.
func (r *Resolver) Resolve(body string) ([]Descriptor, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil, malformed("body", "empty")
	}
	if trimmed[0] != '{' {
		return resolveInline(trimmed)
	}

	var p shapeHint
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		return nil, &Error{Layer: "body", Err: err}
	}
	switch {
	case p.hasRecords():
		return resolveDirect([]byte(trimmed), ShapeDirect)
	case p.Event == s3TestEvent:
		return nil, nil
	case p.Message != nil:
		return r.resolveWrapped([]byte(trimmed))
	}
	return nil, malformed("body", "neither Records nor Message present")
}

func resolveDirect(doc []byte, shape Shape) ([]Descriptor, error) {
	var ev events.S3Event
	if err := json.Unmarshal(doc, &ev); err != nil {
		return nil, &Error{Layer: "storage event", Err: err}
	}

	out := make([]Descriptor, 0, len(ev.Records))
	for i, rec := range ev.Records {
		bucket := rec.S3.Bucket.Name
		key := rec.S3.Object.URLDecodedKey
		if bucket == "" || key == "" {
			return nil, malformed("storage event", "record %d: bucket and key are required", i)
		}
		out = append(out, Descriptor{
			Shape:    shape,
			Location: Location{Bucket: bucket, Key: key, Size: rec.S3.Object.Size},
		})
	}
	return out, nil
}

func (r *Resolver) resolveWrapped(doc []byte) ([]Descriptor, error) {
	var n events.SNSEntity
	if err := json.Unmarshal(doc, &n); err != nil {
		return nil, &Error{Layer: "notification", Err: err}
	}

	inner := []byte(strings.TrimSpace(n.Message))
	var p shapeHint
	if err := json.Unmarshal(inner, &p); err != nil {
		return nil, &Error{Layer: "notification message", Err: err}
	}
	switch {
	case p.hasRecords():
		return resolveDirect(inner, ShapeWrapped)
	case p.Event == s3TestEvent:
		return nil, nil
	case r.inlineNotifications:
		return []Descriptor{{Shape: ShapeInline, Inline: inner}}, nil
	}
	return nil, malformed("notification message", "not a storage event")
}

var encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

func resolveInline(body string) ([]Descriptor, error) {
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(body)
		if err == nil {
			return []Descriptor{{Shape: ShapeInline, Inline: b}}, nil
		}
		lastErr = err
	}
	return nil, &Error{Layer: "inline payload", Err: lastErr}
}
