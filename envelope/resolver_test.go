package envelope

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const directBody = `{
  "Records": [
    {"eventSource":"aws:s3","s3":{"bucket":{"name":"telemetry"},"object":{"key":"sysmon/2024/01/a.zst","size":120}}},
    {"eventSource":"aws:s3","s3":{"bucket":{"name":"telemetry"},"object":{"key":"sysmon/my+file%3D1.zst","size":7}}}
  ]
}`

func wrap(t *testing.T, inner string) string {
	t.Helper()
	b, err := json.Marshal(map[string]string{
		"Type":     "Notification",
		"TopicArn": "arn:aws:sns:us-east-1:123456789012:telemetry",
		"Message":  inner,
	})
	require.NoError(t, err)
	return string(b)
}

func locations(ds []Descriptor) []Location {
	out := make([]Location, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Location)
	}
	return out
}

func TestResolve_Direct(t *testing.T) {
	ds, err := NewResolver().Resolve(directBody)
	require.NoError(t, err)
	require.Len(t, ds, 2)

	assert.Equal(t, ShapeDirect, ds[0].Shape)
	assert.Equal(t, Location{Bucket: "telemetry", Key: "sysmon/2024/01/a.zst", Size: 120}, ds[0].Location)
	assert.Equal(t, "sysmon/my file=1.zst", ds[1].Location.Key)
	assert.False(t, ds[0].IsInline())
}

func TestResolve_WrappedMatchesDirect(t *testing.T) {
	r := NewResolver()

	direct, err := r.Resolve(directBody)
	require.NoError(t, err)
	wrapped, err := r.Resolve(wrap(t, directBody))
	require.NoError(t, err)

	assert.Equal(t, locations(direct), locations(wrapped))
	for _, d := range wrapped {
		assert.Equal(t, ShapeWrapped, d.Shape)
	}
}

func TestResolve_EmptyRecordsYieldsNothing(t *testing.T) {
	ds, err := NewResolver().Resolve(`{"Records":[]}`)
	require.NoError(t, err)
	assert.Empty(t, ds)
}

func TestResolve_TestEventYieldsNothing(t *testing.T) {
	testEvent := `{"Service":"Amazon S3","Event":"s3:TestEvent","Bucket":"telemetry"}`
	r := NewResolver()

	ds, err := r.Resolve(testEvent)
	require.NoError(t, err)
	assert.Empty(t, ds)

	ds, err = r.Resolve(wrap(t, testEvent))
	require.NoError(t, err)
	assert.Empty(t, ds)
}

func TestResolve_Inline(t *testing.T) {
	payload := []byte{0x0a, 0x05, 'h', 'e', 'l', 'l', 'o', 0xff, 0xfe}
	r := NewResolver()

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		ds, err := r.Resolve(enc.EncodeToString(payload))
		require.NoError(t, err)
		require.Len(t, ds, 1)
		assert.True(t, ds[0].IsInline())
		assert.Equal(t, payload, ds[0].Inline)
	}
}

func TestResolve_InlineNotifications(t *testing.T) {
	body := wrap(t, `{"deleter_process_id":42}`)

	_, err := NewResolver().Resolve(body)
	assert.ErrorIs(t, err, ErrMalformed)

	ds, err := NewResolver(WithInlineNotifications()).Resolve(body)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, ShapeInline, ds[0].Shape)
	assert.JSONEq(t, `{"deleter_process_id":42}`, string(ds[0].Inline))
}

func TestResolve_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":              "   ",
		"broken json":        `{"Records": [`,
		"unknown document":   `{"foo":1}`,
		"message not json":   `{"Message":"not json"}`,
		"missing bucket":     `{"Records":[{"s3":{"bucket":{"name":""},"object":{"key":"k"}}}]}`,
		"missing key":        `{"Records":[{"s3":{"bucket":{"name":"b"},"object":{"key":""}}}]}`,
		"bad key escape":     `{"Records":[{"s3":{"bucket":{"name":"b"},"object":{"key":"%zz"}}}]}`,
		"records wrong type": `{"Records":{"s3":1}}`,
		"not base64":         "!!! not base64 !!!",
	}
	r := NewResolver(WithInlineNotifications())

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			ds, err := r.Resolve(body)
			require.Error(t, err)
			assert.Nil(t, ds)
			assert.ErrorIs(t, err, ErrMalformed)

			var eerr *Error
			require.True(t, errors.As(err, &eerr))
			assert.NotEmpty(t, eerr.Layer)
		})
	}
}
