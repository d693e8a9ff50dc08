package codec

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestCompressDecompress_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("a"),
		bytes.Repeat([]byte("graph fragment "), 1000),
		randomBytes(64 << 10),
	}
	for _, p := range payloads {
		c, err := Compress(p)
		require.NoError(t, err)

		out, err := Decompress(c)
		require.NoError(t, err)
		assert.Equal(t, p, out)
	}
}

func TestDecompress_Truncated(t *testing.T) {
	c, err := Compress(randomBytes(64 << 10))
	require.NoError(t, err)

	_, err = Decompress(c[:len(c)/2])
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTruncated)
	assert.True(t, Retryable(err))

	_, err = Decompress(nil)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecompress_Corrupt(t *testing.T) {
	_, err := Decompress([]byte("definitely not zstd"))
	require.Error(t, err)

	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, KindCorrupt, ce.Kind)
	assert.Equal(t, "decompress", ce.Op)
	assert.False(t, Retryable(err))
}

func TestDecompressLimit(t *testing.T) {
	plain := bytes.Repeat([]byte{0}, 1<<20)
	c, err := Compress(plain)
	require.NoError(t, err)
	require.Less(t, len(c), 1<<10)

	out, err := DecompressLimit(c, int64(len(plain)))
	require.NoError(t, err)
	assert.Len(t, out, len(plain))

	_, err = DecompressLimit(c, 64<<10)
	require.Error(t, err)
	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, KindTooLarge, ce.Kind)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.False(t, Retryable(err))

	// The pooled decoder is reusable after an overflow.
	out, err = DecompressLimit(c, 0)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestDecodeStructured_RoundTripThroughCompression(t *testing.T) {
	in, err := structpb.NewStruct(map[string]any{
		"hostname":          "h1",
		"deleter_process_id": 42,
		"tags":              []any{"a", "b"},
		"nested":            map[string]any{"ok": true},
	})
	require.NoError(t, err)

	raw, err := proto.Marshal(in)
	require.NoError(t, err)
	c, err := Compress(raw)
	require.NoError(t, err)

	plain, err := Decompress(c)
	require.NoError(t, err)

	var out structpb.Struct
	require.NoError(t, DecodeStructured(plain, &out))
	assert.True(t, proto.Equal(in, &out))
}

func TestDecodeStructured_Truncated(t *testing.T) {
	raw, err := proto.Marshal(wrapperspb.String("hello graph"))
	require.NoError(t, err)

	err = DecodeStructured(raw[:5], &wrapperspb.StringValue{})
	assert.ErrorIs(t, err, ErrTruncated)
	assert.True(t, Retryable(err))
}

func TestDecodeStructured_Corrupt(t *testing.T) {
	err := DecodeStructured([]byte{0x00, 0x01}, &wrapperspb.StringValue{})
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.False(t, Retryable(err))
}

func TestDecodeStructured_SchemaMismatch(t *testing.T) {
	raw, err := proto.Marshal(wrapperspb.String("hello"))
	require.NoError(t, err)

	err = DecodeStructured(raw, &wrapperspb.Int64Value{})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.False(t, Retryable(err))

	raw, err = proto.Marshal(wrapperspb.Bytes([]byte{0xff, 0xfe}))
	require.NoError(t, err)
	err = DecodeStructured(raw, &wrapperspb.StringValue{})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

type fileDelete struct {
	DeleterProcessID uint64 `json:"deleter_process_id"`
	Path             string `json:"path"`
	Hostname         string `json:"hostname"`
	Timestamp        uint64 `json:"timestamp"`
}

func TestDecodeText(t *testing.T) {
	ev, err := DecodeText[fileDelete]([]byte(`{"deleter_process_id":42,"path":"C:\\a.txt","hostname":"h1","timestamp":1000}` + "\n"))
	require.NoError(t, err)
	assert.Equal(t, fileDelete{DeleterProcessID: 42, Path: `C:\a.txt`, Hostname: "h1", Timestamp: 1000}, ev)
}

func TestDecodeText_RoundTripThroughCompression(t *testing.T) {
	doc := []byte(`{"deleter_process_id":7,"path":"/tmp/x","hostname":"h2","timestamp":55}`)
	c, err := Compress(doc)
	require.NoError(t, err)

	plain, err := Decompress(c)
	require.NoError(t, err)

	ev, err := DecodeText[fileDelete](plain)
	require.NoError(t, err)
	assert.Equal(t, fileDelete{DeleterProcessID: 7, Path: "/tmp/x", Hostname: "h2", Timestamp: 55}, ev)
}

func TestDecodeText_Classification(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want error
	}{
		{"empty", ``, ErrTruncated},
		{"cut short", `{"deleter_process_id":42,"path":"C:`, ErrTruncated},
		{"not json", `<xml/>`, ErrCorrupt},
		{"trailing garbage", `{"path":"a"} }`, ErrCorrupt},
		{"wrong type", `{"deleter_process_id":"forty-two"}`, ErrSchemaMismatch},
		{"negative into unsigned", `{"timestamp":-1}`, ErrSchemaMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeText[fileDelete]([]byte(tc.in))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestStructAs(t *testing.T) {
	s, err := structpb.NewStruct(map[string]any{
		"deleter_process_id": 42,
		"path":               `C:\a.txt`,
		"hostname":           "h1",
		"timestamp":          1000,
	})
	require.NoError(t, err)
	raw, err := proto.Marshal(s)
	require.NoError(t, err)

	ev, err := StructAs[fileDelete](raw)
	require.NoError(t, err)
	assert.Equal(t, fileDelete{DeleterProcessID: 42, Path: `C:\a.txt`, Hostname: "h1", Timestamp: 1000}, ev)

	s, err = structpb.NewStruct(map[string]any{"hostname": 7})
	require.NoError(t, err)
	raw, err = proto.Marshal(s)
	require.NoError(t, err)

	_, err = StructAs[fileDelete](raw)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func randomBytes(n int) []byte {
	r := rand.New(rand.NewSource(1))
	b := make([]byte, n)
	r.Read(b)
	return b
}
