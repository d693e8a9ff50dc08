package blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/baldanca/subgraph-ingestor/codec"
	"github.com/baldanca/subgraph-ingestor/envelope"
)

// Compression is the encoding applied to stored objects.
type Compression string

const (
	CompressionZstd Compression = "zstd"
	CompressionNone Compression = "none"
)

func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "", CompressionZstd:
		return CompressionZstd, nil
	case CompressionNone:
		return CompressionNone, nil
	default:
		return "", fmt.Errorf("unsupported blob compression: %q", s)
	}
}

// Loader produces the plain bytes of a payload descriptor.
type Loader struct {
	fetcher     *Fetcher
	compression Compression
}

func NewLoader(f *Fetcher, c Compression) *Loader {
	if f == nil {
		panic("fetcher is required")
	}
	if c == "" {
		c = CompressionZstd
	}
	return &Loader{fetcher: f, compression: c}
}

// Load returns inline bytes unchanged. Blob bytes are fetched and then
// decompressed under the fetcher's byte limit; decompression failures are
// *codec.Error, not *FetchError.
func (l *Loader) Load(ctx context.Context, d envelope.Descriptor) ([]byte, error) {
	if d.IsInline() {
		return d.Inline, nil
	}

	raw, err := l.fetcher.Fetch(ctx, d.Location)
	if err != nil {
		return nil, err
	}
	if l.compression == CompressionNone {
		return raw, nil
	}
	out, err := codec.DecompressLimit(raw, l.fetcher.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Location, err)
	}
	return out, nil
}
