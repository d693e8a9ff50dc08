package sink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/baldanca/subgraph-ingestor/encoder"
	"github.com/baldanca/subgraph-ingestor/graph"
)

const (
	MetadataDigest    = "subgraph-digest"
	MetadataTimestamp = "subgraph-timestamp"
)

// Archive writes each fragment as its own object of adjacency rows, keyed
// yyyy/mm/dd/<uuid><ext> by the fragment's timestamp. The digest and
// timestamp travel as object metadata.
type Archive struct {
	w     Writer
	enc   encoder.Encoder[encoder.AdjacencyRow]
	newID func() string
}

func NewArchive(w Writer, enc encoder.Encoder[encoder.AdjacencyRow]) *Archive {
	if w == nil {
		panic("writer is required")
	}
	if enc == nil {
		panic("encoder is required")
	}
	return &Archive{w: w, enc: enc, newID: uuid.NewString}
}

func (a *Archive) Publish(ctx context.Context, g *graph.Graph) error {
	rows, err := encoder.Rows(g)
	if err != nil {
		return err
	}
	digest, err := g.Digest()
	if err != nil {
		return fmt.Errorf("digest fragment: %w", err)
	}
	data, err := a.enc.Encode(ctx, rows)
	if err != nil {
		return fmt.Errorf("encode fragment: %w", err)
	}
	return a.w.Write(ctx, WriteRequest{
		Key:         a.key(g.Timestamp()),
		Data:        data,
		ContentType: a.enc.ContentType(),
		Metadata: map[string]string{
			MetadataDigest:    digest,
			MetadataTimestamp: strconv.FormatUint(g.Timestamp(), 10),
		},
	})
}

func (a *Archive) key(ts uint64) string {
	day := time.UnixMilli(int64(ts)).UTC().Format("2006/01/02")
	return day + "/" + a.newID() + a.enc.FileExtension()
}
