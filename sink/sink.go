package sink

import (
	"context"

	"github.com/baldanca/subgraph-ingestor/graph"
	"github.com/baldanca/subgraph-ingestor/metrics"
)

// Sink receives every sealed fragment a translator produced. Publish is called
// concurrently from the dispatcher's units.
type Sink interface {
	Publish(ctx context.Context, g *graph.Graph) error
}

// Func adapts a plain function to Sink.
type Func func(ctx context.Context, g *graph.Graph) error

func (f Func) Publish(ctx context.Context, g *graph.Graph) error { return f(ctx, g) }

type discard struct{}

func (discard) Publish(context.Context, *graph.Graph) error { return nil }

// Discard accepts every fragment and drops it.
var Discard Sink = discard{}

// WriteRequest is one object to store. Metadata becomes user-defined object
// metadata.
type WriteRequest struct {
	Key         string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// Writer stores one object.
type Writer interface {
	Write(ctx context.Context, req WriteRequest) error
}

type instrumented struct {
	name string
	next Sink
}

// Instrument counts fragments next published successfully under the given
// sink label.
func Instrument(name string, next Sink) Sink {
	return &instrumented{name: name, next: next}
}

func (s *instrumented) Publish(ctx context.Context, g *graph.Graph) error {
	if err := s.next.Publish(ctx, g); err != nil {
		return err
	}
	metrics.FragmentsPublished.WithLabelValues(s.name).Inc()
	return nil
}
