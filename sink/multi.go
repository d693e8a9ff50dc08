package sink

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/baldanca/subgraph-ingestor/graph"
)

type multi []Sink

// Multi publishes to every sink in order. All sinks are attempted; the
// returned error aggregates every failure.
func Multi(sinks ...Sink) Sink {
	switch len(sinks) {
	case 0:
		return Discard
	case 1:
		return sinks[0]
	}
	return multi(sinks)
}

func (m multi) Publish(ctx context.Context, g *graph.Graph) error {
	var result *multierror.Error
	for _, s := range m {
		if err := s.Publish(ctx, g); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
