package transformer

import (
	"context"

	"github.com/baldanca/subgraph-ingestor/graph"
)

// Translator converts one decoded payload into a graph fragment.
//
// Implementations are called concurrently and should return a sealed fragment;
// the dispatcher seals any fragment that is not.
type Translator[P any] interface {
	Translate(ctx context.Context, payload P) (*graph.Graph, error)
}

// TranslatorFunc adapts a plain function to Translator.
type TranslatorFunc[P any] func(ctx context.Context, payload P) (*graph.Graph, error)

func (f TranslatorFunc[P]) Translate(ctx context.Context, payload P) (*graph.Graph, error) {
	return f(ctx, payload)
}
