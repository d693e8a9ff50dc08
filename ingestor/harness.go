package ingestor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/baldanca/subgraph-ingestor/metrics"
	"github.com/baldanca/subgraph-ingestor/source"
)

// BatchHandler processes one received batch to completion.
type BatchHandler interface {
	HandleBatch(ctx context.Context, msgs []source.Message) (Result, error)
}

// Harness joins a dispatcher to a collector.
type Harness[P any] struct {
	dispatcher *Dispatcher[P]
	collector  *Collector
	log        zerolog.Logger
}

func NewHarness[P any](d *Dispatcher[P], c *Collector, log zerolog.Logger) (*Harness[P], error) {
	if d == nil {
		return nil, fmt.Errorf("dispatcher is nil")
	}
	if c == nil {
		return nil, fmt.Errorf("collector is nil")
	}
	return &Harness[P]{dispatcher: d, collector: c, log: log}, nil
}

var _ BatchHandler = (*Harness[struct{}])(nil)

// HandleBatch dispatches msgs and collects every outcome. Successful messages
// are deleted even when the returned error reports failed ones.
func (h *Harness[P]) HandleBatch(ctx context.Context, msgs []source.Message) (Result, error) {
	if len(msgs) == 0 {
		return Result{}, nil
	}
	start := time.Now()

	res, err := h.collector.Collect(ctx, h.dispatcher.Dispatch(ctx, msgs))

	elapsed := time.Since(start)
	metrics.BatchDuration.Observe(elapsed.Seconds())

	ev := h.log.Info()
	if err != nil {
		ev = h.log.Warn().Err(err)
	}
	ev.Int("total", res.Total).
		Int("succeeded", res.Succeeded).
		Int("acked", res.Acked).
		Int("failed", res.Failed).
		Dur("duration", elapsed).
		Msg("batch handled")

	return res, err
}
