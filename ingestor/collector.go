package ingestor

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/baldanca/subgraph-ingestor/codec"
	"github.com/baldanca/subgraph-ingestor/metrics"
	"github.com/baldanca/subgraph-ingestor/source"
)

// Result summarizes one collected batch.
type Result struct {
	// Total is the number of outcomes drained.
	Total int
	// Succeeded counts messages whose payloads were all processed.
	Succeeded int
	// Acked counts messages deleted from their queue.
	Acked int
	// Failed counts messages left on their queue, for processing or
	// acknowledgement failures.
	Failed int
}

// Collector drains a dispatcher's outcomes, deletes successful messages and
// aggregates failures. Failed messages are never deleted.
type Collector struct {
	acker source.Acker
	retry RetryPolicy
	log   zerolog.Logger

	ackBatchSize int

	vis            source.VisibilityChanger
	failVisibility int32

	mu        sync.RWMutex
	endpoints map[string]string
}

type CollectorOption func(*Collector)

// WithAckRetry retries deletions with p.
func WithAckRetry(p RetryPolicy) CollectorOption {
	return func(c *Collector) {
		if p != nil {
			c.retry = p
		}
	}
}

// WithAckBatchSize groups successful messages per endpoint and deletes them
// n at a time. Values below 2 delete each message on its own.
func WithAckBatchSize(n int) CollectorOption {
	return func(c *Collector) { c.ackBatchSize = n }
}

// WithFailVisibility sets the visibility timeout of failed messages so the
// queue redelivers them after timeoutSeconds instead of the queue default.
func WithFailVisibility(vc source.VisibilityChanger, timeoutSeconds int32) CollectorOption {
	return func(c *Collector) {
		c.vis = vc
		c.failVisibility = timeoutSeconds
	}
}

func WithCollectorLogger(log zerolog.Logger) CollectorOption {
	return func(c *Collector) { c.log = log }
}

func NewCollector(acker source.Acker, opts ...CollectorOption) *Collector {
	if acker == nil {
		panic("acker is required")
	}
	c := &Collector{
		acker:     acker,
		retry:     nopRetry{},
		log:       zerolog.Nop(),
		endpoints: make(map[string]string),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Collect reads outcomes until the channel is closed. It returns a
// *BatchError when any message was not acknowledged; successful messages are
// deleted regardless.
func (c *Collector) Collect(ctx context.Context, outcomes <-chan Outcome) (Result, error) {
	var (
		res    Result
		errs   batchErrors
		groups map[string]*source.AckGroup
	)
	if c.ackBatchSize > 1 {
		groups = make(map[string]*source.AckGroup)
	}

	for o := range outcomes {
		res.Total++
		msg := o.Message

		if o.Err != nil {
			metrics.MessagesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
			c.log.Warn().
				Err(o.Err).
				Str("message_id", msg.ID).
				Bool("retryable", codec.Retryable(o.Err)).
				Msg("message failed")
			errs.add(msg.ID, o.Err)
			c.release(ctx, msg)
			continue
		}
		res.Succeeded++
		metrics.MessagesTotal.WithLabelValues(metrics.OutcomeSucceeded).Inc()

		endpoint, err := c.endpoint(ctx, msg.Source)
		if err != nil {
			c.ackFailed(&errs, msg, err)
			continue
		}

		if groups == nil {
			if err := c.deleteOne(ctx, endpoint, msg); err != nil {
				c.ackFailed(&errs, msg, err)
				continue
			}
			c.acked(&res, 1)
			continue
		}

		g := groups[endpoint]
		if g == nil {
			g = source.NewAckGroup(endpoint, c.ackBatchSize)
			groups[endpoint] = g
		}
		g.Add(msg)
		if g.Len() >= c.ackBatchSize {
			c.flush(ctx, g, &res, &errs)
		}
	}

	endpoints := make([]string, 0, len(groups))
	for ep := range groups {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)
	for _, ep := range endpoints {
		c.flush(ctx, groups[ep], &res, &errs)
	}

	res.Failed = len(errs.failed)
	return res, errs.err(res.Total)
}

// endpoint resolves source through the cache. Two concurrent misses for the
// same source both resolve; the results are equal.
func (c *Collector) endpoint(ctx context.Context, src string) (string, error) {
	c.mu.RLock()
	ep, ok := c.endpoints[src]
	c.mu.RUnlock()
	if ok {
		return ep, nil
	}

	ep, err := c.acker.ResolveEndpoint(ctx, src)
	if err != nil {
		return "", err
	}
	metrics.AckEndpointResolutions.Inc()

	c.mu.Lock()
	c.endpoints[src] = ep
	c.mu.Unlock()
	return ep, nil
}

func (c *Collector) deleteOne(ctx context.Context, endpoint string, msg source.Message) error {
	return c.retry.Do(ctx, func(ctx context.Context) error {
		return c.acker.Delete(ctx, endpoint, msg)
	})
}

// flush deletes the group. Retries only resend the entries the queue refused.
func (c *Collector) flush(ctx context.Context, g *source.AckGroup, res *Result, errs *batchErrors) {
	if g.Len() == 0 {
		return
	}
	total := g.Len()
	var partial *source.PartialAckError

	err := c.retry.Do(ctx, func(ctx context.Context) error {
		err := g.Commit(ctx, c.acker)
		if errors.As(err, &partial) {
			failed := partial.FailedIDs()
			pending := g.Messages()
			g.Clear()
			for _, m := range pending {
				if _, ok := failed[m.ID]; ok {
					g.Add(m)
				}
			}
		}
		return err
	})

	if err == nil {
		c.acked(res, total)
		g.Clear()
		return
	}

	remaining := g.Messages()
	c.acked(res, total-len(remaining))
	var causes map[string]source.AckFailure
	if errors.As(err, &partial) {
		causes = partial.FailedIDs()
	}
	for _, m := range remaining {
		cause := err
		if f, ok := causes[m.ID]; ok {
			cause = &source.PartialAckError{Failed: []source.AckFailure{f}}
		}
		c.ackFailed(errs, m, cause)
	}
	g.Clear()
}

func (c *Collector) acked(res *Result, n int) {
	if n <= 0 {
		return
	}
	res.Acked += n
	metrics.AcksTotal.WithLabelValues(metrics.StatusOK).Add(float64(n))
}

func (c *Collector) ackFailed(errs *batchErrors, msg source.Message, err error) {
	metrics.AcksTotal.WithLabelValues(metrics.StatusError).Inc()
	c.log.Error().Err(err).Str("message_id", msg.ID).Str("source", msg.Source).Msg("failed to acknowledge message")
	errs.add(msg.ID, newMessageError(msg.ID, StageAck, err))
}

// release shortens the visibility of a failed message when configured. It
// never deletes.
func (c *Collector) release(ctx context.Context, msg source.Message) {
	if c.vis == nil || msg.ReceiptHandle == "" {
		return
	}
	endpoint, err := c.endpoint(ctx, msg.Source)
	if err == nil {
		err = c.vis.ChangeVisibility(ctx, endpoint, msg, c.failVisibility)
	}
	if err != nil {
		c.log.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to change visibility of failed message")
	}
}
