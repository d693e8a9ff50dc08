package ingestor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/baldanca/subgraph-ingestor/source"
)

// Receiver returns the next batch of messages, possibly empty.
type Receiver interface {
	ReceiveBatch(ctx context.Context) ([]source.Message, error)
}

// VisibilityExtender is implemented by receivers that can keep in-flight
// messages hidden while a batch runs.
type VisibilityExtender interface {
	ExtendVisibilityBatch(ctx context.Context, msgs []source.Message, timeoutSeconds int32) error
}

// Poller receives batches in a loop and hands each to a BatchHandler.
type Poller struct {
	recv    Receiver
	handler BatchHandler
	log     zerolog.Logger

	errBackoff time.Duration

	leaseEnabled    bool
	leaseTimeoutSec int32
	leaseRenewEvery time.Duration
}

type PollerOption func(*Poller)

// WithLease extends the visibility of in-flight messages to timeoutSec every
// renewEvery until their batch is handled. It needs a receiver implementing
// VisibilityExtender.
func WithLease(timeoutSec int32, renewEvery time.Duration) PollerOption {
	return func(p *Poller) {
		p.leaseEnabled = true
		p.leaseTimeoutSec = timeoutSec
		p.leaseRenewEvery = renewEvery
	}
}

func WithPollerLogger(log zerolog.Logger) PollerOption {
	return func(p *Poller) { p.log = log }
}

// WithReceiveBackoff sets the pause after a failed receive.
func WithReceiveBackoff(d time.Duration) PollerOption {
	return func(p *Poller) { p.errBackoff = d }
}

func NewPoller(recv Receiver, handler BatchHandler, opts ...PollerOption) (*Poller, error) {
	if recv == nil {
		return nil, fmt.Errorf("receiver is nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is nil")
	}
	p := &Poller{
		recv:       recv,
		handler:    handler,
		log:        zerolog.Nop(),
		errBackoff: time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Run polls until ctx is done. A batch already received when ctx ends is
// still handled to completion. Batch failures are logged and leave the failed
// messages on the queue.
func (p *Poller) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := p.recv.ReceiveBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.log.Error().Err(err).Msg("receive failed")
			if !sleep(ctx, p.errBackoff) {
				return nil
			}
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		batchCtx := context.WithoutCancel(ctx)
		stopLease := p.startLease(batchCtx, msgs)
		_, err = p.handler.HandleBatch(batchCtx, msgs)
		stopLease()
		if err != nil {
			p.log.Debug().Err(err).Msg("batch completed with failures")
		}
	}
}

func (p *Poller) startLease(parent context.Context, msgs []source.Message) (stop func()) {
	if !p.leaseEnabled {
		return func() {}
	}
	ext, ok := p.recv.(VisibilityExtender)
	if !ok {
		return func() {}
	}

	renewEvery := p.leaseRenewEvery
	if renewEvery <= 0 {
		renewEvery = 20 * time.Second
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)
		t := time.NewTicker(renewEvery)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := ext.ExtendVisibilityBatch(ctx, msgs, p.leaseTimeoutSec); err != nil {
					if ctx.Err() == nil {
						p.log.Warn().Err(err).Int("messages", len(msgs)).Msg("lease renewal failed")
					}
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
