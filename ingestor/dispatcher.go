package ingestor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"

	"github.com/baldanca/subgraph-ingestor/codec"
	"github.com/baldanca/subgraph-ingestor/envelope"
	"github.com/baldanca/subgraph-ingestor/metrics"
	"github.com/baldanca/subgraph-ingestor/sink"
	"github.com/baldanca/subgraph-ingestor/source"
	"github.com/baldanca/subgraph-ingestor/transformer"
)

// EnvelopeResolver extracts payload descriptors from a message body.
type EnvelopeResolver interface {
	Resolve(body string) ([]envelope.Descriptor, error)
}

// PayloadLoader returns the raw bytes a descriptor points to.
type PayloadLoader interface {
	Load(ctx context.Context, d envelope.Descriptor) ([]byte, error)
}

// Decoder turns raw payload bytes into the translator's input type.
type Decoder[P any] func(data []byte) (P, error)

// JSONDecoder decodes JSON payloads into P.
func JSONDecoder[P any]() Decoder[P] { return codec.DecodeText[P] }

// StructDecoder decodes binary google.protobuf.Struct payloads into P.
func StructDecoder[P any]() Decoder[P] { return codec.StructAs[P] }

// ProtoDecoder decodes binary protobuf payloads into a fresh message from
// newMsg.
func ProtoDecoder[M proto.Message](newMsg func() M) Decoder[M] {
	return func(data []byte) (M, error) {
		m := newMsg()
		if err := codec.DecodeStructured(data, m); err != nil {
			var zero M
			return zero, err
		}
		return m, nil
	}
}

// Dispatcher runs every message of a batch in its own goroutine through
// resolve, load, decode, translate and publish.
type Dispatcher[P any] struct {
	resolver   EnvelopeResolver
	loader     PayloadLoader
	decode     Decoder[P]
	translator transformer.Translator[P]
	sink       sink.Sink
	log        zerolog.Logger
}

type DispatcherOption[P any] func(*Dispatcher[P])

func WithDispatcherLogger[P any](log zerolog.Logger) DispatcherOption[P] {
	return func(d *Dispatcher[P]) { d.log = log }
}

func NewDispatcher[P any](
	resolver EnvelopeResolver,
	loader PayloadLoader,
	decode Decoder[P],
	translator transformer.Translator[P],
	s sink.Sink,
	opts ...DispatcherOption[P],
) (*Dispatcher[P], error) {
	if resolver == nil {
		return nil, fmt.Errorf("resolver is nil")
	}
	if loader == nil {
		return nil, fmt.Errorf("loader is nil")
	}
	if decode == nil {
		return nil, fmt.Errorf("decoder is nil")
	}
	if translator == nil {
		return nil, fmt.Errorf("translator is nil")
	}
	if s == nil {
		return nil, fmt.Errorf("sink is nil")
	}

	d := &Dispatcher[P]{
		resolver:   resolver,
		loader:     loader,
		decode:     decode,
		translator: translator,
		sink:       s,
		log:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Dispatch starts one unit per message and returns the channel their
// outcomes arrive on. Every unit sends exactly one Outcome; the channel is
// closed once all units have returned.
func (d *Dispatcher[P]) Dispatch(ctx context.Context, msgs []source.Message) <-chan Outcome {
	out := make(chan Outcome, len(msgs))

	var wg sync.WaitGroup
	wg.Add(len(msgs))
	for _, m := range msgs {
		go func(m source.Message) {
			defer wg.Done()
			out <- d.run(ctx, m)
		}(m)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func (d *Dispatcher[P]) run(ctx context.Context, m source.Message) (o Outcome) {
	o.Message = m
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Str("message_id", m.ID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("message unit panicked")
			o.Err = newMessageError(m.ID, StagePanic, fmt.Errorf("%w: %v", ErrUnitPanicked, r))
		}
	}()

	descs, err := d.resolver.Resolve(m.Body)
	if err != nil {
		observe(StageResolve, err)
		o.Err = newMessageError(m.ID, StageResolve, err)
		return o
	}
	observe(StageResolve, nil)

	for _, desc := range descs {
		stage, err := d.handle(ctx, desc)
		if err != nil {
			o.Err = newMessageError(m.ID, stage, fmt.Errorf("%s: %w", desc, err))
			return o
		}
		o.Payloads++
	}
	return o
}

// handle processes one payload and reports the stage that failed.
func (d *Dispatcher[P]) handle(ctx context.Context, desc envelope.Descriptor) (Stage, error) {
	data, err := d.loader.Load(ctx, desc)
	observe(StageLoad, err)
	if err != nil {
		return StageLoad, err
	}

	payload, err := d.decode(data)
	observe(StageDecode, err)
	if err != nil {
		return StageDecode, err
	}

	g, err := d.translator.Translate(ctx, payload)
	if err == nil && g == nil {
		err = ErrNilFragment
	}
	observe(StageTranslate, err)
	if err != nil {
		return StageTranslate, err
	}

	if !g.Sealed() {
		if err := g.Seal(); err != nil {
			observe(StageSeal, err)
			return StageSeal, err
		}
	}

	err = d.sink.Publish(ctx, g)
	observe(StageSink, err)
	if err != nil {
		return StageSink, err
	}
	return "", nil
}

func observe(stage Stage, err error) {
	status := metrics.StatusOK
	if err != nil {
		status = metrics.StatusError
	}
	metrics.PayloadsTotal.WithLabelValues(string(stage), status).Inc()
}
