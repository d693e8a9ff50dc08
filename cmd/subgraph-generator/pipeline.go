package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/baldanca/subgraph-ingestor/blob"
	"github.com/baldanca/subgraph-ingestor/config"
	"github.com/baldanca/subgraph-ingestor/encoder"
	"github.com/baldanca/subgraph-ingestor/envelope"
	"github.com/baldanca/subgraph-ingestor/ingestor"
	"github.com/baldanca/subgraph-ingestor/sink"
	"github.com/baldanca/subgraph-ingestor/source"
	"github.com/baldanca/subgraph-ingestor/transformer"
)

// pipeline holds the wired components shared by poll and lambda mode.
type pipeline struct {
	cfg *config.Config
	log zerolog.Logger

	sqsClient *sqs.Client
	acker     *source.SQSAcker
	handler   ingestor.BatchHandler

	nc  *nats.Conn
	rdb *redis.Client
}

func newPipeline(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *pipeline, err error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	p := &pipeline{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			p.Close()
		}
	}()

	p.sqsClient = sqs.NewFromConfig(awsCfg)
	s3Client := s3.NewFromConfig(awsCfg)
	p.acker = source.NewSQSAcker(p.sqsClient)

	out, err := p.buildSink(ctx, s3Client)
	if err != nil {
		return nil, err
	}

	compression, err := blob.ParseCompression(cfg.Blob.Compression)
	if err != nil {
		return nil, err
	}
	fetcher := blob.NewFetcher(s3Client,
		blob.WithRetry(ingestor.SimpleRetry{
			Attempts:  cfg.Blob.FetchAttempts,
			BaseDelay: 100 * time.Millisecond,
			MaxDelay:  2 * time.Second,
			Jitter:    true,
		}),
		blob.WithMaxBytes(cfg.Blob.MaxBytes),
	)
	loader := blob.NewLoader(fetcher, compression)

	var resolverOpts []envelope.Option
	if cfg.Ingest.InlineNotifications {
		resolverOpts = append(resolverOpts, envelope.WithInlineNotifications())
	}
	resolver := envelope.NewResolver(resolverOpts...)

	collector := p.buildCollector()

	switch cfg.Ingest.Translator {
	case config.TranslatorFileDelete:
		p.handler, err = buildHarness(cfg, log, resolver, loader, transformer.FileDeleteTranslator, out, collector)
	case config.TranslatorInboundConnection:
		p.handler, err = buildHarness(cfg, log, resolver, loader, transformer.InboundConnectionTranslator, out, collector)
	case config.TranslatorOutboundConnection:
		p.handler, err = buildHarness(cfg, log, resolver, loader, transformer.OutboundConnectionTranslator, out, collector)
	default:
		err = fmt.Errorf("unknown translator %q", cfg.Ingest.Translator)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func buildHarness[P any](
	cfg *config.Config,
	log zerolog.Logger,
	resolver ingestor.EnvelopeResolver,
	loader ingestor.PayloadLoader,
	tr transformer.Translator[P],
	out sink.Sink,
	collector *ingestor.Collector,
) (ingestor.BatchHandler, error) {
	decode := ingestor.JSONDecoder[P]()
	if cfg.Ingest.Format == config.FormatStruct {
		decode = ingestor.StructDecoder[P]()
	}

	d, err := ingestor.NewDispatcher(resolver, loader, decode, tr, out,
		ingestor.WithDispatcherLogger[P](log.With().Str("component", "dispatcher").Logger()))
	if err != nil {
		return nil, err
	}
	return ingestor.NewHarness(d, collector, log.With().Str("component", "harness").Logger())
}

func (p *pipeline) buildCollector() *ingestor.Collector {
	q := p.cfg.Queue
	opts := []ingestor.CollectorOption{
		ingestor.WithAckRetry(ingestor.SimpleRetry{
			Attempts:  q.AckAttempts,
			BaseDelay: 50 * time.Millisecond,
			MaxDelay:  time.Second,
			Jitter:    true,
			Retryable: source.RetryableAck,
		}),
		ingestor.WithAckBatchSize(q.AckBatchSize),
		ingestor.WithCollectorLogger(p.log.With().Str("component", "collector").Logger()),
	}
	if q.FailVisibilityTimeout >= 0 {
		opts = append(opts, ingestor.WithFailVisibility(p.acker, q.FailVisibilityTimeout))
	}
	return ingestor.NewCollector(p.acker, opts...)
}

// buildSink fans out to every configured destination. Without any it
// discards fragments after translation.
func (p *pipeline) buildSink(ctx context.Context, s3Client *s3.Client) (sink.Sink, error) {
	var sinks []sink.Sink

	if sc := p.cfg.Sink.S3; sc.Bucket != "" {
		archive := sink.NewArchive(
			sink.NewS3Writer(s3Client, sc.Bucket, sc.Prefix),
			encoder.ParquetEncoder[encoder.AdjacencyRow]{Compression: sc.Compression},
		)
		sinks = append(sinks, sink.Instrument("s3", archive))
		p.log.Info().Str("bucket", sc.Bucket).Str("prefix", sc.Prefix).Msg("s3 archive sink enabled")
	}

	if nc := p.cfg.Sink.NATS; nc.URL != "" {
		natsCfg := sink.DefaultNATSConfig()
		natsCfg.URL = nc.URL
		conn, err := sink.ConnectNATS(natsCfg, p.log.With().Str("component", "nats").Logger())
		if err != nil {
			return nil, err
		}
		p.nc = conn
		sinks = append(sinks, sink.Instrument("nats", sink.NewNATS(conn, nc.Subject)))
		p.log.Info().Str("url", conn.ConnectedUrl()).Str("subject", nc.Subject).Msg("nats sink enabled")
	}

	if len(sinks) == 0 {
		p.log.Warn().Msg("no sink configured, fragments are discarded")
	}
	out := sink.Multi(sinks...)

	if rc := p.cfg.Sink.Redis; rc.Addr != "" && len(sinks) > 0 {
		rdb, err := newRedisClient(ctx, rc.Addr)
		if err != nil {
			return nil, err
		}
		p.rdb = rdb
		out = sink.NewIdempotent(out, rdb, rc.TTL,
			sink.WithIdempotentLogger(p.log.With().Str("component", "idempotent").Logger()))
		p.log.Info().Dur("ttl", rc.TTL).Msg("fragment deduplication enabled")
	}
	return out, nil
}

func newRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	var opts *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		var err error
		opts, err = redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
	} else {
		opts = &redis.Options{Addr: addr}
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func (p *pipeline) receiver(queueURL string) *source.SourceSQS {
	q := p.cfg.Queue
	return source.NewWithConfig(p.sqsClient, queueURL, source.SourceSQSConfig{
		WaitTimeSeconds: q.WaitTimeSeconds,
		MaxMessages:     q.MaxMessages,
		VisibilityTO:    q.VisibilityTimeout,
	})
}

func (p *pipeline) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.log.Warn().Err(err).Msg("nats drain failed")
		}
	}
	if p.rdb != nil {
		if err := p.rdb.Close(); err != nil {
			p.log.Warn().Err(err).Msg("redis close failed")
		}
	}
}
