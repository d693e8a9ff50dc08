package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/baldanca/subgraph-ingestor/config"
	"github.com/baldanca/subgraph-ingestor/ingestor"
	"github.com/baldanca/subgraph-ingestor/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "subgraph-generator",
	Short: "Turn queued security telemetry into graph fragments",
	Long: `subgraph-generator reads SQS messages that carry telemetry payloads,
either inline or as S3 event notifications, translates every payload into a
graph fragment and publishes the fragments to the configured sinks.`,
	SilenceUsage: true,
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Long-poll an SQS queue until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		if err := cfg.ValidatePoll(); err != nil {
			return err
		}
		return runPoll(cmd.Context(), cfg, log)
	},
}

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Serve SQS-triggered Lambda invocations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		return runLambda(cmd.Context(), cfg, log)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or /etc/subgraph-generator/config.yaml)")
	rootCmd.AddCommand(pollCmd, lambdaCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		l := logger.GetLogger()
		l.Error().Err(err).Msg("subgraph-generator failed")
		stop()
		os.Exit(1)
	}
}

func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to init logger: %w", err)
	}
	log := logger.WithComponent("subgraph-generator")
	log.Info().
		Str("translator", cfg.Ingest.Translator).
		Str("format", cfg.Ingest.Format).
		Str("log_level", cfg.Logging.Level).
		Msg("configuration loaded")
	return cfg, log, nil
}

func runPoll(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	p, err := newPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	queueURL := cfg.Queue.URL
	if queueURL == "" {
		queueURL, err = p.acker.ResolveEndpoint(ctx, cfg.Queue.ARN)
		if err != nil {
			return fmt.Errorf("failed to resolve queue: %w", err)
		}
	}
	src := p.receiver(queueURL)

	opts := []ingestor.PollerOption{ingestor.WithPollerLogger(log)}
	if cfg.Queue.LeaseRenewEvery > 0 {
		opts = append(opts, ingestor.WithLease(cfg.Queue.VisibilityTimeout, cfg.Queue.LeaseRenewEvery))
	}
	poller, err := ingestor.NewPoller(src, p.handler, opts...)
	if err != nil {
		return err
	}

	srv := serveMetrics(cfg.Metrics.Addr, log)
	defer func() {
		if srv == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown failed")
		}
	}()

	log.Info().Str("queue_url", queueURL).Msg("polling started")
	if err := poller.Run(ctx); err != nil {
		return err
	}
	log.Info().Msg("polling stopped")
	return nil
}

func runLambda(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	p, err := newPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	var opts []ingestor.LambdaOption
	if cfg.Ingest.BatchItemFailures {
		opts = append(opts, ingestor.WithBatchItemFailures())
	}
	h := ingestor.NewLambdaHandler(p.handler, opts...)
	lambda.StartWithOptions(h.Handle, lambda.WithContext(ctx))
	return nil
}

func serveMetrics(addr string, log zerolog.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}
