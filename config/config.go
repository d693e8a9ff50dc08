package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/baldanca/subgraph-ingestor/blob"
	"github.com/baldanca/subgraph-ingestor/encoder"
	"github.com/baldanca/subgraph-ingestor/logger"
)

const EnvPrefix = "SUBGRAPH"

const (
	FormatJSON   = "json"
	FormatStruct = "struct"

	TranslatorFileDelete         = "file-delete"
	TranslatorInboundConnection  = "inbound-connection"
	TranslatorOutboundConnection = "outbound-connection"
)

type Config struct {
	Queue   QueueConfig   `mapstructure:"queue"`
	Blob    BlobConfig    `mapstructure:"blob"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Sink    SinkConfig    `mapstructure:"sink"`
	Logging logger.Config `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type QueueConfig struct {
	URL               string `mapstructure:"url"`
	ARN               string `mapstructure:"arn"`
	WaitTimeSeconds   int32  `mapstructure:"wait_time_seconds"`
	MaxMessages       int32  `mapstructure:"max_messages"`
	VisibilityTimeout int32  `mapstructure:"visibility_timeout"`
	// FailVisibilityTimeout is applied to failed messages; negative disables it.
	FailVisibilityTimeout int32         `mapstructure:"fail_visibility_timeout"`
	AckBatchSize          int           `mapstructure:"ack_batch_size"`
	AckAttempts           int           `mapstructure:"ack_attempts"`
	LeaseRenewEvery       time.Duration `mapstructure:"lease_renew_every"`
}

type BlobConfig struct {
	Compression   string `mapstructure:"compression"`
	FetchAttempts int    `mapstructure:"fetch_attempts"`
	MaxBytes      int64  `mapstructure:"max_bytes"`
}

type IngestConfig struct {
	Format              string `mapstructure:"format"`
	Translator          string `mapstructure:"translator"`
	InlineNotifications bool   `mapstructure:"inline_notifications"`
	BatchItemFailures   bool   `mapstructure:"batch_item_failures"`
}

type SinkConfig struct {
	NATS  NATSSinkConfig  `mapstructure:"nats"`
	S3    S3SinkConfig    `mapstructure:"s3"`
	Redis RedisSinkConfig `mapstructure:"redis"`
}

type NATSSinkConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type S3SinkConfig struct {
	Bucket      string `mapstructure:"bucket"`
	Prefix      string `mapstructure:"prefix"`
	Compression string `mapstructure:"compression"`
}

type RedisSinkConfig struct {
	// Addr is host:port or a redis:// URL.
	Addr string        `mapstructure:"addr"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("queue.url", "")
	v.SetDefault("queue.arn", "")
	v.SetDefault("queue.wait_time_seconds", 20)
	v.SetDefault("queue.max_messages", 10)
	v.SetDefault("queue.visibility_timeout", 30)
	v.SetDefault("queue.fail_visibility_timeout", -1)
	v.SetDefault("queue.ack_batch_size", 0)
	v.SetDefault("queue.ack_attempts", 3)
	v.SetDefault("queue.lease_renew_every", "0s")
	v.SetDefault("blob.compression", string(blob.CompressionZstd))
	v.SetDefault("blob.fetch_attempts", 3)
	v.SetDefault("blob.max_bytes", 0)
	v.SetDefault("ingest.format", FormatJSON)
	v.SetDefault("ingest.translator", TranslatorFileDelete)
	v.SetDefault("ingest.inline_notifications", false)
	v.SetDefault("ingest.batch_item_failures", false)
	v.SetDefault("sink.nats.url", "")
	v.SetDefault("sink.nats.subject", "subgraphs.generated")
	v.SetDefault("sink.s3.bucket", "")
	v.SetDefault("sink.s3.prefix", "subgraphs")
	v.SetDefault("sink.s3.compression", "zstd")
	v.SetDefault("sink.redis.addr", "")
	v.SetDefault("sink.redis.ttl", "24h")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("metrics.addr", ":9090")
}

// Load reads defaults, then the YAML file at configPath (or ./config.yaml
// and /etc/subgraph-generator/config.yaml), then SUBGRAPH_* environment
// variables such as SUBGRAPH_QUEUE_URL.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/subgraph-generator")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values outside what the queue and sinks accept.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	q := c.Queue
	check(q.WaitTimeSeconds >= 0 && q.WaitTimeSeconds <= 20, "queue.wait_time_seconds must be between 0 and 20, got %d", q.WaitTimeSeconds)
	check(q.MaxMessages >= 1 && q.MaxMessages <= 10, "queue.max_messages must be between 1 and 10, got %d", q.MaxMessages)
	check(q.VisibilityTimeout >= 0 && q.VisibilityTimeout <= 43200, "queue.visibility_timeout must be between 0 and 43200, got %d", q.VisibilityTimeout)
	check(q.FailVisibilityTimeout <= 43200, "queue.fail_visibility_timeout must be at most 43200, got %d", q.FailVisibilityTimeout)
	check(q.AckBatchSize >= 0, "queue.ack_batch_size must not be negative, got %d", q.AckBatchSize)
	check(q.AckAttempts >= 1, "queue.ack_attempts must be at least 1, got %d", q.AckAttempts)
	check(q.LeaseRenewEvery >= 0, "queue.lease_renew_every must not be negative")
	check(q.LeaseRenewEvery == 0 || q.LeaseRenewEvery < time.Duration(q.VisibilityTimeout)*time.Second,
		"queue.lease_renew_every must be shorter than queue.visibility_timeout")

	if _, err := blob.ParseCompression(c.Blob.Compression); err != nil {
		errs = append(errs, fmt.Errorf("blob.compression: %w", err))
	}
	check(c.Blob.FetchAttempts >= 1, "blob.fetch_attempts must be at least 1, got %d", c.Blob.FetchAttempts)
	check(c.Blob.MaxBytes >= 0, "blob.max_bytes must not be negative")

	switch c.Ingest.Format {
	case FormatJSON, FormatStruct:
	default:
		errs = append(errs, fmt.Errorf("ingest.format must be %s or %s, got %q", FormatJSON, FormatStruct, c.Ingest.Format))
	}
	switch c.Ingest.Translator {
	case TranslatorFileDelete, TranslatorInboundConnection, TranslatorOutboundConnection:
	default:
		errs = append(errs, fmt.Errorf("ingest.translator %q is unknown", c.Ingest.Translator))
	}

	check(c.Sink.NATS.URL == "" || c.Sink.NATS.Subject != "", "sink.nats.subject is required with sink.nats.url")
	if c.Sink.S3.Bucket != "" {
		enc := encoder.ParquetEncoder[encoder.AdjacencyRow]{Compression: c.Sink.S3.Compression}
		if err := enc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("sink.s3.compression: %w", err))
		}
	}
	check(c.Sink.Redis.Addr == "" || c.Sink.Redis.TTL > 0, "sink.redis.ttl must be positive")

	return errors.Join(errs...)
}

// ValidatePoll checks the settings only poll mode needs.
func (c *Config) ValidatePoll() error {
	if c.Queue.URL == "" && c.Queue.ARN == "" {
		return errors.New("queue.url or queue.arn is required in poll mode")
	}
	return nil
}
