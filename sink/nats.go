package sink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/baldanca/subgraph-ingestor/graph"
)

const TimestampHeader = "Subgraph-Timestamp"

// Publisher is the part of *nats.Conn the NATS sink needs.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATS publishes each fragment's canonical JSON on one subject. The message
// id header carries the fragment digest so a JetStream stream with a
// duplicate window drops replays.
type NATS struct {
	pub     Publisher
	subject string
}

func NewNATS(pub Publisher, subject string) *NATS {
	if pub == nil {
		panic("nats publisher is required")
	}
	if subject == "" {
		panic("subject is required")
	}
	return &NATS{pub: pub, subject: subject}
}

func (s *NATS) Publish(ctx context.Context, g *graph.Graph) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := g.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal fragment: %w", err)
	}
	digest, err := g.Digest()
	if err != nil {
		return fmt.Errorf("digest fragment: %w", err)
	}

	msg := &nats.Msg{Subject: s.subject, Data: data, Header: nats.Header{}}
	msg.Header.Set(nats.MsgIdHdr, digest)
	msg.Header.Set(TimestampHeader, strconv.FormatUint(g.Timestamp(), 10))

	if err := s.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish fragment subject=%q: %w", s.subject, err)
	}
	return nil
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL  string
	Name string

	// MaxReconnects is the maximum number of reconnection attempts.
	// Use -1 for infinite reconnects.
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration

	Token string
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "subgraph-generator",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// ConnectNATS dials the server and logs connection state changes to log.
func ConnectNATS(cfg NATSConfig, log zerolog.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}
