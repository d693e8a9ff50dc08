package sink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/baldanca/subgraph-ingestor/graph"
)

const (
	DefaultIdempotencyPrefix = "subgraph:fragment:"
	// DefaultPendingTTL bounds how long a claim taken by a publisher that
	// never finished blocks redeliveries of the same fragment.
	DefaultPendingTTL = time.Minute

	pendingMarker = "pending"
)

// ErrPublishInFlight is returned while another publisher holds the pending
// claim for the same fragment. The message should be redelivered later.
var ErrPublishInFlight = errors.New("fragment publish in flight")

// Idempotent forwards a fragment to the next sink only if a fragment with the
// same digest was not published within ttl. Redelivered queue messages
// therefore do not republish identical fragments.
//
// A publish first takes a short pending claim. Only after the next sink
// succeeds is the claim replaced by a done marker that lives for ttl.
type Idempotent struct {
	next       Sink
	rdb        redis.Cmdable
	ttl        time.Duration
	pendingTTL time.Duration
	prefix     string
	log        zerolog.Logger
}

type IdempotentOption func(*Idempotent)

func WithKeyPrefix(prefix string) IdempotentOption {
	return func(s *Idempotent) { s.prefix = prefix }
}

// WithPendingTTL sets how long an unfinished claim is honored.
func WithPendingTTL(d time.Duration) IdempotentOption {
	return func(s *Idempotent) {
		if d > 0 {
			s.pendingTTL = d
		}
	}
}

func WithIdempotentLogger(log zerolog.Logger) IdempotentOption {
	return func(s *Idempotent) { s.log = log }
}

func NewIdempotent(next Sink, rdb redis.Cmdable, ttl time.Duration, opts ...IdempotentOption) *Idempotent {
	if next == nil {
		panic("next sink is required")
	}
	if rdb == nil {
		panic("redis client is required")
	}
	if ttl <= 0 {
		panic("ttl must be positive")
	}
	s := &Idempotent{
		next:       next,
		rdb:        rdb,
		ttl:        ttl,
		pendingTTL: DefaultPendingTTL,
		prefix:     DefaultIdempotencyPrefix,
		log:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.pendingTTL > s.ttl {
		s.pendingTTL = s.ttl
	}
	return s
}

func (s *Idempotent) Publish(ctx context.Context, g *graph.Graph) error {
	digest, err := g.Digest()
	if err != nil {
		return fmt.Errorf("digest fragment: %w", err)
	}
	key := s.prefix + digest

	claimed, err := s.rdb.SetNX(ctx, key, pendingMarker, s.pendingTTL).Result()
	if err != nil {
		return fmt.Errorf("claim fragment key=%q: %w", key, err)
	}
	if !claimed {
		return s.existingClaim(ctx, key, digest)
	}

	published := false
	defer func() {
		if published {
			return
		}
		// Runs on errors and panics alike so a redelivery can retry.
		if delErr := s.rdb.Del(context.WithoutCancel(ctx), key).Err(); delErr != nil {
			s.log.Warn().Err(delErr).Str("key", key).Msg("failed to release fragment claim")
		}
	}()

	if err := s.next.Publish(ctx, g); err != nil {
		return err
	}
	published = true

	done := strconv.FormatUint(g.Timestamp(), 10)
	if err := s.rdb.Set(context.WithoutCancel(ctx), key, done, s.ttl).Err(); err != nil {
		// The pending claim expires on its own; at worst the fragment is
		// published again after that.
		s.log.Warn().Err(err).Str("key", key).Msg("failed to mark fragment published")
	}
	return nil
}

func (s *Idempotent) existingClaim(ctx context.Context, key, digest string) error {
	v, err := s.rdb.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Released between SetNX and Get.
		return fmt.Errorf("%w: key=%q", ErrPublishInFlight, key)
	case err != nil:
		return fmt.Errorf("read fragment claim key=%q: %w", key, err)
	case v == pendingMarker:
		return fmt.Errorf("%w: key=%q", ErrPublishInFlight, key)
	}
	s.log.Debug().Str("digest", digest).Msg("fragment already published, skipping")
	return nil
}
