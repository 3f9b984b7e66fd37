package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/feedgate-io/feedgate/core"
	"github.com/feedgate-io/feedgate/metrics"
)

// RedisStore is the Redis implementation of the Store port. All operations
// carry a bounded timeout; transient failures surface as
// core.ErrStoreUnavailable and the client's own retry backoff handles
// reconnection.
type RedisStore struct {
	client redis.UniversalClient
	log    *zap.Logger
}

// DialOptions bound how long the store waits before failing closed.
const (
	dialTimeout      = 5 * time.Second
	operationTimeout = 10 * time.Second
	minRetryBackoff  = 100 * time.Millisecond
	maxRetryBackoff  = 3 * time.Second
)

// Dial parses a Redis URL, configures bounded retry backoff and verifies
// connectivity with a ping.
func Dial(ctx context.Context, rawURL string, log *zap.Logger) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = operationTimeout
	opts.WriteTimeout = operationTimeout
	opts.MinRetryBackoff = minRetryBackoff
	opts.MaxRetryBackoff = maxRetryBackoff
	opts.MaxRetries = 3

	log.Info("connecting to store", zap.String("addr", opts.Addr))
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	log.Info("store ready", zap.String("addr", opts.Addr))

	return client, nil
}

// NewRedisStore wraps an existing client. The client is process-wide, shared
// with the event publisher, and closed by the owner at shutdown.
func NewRedisStore(client redis.UniversalClient, log *zap.Logger) *RedisStore {
	return &RedisStore{client: client, log: log}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", core.ErrNotFound
		}
		return "", s.unavailable("get", err)
	}
	return value, nil
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, s.unavailable("setnx", err)
	}
	return ok, nil
}

func (s *RedisStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, s.unavailable("incr", err)
	}

	// Fixed-window semantics: the TTL is applied only by whichever caller
	// created the counter.
	if count == 1 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, s.unavailable("expire", err)
		}
	}

	return count, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) (int64, error) {
	removed, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return 0, s.unavailable("del", err)
	}
	return removed, nil
}

func (s *RedisStore) unavailable(op string, err error) error {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	s.log.Warn("store operation failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", core.ErrStoreUnavailable, op, err)
}
