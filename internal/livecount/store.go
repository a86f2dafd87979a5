// Package livecount is the fast ephemeral tier holding per-temple occupancy
// integers. Losing its data is tolerable: the reconciliation job can always
// rebuild every counter from the pass ledger.
package livecount

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/devalaya/temple-darshan/internal/domain"
	"github.com/devalaya/temple-darshan/pkg/config"
	"github.com/devalaya/temple-darshan/pkg/logger"
)

// Store is the live counter adapter. Increment must be a single atomic add
// in the backing store; callers never read-modify-write.
type Store interface {
	Get(ctx context.Context, templeID int64) (int64, error)
	Increment(ctx context.Context, templeID int64, delta int64) (int64, error)
	Set(ctx context.Context, templeID int64, value int64) error
	Reset(ctx context.Context, templeID int64) error
}

// Key returns the counter key for a temple.
func Key(templeID int64) string {
	return fmt.Sprintf("temple:%d:live_count", templeID)
}

type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RedisStore{client: client, timeout: timeout}
}

// NewRedisStoreWithClient wraps an existing client; tests use this with
// miniredis.
func NewRedisStoreWithClient(client *redis.Client, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RedisStore{client: client, timeout: timeout}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Get returns the current count, zero when no counter exists yet.
func (s *RedisStore) Get(ctx context.Context, templeID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	v, err := s.client.Get(ctx, Key(templeID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, domain.WrapError(domain.CodeServiceUnavailable, "counter store read failed", err)
	}
	return v, nil
}

// Increment applies delta as a single atomic INCRBY and returns the new
// value. The result may be negative; clamping is the caller's policy.
func (s *RedisStore) Increment(ctx context.Context, templeID int64, delta int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	v, err := s.client.IncrBy(ctx, Key(templeID), delta).Result()
	if err != nil {
		return 0, domain.WrapError(domain.CodeServiceUnavailable, "counter store increment failed", err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, templeID int64, value int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, Key(templeID), value, 0).Err(); err != nil {
		return domain.WrapError(domain.CodeServiceUnavailable, "counter store set failed", err)
	}
	return nil
}

func (s *RedisStore) Reset(ctx context.Context, templeID int64) error {
	return s.Set(ctx, templeID, 0)
}

// Retry policy for the async increment repair path: a pass whose status flip
// succeeded is physically admitted, so a failed increment is retried here
// rather than rolled back.
const (
	retryAttempts = 3
	retryBaseWait = 200 * time.Millisecond
)

// IncrementRetry retries a failed increment with bounded backoff. It takes
// no caller context: the admitting request has usually completed by the
// time this runs.
func (s *RedisStore) IncrementRetry(templeID int64, delta int64) (int64, error) {
	var lastErr error
	wait := retryBaseWait
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		v, err := s.client.IncrBy(ctx, Key(templeID), delta).Result()
		cancel()
		if err == nil {
			return v, nil
		}
		lastErr = err
		logger.Warn("counter increment retry failed",
			"temple_id", templeID, "delta", delta, "attempt", attempt, "error", err)
		time.Sleep(wait)
		wait *= 2
	}
	return 0, domain.WrapError(domain.CodeServiceUnavailable, "counter store increment retries exhausted", lastErr)
}
