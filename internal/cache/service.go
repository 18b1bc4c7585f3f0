package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/netra-labs/netra/pkg/errors"
	"github.com/netra-labs/netra/pkg/resilience"
)

// Service provides JSON caching on top of the Redis client. All Redis
// calls go through a circuit breaker so a dead cache fails fast instead
// of stalling every request on connection timeouts.
type Service struct {
	redis   *RedisClient
	config  *Config
	breaker *resilience.CircuitBreaker
}

// Config holds cache configuration
type Config struct {
	DefaultTTL  time.Duration `json:"default_ttl"`
	SnapshotTTL time.Duration `json:"snapshot_ttl"`
	CounterTTL  time.Duration `json:"counter_ttl"`
}

// DefaultConfig returns default cache configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultTTL:  time.Hour,
		SnapshotTTL: 30 * time.Second,
		CounterTTL:  24 * time.Hour,
	}
}

// NewService creates a new cache service
func NewService(redis *RedisClient, config *Config) *Service {
	if config == nil {
		config = DefaultConfig()
	}

	return &Service{
		redis:  redis,
		config: config,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:    "redis",
			Timeout: 15 * time.Second,
		}),
	}
}

// do runs one cache operation through the circuit breaker. Cache misses
// are successes as far as the breaker is concerned.
func (s *Service) do(ctx context.Context, op func(context.Context) (interface{}, error)) (interface{}, error) {
	var miss error
	result, err := s.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		res, err := op(ctx)
		if err != nil && errors.IsNotFound(err) {
			miss = err
			return res, nil
		}
		return res, err
	})
	if err != nil {
		if resilience.IsCircuitBreakerError(err) {
			return nil, errors.NewUnavailableError("cache unavailable").WithCause(err)
		}
		return nil, err
	}
	if miss != nil {
		return result, miss
	}
	return result, nil
}

// CacheKey generates cache keys with consistent prefixes
type CacheKey struct {
	Prefix string
	ID     string
}

// String returns the formatted cache key
func (ck CacheKey) String() string {
	return fmt.Sprintf("netra:%s:%s", ck.Prefix, ck.ID)
}

// Cache key prefixes
const (
	PrefixConnectionStats = "connection_stats"
	PrefixConnectorState  = "connector_state"
	PrefixStartupStatus   = "startup_status"
	PrefixSessionCount    = "session_count"
	PrefixCostReport      = "cost_report"
)

// Set stores a value in cache with the specified TTL
func (s *Service) Set(ctx context.Context, key CacheKey, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.NewInternalError("failed to serialize cache value").WithCause(err)
	}

	if ttl == 0 {
		ttl = s.config.DefaultTTL
	}

	_, err = s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, s.redis.Set(ctx, key.String(), data, ttl)
	})
	return err
}

// Get retrieves a value from cache
func (s *Service) Get(ctx context.Context, key CacheKey, dest interface{}) error {
	result, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.redis.Get(ctx, key.String())
	})
	if err != nil {
		if errors.IsNotFound(err) {
			return errors.NewNotFoundError("cache key")
		}
		return err
	}

	if err := json.Unmarshal([]byte(result.(string)), dest); err != nil {
		return errors.NewInternalError("failed to deserialize cache value").WithCause(err)
	}

	return nil
}

// Delete removes a value from cache
func (s *Service) Delete(ctx context.Context, key CacheKey) error {
	_, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.redis.Del(ctx, key.String())
	})
	return err
}

// Exists checks if a key exists in cache
func (s *Service) Exists(ctx context.Context, key CacheKey) (bool, error) {
	result, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.redis.Exists(ctx, key.String())
	})
	if err != nil {
		return false, err
	}
	return result.(int64) > 0, nil
}

// Increment increments a counter and refreshes its TTL
func (s *Service) Increment(ctx context.Context, key CacheKey, delta int64, ttl time.Duration) (int64, error) {
	if ttl == 0 {
		ttl = s.config.CounterTTL
	}

	result, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		count, err := s.redis.IncrBy(ctx, key.String(), delta)
		if err != nil {
			return int64(0), err
		}
		return count, s.redis.Expire(ctx, key.String(), ttl)
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// GetCounter reads a counter, returning 0 when it does not exist
func (s *Service) GetCounter(ctx context.Context, key CacheKey) (int64, error) {
	result, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.redis.Get(ctx, key.String())
	})
	if err != nil {
		if errors.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}

	var count int64
	if _, err := fmt.Sscanf(result.(string), "%d", &count); err != nil {
		return 0, errors.NewInternalError("failed to parse counter value").WithCause(err)
	}

	return count, nil
}
