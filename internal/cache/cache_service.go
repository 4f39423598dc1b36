// Package cache provides Redis-based caching of ledger read models: member
// aggregate summaries and opportunity payout summaries. When Redis is
// unavailable, operations return ErrCacheUnavailable and callers fall back
// to Postgres.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"payout-ledger/config"
)

var (
	// ErrCacheUnavailable is returned when Redis is not healthy
	ErrCacheUnavailable = errors.New("cache unavailable - Redis is not healthy")

	// ErrCacheMiss is returned when a key is absent
	ErrCacheMiss = errors.New("cache miss")
)

// Key prefixes for different cache types
const (
	prefixMemberSummary      = "member:%s:summary"
	prefixOpportunityPayouts = "opportunity:%s:payouts"
)

// DefaultSummaryTTL bounds staleness of cached summaries; every outcome
// write invalidates the affected keys anyway.
const DefaultSummaryTTL = 10 * time.Minute

// Service provides Redis-based caching with graceful degradation.
type Service struct {
	client *redis.Client
	logger zerolog.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// NewService creates a cache service and verifies connectivity.
func NewService(cfg config.RedisConfig, logger zerolog.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	s := &Service{
		client:        client,
		logger:        logger.With().Str("component", "cache").Logger(),
		healthy:       true,
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("redis unreachable at startup, degrading to database reads")
		s.markUnhealthy()
	}
	return s, nil
}

// GetMemberSummary reads a cached member summary.
func (s *Service) GetMemberSummary(ctx context.Context, clientID string, dest interface{}) error {
	return s.getJSON(ctx, fmt.Sprintf(prefixMemberSummary, clientID), dest)
}

// SetMemberSummary caches a member summary.
func (s *Service) SetMemberSummary(ctx context.Context, clientID string, value interface{}) error {
	return s.setJSON(ctx, fmt.Sprintf(prefixMemberSummary, clientID), value)
}

// GetOpportunityPayouts reads a cached opportunity payout summary.
func (s *Service) GetOpportunityPayouts(ctx context.Context, opportunityID string, dest interface{}) error {
	return s.getJSON(ctx, fmt.Sprintf(prefixOpportunityPayouts, opportunityID), dest)
}

// SetOpportunityPayouts caches an opportunity payout summary.
func (s *Service) SetOpportunityPayouts(ctx context.Context, opportunityID string, value interface{}) error {
	return s.setJSON(ctx, fmt.Sprintf(prefixOpportunityPayouts, opportunityID), value)
}

// Invalidate drops the cached summaries touched by a ledger write.
func (s *Service) Invalidate(ctx context.Context, opportunityID, clientID string) {
	if !s.isHealthy() {
		return
	}
	keys := []string{fmt.Sprintf(prefixOpportunityPayouts, opportunityID)}
	if clientID != "" {
		keys = append(keys, fmt.Sprintf(prefixMemberSummary, clientID))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.recordFailure(err)
	}
}

// Close closes the Redis connection.
func (s *Service) Close() error {
	return s.client.Close()
}

func (s *Service) getJSON(ctx context.Context, key string, dest interface{}) error {
	if !s.isHealthy() {
		return ErrCacheUnavailable
	}
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		s.recordFailure(err)
		return ErrCacheUnavailable
	}
	return json.Unmarshal(raw, dest)
}

func (s *Service) setJSON(ctx context.Context, key string, value interface{}) error {
	if !s.isHealthy() {
		return ErrCacheUnavailable
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, raw, DefaultSummaryTTL).Err(); err != nil {
		s.recordFailure(err)
		return ErrCacheUnavailable
	}
	return nil
}

// isHealthy reports cache health, probing Redis again after checkInterval
// once it has been marked down.
func (s *Service) isHealthy() bool {
	s.mu.RLock()
	healthy := s.healthy
	lastCheck := s.lastCheck
	s.mu.RUnlock()
	if healthy {
		return true
	}
	if time.Since(lastCheck) < s.checkInterval {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.mu.Lock()
		s.lastCheck = time.Now()
		s.mu.Unlock()
		return false
	}

	s.mu.Lock()
	s.healthy = true
	s.failureCount = 0
	s.mu.Unlock()
	s.logger.Info().Msg("redis recovered, cache re-enabled")
	return true
}

func (s *Service) recordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCount++
	if s.failureCount >= s.maxFailures && s.healthy {
		s.healthy = false
		s.lastCheck = time.Now()
		s.logger.Warn().Err(err).Int("failures", s.failureCount).
			Msg("redis marked unhealthy, degrading to database reads")
	}
}

func (s *Service) markUnhealthy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = false
	s.lastCheck = time.Now()
}
