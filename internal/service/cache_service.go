package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/JRCMora/jms-api/pkg/errors"
)

const (
	// statsKeyPrefix namespaces every cached status histogram.
	statsKeyPrefix = "jms:stats:"
	// statsGenerationKey sits outside statsKeyPrefix so invalidation never resets it.
	statsGenerationKey = "jms:stats-generation"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Incr(ctx context.Context, key string) (int64, error)
}

// CacheService orchestrates cache operations and related metrics. Failures
// are logged and never block the caller's primary path.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			s.metrics.RecordCacheOperation(false, duration)
			return false, nil
		}
		s.metrics.RecordCacheOperation(false, duration)
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate removes cached values for the provided pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

// StatsKey returns the key for a stats scope under the current generation.
// A histogram counted before an invalidation lands under the old generation
// and is never read again. ok is false when the generation is unreadable;
// callers then bypass the cache.
func (s *CacheService) StatsKey(ctx context.Context, scope string) (key string, ok bool) {
	if !s.Enabled() {
		return "", false
	}
	var generation int64
	if err := s.repo.Get(ctx, statsGenerationKey, &generation); err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("stats generation unreadable", zap.Error(err))
		return "", false
	}
	return fmt.Sprintf("%s%d:%s", statsKeyPrefix, generation, scope), true
}

// InvalidateStats moves stats to a new generation and drops the cached
// histograms.
func (s *CacheService) InvalidateStats(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	if _, err := s.repo.Incr(ctx, statsGenerationKey); err != nil {
		s.logger.Warn("stats generation not advanced", zap.Error(err))
	}
	_ = s.Invalidate(ctx, statsKeyPrefix+"*")
}
