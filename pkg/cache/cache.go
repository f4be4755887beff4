// Package cache stores fetched parameter payloads in Redis so that repeated
// or resumed runs skip sites that were already fetched recently. Every cache
// hit is one less request against the gateway's rate budget.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/envtrack/epa-air-client/pkg/epa"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates no cached payload exists for the site
	ErrCacheMiss = errors.New("cache miss")
)

// Prometheus metrics for payload cache operations.
var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "epa_cache_hits_total",
		Help: "Total payload cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "epa_cache_misses_total",
		Help: "Total payload cache misses",
	})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epa_cache_errors_total",
		Help: "Total payload cache operation errors",
	}, []string{"operation"})
)

const keyPrefix = "epa:params:"

// Store caches per-site parameter payloads in Redis with a fixed TTL.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewStore creates a payload cache. TTL values <= 0 default to one hour,
// short enough that hourly averaged readings never go a full cycle stale.
func NewStore(redisClient *redis.Client, ttl time.Duration) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Get retrieves the cached payload for a site.
// Returns ErrCacheMiss if no entry exists.
func (s *Store) Get(ctx context.Context, siteID string) (*epa.ParametersPayload, error) {
	data, err := s.redis.Get(ctx, keyPrefix+siteID).Bytes()
	if err != nil {
		if err == redis.Nil {
			cacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var payload epa.ParametersPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("unmarshal cached payload: %w", err)
	}

	cacheHits.Inc()
	return &payload, nil
}

// Set stores a site's payload under the configured TTL.
func (s *Store) Set(ctx context.Context, payload epa.ParametersPayload) error {
	if payload.SiteID == "" {
		return fmt.Errorf("payload has no site id")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal payload: %w", err)
	}

	if err := s.redis.Set(ctx, keyPrefix+payload.SiteID, data, s.ttl).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a site's cached payload.
func (s *Store) Delete(ctx context.Context, siteID string) error {
	if err := s.redis.Del(ctx, keyPrefix+siteID).Err(); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
