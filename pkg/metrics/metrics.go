// Package metrics provides the centralized Prometheus metrics registry for the
// EPA air quality client. All metrics are defined in their respective packages
// (epa, ratelimit, cache, batch) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - epa_rate_limit_admissions_total{backend} (Counter): Requests admitted by the limiter, by backend (memory, redis)
//   - epa_rate_limit_wait_seconds{backend} (Histogram): Time callers spent waiting for admission
//
// Request Metrics (pkg/epa):
//   - epa_requests_total{endpoint, status} (Counter): Gateway requests by endpoint and HTTP status
//   - epa_request_duration_seconds{endpoint} (Histogram): Gateway request duration by endpoint
//
// Retry Metrics (pkg/epa):
//   - epa_retries_total (Counter): Retry attempts after 429 responses
//   - epa_retry_backoff_seconds (Histogram): Backoff duration before 429 retries
//   - epa_retry_exhausted_total (Counter): Site fetches that exhausted their retry budget
//
// Cache Metrics (pkg/cache):
//   - epa_cache_hits_total (Counter): Payload cache hits
//   - epa_cache_misses_total (Counter): Payload cache misses
//   - epa_cache_errors_total{operation} (Counter): Cache operation errors
//
// Batch Metrics (pkg/batch):
//   - epa_batch_fetches_in_flight (Gauge): Site fetches currently in flight
//   - epa_batch_results_total{outcome} (Counter): Fetch results by outcome (success, not_found, exhausted)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   rate(epa_cache_hits_total[5m]) /
//   (rate(epa_cache_hits_total[5m]) + rate(epa_cache_misses_total[5m]))
//
//   # Exhaustion Rate
//   rate(epa_retry_exhausted_total[5m])
//
//   # P95 Gateway Latency
//   histogram_quantile(0.95, rate(epa_request_duration_seconds_bucket[5m]))
//
//   # Limiter Pressure
//   histogram_quantile(0.95, rate(epa_rate_limit_wait_seconds_bucket[5m]))
