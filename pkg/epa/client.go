// Package epa provides the EPA environment-monitoring API client with rate
// limiting, retry/backoff, and per-site outcome classification.
package epa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/envtrack/epa-air-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for EPA client operations.
var (
	epaRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epa_requests_total",
		Help: "Total EPA requests by endpoint and status",
	}, []string{"endpoint", "status"})

	epaRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "epa_request_duration_seconds",
		Help:    "EPA request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	epaRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "epa_retries_total",
		Help: "Total retry attempts after 429 responses",
	})

	epaRetryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "epa_retry_backoff_seconds",
		Help:    "Backoff duration before 429 retries",
		Buckets: []float64{0.5, 1, 2, 4, 8},
	})

	epaRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "epa_retry_exhausted_total",
		Help: "Total site fetches that exhausted their retry budget",
	})
)

// Default auth header names. The gateway documents X-API-Key; some APIM
// fronts only accept the subscription-key spelling.
const (
	headerAPIKey          = "X-API-Key"
	headerSubscriptionKey = "Ocp-Apim-Subscription-Key"
)

// backoffCapSeconds bounds the exponential 429 backoff at 8 seconds, so the
// per-attempt delays are 1, 2, 4, 8.
const backoffCapSeconds = 8

// Client is the EPA environment-monitoring API client.
type Client struct {
	httpClient *http.Client
	limiter    ratelimit.Limiter
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the environment-monitoring gateway.
	BaseURL string

	// APIKey is the static gateway credential, sent on every request.
	APIKey string

	// UseSubscriptionKeyHeader sends the key as Ocp-Apim-Subscription-Key
	// instead of X-API-Key. Needed for APIM deployments that only route the
	// subscription-key header on the sites listing.
	UseSubscriptionKeyHeader bool

	// Segment is the environmentalSegment query filter.
	Segment string

	// RateLimit is the shared request-per-second ceiling.
	RateLimit int

	// MaxConcurrency bounds parallel site fetches (consumed by pkg/batch).
	MaxConcurrency int

	// MaxAttempts is the per-site attempt budget, 429 retries included.
	MaxAttempts int

	// Timeout per HTTP request.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration for the Victorian EPA
// gateway.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:        "https://gateway.api.epa.vic.gov.au/environmentMonitoring/v1",
		APIKey:         apiKey,
		Segment:        "air",
		RateLimit:      5,
		MaxConcurrency: 8,
		MaxAttempts:    4,
		Timeout:        30 * time.Second,
	}
}

// New creates a new EPA client with an in-process sliding-window limiter.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	if cfg.RateLimit <= 0 {
		return nil, fmt.Errorf("rate_limit must be > 0 (got %d)", cfg.RateLimit)
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Segment == "" {
		cfg.Segment = "air"
	}

	logger := log.With().Str("component", "epa-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: ratelimit.NewSlidingWindow(cfg.RateLimit),
		config:  cfg,
		logger:  logger,
	}, nil
}

// SetLimiter replaces the default in-process limiter, e.g. with the
// Redis-backed sliding window when several processes share one API key.
func (c *Client) SetLimiter(l ratelimit.Limiter) {
	c.limiter = l
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// ListSites fetches the site listing for the configured segment. This is the
// run's precondition: it is issued exactly once, without retries, and a
// failure here aborts the run before any per-site fan-out begins.
func (c *Client) ListSites(ctx context.Context) (SiteList, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return SiteList{}, fmt.Errorf("%w: %v", ErrContextCancelled, err)
	}

	resp, err := c.get(ctx, "/sites")
	if err != nil {
		return SiteList{}, fmt.Errorf("fetch site listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SiteList{}, &APIError{
			StatusCode: resp.StatusCode,
			Message:    "site listing failed: " + resp.Status,
		}
	}

	var list SiteList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return SiteList{}, fmt.Errorf("decode site listing: %w", err)
	}

	c.logger.Info().
		Int("total_records", list.TotalRecords).
		Str("segment", c.config.Segment).
		Msg("Site listing fetched")

	return list, nil
}

// FetchSiteParameters fetches the parameter payload for one site. All failure
// modes are captured into the Result; the method never returns a raw error to
// its caller.
//
// Per attempt: acquire the rate limiter, issue one GET, then classify.
// 429 sleeps Retry-After seconds (or min(2^attempt, 8) when the header is
// absent or unparseable) and consumes one attempt. 404 is terminal NotFound.
// Any other non-2xx status is terminal for this site and surfaces as an
// Exhausted result carrying the status detail.
func (c *Client) FetchSiteParameters(ctx context.Context, siteID string) Result {
	endpoint := "/sites/" + siteID + "/parameters"

	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		if err := c.limiter.Acquire(ctx); err != nil {
			return c.exhausted(siteID, fmt.Errorf("%w: %v", ErrContextCancelled, err))
		}

		resp, err := c.get(ctx, endpoint)
		if err != nil {
			// Network failure is terminal for this site; the run continues
			// for the others.
			return c.exhausted(siteID, fmt.Errorf("fetch parameters: %w", err))
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			delay := retryDelay(resp.Header.Get("Retry-After"), attempt)
			resp.Body.Close()

			epaRetriesTotal.Inc()
			epaRetryBackoffSeconds.Observe(delay.Seconds())

			c.logger.Warn().
				Str("site_id", siteID).
				Int("attempt", attempt+1).
				Dur("backoff", delay).
				Msg("Rate limited by gateway, backing off")

			select {
			case <-ctx.Done():
				return c.exhausted(siteID, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err()))
			case <-time.After(delay):
			}
			continue

		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()

			c.logger.Debug().
				Str("site_id", siteID).
				Msg("No parameter data for site")

			return Result{
				SiteID:  siteID,
				Outcome: OutcomeNotFound,
				Payload: ParametersPayload{SiteID: siteID},
			}

		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			resp.Body.Close()

			apiErr := &APIError{
				StatusCode: resp.StatusCode,
				Message:    resp.Status,
			}

			c.logger.Error().
				Str("site_id", siteID).
				Int("status", resp.StatusCode).
				Msg("Unexpected gateway status for site")

			return c.exhausted(siteID, apiErr)
		}

		var payload ParametersPayload
		err = json.NewDecoder(resp.Body).Decode(&payload)
		resp.Body.Close()
		if err != nil {
			return c.exhausted(siteID, fmt.Errorf("decode parameters: %w", err))
		}
		payload.SiteID = siteID

		return Result{
			SiteID:  siteID,
			Outcome: OutcomeSuccess,
			Payload: payload,
		}
	}

	epaRetryExhaustedTotal.Inc()

	c.logger.Warn().
		Str("site_id", siteID).
		Int("max_attempts", c.config.MaxAttempts).
		Msg("Retry attempts exhausted for site")

	return Result{
		SiteID:  siteID,
		Outcome: OutcomeExhausted,
		Payload: ParametersPayload{SiteID: siteID},
		Err:     fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, c.config.MaxAttempts),
	}
}

// exhausted wraps a terminal failure into an Exhausted result.
func (c *Client) exhausted(siteID string, err error) Result {
	return Result{
		SiteID:  siteID,
		Outcome: OutcomeExhausted,
		Payload: ParametersPayload{SiteID: siteID},
		Err:     err,
	}
}

// get issues a single GET against the gateway with the auth header and
// segment filter attached.
func (c *Client) get(ctx context.Context, endpoint string) (*http.Response, error) {
	startTime := time.Now()
	defer func() {
		epaRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	query := url.Values{}
	query.Set("environmentalSegment", c.config.Segment)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.config.BaseURL+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set(c.authHeader(), c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		epaRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, err
	}

	epaRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	return resp, nil
}

// authHeader returns the header name the key is sent under.
func (c *Client) authHeader() string {
	if c.config.UseSubscriptionKeyHeader {
		return headerSubscriptionKey
	}
	return headerAPIKey
}

// retryDelay derives the sleep before the next attempt after a 429. A
// parseable Retry-After header wins; otherwise exponential backoff, capped so
// attempts 0..3 yield 1, 2, 4, 8 seconds.
func retryDelay(retryAfter string, attempt int) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.ParseFloat(retryAfter, 64); err == nil && secs >= 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}

	if attempt > 3 {
		return backoffCapSeconds * time.Second
	}
	return time.Duration(1<<uint(attempt)) * time.Second
}
