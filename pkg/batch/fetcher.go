// Package batch drives the bounded fan-out of per-site parameter fetches and
// the run-level orchestration around it.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/envtrack/epa-air-client/pkg/epa"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for batch fetching.
var (
	batchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "epa_batch_fetches_in_flight",
		Help: "Site fetches currently in flight",
	})

	batchResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epa_batch_results_total",
		Help: "Total site fetch results by outcome",
	}, []string{"outcome"})
)

// Config holds worker pool configuration.
type Config struct {
	// Concurrency is the maximum number of site fetches in flight.
	Concurrency int

	// Stagger spaces out task launches to avoid an initial synchronized
	// burst against the rate limiter. It is an optimization only; the
	// limiter and the admission gate carry correctness by themselves.
	Stagger time.Duration
}

// DefaultConfig returns safe defaults for the EPA gateway (5 req/s budget).
func DefaultConfig() Config {
	return Config{
		Concurrency: 8,
		Stagger:     10 * time.Millisecond,
	}
}

// SiteFetcher fetches the parameter payload for a single site.
type SiteFetcher interface {
	FetchSiteParameters(ctx context.Context, siteID string) epa.Result
}

// Fetcher fans out per-site fetches with bounded concurrency.
type Fetcher struct {
	fetcher SiteFetcher
	config  Config
}

// NewFetcher creates a new batch fetcher.
func NewFetcher(fetcher SiteFetcher, config Config) *Fetcher {
	if config.Concurrency <= 0 {
		config.Concurrency = 8
	}
	return &Fetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAll fetches every site id with at most Concurrency fetches in flight
// and returns exactly one Result per id, keyed by site id. Completion order
// is not meaningful. Every dispatched task finishes before FetchAll returns;
// no task outlives the call.
func (f *Fetcher) FetchAll(ctx context.Context, siteIDs []string) map[string]epa.Result {
	start := time.Now()

	results := make(map[string]epa.Result, len(siteIDs))
	if len(siteIDs) == 0 {
		return results
	}

	resultCh := make(chan epa.Result, len(siteIDs))
	gate := make(chan struct{}, f.config.Concurrency)

	var wg sync.WaitGroup
	for _, id := range siteIDs {
		wg.Add(1)
		go func(siteID string) {
			defer wg.Done()

			gate <- struct{}{}
			defer func() { <-gate }()

			batchInFlight.Inc()
			res := f.fetcher.FetchSiteParameters(ctx, siteID)
			batchInFlight.Dec()

			batchResultsTotal.WithLabelValues(string(res.Outcome)).Inc()
			resultCh <- res
		}(id)

		if f.config.Stagger > 0 {
			time.Sleep(f.config.Stagger)
		}
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// Single collector; tasks never touch the map.
	for res := range resultCh {
		results[res.SiteID] = res
	}

	log.Debug().
		Int("sites", len(siteIDs)).
		Int("concurrency", f.config.Concurrency).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	return results
}
