package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/envtrack/epa-air-client/pkg/cache"
	"github.com/envtrack/epa-air-client/pkg/epa"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// exhaustedPreviewCap bounds the human-readable exhausted-site listing.
const exhaustedPreviewCap = 10

// SiteClient is the API surface the orchestrator needs: the one-shot site
// listing plus per-site parameter fetches.
type SiteClient interface {
	ListSites(ctx context.Context) (epa.SiteList, error)
	SiteFetcher
}

// Orchestrator runs one complete fetch: listing, fan-out, partitioning.
type Orchestrator struct {
	client SiteClient
	store  *cache.Store // optional; nil disables payload caching
	config Config
	logger zerolog.Logger
}

// NewOrchestrator creates an orchestrator over the given client.
func NewOrchestrator(client SiteClient, config Config) *Orchestrator {
	return &Orchestrator{
		client: client,
		config: config,
		logger: log.With().Str("component", "orchestrator").Logger(),
	}
}

// SetCache enables the Redis payload cache: cached sites are not dispatched,
// and successful fetches are stored for subsequent runs.
func (o *Orchestrator) SetCache(store *cache.Store) {
	o.store = store
}

// RunResult is the partitioned outcome of one run.
type RunResult struct {
	// Sites is the full deduplicated listing, in listing order.
	Sites []epa.Site

	// Payloads are the usable per-site payloads (successes and 404s, which
	// contribute an empty parameter list).
	Payloads []epa.ParametersPayload

	// Exhausted holds the results of sites whose fetch gave up.
	Exhausted []epa.Result

	// FromCache counts payloads served without a gateway request.
	FromCache int

	Duration time.Duration
}

// ExhaustedPreview returns up to ten "siteID :: reason" lines with truncated
// error text, for the end-of-run report.
func (r *RunResult) ExhaustedPreview() []string {
	n := len(r.Exhausted)
	if n > exhaustedPreviewCap {
		n = exhaustedPreviewCap
	}

	preview := make([]string, 0, n)
	for _, res := range r.Exhausted[:n] {
		reason := "retries exhausted"
		if res.Err != nil {
			reason = res.Err.Error()
		}
		if len(reason) > 160 {
			reason = reason[:160] + "..."
		}
		preview = append(preview, fmt.Sprintf("%s :: %s", res.SiteID, reason))
	}
	return preview
}

// Run fetches the site listing, fans out the per-site fetches, and partitions
// the results. A listing failure aborts the run before any fan-out begins.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()

	list, err := o.client.ListSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}

	sites, ids := dedupeSites(list.Records)

	o.logger.Info().
		Int("total_records", list.TotalRecords).
		Int("unique_sites", len(ids)).
		Msg("Starting parameter fan-out")

	result := &RunResult{Sites: sites}

	// Serve what we can from the cache; only the rest is dispatched.
	pending := ids
	if o.store != nil {
		pending = pending[:0:0]
		for _, id := range ids {
			payload, err := o.store.Get(ctx, id)
			if err != nil {
				if !errors.Is(err, cache.ErrCacheMiss) {
					o.logger.Warn().Err(err).Str("site_id", id).Msg("Cache get error")
				}
				pending = append(pending, id)
				continue
			}
			result.Payloads = append(result.Payloads, *payload)
			result.FromCache++
		}

		if result.FromCache > 0 {
			o.logger.Info().
				Int("cached", result.FromCache).
				Int("pending", len(pending)).
				Msg("Served payloads from cache")
		}
	}

	fetched := NewFetcher(o.client, o.config).FetchAll(ctx, pending)

	for _, id := range pending {
		res, ok := fetched[id]
		if !ok {
			// Must not happen: the pool guarantees one result per id.
			o.logger.Error().Str("site_id", id).Msg("Missing fetch result")
			continue
		}

		if !res.Usable() {
			result.Exhausted = append(result.Exhausted, res)
			continue
		}

		result.Payloads = append(result.Payloads, res.Payload)

		if o.store != nil && res.Outcome == epa.OutcomeSuccess {
			if err := o.store.Set(ctx, res.Payload); err != nil {
				o.logger.Warn().Err(err).Str("site_id", id).Msg("Cache set error")
			}
		}
	}

	result.Duration = time.Since(start)

	o.logger.Info().
		Int("sites", len(sites)).
		Int("payloads", len(result.Payloads)).
		Int("from_cache", result.FromCache).
		Int("exhausted", len(result.Exhausted)).
		Dur("duration", result.Duration).
		Msg("Run complete")

	return result, nil
}

// dedupeSites drops records with empty or repeated site ids, keeping the
// first occurrence in listing order.
func dedupeSites(records []epa.Site) ([]epa.Site, []string) {
	seen := make(map[string]bool, len(records))
	sites := make([]epa.Site, 0, len(records))
	ids := make([]string, 0, len(records))

	for _, rec := range records {
		if rec.SiteID == "" || seen[rec.SiteID] {
			continue
		}
		seen[rec.SiteID] = true
		sites = append(sites, rec)
		ids = append(ids, rec.SiteID)
	}
	return sites, ids
}
