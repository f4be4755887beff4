// Command epa-fetch runs one batch fetch against the EPA environment
// monitoring gateway: list the sites for a segment, fetch every site's
// parameters under a shared rate limit, and write the listing and the
// flattened readings as CSV.
//
// Configuration comes from the environment (a .env file is loaded when
// present). API_KEY is required; everything else has defaults.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/envtrack/epa-air-client/pkg/batch"
	"github.com/envtrack/epa-air-client/pkg/cache"
	"github.com/envtrack/epa-air-client/pkg/epa"
	"github.com/envtrack/epa-air-client/pkg/export"
	"github.com/envtrack/epa-air-client/pkg/flatten"
	"github.com/envtrack/epa-air-client/pkg/logging"
	"github.com/envtrack/epa-air-client/pkg/ratelimit"
)

func main() {
	// Optional .env file; real environment variables win.
	_ = godotenv.Load()

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnvBool("LOG_PRETTY", false),
	})

	apiKey := os.Getenv("API_KEY")
	if apiKey == "" {
		log.Fatal().Msg("API_KEY is required")
	}

	cfg := epa.DefaultConfig(apiKey)
	cfg.BaseURL = getEnv("EPA_BASE_URL", cfg.BaseURL)
	cfg.Segment = getEnv("EPA_SEGMENT", cfg.Segment)
	cfg.RateLimit = getEnvInt("RATE_LIMIT", cfg.RateLimit)
	cfg.MaxConcurrency = getEnvInt("MAX_CONCURRENCY", cfg.MaxConcurrency)
	cfg.MaxAttempts = getEnvInt("MAX_ATTEMPTS", cfg.MaxAttempts)
	cfg.Timeout = getEnvDuration("REQUEST_TIMEOUT", cfg.Timeout)
	cfg.UseSubscriptionKeyHeader = getEnvBool("USE_SUBSCRIPTION_KEY_HEADER", false)

	client, err := epa.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create EPA client")
	}

	ctx := context.Background()

	orch := batch.NewOrchestrator(client, batch.Config{
		Concurrency: cfg.MaxConcurrency,
		Stagger:     10 * time.Millisecond,
	})

	// Optional Redis: shared rate limiter plus payload cache. Without it the
	// limiter is in-process and every run fetches everything.
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("redis_url", redisURL).Msg("Failed to connect to Redis")
		}
		log.Info().Str("redis_url", redisURL).Msg("Connected to Redis")

		client.SetLimiter(ratelimit.NewRedisSlidingWindow(redisClient, cfg.RateLimit))
		orch.SetCache(cache.NewStore(redisClient, getEnvDuration("CACHE_TTL", time.Hour)))
	}

	result, err := orch.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Run failed")
	}

	sitesPath := getEnv("SITES_CSV", "epa_sites.csv")
	readingsPath := getEnv("READINGS_CSV", "epa_readings.csv")

	rows := flatten.Rows(result.Payloads)

	if err := writeCSVs(sitesPath, readingsPath, result, rows); err != nil {
		log.Fatal().Err(err).Msg("CSV export failed")
	}

	fmt.Printf("Sites: %d (%s)\n", len(result.Sites), sitesPath)
	fmt.Printf("Readings: %d rows from %d payloads, %d from cache (%s)\n",
		len(rows), len(result.Payloads), result.FromCache, readingsPath)
	fmt.Printf("Duration: %s\n", result.Duration.Round(time.Millisecond))

	if len(result.Exhausted) > 0 {
		fmt.Printf("Exhausted sites: %d\n", len(result.Exhausted))
		for _, line := range result.ExhaustedPreview() {
			fmt.Printf("- %s\n", line)
		}
		os.Exit(1)
	}
}

func writeCSVs(sitesPath, readingsPath string, result *batch.RunResult, rows []flatten.Row) error {
	sitesFile, err := os.Create(sitesPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", sitesPath, err)
	}
	defer sitesFile.Close()

	if err := export.WriteSites(sitesFile, result.Sites); err != nil {
		return err
	}

	readingsFile, err := os.Create(readingsPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", readingsPath, err)
	}
	defer readingsFile.Close()

	return export.WriteRows(readingsFile, rows)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Fatal().Str("key", key).Str("value", value).Msg("Invalid integer in environment")
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Fatal().Str("key", key).Str("value", value).Msg("Invalid boolean in environment")
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Fatal().Str("key", key).Str("value", value).Msg("Invalid duration in environment")
	}
	return d
}
