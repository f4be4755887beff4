package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/envtrack/epa-air-client/pkg/epa"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func testPayload(siteID string) epa.ParametersPayload {
	avg := 4.2
	return epa.ParametersPayload{
		SiteID: siteID,
		Parameters: []epa.Parameter{
			{
				Name: "PM2.5",
				Unit: "&micro;g/m&sup3;",
				TimeSeriesReadings: []epa.TimeSeriesReading{
					{
						TimeSeriesName: "1HR_AV",
						Readings: []epa.Reading{
							{
								Since:        "2024-05-01T10:00:00Z",
								Until:        "2024-05-01T11:00:00Z",
								AverageValue: &avg,
								HealthAdvice: "Good",
							},
						},
					},
				},
			},
		},
	}
}

func TestStore_SetGetRoundtrip(t *testing.T) {
	redisClient := setupTestRedis(t)
	store := NewStore(redisClient, time.Hour)
	ctx := context.Background()

	payload := testPayload("SITE-1")
	if err := store.Set(ctx, payload); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := store.Get(ctx, "SITE-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if got.SiteID != "SITE-1" {
		t.Errorf("SiteID = %q, want SITE-1", got.SiteID)
	}
	if len(got.Parameters) != 1 {
		t.Fatalf("Parameters length = %d, want 1", len(got.Parameters))
	}
	if got.Parameters[0].Name != "PM2.5" {
		t.Errorf("Parameter name = %q, want PM2.5", got.Parameters[0].Name)
	}
	readings := got.Parameters[0].TimeSeriesReadings[0].Readings
	if len(readings) != 1 || readings[0].AverageValue == nil || *readings[0].AverageValue != 4.2 {
		t.Errorf("Readings = %+v, want one with averageValue 4.2", readings)
	}
}

func TestStore_GetMiss(t *testing.T) {
	redisClient := setupTestRedis(t)
	store := NewStore(redisClient, time.Hour)

	_, err := store.Get(context.Background(), "UNKNOWN")
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestStore_SetRejectsMissingSiteID(t *testing.T) {
	redisClient := setupTestRedis(t)
	store := NewStore(redisClient, time.Hour)

	err := store.Set(context.Background(), epa.ParametersPayload{})
	if err == nil {
		t.Error("Set() with empty site id should fail")
	}
}

func TestStore_Delete(t *testing.T) {
	redisClient := setupTestRedis(t)
	store := NewStore(redisClient, time.Hour)
	ctx := context.Background()

	if err := store.Set(ctx, testPayload("SITE-1")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Delete(ctx, "SITE-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := store.Get(ctx, "SITE-1"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after delete error = %v, want ErrCacheMiss", err)
	}
}

func TestStore_TTLApplied(t *testing.T) {
	redisClient := setupTestRedis(t)
	store := NewStore(redisClient, 30*time.Minute)
	ctx := context.Background()

	if err := store.Set(ctx, testPayload("SITE-1")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	ttl, err := redisClient.TTL(ctx, keyPrefix+"SITE-1").Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > 30*time.Minute {
		t.Errorf("TTL = %v, want within (0, 30m]", ttl)
	}
}

func TestNewStore_DefaultTTL(t *testing.T) {
	redisClient := setupTestRedis(t)

	store := NewStore(redisClient, 0)
	if store.ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h default", store.ttl)
	}
}
