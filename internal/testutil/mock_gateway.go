// Package testutil provides testing utilities for the EPA air client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
)

// MockGateway is a configurable mock of the EPA environment-monitoring
// gateway for testing.
type MockGateway struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	requestCounts     map[string]int
	lastRequestHeader http.Header
}

// NewMockGateway creates a new mock gateway server.
func NewMockGateway() *MockGateway {
	mock := &MockGateway{
		handlers:      make(map[string]http.HandlerFunc),
		requestCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCounts[r.URL.Path]++
		mock.lastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		w.WriteHeader(http.StatusNotFound)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockGateway) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGateway) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a specific path.
func (m *MockGateway) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// RequestCount returns the number of requests made to a path.
func (m *MockGateway) RequestCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCounts[path]
}

// TotalRequests returns the number of requests made across all paths.
func (m *MockGateway) TotalRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, n := range m.requestCounts {
		total += n
	}
	return total
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockGateway) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader
}

// SetSiteListing configures GET /sites to return the given records JSON.
// Each record is raw JSON for one site object.
func (m *MockGateway) SetSiteListing(records ...string) {
	body := `{"totalRecords": ` + fmt.Sprint(len(records)) + `, "records": [`
	for i, rec := range records {
		if i > 0 {
			body += ","
		}
		body += rec
	}
	body += `]}`

	m.SetHandler("/sites", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	})
}

// SetParameters configures a site's parameters endpoint with a fixed status
// and body.
func (m *MockGateway) SetParameters(siteID string, status int, body string) {
	m.SetHandler("/sites/"+siteID+"/parameters", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body != "" {
			w.Write([]byte(body))
		}
	})
}

// SiteRecord builds the listing JSON for one site.
func SiteRecord(id, name, siteType string, lon, lat float64) string {
	return fmt.Sprintf(`{"siteID": %q, "siteName": %q, "siteType": %q, "geometry": {"coordinates": [%g, %g]}}`,
		id, name, siteType, lon, lat)
}

// ParametersBody builds a single-parameter payload with one reading.
func ParametersBody(parameter, unit, series, since, until string, average float64) string {
	return fmt.Sprintf(`{
		"parameters": [
			{
				"name": %q,
				"unit": %q,
				"timeSeriesReadings": [
					{
						"timeSeriesName": %q,
						"readings": [
							{"since": %q, "until": %q, "averageValue": %g, "healthAdvice": "Good", "healthAdviceColor": "#42A93C", "healthCode": "1"}
						]
					}
				]
			}
		]
	}`, parameter, unit, series, since, until, average)
}

// RateLimitHandler returns 429 with the given Retry-After value for the
// first `times` requests, then delegates to the next handler. times < 0
// rate-limits forever.
func RateLimitHandler(times int, retryAfter string, then http.HandlerFunc) http.HandlerFunc {
	var count atomic.Int64
	return func(w http.ResponseWriter, r *http.Request) {
		if times < 0 || count.Add(1) <= int64(times) {
			if retryAfter != "" {
				w.Header().Set("Retry-After", retryAfter)
			}
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error": "Rate limit exceeded"}`))
			return
		}
		then(w, r)
	}
}

// JSONHandler returns a 200 handler with a JSON body.
func JSONHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}
}
