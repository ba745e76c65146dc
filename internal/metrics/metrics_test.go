package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_New(t *testing.T) {
	m := New()
	assert.NotNil(t, m.RequestsTotal)
	assert.NotNil(t, m.RequestDuration)
	assert.NotNil(t, m.ResolutionsTotal)
	assert.NotNil(t, m.SelectorCacheTotal)
	assert.NotNil(t, m.SelectorHitRatio)
	assert.NotNil(t, m.AnalyticsEvents)
	assert.NotNil(t, m.ErrorsTotal)
}

func TestMetrics_RecordRequest(t *testing.T) {
	m := New()
	m.RecordRequest("/api/v1/therapy/book-session", "200", 0.01)
	m.RecordRequest("/api/v1/therapy/book-session", "200", 0.02)
	m.RecordRequest("/api/v1/therapy/book-session/widget", "409", 0.01)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `booking_requests_total{route="/api/v1/therapy/book-session",status="200"} 2`)
	assert.Contains(t, body, `booking_requests_total{route="/api/v1/therapy/book-session/widget",status="409"} 1`)
	assert.Contains(t, body, "booking_request_duration_seconds")
}

func TestMetrics_RecordResolution(t *testing.T) {
	m := New()
	m.RecordResolution("remaining", false)
	m.RecordResolution("remaining", true)
	m.RecordResolution("none", true)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `booking_resolutions_total{outcome="remaining"} 2`)
	assert.Contains(t, body, `booking_selector_cache_total{result="hit"} 2`)
	assert.Contains(t, body, `booking_selector_cache_total{result="miss"} 1`)
}

func TestMetrics_RecordEvent(t *testing.T) {
	m := New()
	m.RecordEvent("THERAPY_BOOKING_VIEWED", "delivered")
	m.RecordEvent("THERAPY_BOOKING_OPENED", "dropped")
	m.SetQueueDepth(3)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `booking_analytics_events_total{event="THERAPY_BOOKING_VIEWED",result="delivered"} 1`)
	assert.Contains(t, body, `booking_analytics_events_total{event="THERAPY_BOOKING_OPENED",result="dropped"} 1`)
	assert.Contains(t, body, "booking_analytics_queue_depth 3")
}

func TestMetrics_RecordError(t *testing.T) {
	m := New()
	m.RecordError("store", "query")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `booking_errors_total{module="store",type="query"} 1`)
}

func getMetricsBody(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	return strings.TrimSpace(string(body))
}

func TestMetrics_SetSelectorHitRatio(t *testing.T) {
	m := New()
	m.SetSelectorHitRatio(0.75)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, "booking_selector_cache_hit_ratio 0.75")
}
