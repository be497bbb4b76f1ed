package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"proxy-bot/metrics"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProbe struct {
	latency time.Duration
	queued  int
}

func (p fakeProbe) GatewayLatency() time.Duration { return p.latency }
func (p fakeProbe) QueuedChannels() int           { return p.queued }

func setupTestRouter() (*gin.Engine, *metrics.Metrics) {
	gin.SetMode(gin.TestMode)
	m := metrics.New()
	return NewRouter(fakeProbe{latency: 42 * time.Millisecond, queued: 3}, m.Registry), m
}

func TestHealth(t *testing.T) {
	r, _ := setupTestRouter()

	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(42), body["gateway_latency_ms"])
	assert.Equal(t, float64(3), body["queued_channels"])
}

func TestMetrics(t *testing.T) {
	r, m := setupTestRouter()
	m.ProcessedMessages.WithLabelValues(metrics.OutcomeRelayed).Add(2)

	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `proxybot_messages_processed_total{outcome="relayed"} 2`)
}

func TestNoRoute(t *testing.T) {
	r, _ := setupTestRouter()
	req, _ := http.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
