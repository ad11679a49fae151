package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordPacket(3)
		m.RecordEvent("update", true)
		m.RecordCommand("control:master:gain", "ok")
		m.SetObservers(2)
		m.RecordHTTPRequest("/health", 200)
	})
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()

	a.RecordPacket(2)
	a.RecordEvent("meter", true)
	a.RecordEvent("state", false)
	a.RecordEvent("", false)
	a.RecordRegistration("startup")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.PacketsReceived))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.MessagesReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Events.WithLabelValues("meter")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Unclassified.WithLabelValues("state")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Unclassified.WithLabelValues("none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Registrations.WithLabelValues("startup")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.PacketsReceived))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.RecordHeartbeat()
	m.RecordHTTPRequest("/health", 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "spatialviz_renderer_heartbeats_sent_total 1")
	assert.Contains(t, string(body), `spatialviz_http_requests_total{endpoint="/health",status_code="200"} 1`)
}
