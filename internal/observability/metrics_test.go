package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordOnIsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test_bridge", reg)

	m.CallStarted()
	m.CallStarted()
	m.CallEnded()
	m.Disconnect("completed")
	m.AudioPaced(500 * time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveCalls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Disconnects.WithLabelValues("completed")))
	assert.InDelta(t, 0.5, testutil.ToFloat64(m.PacedAudioSeconds), 1e-9)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "test_bridge_active_calls 1"))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.CallStarted()
	m.CallEvent("open")
	m.WSMessage("telephony", "in", "open")
	m.TokenFetch("secret", "ok")
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger("loud", "json")
	require.Error(t, err)

	logger, err := NewLogger("debug", "console")
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
