package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/presence-beacon/internal/ble"
	"github.com/sweeney/presence-beacon/internal/logic"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

func TestCycleCompleted(t *testing.T) {
	m := newTestMetrics(t)

	m.CycleCompleted(time.Millisecond, logic.Snapshot{logic.Present, logic.Absent, logic.Present, logic.Absent})
	m.CycleCompleted(time.Millisecond, logic.Snapshot{logic.Absent, logic.Absent, logic.Present, logic.Present})

	assert.Equal(t, float64(2), testutil.ToFloat64(m.cycles))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.presence.WithLabelValues("distance1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.presence.WithLabelValues("motion1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.presence.WithLabelValues("motion2")))
}

func TestFaultAndPublishCounters(t *testing.T) {
	m := newTestMetrics(t)

	m.SensorFault(logic.Distance2)
	m.SensorFault(logic.Distance2)
	m.PublishFailed(logic.Motion1)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.sensorFaults.WithLabelValues("distance2")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.sensorFaults.WithLabelValues("distance1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.publishFailed.WithLabelValues("motion1")))
}

func TestSessionObserver(t *testing.T) {
	m := newTestMetrics(t)

	m.SessionState(ble.Connected)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.sessionState))

	m.AdvertisingRestarted()
	m.AdvertisingRestarted()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.advRestarts))

	m.MirrorDropped()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.mirrorDropped))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CycleCompleted(time.Millisecond, logic.Snapshot{})
		m.SensorFault(logic.Distance1)
		m.PublishFailed(logic.Distance1)
		m.SessionState(ble.Advertising)
		m.AdvertisingRestarted()
		m.MirrorDropped()
	})
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := newTestMetrics(t)
	m.SensorFault(logic.Motion2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `presence_beacon_sensor_faults_total{channel="motion2"} 1`)
	assert.True(t, strings.Contains(body, "presence_beacon_cycles_total 0"))
}

func TestWrapHandlerCountsStatus(t *testing.T) {
	m := newTestMetrics(t)
	h := m.WrapHandler("/missing", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequests.WithLabelValues("/missing", "404")))
}
