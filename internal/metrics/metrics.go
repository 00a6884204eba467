// Package metrics exposes the beacon's counters and gauges to Prometheus.
// Every method is safe on a nil *Metrics so callers can run without it.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/presence-beacon/internal/ble"
	"github.com/sweeney/presence-beacon/internal/logic"
)

const namespace = "presence_beacon"

// Metrics holds the beacon's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	sensorFaults  *prometheus.CounterVec
	publishFailed *prometheus.CounterVec
	presence      *prometheus.GaugeVec
	sessionState  prometheus.Gauge
	advRestarts   prometheus.Counter
	mirrorDropped prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg. When reg is also a
// prometheus.Gatherer, Handler serves it; otherwise the default gatherer is used.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Sample, classify and publish cycles completed.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time spent sampling, classifying and publishing, excluding the wait.",
			Buckets:   []float64{.0005, .001, .002, .005, .01, .025, .05, .1, .25},
		}),
		sensorFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_faults_total",
			Help:      "Sensor reads that failed and were reported as 0.",
		}, []string{"channel"}),
		publishFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Characteristic updates rejected by the BLE stack.",
		}, []string{"channel"}),
		presence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "presence",
			Help:      "Last published presence flag per channel (1 present, 0 absent).",
		}, []string{"channel"}),
		sessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "BLE session state (0 uninitialized, 1 initializing, 2 advertising, 3 connected).",
		}),
		advRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advertising_restarts_total",
			Help:      "Times advertising was re-armed after a peer disconnected.",
		}),
		mirrorDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_mirror_dropped_total",
			Help:      "Presence changes dropped because the MQTT mirror was busy.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Status server requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Status server request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.cycles,
		m.cycleDuration,
		m.sensorFaults,
		m.publishFailed,
		m.presence,
		m.sessionState,
		m.advRestarts,
		m.mirrorDropped,
		m.httpRequests,
		m.httpDuration,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}

	for _, ch := range logic.Channels {
		m.sensorFaults.WithLabelValues(ch.String())
		m.publishFailed.WithLabelValues(ch.String())
		m.presence.WithLabelValues(ch.String()).Set(0)
	}

	return m
}

// Handler serves the registered metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts and times requests to next under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

// CycleCompleted records one finished cycle and the snapshot it published.
func (m *Metrics) CycleCompleted(d time.Duration, snap logic.Snapshot) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleDuration.Observe(d.Seconds())
	for _, ch := range logic.Channels {
		m.presence.WithLabelValues(ch.String()).Set(float64(logic.Encode(snap[ch])))
	}
}

// SensorFault implements sampler.FaultRecorder.
func (m *Metrics) SensorFault(ch logic.Channel) {
	if m == nil {
		return
	}
	m.sensorFaults.WithLabelValues(ch.String()).Inc()
}

// PublishFailed implements ble.PublishRecorder.
func (m *Metrics) PublishFailed(ch logic.Channel) {
	if m == nil {
		return
	}
	m.publishFailed.WithLabelValues(ch.String()).Inc()
}

// SessionState implements ble.SessionObserver.
func (m *Metrics) SessionState(s ble.SessionState) {
	if m == nil {
		return
	}
	m.sessionState.Set(float64(s))
}

// AdvertisingRestarted implements ble.SessionObserver.
func (m *Metrics) AdvertisingRestarted() {
	if m == nil {
		return
	}
	m.advRestarts.Inc()
}

// MirrorDropped records a presence change the MQTT mirror could not queue.
func (m *Metrics) MirrorDropped() {
	if m == nil {
		return
	}
	m.mirrorDropped.Inc()
}
