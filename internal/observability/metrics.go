package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the bridge.
type Metrics struct {
	ActiveCalls       prometheus.Gauge
	CallEvents        *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	Disconnects       *prometheus.CounterVec
	AuthRejections    *prometheus.CounterVec
	TokenFetches      *prometheus.CounterVec
	PacedAudioSeconds prometheus.Counter
	DialogueConnect   prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewMetrics registers instruments on reg. A nil reg falls back to the
// default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	gatherer := prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		ActiveCalls: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of bridged calls currently open.",
		}),
		CallEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_events_total",
			Help:      "Call lifecycle events by type.",
		}, []string{"event"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by peer, direction and type.",
		}, []string{"peer", "direction", "type"}),
		Disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Disconnect frames sent to the telephony side by reason.",
		}, []string{"reason"}),
		AuthRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejections_total",
			Help:      "Rejected inbound upgrade requests by cause.",
		}, []string{"cause"}),
		TokenFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_fetches_total",
			Help:      "Outbound access token fetches by source and result.",
		}, []string{"source", "result"}),
		PacedAudioSeconds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paced_audio_seconds_total",
			Help:      "Seconds of audio played out to the telephony side.",
		}),
		DialogueConnect: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dialogue_connect_latency_ms",
			Help:      "Latency to open and configure the dialogue session in milliseconds.",
			Buckets:   []float64{50, 100, 200, 300, 500, 800, 1200, 2000, 5000},
		}),
		gatherer: gatherer,
	}
}

func (m *Metrics) ObserveDialogueConnect(d time.Duration) {
	if m == nil {
		return
	}
	m.DialogueConnect.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) CallEvent(event string) {
	if m == nil {
		return
	}
	m.CallEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) WSMessage(peer, direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(peer, direction, msgType).Inc()
}

func (m *Metrics) Disconnect(reason string) {
	if m == nil {
		return
	}
	m.Disconnects.WithLabelValues(reason).Inc()
}

func (m *Metrics) AuthRejected(cause string) {
	if m == nil {
		return
	}
	m.AuthRejections.WithLabelValues(cause).Inc()
}

func (m *Metrics) TokenFetch(source, result string) {
	if m == nil {
		return
	}
	m.TokenFetches.WithLabelValues(source, result).Inc()
}

func (m *Metrics) AudioPaced(d time.Duration) {
	if m == nil {
		return
	}
	m.PacedAudioSeconds.Add(d.Seconds())
}

func (m *Metrics) CallStarted() {
	if m == nil {
		return
	}
	m.ActiveCalls.Inc()
}

func (m *Metrics) CallEnded() {
	if m == nil {
		return
	}
	m.ActiveCalls.Dec()
}

// Handler serves the exposition for the registry the metrics live on.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
