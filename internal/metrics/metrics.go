// Package metrics exposes Prometheus instrumentation for the relay.
//
// All methods are safe to call on a nil *Metrics, so components can be
// built without metrics in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace is the metrics namespace used when none is configured.
const DefaultNamespace = "relaynet"

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	activeConnections prometheus.Gauge
	messagesTotal     *prometheus.CounterVec
	errorsSent        *prometheus.CounterVec
	handshakesTotal   *prometheus.CounterVec
	handshakeTimeouts prometheus.Counter
	faultsTotal       prometheus.Counter
	deniedTotal       *prometheus.CounterVec
	rateLimited       prometheus.Counter
}

// New registers the relay collectors with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of live client connections",
		}),
		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of decoded client messages by type",
		}, []string{"type"}),
		errorsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_sent_total",
			Help:      "Total number of error responses sent to clients by classification",
		}, []string{"classification"}),
		handshakesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "Total number of handshakes by result",
		}, []string{"result"}),
		handshakeTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_timeouts_total",
			Help:      "Total number of connections closed for not sending player data in time",
		}),
		faultsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Total number of unexpected faults raised while handling messages",
		}),
		deniedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_denied_total",
			Help:      "Total number of connection denials by reason",
		}, []string{"reason"}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of connections closed for exceeding the message rate",
		}),
	}
}

// SetActiveConnections records the live connection count.
func (m *Metrics) SetActiveConnections(n int) {
	if m == nil {
		return
	}
	m.activeConnections.Set(float64(n))
}

// MessageReceived counts a decoded message of the given type.
func (m *Metrics) MessageReceived(messageType string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(messageType).Inc()
}

// ErrorSent counts an error response of the given classification.
func (m *Metrics) ErrorSent(classification string) {
	if m == nil {
		return
	}
	m.errorsSent.WithLabelValues(classification).Inc()
}

// Handshake counts a handshake outcome.
func (m *Metrics) Handshake(result string) {
	if m == nil {
		return
	}
	m.handshakesTotal.WithLabelValues(result).Inc()
}

// HandshakeTimeout counts a connection reclaimed by its timeout guard.
func (m *Metrics) HandshakeTimeout() {
	if m == nil {
		return
	}
	m.handshakeTimeouts.Inc()
}

// Fault counts an unexpected fault.
func (m *Metrics) Fault() {
	if m == nil {
		return
	}
	m.faultsTotal.Inc()
}

// Denied counts a connection denial.
func (m *Metrics) Denied(reason string) {
	if m == nil {
		return
	}
	m.deniedTotal.WithLabelValues(reason).Inc()
}

// RateLimited counts a connection closed by the rate limiter.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
