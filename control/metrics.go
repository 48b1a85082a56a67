// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for session and command activity. Every method is
// safe on a nil *Metrics so servers built without metrics skip reporting.

package control

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "hioload_socket"

// Metrics holds the collectors shared by all servers of a process. Each
// series is labelled with the server name.
type Metrics struct {
	sessionsActive   *prometheus.GaugeVec
	sessionsAccepted *prometheus.CounterVec
	sessionsRejected *prometheus.CounterVec
	sessionsClosed   *prometheus.CounterVec
	commands         *prometheus.CounterVec
	unknownCommands  *prometheus.CounterVec
	handlerErrors    *prometheus.CounterVec
	sweepDuration    *prometheus.HistogramVec
	sweepClosed      *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg means
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		sessionsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: DefaultNamespace,
			Name:      "sessions_active",
			Help:      "Sessions currently registered",
		}, []string{"server"}),
		sessionsAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: DefaultNamespace,
			Name:      "sessions_accepted_total",
			Help:      "Sessions registered since start",
		}, []string{"server"}),
		sessionsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: DefaultNamespace,
			Name:      "sessions_rejected_total",
			Help:      "Connections rejected at registration",
		}, []string{"server"}),
		sessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: DefaultNamespace,
			Name:      "sessions_closed_total",
			Help:      "Closed sessions by close reason",
		}, []string{"server", "reason"}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: DefaultNamespace,
			Name:      "commands_total",
			Help:      "Executed commands by name and status",
		}, []string{"server", "command", "status"}),
		unknownCommands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: DefaultNamespace,
			Name:      "unknown_commands_total",
			Help:      "Packages whose key matched no command",
		}, []string{"server"}),
		handlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: DefaultNamespace,
			Name:      "handler_errors_total",
			Help:      "Command failures routed to the error hook",
		}, []string{"server", "type"}),
		sweepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: DefaultNamespace,
			Name:      "idle_sweep_duration_seconds",
			Help:      "Duration of idle session sweeps",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"server"}),
		sweepClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: DefaultNamespace,
			Name:      "idle_sessions_closed_total",
			Help:      "Sessions closed by the idle sweep",
		}, []string{"server"}),
	}
}

// SessionStarted records a registered session.
func (m *Metrics) SessionStarted(server string) {
	if m == nil {
		return
	}
	m.sessionsAccepted.WithLabelValues(server).Inc()
	m.sessionsActive.WithLabelValues(server).Inc()
}

// SessionRejected records a connection refused at registration.
func (m *Metrics) SessionRejected(server string) {
	if m == nil {
		return
	}
	m.sessionsRejected.WithLabelValues(server).Inc()
}

// SessionClosed records the end of a registered session.
func (m *Metrics) SessionClosed(server, reason string) {
	if m == nil {
		return
	}
	m.sessionsActive.WithLabelValues(server).Dec()
	m.sessionsClosed.WithLabelValues(server, reason).Inc()
}

// Command records one dispatched command.
func (m *Metrics) Command(server, command, status string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(server, command, status).Inc()
}

// UnknownCommand records a package without handler.
func (m *Metrics) UnknownCommand(server string) {
	if m == nil {
		return
	}
	m.unknownCommands.WithLabelValues(server).Inc()
}

// HandlerError records a failure handed to the error hook; kind is "panic"
// or "error".
func (m *Metrics) HandlerError(server, kind string) {
	if m == nil {
		return
	}
	m.handlerErrors.WithLabelValues(server, kind).Inc()
}

// Sweep records one idle sweep.
func (m *Metrics) Sweep(server string, d time.Duration, closed int) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(server).Observe(d.Seconds())
	m.sweepClosed.WithLabelValues(server).Add(float64(closed))
}
