// Package metrics holds the prometheus metrics exported by the server.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons for replies the dispatcher does not forward.
const (
	DropDuplicate  = "duplicate"
	DropOutOfSync  = "out_of_sync"
	DropWriteError = "write_error"
)

// CustomMetrics are the metrics recorded while serving clients.
type CustomMetrics struct {
	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	DroppedReplies  *prometheus.CounterVec
	InternalFaults  prometheus.Counter
	Connections     prometheus.Gauge
	Listeners       prometheus.Gauge
}

// RegisterCustomMetrics creates and registers our custom metrics with the
// given registerer and returns our internal struct pointer.
func RegisterCustomMetrics(reg prometheus.Registerer) *CustomMetrics {
	m := &CustomMetrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marionette_commands_total",
			Help: "Commands executed, by name and reply status.",
		}, []string{"command", "status"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marionette_command_duration_seconds",
			Help:    "Time from command receipt to reply.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"command"}),
		DroppedReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marionette_dropped_replies_total",
			Help: "Replies not forwarded to the client, by reason.",
		}, []string{"reason"}),
		InternalFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marionette_internal_faults_total",
			Help: "Errors outside the protocol error taxonomy raised by handlers.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marionette_client_connections",
			Help: "Open client connections.",
		}),
		Listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marionette_remote_listeners",
			Help: "Connected out of process listeners.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Commands, m.CommandDuration, m.DroppedReplies,
			m.InternalFaults, m.Connections, m.Listeners)
	}
	return m
}

// NewUnregistered returns metrics that are not exported anywhere.
func NewUnregistered() *CustomMetrics {
	return RegisterCustomMetrics(nil)
}

// ObserveCommand records a finished command.
func (m *CustomMetrics) ObserveCommand(name string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(name, strconv.Itoa(status)).Inc()
	m.CommandDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// DropReply records a reply that was not forwarded.
func (m *CustomMetrics) DropReply(reason string) {
	if m == nil {
		return
	}
	m.DroppedReplies.WithLabelValues(reason).Inc()
}

// Fault records an internal fault.
func (m *CustomMetrics) Fault() {
	if m == nil {
		return
	}
	m.InternalFaults.Inc()
}
