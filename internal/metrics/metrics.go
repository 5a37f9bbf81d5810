// Package metrics defines the Prometheus collectors of the backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	TelemetryIngested  *prometheus.CounterVec
	CommandsDispatched *prometheus.CounterVec
	RelayPublishes     *prometheus.CounterVec
	EventsPushed       *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// to expose them on the default handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TelemetryIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feederbalancer_telemetry_ingested_total",
				Help: "Telemetry readings ingested, by severity",
			},
			[]string{"severity"},
		),
		CommandsDispatched: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feederbalancer_commands_dispatched_total",
				Help: "Commands accepted by the dispatcher, by normalized command name",
			},
			[]string{"command"},
		),
		RelayPublishes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feederbalancer_relay_publishes_total",
				Help: "Command relay attempts, by result",
			},
			[]string{"result"},
		),
		EventsPushed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feederbalancer_events_total",
				Help: "Events appended to the event log, by type and severity",
			},
			[]string{"type", "severity"},
		),
	}
}

func (m *Metrics) ObserveTelemetry(severity string) {
	if m == nil {
		return
	}
	m.TelemetryIngested.WithLabelValues(severity).Inc()
}

func (m *Metrics) ObserveCommand(command string) {
	if m == nil {
		return
	}
	m.CommandsDispatched.WithLabelValues(command).Inc()
}

func (m *Metrics) ObserveRelay(ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "succeeded"
	}
	m.RelayPublishes.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveEvent(typ, severity string) {
	if m == nil {
		return
	}
	m.EventsPushed.WithLabelValues(typ, severity).Inc()
}
