// Package metrics exposes the daemon's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the daemon counters. A nil *Metrics is a no-op
// everywhere, so tests can pass nil without wiring a registry.
type Metrics struct {
	registry *prometheus.Registry

	plansTotal      *prometheus.CounterVec
	actionsTotal    *prometheus.CounterVec
	actionRetries   prometheus.Counter
	scannerVerdicts *prometheus.CounterVec
	triggerFires    *prometheus.CounterVec
	triggerThrottle prometheus.Counter
	wsClients       prometheus.Gauge
}

// New creates the metric set on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		plansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_plans_total",
			Help: "Plans by terminal status.",
		}, []string{"status"}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_actions_total",
			Help: "Actions by module and terminal state.",
		}, []string{"module", "state"}),
		actionRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_action_retries_total",
			Help: "Action retry attempts.",
		}),
		scannerVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_scanner_verdicts_total",
			Help: "Scanner pipeline verdicts.",
		}, []string{"verdict"}),
		triggerFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_trigger_fires_total",
			Help: "Trigger fires by trigger id.",
		}, []string{"trigger_id"}),
		triggerThrottle: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_trigger_throttled_total",
			Help: "Trigger fires suppressed by throttling.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_ws_clients",
			Help: "Connected WebSocket subscribers.",
		}),
	}
	reg.MustRegister(m.plansTotal, m.actionsTotal, m.actionRetries,
		m.scannerVerdicts, m.triggerFires, m.triggerThrottle, m.wsClients)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PlanFinished records a plan reaching a terminal status.
func (m *Metrics) PlanFinished(status string) {
	if m == nil {
		return
	}
	m.plansTotal.WithLabelValues(status).Inc()
}

// ActionFinished records an action reaching a terminal state.
func (m *Metrics) ActionFinished(module, state string) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(module, state).Inc()
}

// ActionRetried records one retry attempt.
func (m *Metrics) ActionRetried() {
	if m == nil {
		return
	}
	m.actionRetries.Inc()
}

// ScannerVerdict records the pipeline's aggregate verdict for a plan.
func (m *Metrics) ScannerVerdict(verdict string) {
	if m == nil {
		return
	}
	m.scannerVerdicts.WithLabelValues(verdict).Inc()
}

// TriggerFired records one trigger fire.
func (m *Metrics) TriggerFired(triggerID string) {
	if m == nil {
		return
	}
	m.triggerFires.WithLabelValues(triggerID).Inc()
}

// TriggerThrottled records one suppressed fire.
func (m *Metrics) TriggerThrottled() {
	if m == nil {
		return
	}
	m.triggerThrottle.Inc()
}

// WSClientConnected adjusts the connected-subscriber gauge.
func (m *Metrics) WSClientConnected(delta int) {
	if m == nil {
		return
	}
	m.wsClients.Add(float64(delta))
}
