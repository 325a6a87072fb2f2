// Package metrics exposes Prometheus counters for flow executions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records execution lifecycle counters.
type Metrics interface {
	IncExecutionStarted(flowCode string)
	IncTransition(flowCode, nodeKind string)
	IncExecutionFinished(flowCode, status string)
	IncTransitionRejected(reason string)
	ObserveExecutionDuration(flowCode string, seconds float64)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncExecutionStarted(string)               {}
func (Noop) IncTransition(string, string)             {}
func (Noop) IncExecutionFinished(string, string)      {}
func (Noop) IncTransitionRejected(string)             {}
func (Noop) ObserveExecutionDuration(string, float64) {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	started   *prometheus.CounterVec
	advanced  *prometheus.CounterVec
	finished  *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewProm registers the collectors on reg.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	p := &Prom{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_started_total",
			Help:      "Flow executions started by flow code",
		}, []string{"flow"}),
		advanced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Successful transitions by flow code and source node kind",
		}, []string{"flow", "node_kind"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_finished_total",
			Help:      "Flow executions reaching a terminal status",
		}, []string{"flow", "status"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_rejected_total",
			Help:      "Transitions refused without a state change, by reason",
		}, []string{"reason"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Time from start to terminal status",
			Buckets:   []float64{60, 600, 3600, 6 * 3600, 24 * 3600, 7 * 24 * 3600},
		}, []string{"flow"}),
	}

	reg.MustRegister(p.started, p.advanced, p.finished, p.rejected, p.durations)

	return p
}

func (p *Prom) IncExecutionStarted(flowCode string) {
	p.started.WithLabelValues(flowCode).Inc()
}

func (p *Prom) IncTransition(flowCode, nodeKind string) {
	p.advanced.WithLabelValues(flowCode, nodeKind).Inc()
}

func (p *Prom) IncExecutionFinished(flowCode, status string) {
	p.finished.WithLabelValues(flowCode, status).Inc()
}

func (p *Prom) IncTransitionRejected(reason string) {
	p.rejected.WithLabelValues(reason).Inc()
}

func (p *Prom) ObserveExecutionDuration(flowCode string, seconds float64) {
	p.durations.WithLabelValues(flowCode).Observe(seconds)
}

// Handler returns an HTTP handler for /metrics serving the given gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
