package coordinator

import (
	"time"

	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors shared by all coordinators of a
// tree. A nil *Metrics records nothing.
type Metrics struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	dispatches    *prometheus.CounterVec
	ticks         *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "copse_runs_started_total",
			Help: "Runs started, by coordinator kind.",
		}, []string{"kind"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "copse_runs_completed_total",
			Help: "Runs finished, by coordinator kind and final status.",
		}, []string{"kind", "status"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "copse_dispatches_total",
			Help: "Work items handed to children, by coordinator kind.",
		}, []string{"kind"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "copse_ticks_total",
			Help: "Blackboard polls, by coordinator kind.",
		}, []string{"kind"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "copse_run_duration_seconds",
			Help:    "Wall time from trigger to completion, by coordinator kind.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{m.runsStarted, m.runsCompleted, m.dispatches, m.ticks, m.runDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) runStarted(kind blackboard.Kind) {
	if m == nil {
		return
	}
	m.runsStarted.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) runCompleted(kind blackboard.Kind, status blackboard.Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runsCompleted.WithLabelValues(string(kind), string(status)).Inc()
	m.runDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (m *Metrics) dispatched(kind blackboard.Kind, n int) {
	if m == nil || n == 0 {
		return
	}
	m.dispatches.WithLabelValues(string(kind)).Add(float64(n))
}

func (m *Metrics) ticked(kind blackboard.Kind) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(string(kind)).Inc()
}
