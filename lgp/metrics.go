package lgp

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors a tree reports to. A nil *Metrics records nothing.
type Metrics struct {
	ComputeCalls    *prometheus.CounterVec
	ComputeDuration *prometheus.HistogramVec
	Completed       *prometheus.CounterVec
	Created         *prometheus.CounterVec
}

// NewMetrics registers the tree collectors against reg, defaulting to the global registry when
// reg is nil. Collectors that are already registered are reused, so several trees can share one
// registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	calls, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lgp_compute_calls_total",
		Help: "Number of compute quanta, labeled by node kind.",
	}, []string{"kind"}), "lgp_compute_calls_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lgp_compute_duration_seconds",
		Help:    "Duration of compute quanta in seconds, labeled by node kind.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"kind"}), "lgp_compute_duration_seconds")
	if err != nil {
		return nil, err
	}
	completed, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lgp_nodes_completed_total",
		Help: "Number of nodes that completed, labeled by node kind and outcome.",
	}, []string{"kind", "outcome"}), "lgp_nodes_completed_total")
	if err != nil {
		return nil, err
	}
	created, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lgp_nodes_created_total",
		Help: "Number of nodes created, labeled by node kind.",
	}, []string{"kind"}), "lgp_nodes_created_total")
	if err != nil {
		return nil, err
	}
	return &Metrics{
		ComputeCalls:    calls,
		ComputeDuration: durations,
		Completed:       completed,
		Created:         created,
	}, nil
}

func (m *Metrics) computed(kind Kind, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ComputeCalls.WithLabelValues(kind.String()).Inc()
	m.ComputeDuration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) completed(kind Kind, feasible bool) {
	if m == nil {
		return
	}
	outcome := "feasible"
	if !feasible {
		outcome = "infeasible"
	}
	m.Completed.WithLabelValues(kind.String(), outcome).Inc()
}

func (m *Metrics) created(kind Kind) {
	if m == nil {
		return
	}
	m.Created.WithLabelValues(kind.String()).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok { //nolint:errorlint
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, errors.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok { //nolint:errorlint
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, errors.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
