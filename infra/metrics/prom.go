package metrics

import (
	coremetrics "github.com/openrp/cad/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records dispatch events in Prometheus metrics.
type PromSink struct {
	calls       *prometheus.CounterVec
	assignments *prometheus.CounterVec
	alerts      *prometheus.CounterVec
	latency     prometheus.Histogram
	activeUnits prometheus.Gauge
}

// NewPromSink registers dispatch metrics on the default Prometheus
// registerer. The metrics server is started separately using
// cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cad_calls_total",
		Help: "Total number of call lifecycle events",
	}, []string{"status", "priority"})
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cad_assignments_total",
		Help: "Total number of assignment attempts by result",
	}, []string{"result"})
	alerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cad_alerts_total",
		Help: "Total number of alerts by kind and priority",
	}, []string{"kind", "priority"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cad_assignment_latency_seconds",
		Help:    "Time taken to apply an assignment across both ledgers",
		Buckets: prometheus.DefBuckets,
	})
	activeUnits := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cad_active_units",
		Help: "Number of active (non-deactivated) units in the registry",
	})

	for _, c := range []prometheus.Collector{calls, assignments, alerts, latency, activeUnits} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}

	return &PromSink{
		calls:       calls,
		assignments: assignments,
		alerts:      alerts,
		latency:     latency,
		activeUnits: activeUnits,
	}, nil
}

// RecordAssignment increments the assignment counter and observes the
// apply latency.
func (s *PromSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	s.assignments.WithLabelValues(ev.Result).Inc()
	if ev.Latency > 0 {
		s.latency.Observe(ev.Latency.Seconds())
	}
	return nil
}

// RecordCall increments the call lifecycle counter.
func (s *PromSink) RecordCall(ev coremetrics.CallEvent) error {
	s.calls.WithLabelValues(ev.Status.String(), ev.Priority.String()).Inc()
	return nil
}

// RecordAlert increments the alert counter.
func (s *PromSink) RecordAlert(ev coremetrics.AlertEvent) error {
	s.alerts.WithLabelValues(ev.Kind.String(), ev.Priority.String()).Inc()
	return nil
}

// RecordActiveUnits sets the active unit gauge.
func (s *PromSink) RecordActiveUnits(n int) error {
	s.activeUnits.Set(float64(n))
	return nil
}
