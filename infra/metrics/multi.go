package metrics

import coremetrics "github.com/openrp/cad/core/metrics"

// MultiSink fans dispatch events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAssignment forwards the event to all sinks, returning the
// first error encountered.
func (m *MultiSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordAssignment(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordCall forwards the event to all sinks.
func (m *MultiSink) RecordCall(ev coremetrics.CallEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordCall(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordAlert forwards the event to all sinks.
func (m *MultiSink) RecordAlert(ev coremetrics.AlertEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordAlert(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordActiveUnits forwards the gauge to all sinks.
func (m *MultiSink) RecordActiveUnits(n int) error {
	for _, s := range m.Sinks {
		if err := s.RecordActiveUnits(n); err != nil {
			return err
		}
	}
	return nil
}
