package metrics

import (
	"time"

	"github.com/openrp/cad/core/model"
)

// AssignmentEvent represents one assignment attempt to be recorded.
type AssignmentEvent struct {
	CallID   string
	UnitID   string
	Result   string // "assigned", "unassigned", "conflict", "rejected"
	Latency  time.Duration
	Priority model.CallPriority
	Time     time.Time
}

// CallEvent represents a call lifecycle transition.
type CallEvent struct {
	CallID   string
	Number   string
	Type     string
	Status   model.CallStatus
	Priority model.CallPriority
	Time     time.Time
}

// AlertEvent represents an emitted alert.
type AlertEvent struct {
	AlertID    string
	Kind       model.AlertKind
	Department model.Department
	Priority   model.NotificationPriority
	Time       time.Time
}

// MetricsSink records dispatch events for observability purposes.
// Implementations must be safe for concurrent use.
type MetricsSink interface {
	RecordAssignment(ev AssignmentEvent) error
	RecordCall(ev CallEvent) error
	RecordAlert(ev AlertEvent) error
	RecordActiveUnits(n int) error
}

// NopSink discards all events. Used when metrics are disabled.
type NopSink struct{}

func (NopSink) RecordAssignment(AssignmentEvent) error { return nil }
func (NopSink) RecordCall(CallEvent) error             { return nil }
func (NopSink) RecordAlert(AlertEvent) error           { return nil }
func (NopSink) RecordActiveUnits(int) error            { return nil }
