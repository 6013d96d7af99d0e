// Package history provides the append-only event log of the dispatch
// core. Every assignment decision, call transition and alert goes
// through a LogStore; records are never rewritten or deleted, which is
// how the no-hard-delete requirement is enforced at the storage layer
// rather than by caller discipline.
package history

import (
	"context"
	"time"
)

// Kind classifies a history record.
type Kind string

const (
	KindCallOpened   Kind = "call_opened"
	KindCallStatus   Kind = "call_status"
	KindAssignment   Kind = "assignment"
	KindUnassignment Kind = "unassignment"
	KindUnitStatus   Kind = "unit_status"
	KindAlert        Kind = "alert"
	KindIntegrity    Kind = "integrity"
)

// Record captures one dispatch event.
type Record struct {
	Timestamp time.Time         `json:"timestamp"`
	Kind      Kind              `json:"kind"`
	CallID    string            `json:"call_id,omitempty"`
	UnitID    string            `json:"unit_id,omitempty"`
	AlertID   string            `json:"alert_id,omitempty"`
	ActorID   string            `json:"actor_id,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// Query defines filters for retrieving records.
type Query struct {
	Start  time.Time
	End    time.Time
	Kind   Kind
	CallID string
	UnitID string
}

// Matches reports whether the record passes the query filters.
func (q Query) Matches(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if q.CallID != "" && r.CallID != q.CallID {
		return false
	}
	if q.UnitID != "" && r.UnitID != q.UnitID {
		return false
	}
	return true
}

// LogStore persists Records and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards records. Used when history is disabled.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error           { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }
