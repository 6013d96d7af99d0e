package model

import (
	"fmt"
	"strings"
	"time"
)

// CallPriority orders calls for service by urgency.
type CallPriority int

const (
	PriorityLow CallPriority = iota
	PriorityMedium
	PriorityHigh
	PriorityEmergency
)

// String returns a human-readable representation of the priority.
func (p CallPriority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	case PriorityEmergency:
		return "EMERGENCY"
	default:
		return "unknown"
	}
}

// ParseCallPriority converts a priority name into its enum value.
func ParseCallPriority(s string) (CallPriority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return PriorityLow, nil
	case "MEDIUM":
		return PriorityMedium, nil
	case "HIGH":
		return PriorityHigh, nil
	case "EMERGENCY":
		return PriorityEmergency, nil
	default:
		return 0, fmt.Errorf("unknown call priority %q", s)
	}
}

// CallStatus is the lifecycle state of a call for service.
type CallStatus int

const (
	CallPending CallStatus = iota
	CallDispatched
	CallEnroute
	CallOnScene
	CallClosed
	CallCancelled
)

// String returns a human-readable representation of the call status.
func (s CallStatus) String() string {
	switch s {
	case CallPending:
		return "PENDING"
	case CallDispatched:
		return "DISPATCHED"
	case CallEnroute:
		return "ENROUTE"
	case CallOnScene:
		return "ON_SCENE"
	case CallClosed:
		return "CLOSED"
	case CallCancelled:
		return "CANCELLED"
	default:
		return "unknown"
	}
}

// ParseCallStatus converts a status name into its enum value.
func ParseCallStatus(s string) (CallStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING":
		return CallPending, nil
	case "DISPATCHED":
		return CallDispatched, nil
	case "ENROUTE":
		return CallEnroute, nil
	case "ON_SCENE":
		return CallOnScene, nil
	case "CLOSED":
		return CallClosed, nil
	case "CANCELLED":
		return CallCancelled, nil
	default:
		return 0, fmt.Errorf("unknown call status %q", s)
	}
}

// Terminal reports whether the status is a lifecycle sink.
func (s CallStatus) Terminal() bool {
	return s == CallClosed || s == CallCancelled
}

// callTransitions encodes the forward-only call lifecycle. A call never
// regresses; CLOSED and CANCELLED accept no further transitions.
var callTransitions = map[CallStatus][]CallStatus{
	CallPending:    {CallDispatched, CallClosed, CallCancelled},
	CallDispatched: {CallEnroute, CallOnScene, CallClosed, CallCancelled},
	CallEnroute:    {CallOnScene, CallClosed, CallCancelled},
	CallOnScene:    {CallClosed, CallCancelled},
}

// CanTransition reports whether a call may move from s to target.
func (s CallStatus) CanTransition(target CallStatus) bool {
	for _, t := range callTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Note is an append-only annotation attached to a call.
type Note struct {
	ID        string
	AuthorID  string
	Body      string
	CreatedAt time.Time
}

// Attachment references an externally stored file linked to a call.
type Attachment struct {
	ID        string
	Name      string
	Ref       string // opaque reference into the attachment store
	CreatedAt time.Time
}

// Call represents a request for service moving through the dispatch
// lifecycle. Calls are never deleted; closed calls are retained as
// history.
type Call struct {
	ID           string
	Number       string // human readable, e.g. "CAD-1042"
	Type         string
	Priority     CallPriority
	Location     *Location
	Description  string
	Status       CallStatus
	Units        []string // ids of assigned units
	Notes        []Note
	Attachments  []Attachment
	Version      uint64
	CreatedAt    time.Time
	DispatchedAt *time.Time
	ClosedAt     *time.Time
}

// Validate checks that the call intake input is sound.
func (c Call) Validate() error {
	if strings.TrimSpace(c.Type) == "" {
		return &ValidationError{Field: "type", Reason: "must not be empty"}
	}
	if c.Location == nil {
		return &ValidationError{Field: "location", Reason: "must not be empty"}
	}
	return nil
}

// HasUnit reports whether the unit id is in the call's assigned set.
func (c Call) HasUnit(unitID string) bool {
	for _, id := range c.Units {
		if id == unitID {
			return true
		}
	}
	return false
}
