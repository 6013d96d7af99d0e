package model

import (
	"fmt"
	"strings"
	"time"
)

// Department identifies the agency a unit belongs to.
type Department int

const (
	DeptPolice Department = iota
	DeptFire
	DeptEMS
	DeptDispatch
	DeptCivilian
)

// String returns a human-readable representation of the department.
func (d Department) String() string {
	switch d {
	case DeptPolice:
		return "POLICE"
	case DeptFire:
		return "FIRE"
	case DeptEMS:
		return "EMS"
	case DeptDispatch:
		return "DISPATCH"
	case DeptCivilian:
		return "CIVILIAN"
	default:
		return "unknown"
	}
}

// ParseDepartment converts a department name into its enum value.
func ParseDepartment(s string) (Department, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "POLICE":
		return DeptPolice, nil
	case "FIRE":
		return DeptFire, nil
	case "EMS":
		return DeptEMS, nil
	case "DISPATCH":
		return DeptDispatch, nil
	case "CIVILIAN":
		return DeptCivilian, nil
	default:
		return 0, fmt.Errorf("unknown department %q", s)
	}
}

// UnitStatus is the state of a field unit in the dispatch state machine.
type UnitStatus int

const (
	UnitOutOfService UnitStatus = iota
	UnitAvailable
	UnitEnroute
	UnitOnScene
	UnitBusy
	UnitPanic
)

// String returns a human-readable representation of the unit status.
func (s UnitStatus) String() string {
	switch s {
	case UnitOutOfService:
		return "OUT_OF_SERVICE"
	case UnitAvailable:
		return "AVAILABLE"
	case UnitEnroute:
		return "ENROUTE"
	case UnitOnScene:
		return "ON_SCENE"
	case UnitBusy:
		return "BUSY"
	case UnitPanic:
		return "PANIC"
	default:
		return "unknown"
	}
}

// ParseUnitStatus converts a status name into its enum value.
func ParseUnitStatus(s string) (UnitStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OUT_OF_SERVICE":
		return UnitOutOfService, nil
	case "AVAILABLE":
		return UnitAvailable, nil
	case "ENROUTE":
		return UnitEnroute, nil
	case "ON_SCENE":
		return UnitOnScene, nil
	case "BUSY":
		return UnitBusy, nil
	case "PANIC":
		return UnitPanic, nil
	default:
		return 0, fmt.Errorf("unknown unit status %q", s)
	}
}

// unitTransitions is the allowed transition table for unit statuses.
// PANIC is reachable from any state (emergency override) and is handled
// separately in CanTransition. Leaving PANIC requires alert resolution,
// which is modelled as PANIC -> AVAILABLE only.
// OUT_OF_SERVICE is not a transition target: units only enter it at
// registration and through administrative deactivation.
var unitTransitions = map[UnitStatus][]UnitStatus{
	UnitOutOfService: {UnitAvailable},
	UnitAvailable:    {UnitEnroute},
	UnitEnroute:      {UnitOnScene, UnitAvailable},
	UnitOnScene:      {UnitBusy, UnitAvailable},
	UnitBusy:         {UnitAvailable},
	UnitPanic:        {UnitAvailable},
}

// CanTransition reports whether a unit may move from s to target.
// Entering PANIC bypasses the table entirely.
func (s UnitStatus) CanTransition(target UnitStatus) bool {
	if target == UnitPanic {
		return true
	}
	for _, t := range unitTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// HoldsCall reports whether the status implies an active call reference.
// A unit leaving these states must have its call reference cleared.
func (s UnitStatus) HoldsCall() bool {
	return s == UnitEnroute || s == UnitOnScene || s == UnitBusy
}

// Unit represents a field resource trackable by status and location.
type Unit struct {
	ID         string
	Callsign   string
	Department Department
	Status     UnitStatus
	Location   *Location
	CallID     string // id of the assigned call, empty if none
	Inactive   bool   // soft delete flag, set by Deactivate
	Version    uint64 // bumped on every mutation, used for CAS updates
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks that the unit registration input is sound.
func (u Unit) Validate() error {
	if strings.TrimSpace(u.Callsign) == "" {
		return &ValidationError{Field: "callsign", Reason: "must not be empty"}
	}
	if u.Department.String() == "unknown" {
		return &ValidationError{Field: "department", Reason: "unrecognized"}
	}
	return nil
}

// Assignable reports whether the unit can be considered for dispatch.
func (u Unit) Assignable() bool {
	return !u.Inactive && u.Status == UnitAvailable && u.CallID == ""
}
