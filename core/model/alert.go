package model

import (
	"fmt"
	"strings"
	"time"
)

// AlertKind identifies the urgent event type.
type AlertKind int

const (
	AlertPanic AlertKind = iota
	AlertBackup
	AlertBOLO
	AlertSupervisor
)

// String returns a human-readable representation of the alert kind.
func (k AlertKind) String() string {
	switch k {
	case AlertPanic:
		return "PANIC"
	case AlertBackup:
		return "BACKUP"
	case AlertBOLO:
		return "BOLO"
	case AlertSupervisor:
		return "SUPERVISOR"
	default:
		return "unknown"
	}
}

// ParseAlertKind converts an alert kind name into its enum value.
func ParseAlertKind(s string) (AlertKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PANIC":
		return AlertPanic, nil
	case "BACKUP":
		return AlertBackup, nil
	case "BOLO":
		return AlertBOLO, nil
	case "SUPERVISOR":
		return AlertSupervisor, nil
	default:
		return 0, fmt.Errorf("unknown alert kind %q", s)
	}
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus int

const (
	AlertActive AlertStatus = iota
	AlertAcknowledged
	AlertResponded
	AlertEnrouteStatus
	AlertArrived
	AlertResolved
	AlertCancelled
	AlertDismissed
)

// String returns a human-readable representation of the alert status.
func (s AlertStatus) String() string {
	switch s {
	case AlertActive:
		return "ACTIVE"
	case AlertAcknowledged:
		return "ACKNOWLEDGED"
	case AlertResponded:
		return "RESPONDED"
	case AlertEnrouteStatus:
		return "ENROUTE"
	case AlertArrived:
		return "ARRIVED"
	case AlertResolved:
		return "RESOLVED"
	case AlertCancelled:
		return "CANCELLED"
	case AlertDismissed:
		return "DISMISSED"
	default:
		return "unknown"
	}
}

// Terminal reports whether the alert status accepts no further change.
func (s AlertStatus) Terminal() bool {
	return s == AlertResolved || s == AlertCancelled || s == AlertDismissed
}

// alertTransitions encodes the forward-only response lifecycle. An
// alert never regresses toward ACTIVE; RESOLVED, CANCELLED and
// DISMISSED accept no further transitions.
var alertTransitions = map[AlertStatus][]AlertStatus{
	AlertActive:        {AlertAcknowledged, AlertResponded, AlertEnrouteStatus, AlertArrived, AlertResolved, AlertCancelled, AlertDismissed},
	AlertAcknowledged:  {AlertResponded, AlertEnrouteStatus, AlertArrived, AlertResolved, AlertCancelled, AlertDismissed},
	AlertResponded:     {AlertEnrouteStatus, AlertArrived, AlertResolved, AlertCancelled, AlertDismissed},
	AlertEnrouteStatus: {AlertArrived, AlertResolved, AlertCancelled, AlertDismissed},
	AlertArrived:       {AlertResolved, AlertCancelled, AlertDismissed},
}

// CanTransition reports whether an alert may move from s to target.
func (s AlertStatus) CanTransition(target AlertStatus) bool {
	for _, t := range alertTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// ParseAlertStatus converts a status name into its enum value.
func ParseAlertStatus(s string) (AlertStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ACTIVE":
		return AlertActive, nil
	case "ACKNOWLEDGED":
		return AlertAcknowledged, nil
	case "RESPONDED":
		return AlertResponded, nil
	case "ENROUTE":
		return AlertEnrouteStatus, nil
	case "ARRIVED":
		return AlertArrived, nil
	case "RESOLVED":
		return AlertResolved, nil
	case "CANCELLED":
		return AlertCancelled, nil
	case "DISMISSED":
		return AlertDismissed, nil
	default:
		return 0, fmt.Errorf("unknown alert status %q", s)
	}
}

// BackupUrgency grades a backup request.
type BackupUrgency int

const (
	BackupRoutine BackupUrgency = iota
	BackupUrgent
	BackupEmergency
)

// String returns a human-readable representation of the urgency.
func (u BackupUrgency) String() string {
	switch u {
	case BackupRoutine:
		return "ROUTINE"
	case BackupUrgent:
		return "URGENT"
	case BackupEmergency:
		return "EMERGENCY"
	default:
		return "unknown"
	}
}

// ParseBackupUrgency converts an urgency name into its enum value.
func ParseBackupUrgency(s string) (BackupUrgency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ROUTINE":
		return BackupRoutine, nil
	case "URGENT":
		return BackupUrgent, nil
	case "EMERGENCY":
		return BackupEmergency, nil
	default:
		return 0, fmt.Errorf("unknown backup urgency %q", s)
	}
}

// Alert is an urgent event record. Alerts have an independent lifecycle
// from units and calls but are frequently created as side effects of
// their transitions. Resolution never deletes an alert; only status and
// timestamps change.
type Alert struct {
	ID         string
	Kind       AlertKind
	UnitID     string
	Department Department
	Location   *Location
	Reason     string
	Urgency    BackupUrgency // backup requests only
	Priority   NotificationPriority
	Status     AlertStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt *time.Time
}
