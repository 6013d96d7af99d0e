package model

import (
	"fmt"
	"strings"
	"time"
)

// NotificationPriority orders notifications for dispatcher clients.
type NotificationPriority int

const (
	NotifyLow NotificationPriority = iota
	NotifyNormal
	NotifyHigh
	NotifyCritical
)

// String returns a human-readable representation of the priority.
func (p NotificationPriority) String() string {
	switch p {
	case NotifyLow:
		return "LOW"
	case NotifyNormal:
		return "NORMAL"
	case NotifyHigh:
		return "HIGH"
	case NotifyCritical:
		return "CRITICAL"
	default:
		return "unknown"
	}
}

// ParseNotificationPriority converts a priority name into its enum value.
func ParseNotificationPriority(s string) (NotificationPriority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return NotifyLow, nil
	case "NORMAL":
		return NotifyNormal, nil
	case "HIGH":
		return NotifyHigh, nil
	case "CRITICAL":
		return NotifyCritical, nil
	default:
		return 0, fmt.Errorf("unknown notification priority %q", s)
	}
}

// RefKind identifies what a notification points at.
type RefKind int

const (
	RefAlert RefKind = iota
	RefCall
	RefBOLO
)

// String returns a human-readable representation of the reference kind.
func (k RefKind) String() string {
	switch k {
	case RefAlert:
		return "ALERT"
	case RefCall:
		return "CALL"
	case RefBOLO:
		return "BOLO"
	default:
		return "unknown"
	}
}

// Scope addresses a notification. The broadcast scope is an explicit
// variant rather than a sentinel recipient id.
type Scope struct {
	Recipient string // empty means broadcast
}

// Broadcast is the scope addressing every dispatcher client.
var Broadcast = Scope{}

// ScopeFor addresses a single recipient.
func ScopeFor(recipient string) Scope {
	return Scope{Recipient: strings.TrimSpace(recipient)}
}

// IsBroadcast reports whether the scope addresses everyone.
func (s Scope) IsBroadcast() bool { return s.Recipient == "" }

// Matches reports whether a notification in this scope is visible to
// the given recipient.
func (s Scope) Matches(recipient string) bool {
	return s.IsBroadcast() || s.Recipient == recipient
}

// Notification is an immutable, append-only record referencing an
// alert, call or BOLO. Message and priority never change after
// creation; only the read flag mutates.
type Notification struct {
	ID        string
	RefKind   RefKind
	RefID     string
	Scope     Scope
	Priority  NotificationPriority
	Message   string
	Read      bool
	CreatedAt time.Time
}
