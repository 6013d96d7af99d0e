package bridge

import (
	"time"

	"github.com/openrp/cad/core/model"
)

// LocationReport is an inbound position update from a game client.
type LocationReport struct {
	UnitID   string
	Location *model.Location
	Time     time.Time
}

// StatusReport is an inbound status change from a game client.
type StatusReport struct {
	UnitID string
	Status model.UnitStatus
	Time   time.Time
}

// PanicSignal is an inbound panic button press from a game client.
type PanicSignal struct {
	UnitID string
	Time   time.Time
}

// Bridge connects the dispatch core to the game server. Outbound it
// delivers dispatch orders and alert broadcasts; inbound it receives
// unit location, status, and panic events.
type Bridge interface {
	// SendDispatchOrder delivers an assignment order to the unit's game
	// client and returns the order id used to track the acknowledgment.
	SendDispatchOrder(unitID, callID string, location *model.Location) (orderID string, err error)

	// WaitForAck waits for the unit to acknowledge the order or until
	// the timeout expires.
	WaitForAck(orderID string, timeout time.Duration) (bool, error)

	// BroadcastAlert pushes an alert to every connected client.
	BroadcastAlert(alert model.Alert) error

	// OnLocation, OnStatus and OnPanic register inbound handlers. Each
	// replaces any previously registered handler.
	OnLocation(func(LocationReport))
	OnStatus(func(StatusReport))
	OnPanic(func(PanicSignal))

	Close()
}
