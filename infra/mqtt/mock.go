package mqtt

import (
	"fmt"
	"sync"
	"time"

	corebridge "github.com/openrp/cad/core/bridge"
	"github.com/openrp/cad/core/model"
)

// Bridge mirrors the core bridge interface.
type Bridge = corebridge.Bridge

// MockBridge is a simple bridge used in tests. Inbound events can be
// injected with the Inject* methods.
type MockBridge struct {
	mu         sync.Mutex
	Orders     map[string]string // unit id -> call id
	Alerts     []model.Alert
	FailIDs    map[string]bool
	AckResults map[string]bool
	onLocation func(corebridge.LocationReport)
	onStatus   func(corebridge.StatusReport)
	onPanic    func(corebridge.PanicSignal)
}

// NewMockBridge creates a new MockBridge.
func NewMockBridge() *MockBridge {
	return &MockBridge{
		Orders:     make(map[string]string),
		FailIDs:    make(map[string]bool),
		AckResults: make(map[string]bool),
	}
}

// SendDispatchOrder records the order or returns an error if configured
// to fail for the unit.
func (m *MockBridge) SendDispatchOrder(unitID, callID string, _ *model.Location) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[unitID] {
		return "", fmt.Errorf("publish failed")
	}
	m.Orders[unitID] = callID
	orderID := fmt.Sprintf("order-%s", unitID)
	m.AckResults[orderID] = true
	return orderID, nil
}

// WaitForAck simulates an immediate acknowledgment based on the stored
// result.
func (m *MockBridge) WaitForAck(orderID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	ok, exists := m.AckResults[orderID]
	m.mu.Unlock()
	if !exists {
		return false, fmt.Errorf("unknown order")
	}
	return ok, nil
}

// BroadcastAlert records the alert.
func (m *MockBridge) BroadcastAlert(a model.Alert) error {
	m.mu.Lock()
	m.Alerts = append(m.Alerts, a)
	m.mu.Unlock()
	return nil
}

// OnLocation registers the inbound location handler.
func (m *MockBridge) OnLocation(h func(corebridge.LocationReport)) {
	m.mu.Lock()
	m.onLocation = h
	m.mu.Unlock()
}

// OnStatus registers the inbound status handler.
func (m *MockBridge) OnStatus(h func(corebridge.StatusReport)) {
	m.mu.Lock()
	m.onStatus = h
	m.mu.Unlock()
}

// OnPanic registers the inbound panic handler.
func (m *MockBridge) OnPanic(h func(corebridge.PanicSignal)) {
	m.mu.Lock()
	m.onPanic = h
	m.mu.Unlock()
}

// InjectLocation delivers a location report as if it came from a game
// client.
func (m *MockBridge) InjectLocation(r corebridge.LocationReport) {
	m.mu.Lock()
	h := m.onLocation
	m.mu.Unlock()
	if h != nil {
		h(r)
	}
}

// InjectStatus delivers a status report.
func (m *MockBridge) InjectStatus(r corebridge.StatusReport) {
	m.mu.Lock()
	h := m.onStatus
	m.mu.Unlock()
	if h != nil {
		h(r)
	}
}

// InjectPanic delivers a panic signal.
func (m *MockBridge) InjectPanic(s corebridge.PanicSignal) {
	m.mu.Lock()
	h := m.onPanic
	m.mu.Unlock()
	if h != nil {
		h(s)
	}
}

// Close is a no-op.
func (m *MockBridge) Close() {}
