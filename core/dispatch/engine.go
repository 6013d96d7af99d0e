// Package dispatch implements the assignment engine: the one place
// that links units to calls. Unit status and call assignment are
// co-designed, so every mutation that touches both ledgers goes
// through here.
package dispatch

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/openrp/cad/core/bridge"
	"github.com/openrp/cad/core/history"
	"github.com/openrp/cad/core/ledger"
	"github.com/openrp/cad/core/logger"
	"github.com/openrp/cad/core/metrics"
	"github.com/openrp/cad/core/model"
	"github.com/openrp/cad/core/registry"
	"github.com/openrp/cad/internal/eventbus"
)

// DistanceFunc computes the distance between two locations. The
// default is the planar metric from model.Location; coordinate
// semantics are game-engine units, so the metric stays pluggable
// rather than silently upgraded to a geodesic formula.
type DistanceFunc func(a, b *model.Location) float64

// PlanarDistance is the default metric.
func PlanarDistance(a, b *model.Location) float64 { return a.DistanceTo(b) }

// EventKind classifies engine events on the bus.
type EventKind string

const (
	EventCallOpened EventKind = "call_opened"
	EventCallStatus EventKind = "call_status"
	EventAssigned   EventKind = "assigned"
	EventUnassigned EventKind = "unassigned"
	EventUnitStatus EventKind = "unit_status"
)

// Event is published for every engine mutation.
type Event struct {
	Kind   EventKind
	CallID string
	UnitID string
	Status string
	Time   time.Time
}

// Engine coordinates the unit registry and the call ledger.
type Engine struct {
	units      registry.Registry
	calls      ledger.Ledger
	bridge     bridge.Bridge
	sink       metrics.MetricsSink
	store      history.LogStore
	bus        *eventbus.Bus[Event]
	log        logger.Logger
	distance   DistanceFunc
	ackTimeout time.Duration
}

// Option configures the engine.
type Option func(*Engine)

// WithBridge attaches the game-server bridge used to deliver dispatch
// orders.
func WithBridge(b bridge.Bridge) Option { return func(e *Engine) { e.bridge = b } }

// WithMetrics attaches a metrics sink.
func WithMetrics(s metrics.MetricsSink) Option { return func(e *Engine) { e.sink = s } }

// WithHistory attaches the append-only history store.
func WithHistory(s history.LogStore) Option { return func(e *Engine) { e.store = s } }

// WithDistance overrides the proximity metric.
func WithDistance(d DistanceFunc) Option { return func(e *Engine) { e.distance = d } }

// WithAckTimeout overrides how long dispatch orders wait for a game
// client acknowledgment.
func WithAckTimeout(d time.Duration) Option { return func(e *Engine) { e.ackTimeout = d } }

// NewEngine creates the engine. units, calls and log are required.
func NewEngine(units registry.Registry, calls ledger.Ledger, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		units:      units,
		calls:      calls,
		sink:       metrics.NopSink{},
		store:      history.NopStore{},
		bus:        eventbus.New[Event](),
		log:        log,
		distance:   PlanarDistance,
		ackTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Events returns a subscription to engine events.
func (e *Engine) Events() <-chan Event { return e.bus.Subscribe() }

// Unsubscribe releases an event subscription.
func (e *Engine) Unsubscribe(ch <-chan Event) { e.bus.Unsubscribe(ch) }

// Close shuts down the event bus. The history store is closed by
// whoever created it.
func (e *Engine) Close() error {
	e.bus.Close()
	return nil
}

func (e *Engine) publish(kind EventKind, callID, unitID, status string) {
	e.bus.Publish(Event{Kind: kind, CallID: callID, UnitID: unitID, Status: status, Time: time.Now().UTC()})
}

func (e *Engine) record(ctx context.Context, rec history.Record) {
	rec.Timestamp = time.Now().UTC()
	if err := e.store.Append(ctx, rec); err != nil {
		e.log.Errorf("history append: %v", err)
	}
}

// OpenCall creates a call for service in the ledger.
func (e *Engine) OpenCall(ctx context.Context, c model.Call) (model.Call, error) {
	created, err := e.calls.Open(c)
	if err != nil {
		return model.Call{}, err
	}
	e.log.Infof("call %s opened (%s, priority %s)", created.Number, created.Type, created.Priority)
	if err := e.sink.RecordCall(metrics.CallEvent{
		CallID: created.ID, Number: created.Number, Type: created.Type,
		Status: created.Status, Priority: created.Priority, Time: created.CreatedAt,
	}); err != nil {
		e.log.Warnf("metrics: %v", err)
	}
	e.record(ctx, history.Record{Kind: history.KindCallOpened, CallID: created.ID,
		Detail: map[string]string{"number": created.Number, "type": created.Type}})
	e.publish(EventCallOpened, created.ID, "", created.Status.String())
	return created, nil
}

// UpdateCallStatus transitions a call directly, e.g. an explicit close.
// PENDING to DISPATCHED is not reachable here; that transition only
// happens as an assignment side effect so the two ledgers can never
// disagree about whether a call has been acted upon.
func (e *Engine) UpdateCallStatus(ctx context.Context, callID string, status model.CallStatus) (model.Call, error) {
	if status == model.CallDispatched {
		cur, err := e.calls.Get(callID)
		if err != nil {
			return model.Call{}, err
		}
		if cur.Status == model.CallPending {
			return model.Call{}, &model.InvalidTransitionError{Kind: "call", ID: callID,
				From: cur.Status.String(), To: status.String()}
		}
	}
	c, err := e.calls.UpdateStatus(callID, status)
	if err != nil {
		return model.Call{}, err
	}
	if c.Status.Terminal() {
		// Release any units still attached so the closed call does not
		// trap them. Release keeps PANIC units in PANIC.
		for _, unitID := range c.Units {
			if _, _, rerr := e.units.Release(unitID); rerr != nil && !model.IsNotFound(rerr) {
				e.log.Errorf("release unit %s on call %s close: %v", unitID, callID, rerr)
				continue
			}
			if c, err = e.calls.RemoveUnit(callID, unitID); err != nil {
				return model.Call{}, err
			}
			e.record(ctx, history.Record{Kind: history.KindUnassignment, CallID: callID, UnitID: unitID,
				Detail: map[string]string{"reason": "call " + c.Status.String()}})
			e.publish(EventUnassigned, callID, unitID, "")
		}
	}
	e.record(ctx, history.Record{Kind: history.KindCallStatus, CallID: callID,
		Detail: map[string]string{"status": c.Status.String()}})
	e.publish(EventCallStatus, callID, "", c.Status.String())
	return c, nil
}

// Assign links the unit to the call: the unit moves to ENROUTE and
// references the call, and the call's unit set gains the unit, moving
// a PENDING call to DISPATCHED. Exactly one of two concurrent attempts
// for the same unit wins; the loser gets ConflictError.
func (e *Engine) Assign(ctx context.Context, callID, unitID string) (model.Call, model.Unit, error) {
	start := time.Now()
	call, err := e.calls.Get(callID)
	if err != nil {
		return model.Call{}, model.Unit{}, err
	}
	if call.Status.Terminal() {
		return model.Call{}, model.Unit{}, &model.ConflictError{UnitID: unitID, CallID: callID,
			Reason: "call is " + call.Status.String()}
	}

	unit, err := e.units.Assign(unitID, callID)
	if err != nil {
		if model.IsConflict(err) {
			if serr := e.sink.RecordAssignment(metrics.AssignmentEvent{
				CallID: callID, UnitID: unitID, Result: "conflict",
				Latency: time.Since(start), Priority: call.Priority, Time: start,
			}); serr != nil {
				e.log.Warnf("metrics: %v", serr)
			}
		}
		return model.Call{}, model.Unit{}, err
	}

	call, err = e.calls.AddUnit(callID, unitID)
	if err != nil {
		// The unit claim must not survive a failed ledger update:
		// both mutations apply together or not at all.
		if _, _, rerr := e.units.Release(unitID); rerr != nil {
			e.log.Errorf("rollback of unit %s failed: %v", unitID, rerr)
		}
		return model.Call{}, model.Unit{}, err
	}

	e.log.Infof("unit %s assigned to call %s", unit.Callsign, call.Number)
	if serr := e.sink.RecordAssignment(metrics.AssignmentEvent{
		CallID: callID, UnitID: unitID, Result: "assigned",
		Latency: time.Since(start), Priority: call.Priority, Time: start,
	}); serr != nil {
		e.log.Warnf("metrics: %v", serr)
	}
	e.record(ctx, history.Record{Kind: history.KindAssignment, CallID: callID, UnitID: unitID,
		Detail: map[string]string{"call_number": call.Number, "callsign": unit.Callsign}})
	e.publish(EventAssigned, callID, unitID, unit.Status.String())

	if e.bridge != nil {
		go e.deliverOrder(unit, call)
	}
	return call, unit, nil
}

// deliverOrder pushes the assignment to the unit's game client and
// waits for the acknowledgment.
func (e *Engine) deliverOrder(unit model.Unit, call model.Call) {
	orderID, err := e.bridge.SendDispatchOrder(unit.ID, call.ID, call.Location)
	if err != nil {
		e.log.Errorf("dispatch order for unit %s: %v", unit.Callsign, err)
		return
	}
	ack, err := e.bridge.WaitForAck(orderID, e.ackTimeout)
	if err != nil {
		e.log.Warnf("ack for order %s: %v", orderID, err)
		return
	}
	if !ack {
		e.log.Warnf("unit %s did not acknowledge order %s", unit.Callsign, orderID)
	}
}

// Unassign clears the unit's call reference and returns it to
// AVAILABLE. The call keeps any other assigned units and never
// regresses status.
func (e *Engine) Unassign(ctx context.Context, callID, unitID string) (model.Call, model.Unit, error) {
	call, err := e.calls.Get(callID)
	if err != nil {
		return model.Call{}, model.Unit{}, err
	}
	unit, err := e.units.Get(unitID)
	if err != nil {
		return model.Call{}, model.Unit{}, err
	}
	if unit.CallID != callID && !call.HasUnit(unitID) {
		return model.Call{}, model.Unit{}, &model.ConflictError{UnitID: unitID, CallID: callID,
			Reason: "unit is not assigned to this call"}
	}
	unit, _, err = e.units.Release(unitID)
	if err != nil {
		return model.Call{}, model.Unit{}, err
	}
	call, err = e.calls.RemoveUnit(callID, unitID)
	if err != nil {
		return model.Call{}, model.Unit{}, err
	}
	if serr := e.sink.RecordAssignment(metrics.AssignmentEvent{
		CallID: callID, UnitID: unitID, Result: "unassigned", Priority: call.Priority, Time: time.Now(),
	}); serr != nil {
		e.log.Warnf("metrics: %v", serr)
	}
	e.record(ctx, history.Record{Kind: history.KindUnassignment, CallID: callID, UnitID: unitID})
	e.publish(EventUnassigned, callID, unitID, unit.Status.String())
	return call, unit, nil
}

// ReportStatus applies a direct status report from a field unit. When
// the unit leaves a call-holding status, the reciprocal ledger update
// runs here so the two ledgers stay symmetric.
func (e *Engine) ReportStatus(ctx context.Context, unitID string, status model.UnitStatus, loc *model.Location) (model.Unit, error) {
	if loc != nil {
		if _, err := e.units.SetLocation(unitID, loc); err != nil {
			return model.Unit{}, err
		}
	}
	unit, clearedCall, err := e.units.SetStatus(unitID, status)
	if err != nil {
		return model.Unit{}, err
	}
	if clearedCall != "" {
		if _, err := e.calls.RemoveUnit(clearedCall, unitID); err != nil {
			e.log.Errorf("reciprocal removal of unit %s from call %s: %v", unitID, clearedCall, err)
		}
	}
	e.record(ctx, history.Record{Kind: history.KindUnitStatus, UnitID: unitID,
		Detail: map[string]string{"status": status.String()}})
	e.publish(EventUnitStatus, clearedCall, unitID, status.String())
	return unit, nil
}

// ReportLocation updates a unit's position without touching status.
func (e *Engine) ReportLocation(unitID string, loc *model.Location) (model.Unit, error) {
	return e.units.SetLocation(unitID, loc)
}

// Deactivate soft-deletes a unit and clears any assignment it held.
func (e *Engine) Deactivate(ctx context.Context, unitID string) (model.Unit, error) {
	unit, clearedCall, err := e.units.Deactivate(unitID)
	if err != nil {
		return model.Unit{}, err
	}
	if clearedCall != "" {
		if _, err := e.calls.RemoveUnit(clearedCall, unitID); err != nil {
			e.log.Errorf("reciprocal removal of unit %s from call %s: %v", unitID, clearedCall, err)
		}
	}
	e.record(ctx, history.Record{Kind: history.KindUnitStatus, UnitID: unitID,
		Detail: map[string]string{"status": unit.Status.String(), "inactive": "true"}})
	return unit, nil
}

// Nearest returns up to limit AVAILABLE units ordered by ascending
// distance from loc. Units without a known position are excluded
// rather than sorted arbitrarily; ties break by callsign for
// determinism.
func (e *Engine) Nearest(loc *model.Location, limit int) []model.Unit {
	if limit <= 0 {
		limit = 5
	}
	status := model.UnitAvailable
	candidates := e.units.List(registry.Filter{Status: &status})
	type scored struct {
		unit model.Unit
		dist float64
	}
	var ranked []scored
	for _, u := range candidates {
		d := e.distance(loc, u.Location)
		if math.IsInf(d, 1) {
			continue
		}
		ranked = append(ranked, scored{unit: u, dist: d})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].dist != ranked[j].dist {
			return ranked[i].dist < ranked[j].dist
		}
		return ranked[i].unit.Callsign < ranked[j].unit.Callsign
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	res := make([]model.Unit, len(ranked))
	for i, r := range ranked {
		res[i] = r.unit
	}
	return res
}

// Units exposes the registry for read paths.
func (e *Engine) Units() registry.Registry { return e.units }

// Calls exposes the ledger for read paths.
func (e *Engine) Calls() ledger.Ledger { return e.calls }

// History exposes the append-only event log for read paths.
func (e *Engine) History() history.LogStore { return e.store }
