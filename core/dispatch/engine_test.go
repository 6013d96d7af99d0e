package dispatch

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/openrp/cad/core/history"
	"github.com/openrp/cad/core/ledger"
	"github.com/openrp/cad/core/model"
	"github.com/openrp/cad/core/registry"
	"github.com/openrp/cad/infra/logger"
)

func newEngine(t *testing.T, opts ...Option) (*Engine, *registry.MemoryStore, *ledger.MemoryStore) {
	t.Helper()
	units := registry.NewMemoryStore()
	calls := ledger.NewMemoryStore("CAD")
	e := NewEngine(units, calls, logger.NopLogger{}, opts...)
	t.Cleanup(func() { _ = e.Close() })
	return e, units, calls
}

func availableUnit(t *testing.T, e *Engine, units *registry.MemoryStore, callsign string, x, y float64) model.Unit {
	t.Helper()
	u, err := units.Register(model.Unit{
		Callsign:   callsign,
		Department: model.DeptPolice,
		Location:   model.NewCoordinate(x, y),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	u, err = e.ReportStatus(context.Background(), u.ID, model.UnitAvailable, nil)
	if err != nil {
		t.Fatalf("to available: %v", err)
	}
	return u
}

// Mirrors the full lifecycle: open, assign, work the scene, free the
// unit, close.
func TestCallLifecycle(t *testing.T) {
	ctx := context.Background()
	e, units, _ := newEngine(t)
	u := availableUnit(t, e, units, "1A-12", 0, 0)

	call, err := e.OpenCall(ctx, model.Call{Type: "TRAFFIC_STOP", Location: model.NewCoordinate(10, 20)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if call.Status != model.CallPending || call.Number == "" {
		t.Fatalf("opened call: %+v", call)
	}

	call, unit, err := e.Assign(ctx, call.ID, u.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if call.Status != model.CallDispatched {
		t.Fatalf("call after assign: %s", call.Status)
	}
	if unit.Status != model.UnitEnroute || unit.CallID != call.ID {
		t.Fatalf("unit after assign: %+v", unit)
	}

	unit, err = e.ReportStatus(ctx, u.ID, model.UnitOnScene, nil)
	if err != nil {
		t.Fatalf("on scene: %v", err)
	}
	if unit.CallID != call.ID {
		t.Fatal("ON_SCENE must retain the call reference")
	}
	got, _ := e.Calls().Get(call.ID)
	if got.Status != model.CallDispatched {
		t.Fatalf("call must be unaffected by unit status, got %s", got.Status)
	}

	unit, err = e.ReportStatus(ctx, u.ID, model.UnitAvailable, nil)
	if err != nil {
		t.Fatalf("back to available: %v", err)
	}
	if unit.CallID != "" {
		t.Fatal("AVAILABLE must clear the call reference")
	}
	got, _ = e.Calls().Get(call.ID)
	if got.HasUnit(u.ID) {
		t.Fatal("call must drop the unit reciprocally")
	}
	if got.Status != model.CallDispatched {
		t.Fatalf("call must not auto-close, got %s", got.Status)
	}

	got, err = e.UpdateCallStatus(ctx, call.ID, model.CallClosed)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if got.Status != model.CallClosed || got.ClosedAt == nil {
		t.Fatalf("closed call: %+v", got)
	}
	if _, err := e.UpdateCallStatus(ctx, call.ID, model.CallClosed); err != nil {
		t.Fatalf("re-close must be a no-op: %v", err)
	}
}

func TestAssignConflictLeavesFirstAssignment(t *testing.T) {
	ctx := context.Background()
	e, units, _ := newEngine(t)
	u := availableUnit(t, e, units, "1A-12", 0, 0)

	c1, err := e.OpenCall(ctx, model.Call{Type: "MVA", Location: model.NewCoordinate(1, 1)})
	if err != nil {
		t.Fatal(err)
	}
	c2, err := e.OpenCall(ctx, model.Call{Type: "MVA", Location: model.NewCoordinate(2, 2)})
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := e.Assign(ctx, c1.ID, u.ID); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	_, _, err = e.Assign(ctx, c2.ID, u.ID)
	if !model.IsConflict(err) {
		t.Fatalf("second assign must conflict, got %v", err)
	}

	unit, _ := e.Units().Get(u.ID)
	if unit.CallID != c1.ID {
		t.Fatalf("unit must stay on the first call, got %q", unit.CallID)
	}
	got, _ := e.Calls().Get(c2.ID)
	if got.HasUnit(u.ID) || got.Status != model.CallPending {
		t.Fatalf("losing call must be untouched: %+v", got)
	}
}

func TestAssignToTerminalCall(t *testing.T) {
	ctx := context.Background()
	e, units, _ := newEngine(t)
	u := availableUnit(t, e, units, "1A-12", 0, 0)
	c, _ := e.OpenCall(ctx, model.Call{Type: "MVA", Location: model.NewCoordinate(1, 1)})
	if _, err := e.UpdateCallStatus(ctx, c.ID, model.CallCancelled); err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.Assign(ctx, c.ID, u.ID); !model.IsConflict(err) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	unit, _ := e.Units().Get(u.ID)
	if unit.CallID != "" || unit.Status != model.UnitAvailable {
		t.Fatalf("unit claim must not survive: %+v", unit)
	}
}

func TestAssignNotFound(t *testing.T) {
	ctx := context.Background()
	e, units, _ := newEngine(t)
	u := availableUnit(t, e, units, "1A-12", 0, 0)
	c, _ := e.OpenCall(ctx, model.Call{Type: "MVA", Location: model.NewCoordinate(1, 1)})

	if _, _, err := e.Assign(ctx, "missing", u.ID); !model.IsNotFound(err) {
		t.Fatalf("missing call: %v", err)
	}
	if _, _, err := e.Assign(ctx, c.ID, "missing"); !model.IsNotFound(err) {
		t.Fatalf("missing unit: %v", err)
	}
}

func TestUnassignKeepsOtherUnits(t *testing.T) {
	ctx := context.Background()
	e, units, _ := newEngine(t)
	u1 := availableUnit(t, e, units, "1A-12", 0, 0)
	u2 := availableUnit(t, e, units, "1A-30", 5, 5)
	c, _ := e.OpenCall(ctx, model.Call{Type: "MVA", Location: model.NewCoordinate(1, 1)})
	if _, _, err := e.Assign(ctx, c.ID, u1.ID); err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.Assign(ctx, c.ID, u2.ID); err != nil {
		t.Fatal(err)
	}

	call, unit, err := e.Unassign(ctx, c.ID, u1.ID)
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if unit.Status != model.UnitAvailable || unit.CallID != "" {
		t.Fatalf("unassigned unit: %+v", unit)
	}
	if !call.HasUnit(u2.ID) || call.HasUnit(u1.ID) {
		t.Fatalf("call unit set: %v", call.Units)
	}
	if call.Status != model.CallDispatched {
		t.Fatalf("status must not regress, got %s", call.Status)
	}

	if _, _, err := e.Unassign(ctx, c.ID, u1.ID); !model.IsConflict(err) {
		t.Fatalf("unassigning a non-member must conflict, got %v", err)
	}
}

func TestDirectDispatchBlocked(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)
	c, _ := e.OpenCall(ctx, model.Call{Type: "MVA", Location: model.NewCoordinate(1, 1)})
	_, err := e.UpdateCallStatus(ctx, c.ID, model.CallDispatched)
	if !model.IsInvalidTransition(err) {
		t.Fatalf("PENDING -> DISPATCHED by request must fail, got %v", err)
	}
}

// A panic only enters through the alert fan-out. A plain status report
// claiming PANIC is rejected without touching either ledger, so the
// unit keeps its assignment and is not stranded.
func TestReportStatusRejectsPanic(t *testing.T) {
	ctx := context.Background()
	e, units, _ := newEngine(t)
	u := availableUnit(t, e, units, "1A-12", 0, 0)
	c, _ := e.OpenCall(ctx, model.Call{Type: "ROBBERY", Location: model.NewCoordinate(1, 1)})
	if _, _, err := e.Assign(ctx, c.ID, u.ID); err != nil {
		t.Fatal(err)
	}

	_, err := e.ReportStatus(ctx, u.ID, model.UnitPanic, nil)
	if !model.IsValidation(err) {
		t.Fatalf("PANIC by status report must fail, got %v", err)
	}
	unit, _ := units.Get(u.ID)
	if unit.Status != model.UnitEnroute || unit.CallID != c.ID {
		t.Fatalf("unit after rejected report: %+v", unit)
	}
	call, _ := e.Calls().Get(c.ID)
	if !call.HasUnit(u.ID) {
		t.Fatalf("call must keep the unit: %v", call.Units)
	}

	unit, err = e.ReportStatus(ctx, u.ID, model.UnitOnScene, nil)
	if err != nil {
		t.Fatalf("on scene after rejected report: %v", err)
	}
	if unit.Status != model.UnitOnScene {
		t.Fatalf("unit status: %s", unit.Status)
	}
}

func TestCloseReleasesAssignedUnits(t *testing.T) {
	ctx := context.Background()
	e, units, _ := newEngine(t)
	u := availableUnit(t, e, units, "1A-12", 0, 0)
	c, _ := e.OpenCall(ctx, model.Call{Type: "MVA", Location: model.NewCoordinate(1, 1)})
	if _, _, err := e.Assign(ctx, c.ID, u.ID); err != nil {
		t.Fatal(err)
	}

	call, err := e.UpdateCallStatus(ctx, c.ID, model.CallClosed)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(call.Units) != 0 {
		t.Fatalf("closed call must not trap units: %v", call.Units)
	}
	unit, _ := e.Units().Get(u.ID)
	if unit.CallID != "" || unit.Status != model.UnitAvailable {
		t.Fatalf("unit after close: %+v", unit)
	}
}

// The engine borrows the history store; its creator closes it. After
// the engine shuts down, the store still serves queries and appends.
func TestCloseLeavesHistoryStoreOpen(t *testing.T) {
	ctx := context.Background()
	store, err := history.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	e, _, _ := newEngine(t, WithHistory(store))
	if _, err := e.OpenCall(ctx, model.Call{Type: "MVA", Location: model.NewCoordinate(1, 1)}); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	recs, err := store.Query(ctx, history.Query{})
	if err != nil {
		t.Fatalf("query after engine close: %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("expected the opened call on record")
	}
	if err := store.Append(ctx, history.Record{Kind: history.KindUnitStatus, UnitID: "u1"}); err != nil {
		t.Fatalf("append after engine close: %v", err)
	}
}

// Two dispatchers race the same unit onto two different calls. Exactly
// one wins, and both stores agree on the outcome.
func TestConcurrentAssignTwoCalls(t *testing.T) {
	ctx := context.Background()
	e, units, _ := newEngine(t)
	u := availableUnit(t, e, units, "1A-12", 0, 0)
	c1, _ := e.OpenCall(ctx, model.Call{Type: "MVA", Location: model.NewCoordinate(1, 1)})
	c2, _ := e.OpenCall(ctx, model.Call{Type: "MVA", Location: model.NewCoordinate(2, 2)})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{c1.ID, c2.ID} {
		wg.Add(1)
		go func(i int, callID string) {
			defer wg.Done()
			_, _, errs[i] = e.Assign(ctx, callID, u.ID)
		}(i, id)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else if !model.IsConflict(err) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners: %d", winners)
	}

	unit, _ := e.Units().Get(u.ID)
	onC1, _ := e.Calls().Get(c1.ID)
	onC2, _ := e.Calls().Get(c2.ID)
	if unit.CallID == "" {
		t.Fatal("winner must hold the unit")
	}
	if onC1.HasUnit(u.ID) == onC2.HasUnit(u.ID) {
		t.Fatalf("exactly one call may list the unit: c1=%v c2=%v", onC1.Units, onC2.Units)
	}
	winning := onC1
	if unit.CallID == c2.ID {
		winning = onC2
	}
	if !winning.HasUnit(u.ID) {
		t.Fatal("unit claim and call set disagree")
	}
}

func TestNearest(t *testing.T) {
	e, units, _ := newEngine(t)
	far := availableUnit(t, e, units, "1A-99", 100, 100)
	near := availableUnit(t, e, units, "1A-12", 1, 1)
	mid := availableUnit(t, e, units, "1A-30", 10, 10)

	// unlocated and non-available units never appear
	unlocated, _ := units.Register(model.Unit{Callsign: "1A-50", Department: model.DeptPolice})
	_, _, _ = units.SetStatus(unlocated.ID, model.UnitAvailable)
	busy := availableUnit(t, e, units, "1A-60", 0, 0)
	if _, err := units.Assign(busy.ID, "c1"); err != nil {
		t.Fatal(err)
	}

	got := e.Nearest(model.NewCoordinate(0, 0), 10)
	if len(got) != 3 {
		t.Fatalf("candidates: %d", len(got))
	}
	order := []string{near.ID, mid.ID, far.ID}
	for i, want := range order {
		if got[i].ID != want {
			t.Fatalf("position %d: got %s", i, got[i].Callsign)
		}
	}

	if got := e.Nearest(model.NewCoordinate(0, 0), 2); len(got) != 2 {
		t.Fatalf("limit: %d", len(got))
	}
}

func TestNearestTieBreaksByCallsign(t *testing.T) {
	e, units, _ := newEngine(t)
	b := availableUnit(t, e, units, "1B-01", 3, 4)
	a := availableUnit(t, e, units, "1A-01", 4, 3)

	got := e.Nearest(model.NewCoordinate(0, 0), 10)
	if len(got) != 2 || got[0].ID != a.ID || got[1].ID != b.ID {
		t.Fatalf("tie break order: %v, %v", got[0].Callsign, got[1].Callsign)
	}
}

func TestEventsPublished(t *testing.T) {
	ctx := context.Background()
	e, units, _ := newEngine(t)
	u := availableUnit(t, e, units, "1A-12", 0, 0)

	events := e.Events()
	defer e.Unsubscribe(events)

	c, err := e.OpenCall(ctx, model.Call{Type: "MVA", Location: model.NewCoordinate(1, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.Assign(ctx, c.ID, u.ID); err != nil {
		t.Fatal(err)
	}

	kinds := map[EventKind]bool{}
	for i := 0; i < 2; i++ {
		ev := <-events
		kinds[ev.Kind] = true
	}
	if !kinds[EventCallOpened] || !kinds[EventAssigned] {
		t.Fatalf("events seen: %v", kinds)
	}
}
