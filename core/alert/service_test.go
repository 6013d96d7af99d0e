package alert

import (
	"context"
	"testing"

	"github.com/openrp/cad/core/model"
	"github.com/openrp/cad/core/notify"
	"github.com/openrp/cad/core/registry"
	"github.com/openrp/cad/infra/logger"
)

func newService(t *testing.T, opts ...Option) (*Service, *registry.MemoryStore, *notify.Sink) {
	t.Helper()
	units := registry.NewMemoryStore()
	sink := notify.NewSink()
	t.Cleanup(sink.Close)
	return NewService(units, sink, logger.NopLogger{}, opts...), units, sink
}

func registerUnit(t *testing.T, units *registry.MemoryStore, callsign string, dept model.Department) model.Unit {
	t.Helper()
	u, err := units.Register(model.Unit{Callsign: callsign, Department: dept})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := units.SetStatus(u.ID, model.UnitAvailable); err != nil {
		t.Fatal(err)
	}
	u, _ = units.Get(u.ID)
	return u
}

func TestTriggerPanicPairsAlertAndNotification(t *testing.T) {
	ctx := context.Background()
	svc, units, sink := newService(t)
	u := registerUnit(t, units, "1A-12", model.DeptPolice)

	a, n, err := svc.TriggerPanic(ctx, u.ID)
	if err != nil {
		t.Fatalf("panic: %v", err)
	}
	if a.Kind != model.AlertPanic || a.Status != model.AlertActive {
		t.Fatalf("alert: %+v", a)
	}
	if a.Priority != model.NotifyCritical || n.Priority != model.NotifyCritical {
		t.Fatalf("panic priority must be CRITICAL: %s / %s", a.Priority, n.Priority)
	}
	if n.RefKind != model.RefAlert || n.RefID != a.ID {
		t.Fatalf("notification must reference its alert: %+v", n)
	}
	if !n.Scope.IsBroadcast() {
		t.Fatal("panic must broadcast")
	}

	got, _ := units.Get(u.ID)
	if got.Status != model.UnitPanic {
		t.Fatalf("unit status: %s", got.Status)
	}

	// the notification is visible to any recipient
	feed := sink.Unread("dispatcher-1")
	if len(feed) != 1 || feed[0].ID != n.ID {
		t.Fatalf("feed: %+v", feed)
	}
}

func TestPanicUnknownUnit(t *testing.T) {
	svc, _, _ := newService(t)
	if _, _, err := svc.TriggerPanic(context.Background(), "missing"); !model.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestBackupPriorityMapping(t *testing.T) {
	ctx := context.Background()
	svc, units, _ := newService(t)
	u := registerUnit(t, units, "1A-12", model.DeptPolice)

	a, _, err := svc.RequestBackup(ctx, u.ID, model.BackupRoutine, "traffic stop")
	if err != nil {
		t.Fatal(err)
	}
	if a.Priority != model.NotifyHigh {
		t.Fatalf("routine backup priority: %s", a.Priority)
	}

	a, _, err = svc.RequestBackup(ctx, u.ID, model.BackupEmergency, "shots fired")
	if err != nil {
		t.Fatal(err)
	}
	if a.Priority != model.NotifyCritical {
		t.Fatalf("emergency backup priority: %s", a.Priority)
	}
}

func TestBOLORequiresReason(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	if _, _, err := svc.IssueBOLO(ctx, model.DeptPolice, model.NotifyNormal, nil, ""); !model.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	a, n, err := svc.IssueBOLO(ctx, model.DeptPolice, model.NotifyNormal, model.NewCoordinate(5, 5), "red sedan, partial plate 7GX")
	if err != nil {
		t.Fatal(err)
	}
	if a.Kind != model.AlertBOLO || n.Priority != model.NotifyNormal {
		t.Fatalf("bolo: %+v / %+v", a, n)
	}
}

func TestProgressLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, units, _ := newService(t)
	u := registerUnit(t, units, "1A-12", model.DeptPolice)
	a, _, err := svc.RequestBackup(ctx, u.ID, model.BackupUrgent, "combative subject")
	if err != nil {
		t.Fatal(err)
	}

	for _, st := range []model.AlertStatus{
		model.AlertAcknowledged, model.AlertResponded, model.AlertArrived,
	} {
		if a, err = svc.Progress(ctx, a.ID, st); err != nil {
			t.Fatalf("to %s: %v", st, err)
		}
	}
	a, err = svc.Progress(ctx, a.ID, model.AlertResolved)
	if err != nil {
		t.Fatal(err)
	}
	if a.ResolvedAt == nil {
		t.Fatal("ResolvedAt not stamped")
	}

	// idempotent terminal re-application
	if _, err := svc.Progress(ctx, a.ID, model.AlertResolved); err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	// any other mutation conflicts
	if _, err := svc.Progress(ctx, a.ID, model.AlertAcknowledged); !model.IsConflict(err) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestProgressForwardOnly(t *testing.T) {
	ctx := context.Background()
	svc, units, _ := newService(t)
	u := registerUnit(t, units, "1A-12", model.DeptPolice)
	a, _, err := svc.RequestBackup(ctx, u.ID, model.BackupUrgent, "combative subject")
	if err != nil {
		t.Fatal(err)
	}
	if a, err = svc.Progress(ctx, a.ID, model.AlertArrived); err != nil {
		t.Fatalf("to ARRIVED: %v", err)
	}

	if _, err := svc.Progress(ctx, a.ID, model.AlertActive); !model.IsInvalidTransition(err) {
		t.Fatalf("ARRIVED -> ACTIVE must fail, got %v", err)
	}
	if _, err := svc.Progress(ctx, a.ID, model.AlertAcknowledged); !model.IsInvalidTransition(err) {
		t.Fatalf("ARRIVED -> ACKNOWLEDGED must fail, got %v", err)
	}

	got, err := svc.Get(a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.AlertArrived {
		t.Fatalf("rejected progress must not mutate: %s", got.Status)
	}
	if _, err := svc.Progress(ctx, a.ID, model.AlertResolved); err != nil {
		t.Fatalf("resolve after rejects: %v", err)
	}
}

func TestResolvePanicClearsUnit(t *testing.T) {
	ctx := context.Background()
	svc, units, _ := newService(t)
	u := registerUnit(t, units, "1A-12", model.DeptPolice)

	a, _, err := svc.TriggerPanic(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}

	// no path out of PANIC except resolving the alert
	if _, _, err := units.SetStatus(u.ID, model.UnitAvailable); !model.IsInvalidTransition(err) {
		t.Fatalf("direct exit from PANIC must fail, got %v", err)
	}

	if _, err := svc.Progress(ctx, a.ID, model.AlertResolved); err != nil {
		t.Fatal(err)
	}
	got, _ := units.Get(u.ID)
	if got.Status != model.UnitAvailable {
		t.Fatalf("unit after resolution: %s", got.Status)
	}
}

func TestActiveExcludesTerminal(t *testing.T) {
	ctx := context.Background()
	svc, units, _ := newService(t)
	u := registerUnit(t, units, "1A-12", model.DeptPolice)
	a1, _, _ := svc.RequestBackup(ctx, u.ID, model.BackupRoutine, "r1")
	a2, _, _ := svc.RequestBackup(ctx, u.ID, model.BackupRoutine, "r2")
	if _, err := svc.Progress(ctx, a1.ID, model.AlertDismissed); err != nil {
		t.Fatal(err)
	}
	active := svc.Active()
	if len(active) != 1 || active[0].ID != a2.ID {
		t.Fatalf("active: %+v", active)
	}
}

func TestCheckOverloadRaisesOncePerDepartment(t *testing.T) {
	ctx := context.Background()
	svc, units, _ := newService(t, WithOverloadPolicy(&OverloadPolicy{Sigma: 1, MinBusy: 2}))

	// police saturated, fire and EMS idle
	for i, cs := range []string{"1A-10", "1A-11", "1A-12", "1A-13"} {
		u := registerUnit(t, units, cs, model.DeptPolice)
		if _, err := units.Assign(u.ID, "c"+string(rune('0'+i))); err != nil {
			t.Fatal(err)
		}
	}
	registerUnit(t, units, "E-51", model.DeptFire)
	registerUnit(t, units, "M-71", model.DeptEMS)

	raised := svc.CheckOverload(ctx)
	if len(raised) != 1 || raised[0].Department != model.DeptPolice {
		t.Fatalf("raised: %+v", raised)
	}

	// active supervisor alert suppresses a duplicate
	if again := svc.CheckOverload(ctx); len(again) != 0 {
		t.Fatalf("duplicate raised: %+v", again)
	}

	// once resolved, a persisting overload may be raised again
	if _, err := svc.Progress(ctx, raised[0].ID, model.AlertResolved); err != nil {
		t.Fatal(err)
	}
	if again := svc.CheckOverload(ctx); len(again) != 1 {
		t.Fatalf("re-raise after resolution: %+v", again)
	}
}
