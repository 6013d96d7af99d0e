package registry

import (
	"sync"
	"testing"

	"github.com/openrp/cad/core/model"
)

func register(t *testing.T, s *MemoryStore, callsign string) model.Unit {
	t.Helper()
	u, err := s.Register(model.Unit{Callsign: callsign, Department: model.DeptPolice})
	if err != nil {
		t.Fatalf("register %s: %v", callsign, err)
	}
	return u
}

func TestRegisterDefaultsToOutOfService(t *testing.T) {
	s := NewMemoryStore()
	u := register(t, s, "1A-12")
	if u.ID == "" {
		t.Fatal("expected generated id")
	}
	if u.Status != model.UnitOutOfService {
		t.Fatalf("new unit status: got %s", u.Status)
	}
}

func TestRegisterValidation(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Register(model.Unit{Department: model.DeptPolice})
	if !model.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSetStatusRejectsEnroute(t *testing.T) {
	s := NewMemoryStore()
	u := register(t, s, "1A-12")
	if _, _, err := s.SetStatus(u.ID, model.UnitAvailable); err != nil {
		t.Fatalf("to available: %v", err)
	}
	_, _, err := s.SetStatus(u.ID, model.UnitEnroute)
	if !model.IsInvalidTransition(err) {
		t.Fatalf("direct ENROUTE must be rejected, got %v", err)
	}
}

func TestSetStatusRejectsPanic(t *testing.T) {
	s := NewMemoryStore()
	u := register(t, s, "1A-12")
	if _, _, err := s.SetStatus(u.ID, model.UnitAvailable); err != nil {
		t.Fatalf("to available: %v", err)
	}
	if _, err := s.Assign(u.ID, "call-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	_, _, err := s.SetStatus(u.ID, model.UnitPanic)
	if !model.IsValidation(err) {
		t.Fatalf("direct PANIC must be rejected, got %v", err)
	}
	got, err := s.Get(u.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.UnitEnroute || got.CallID != "call-1" {
		t.Fatalf("rejected report must not mutate: got %s call %q", got.Status, got.CallID)
	}
}

func TestSetStatusInvalidTransition(t *testing.T) {
	s := NewMemoryStore()
	u := register(t, s, "1A-12")
	_, _, err := s.SetStatus(u.ID, model.UnitBusy)
	if !model.IsInvalidTransition(err) {
		t.Fatalf("OUT_OF_SERVICE -> BUSY must be rejected, got %v", err)
	}
}

func TestPanicExitOnlyViaClearPanic(t *testing.T) {
	s := NewMemoryStore()
	u := register(t, s, "1A-12")
	if _, err := s.SetPanic(u.ID); err != nil {
		t.Fatalf("set panic: %v", err)
	}
	if _, _, err := s.SetStatus(u.ID, model.UnitAvailable); !model.IsInvalidTransition(err) {
		t.Fatalf("leaving PANIC via SetStatus must fail, got %v", err)
	}
	got, _, err := s.ClearPanic(u.ID)
	if err != nil {
		t.Fatalf("clear panic: %v", err)
	}
	if got.Status != model.UnitAvailable {
		t.Fatalf("after clear: got %s", got.Status)
	}
	// idempotent on a unit no longer in panic
	if _, _, err := s.ClearPanic(u.ID); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestAssignConflictAndIdempotence(t *testing.T) {
	s := NewMemoryStore()
	u := register(t, s, "1A-12")
	if _, _, err := s.SetStatus(u.ID, model.UnitAvailable); err != nil {
		t.Fatal(err)
	}
	got, err := s.Assign(u.ID, "c1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got.Status != model.UnitEnroute || got.CallID != "c1" {
		t.Fatalf("after assign: %+v", got)
	}

	// same call again is a no-op
	if _, err := s.Assign(u.ID, "c1"); err != nil {
		t.Fatalf("re-assign same call: %v", err)
	}

	// different call must conflict, never silently reassign
	_, err = s.Assign(u.ID, "c2")
	if !model.IsConflict(err) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	got, err = s.Get(u.ID)
	if err != nil || got.CallID != "c1" {
		t.Fatalf("call reference must be untouched: %+v %v", got, err)
	}
}

func TestAssignRequiresAvailable(t *testing.T) {
	s := NewMemoryStore()
	u := register(t, s, "1A-12")
	if _, err := s.Assign(u.ID, "c1"); !model.IsConflict(err) {
		t.Fatalf("OUT_OF_SERVICE unit must not be assignable, got %v", err)
	}
}

func TestReleaseClearsCall(t *testing.T) {
	s := NewMemoryStore()
	u := register(t, s, "1A-12")
	_, _, _ = s.SetStatus(u.ID, model.UnitAvailable)
	_, _ = s.Assign(u.ID, "c1")
	got, cleared, err := s.Release(u.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if cleared != "c1" || got.CallID != "" || got.Status != model.UnitAvailable {
		t.Fatalf("after release: cleared=%q unit=%+v", cleared, got)
	}
}

func TestDeactivateExcludesFromList(t *testing.T) {
	s := NewMemoryStore()
	u := register(t, s, "1A-12")
	register(t, s, "1A-30")
	if _, _, err := s.Deactivate(u.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if n := len(s.List(Filter{})); n != 1 {
		t.Fatalf("active list: got %d want 1", n)
	}
	if n := len(s.List(Filter{IncludeInactive: true})); n != 2 {
		t.Fatalf("full list: got %d want 2", n)
	}
}

func TestListFilters(t *testing.T) {
	s := NewMemoryStore()
	u1 := register(t, s, "1A-12")
	if _, err := s.Register(model.Unit{Callsign: "E-51", Department: model.DeptFire}); err != nil {
		t.Fatal(err)
	}
	_, _, _ = s.SetStatus(u1.ID, model.UnitAvailable)

	police := model.DeptPolice
	if n := len(s.List(Filter{Department: &police})); n != 1 {
		t.Fatalf("police filter: got %d", n)
	}
	avail := model.UnitAvailable
	if n := len(s.List(Filter{Status: &avail})); n != 1 {
		t.Fatalf("status filter: got %d", n)
	}
}

func TestNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get("nope"); !model.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if _, err := s.Assign("nope", "c1"); !model.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestConcurrentAssignExactlyOneWinner(t *testing.T) {
	s := NewMemoryStore()
	u := register(t, s, "1A-12")
	_, _, _ = s.SetStatus(u.ID, model.UnitAvailable)

	const attempts = 32
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = s.Assign(u.ID, "call-"+string(rune('a'+i%26))+string(rune('0'+i/26)))
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case model.IsConflict(err):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("got %d winners, want exactly 1", winners)
	}
}

func TestVersionBumpsOnMutation(t *testing.T) {
	s := NewMemoryStore()
	u := register(t, s, "1A-12")
	v0 := u.Version
	got, _, err := s.SetStatus(u.ID, model.UnitAvailable)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version <= v0 {
		t.Fatalf("version not bumped: %d -> %d", v0, got.Version)
	}
}
