// Package registry holds the authoritative state of every field unit.
// It is the leaf dependency of the dispatch core: the assignment engine
// and the alert fan-out both mutate units exclusively through it.
//
// Updates to a single unit are serialized on a per-unit lock so that
// concurrent assignment attempts targeting the same unit resolve to
// exactly one winner.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openrp/cad/core/model"
)

// Filter narrows List results.
type Filter struct {
	Department      *model.Department
	Status          *model.UnitStatus
	IncludeInactive bool
}

// Registry stores units. Implementations must serialize mutations per
// unit id.
type Registry interface {
	Register(unit model.Unit) (model.Unit, error)
	Get(id string) (model.Unit, error)
	List(f Filter) []model.Unit

	// SetStatus applies a direct status report from the unit itself.
	// Transitions into ENROUTE and PANIC are rejected here: ENROUTE is
	// only valid as the result of an assignment, and PANIC only enters
	// through SetPanic via the alert fan-out. When the new status no longer holds
	// a call, the cleared call id is returned so the caller can apply
	// the reciprocal ledger update.
	SetStatus(id string, status model.UnitStatus) (unit model.Unit, clearedCall string, err error)

	SetLocation(id string, loc *model.Location) (model.Unit, error)
	Deactivate(id string) (model.Unit, string, error)

	// Assign atomically claims the unit for the call: it fails with
	// ConflictError when the unit already holds a different call or is
	// not AVAILABLE, and is a no-op when the unit already holds this
	// call. Reserved for the assignment engine.
	Assign(unitID, callID string) (model.Unit, error)

	// Release returns the unit to AVAILABLE and clears its call
	// reference, reporting the call id it held.
	Release(unitID string) (model.Unit, string, error)

	// SetPanic forces the unit into PANIC, bypassing the transition
	// table. The call reference is retained.
	SetPanic(unitID string) (model.Unit, error)

	// ClearPanic returns a panicking unit to AVAILABLE. Only alert
	// resolution may call this; there is no other way out of PANIC.
	ClearPanic(unitID string) (model.Unit, string, error)

	// Snapshot returns a copy of every unit, including inactive ones,
	// for integrity scans.
	Snapshot() []model.Unit
}

// memEntry pairs a unit with its update lock. The entry mutex is the
// per-unit arbitration point: holding it across a mutation guarantees
// concurrent assignment attempts for the same unit serialize.
type memEntry struct {
	mu   sync.Mutex
	unit model.Unit
}

// MemoryStore is the in-memory Registry implementation.
type MemoryStore struct {
	mu    sync.RWMutex // guards the map itself
	units map[string]*memEntry
}

// NewMemoryStore creates an empty registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{units: map[string]*memEntry{}}
}

func (s *MemoryStore) entry(id string) (*memEntry, bool) {
	s.mu.RLock()
	e, ok := s.units[id]
	s.mu.RUnlock()
	return e, ok
}

// Register creates a unit in OUT_OF_SERVICE.
func (s *MemoryStore) Register(u model.Unit) (model.Unit, error) {
	if err := u.Validate(); err != nil {
		return model.Unit{}, err
	}
	now := time.Now().UTC()
	u.ID = uuid.NewString()
	u.Status = model.UnitOutOfService
	u.CallID = ""
	u.Inactive = false
	u.Version = 1
	u.CreatedAt = now
	u.UpdatedAt = now
	s.mu.Lock()
	s.units[u.ID] = &memEntry{unit: u}
	s.mu.Unlock()
	return u, nil
}

// Get returns a copy of the unit.
func (s *MemoryStore) Get(id string) (model.Unit, error) {
	e, ok := s.entry(id)
	if !ok {
		return model.Unit{}, &model.NotFoundError{Kind: "unit", ID: id}
	}
	e.mu.Lock()
	u := e.unit
	e.mu.Unlock()
	return u, nil
}

// List returns units matching the filter, sorted by callsign.
func (s *MemoryStore) List(f Filter) []model.Unit {
	s.mu.RLock()
	entries := make([]*memEntry, 0, len(s.units))
	for _, e := range s.units {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	res := make([]model.Unit, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		u := e.unit
		e.mu.Unlock()
		if u.Inactive && !f.IncludeInactive {
			continue
		}
		if f.Department != nil && u.Department != *f.Department {
			continue
		}
		if f.Status != nil && u.Status != *f.Status {
			continue
		}
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Callsign < res[j].Callsign })
	return res
}

// update applies fn to the unit under its entry lock. fn mutates the
// copy; the store commits it only when fn returns nil.
func (s *MemoryStore) update(id string, fn func(*model.Unit) error) (model.Unit, error) {
	e, ok := s.entry(id)
	if !ok {
		return model.Unit{}, &model.NotFoundError{Kind: "unit", ID: id}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	u := e.unit
	if err := fn(&u); err != nil {
		return model.Unit{}, err
	}
	u.Version++
	u.UpdatedAt = time.Now().UTC()
	e.unit = u
	return u, nil
}

// SetStatus applies a direct status report.
func (s *MemoryStore) SetStatus(id string, status model.UnitStatus) (model.Unit, string, error) {
	var cleared string
	u, err := s.update(id, func(u *model.Unit) error {
		if status == model.UnitEnroute {
			// Unit status and call assignment are co-designed: ENROUTE
			// only happens through the assignment engine.
			return &model.InvalidTransitionError{Kind: "unit", ID: id, From: u.Status.String(), To: status.String()}
		}
		if status == model.UnitPanic {
			// PANIC only happens through the panic alert, which pairs the
			// status change with the fan-out and the resolution path.
			return &model.ValidationError{Field: "status", Reason: "PANIC is raised through the panic alert, not a status report"}
		}
		if u.Status == model.UnitPanic {
			// Leaving PANIC requires explicit alert resolution.
			return &model.InvalidTransitionError{Kind: "unit", ID: id, From: u.Status.String(), To: status.String()}
		}
		if !u.Status.CanTransition(status) {
			return &model.InvalidTransitionError{Kind: "unit", ID: id, From: u.Status.String(), To: status.String()}
		}
		u.Status = status
		if !status.HoldsCall() && u.CallID != "" {
			cleared = u.CallID
			u.CallID = ""
		}
		return nil
	})
	return u, cleared, err
}

// SetLocation updates the unit's position. It never affects status.
func (s *MemoryStore) SetLocation(id string, loc *model.Location) (model.Unit, error) {
	return s.update(id, func(u *model.Unit) error {
		u.Location = loc
		return nil
	})
}

// Deactivate soft-deletes the unit. Historical references stay valid;
// the unit is excluded from future assignment searches.
func (s *MemoryStore) Deactivate(id string) (model.Unit, string, error) {
	var cleared string
	u, err := s.update(id, func(u *model.Unit) error {
		u.Inactive = true
		u.Status = model.UnitOutOfService
		if u.CallID != "" {
			cleared = u.CallID
			u.CallID = ""
		}
		return nil
	})
	return u, cleared, err
}

// Assign claims the unit for the call.
func (s *MemoryStore) Assign(unitID, callID string) (model.Unit, error) {
	return s.update(unitID, func(u *model.Unit) error {
		if u.CallID == callID && u.Status.HoldsCall() {
			return nil // already on this call
		}
		if u.CallID != "" {
			return &model.ConflictError{UnitID: unitID, CallID: callID,
				Reason: "already assigned to call " + u.CallID}
		}
		if !u.Assignable() {
			return &model.ConflictError{UnitID: unitID, CallID: callID,
				Reason: "unit not available (" + u.Status.String() + ")"}
		}
		u.Status = model.UnitEnroute
		u.CallID = callID
		return nil
	})
}

// Release returns the unit to AVAILABLE.
func (s *MemoryStore) Release(unitID string) (model.Unit, string, error) {
	var cleared string
	u, err := s.update(unitID, func(u *model.Unit) error {
		cleared = u.CallID
		u.CallID = ""
		if u.Status != model.UnitPanic && u.Status != model.UnitOutOfService {
			u.Status = model.UnitAvailable
		}
		return nil
	})
	return u, cleared, err
}

// SetPanic forces the unit into PANIC.
func (s *MemoryStore) SetPanic(unitID string) (model.Unit, error) {
	return s.update(unitID, func(u *model.Unit) error {
		u.Status = model.UnitPanic
		return nil
	})
}

// ClearPanic returns the unit to AVAILABLE after alert resolution.
func (s *MemoryStore) ClearPanic(unitID string) (model.Unit, string, error) {
	var cleared string
	u, err := s.update(unitID, func(u *model.Unit) error {
		if u.Status != model.UnitPanic {
			return nil // panic already cleared, keep idempotent
		}
		u.Status = model.UnitAvailable
		cleared = u.CallID
		u.CallID = ""
		return nil
	})
	return u, cleared, err
}

// Snapshot copies every unit for integrity scans.
func (s *MemoryStore) Snapshot() []model.Unit {
	return s.List(Filter{IncludeInactive: true})
}
