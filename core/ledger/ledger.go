// Package ledger holds calls for service and their lifecycle state.
// Calls are never deleted: closed and cancelled calls remain queryable
// as history.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/openrp/cad/core/model"
)

// Filter narrows List results.
type Filter struct {
	Status   *model.CallStatus
	Type     string
	OpenOnly bool
}

// Ledger stores calls for service.
type Ledger interface {
	Open(call model.Call) (model.Call, error)
	Get(id string) (model.Call, error)
	List(f Filter) []model.Call

	// UpdateStatus transitions the call. Entering DISPATCHED stamps
	// DispatchedAt once; entering CLOSED or CANCELLED stamps ClosedAt
	// and is terminal. Re-applying a terminal status is a no-op.
	UpdateStatus(id string, status model.CallStatus) (model.Call, error)

	AppendNote(id string, note model.Note) (model.Call, error)
	Attach(id string, att model.Attachment) (model.Call, error)

	// AddUnit records the unit in the call's assigned set. The first
	// assignment moves a PENDING call to DISPATCHED. Reserved for the
	// assignment engine.
	AddUnit(callID, unitID string) (model.Call, error)

	// RemoveUnit drops the unit from the assigned set. The call keeps
	// its other units and never regresses status.
	RemoveUnit(callID, unitID string) (model.Call, error)

	// Snapshot returns a copy of every call for integrity scans.
	Snapshot() []model.Call
}

// MemoryStore is the in-memory Ledger implementation. Call numbers are
// generated from an atomic sequence and are collision free within a
// deployment.
type MemoryStore struct {
	mu     sync.RWMutex
	calls  map[string]*model.Call
	prefix string
	seq    atomic.Uint64
}

// NewMemoryStore creates an empty ledger. prefix is the human-readable
// call number prefix, e.g. "CAD" yields "CAD-1".
func NewMemoryStore(prefix string) *MemoryStore {
	if prefix == "" {
		prefix = "CAD"
	}
	return &MemoryStore{calls: map[string]*model.Call{}, prefix: prefix}
}

// Open creates a call in PENDING with a fresh call number.
func (s *MemoryStore) Open(c model.Call) (model.Call, error) {
	if err := c.Validate(); err != nil {
		return model.Call{}, err
	}
	now := time.Now().UTC()
	c.ID = uuid.NewString()
	c.Number = fmt.Sprintf("%s-%d", s.prefix, s.seq.Add(1))
	c.Status = model.CallPending
	c.Units = nil
	c.Version = 1
	c.CreatedAt = now
	c.DispatchedAt = nil
	c.ClosedAt = nil
	stored := c
	s.mu.Lock()
	s.calls[c.ID] = &stored
	s.mu.Unlock()
	return c, nil
}

// Get returns a copy of the call.
func (s *MemoryStore) Get(id string) (model.Call, error) {
	s.mu.RLock()
	c, ok := s.calls[id]
	if !ok {
		s.mu.RUnlock()
		return model.Call{}, &model.NotFoundError{Kind: "call", ID: id}
	}
	out := cloneCall(c)
	s.mu.RUnlock()
	return out, nil
}

// List returns calls matching the filter, newest first.
func (s *MemoryStore) List(f Filter) []model.Call {
	s.mu.RLock()
	res := make([]model.Call, 0, len(s.calls))
	for _, c := range s.calls {
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		if f.Type != "" && c.Type != f.Type {
			continue
		}
		if f.OpenOnly && c.Status.Terminal() {
			continue
		}
		res = append(res, cloneCall(c))
	}
	s.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res
}

func (s *MemoryStore) update(id string, fn func(*model.Call) error) (model.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return model.Call{}, &model.NotFoundError{Kind: "call", ID: id}
	}
	work := cloneCall(c)
	if err := fn(&work); err != nil {
		return model.Call{}, err
	}
	work.Version++
	*c = work
	return cloneCall(c), nil
}

// UpdateStatus transitions the call through its lifecycle.
func (s *MemoryStore) UpdateStatus(id string, status model.CallStatus) (model.Call, error) {
	return s.update(id, func(c *model.Call) error {
		if c.Status == status && status.Terminal() {
			return nil // idempotent re-close
		}
		if !c.Status.CanTransition(status) {
			return &model.InvalidTransitionError{Kind: "call", ID: id, From: c.Status.String(), To: status.String()}
		}
		applyStatus(c, status)
		return nil
	})
}

func applyStatus(c *model.Call, status model.CallStatus) {
	now := time.Now().UTC()
	c.Status = status
	if status == model.CallDispatched && c.DispatchedAt == nil {
		c.DispatchedAt = &now
	}
	if status.Terminal() && c.ClosedAt == nil {
		c.ClosedAt = &now
	}
}

// AppendNote adds a note. Notes never gate the state machine.
func (s *MemoryStore) AppendNote(id string, note model.Note) (model.Call, error) {
	return s.update(id, func(c *model.Call) error {
		if note.ID == "" {
			note.ID = uuid.NewString()
		}
		if note.CreatedAt.IsZero() {
			note.CreatedAt = time.Now().UTC()
		}
		c.Notes = append(c.Notes, note)
		return nil
	})
}

// Attach links an attachment reference. Append-only.
func (s *MemoryStore) Attach(id string, att model.Attachment) (model.Call, error) {
	return s.update(id, func(c *model.Call) error {
		if att.ID == "" {
			att.ID = uuid.NewString()
		}
		if att.CreatedAt.IsZero() {
			att.CreatedAt = time.Now().UTC()
		}
		c.Attachments = append(c.Attachments, att)
		return nil
	})
}

// AddUnit records an assignment in the call's unit set.
func (s *MemoryStore) AddUnit(callID, unitID string) (model.Call, error) {
	return s.update(callID, func(c *model.Call) error {
		if c.Status.Terminal() {
			return &model.ConflictError{UnitID: unitID, CallID: callID,
				Reason: "call is " + c.Status.String()}
		}
		if c.HasUnit(unitID) {
			return nil
		}
		c.Units = append(c.Units, unitID)
		if c.Status == model.CallPending {
			applyStatus(c, model.CallDispatched)
		}
		return nil
	})
}

// RemoveUnit drops an assignment from the call's unit set.
func (s *MemoryStore) RemoveUnit(callID, unitID string) (model.Call, error) {
	return s.update(callID, func(c *model.Call) error {
		for i, id := range c.Units {
			if id == unitID {
				c.Units = append(c.Units[:i], c.Units[i+1:]...)
				return nil
			}
		}
		return nil
	})
}

// Snapshot copies every call for integrity scans.
func (s *MemoryStore) Snapshot() []model.Call {
	return s.List(Filter{})
}

func cloneCall(c *model.Call) model.Call {
	out := *c
	out.Units = append([]string(nil), c.Units...)
	out.Notes = append([]model.Note(nil), c.Notes...)
	out.Attachments = append([]model.Attachment(nil), c.Attachments...)
	return out
}
