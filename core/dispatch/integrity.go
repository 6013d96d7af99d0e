package dispatch

import (
	"context"

	"github.com/openrp/cad/core/history"
	"github.com/openrp/cad/core/model"
	"github.com/openrp/cad/core/monitoring"
)

// Violation describes one broken edge of the unit/call symmetry
// invariant.
type Violation struct {
	Err    *model.IntegrityError
	Repair string // what the reconciliation pass did
}

// IntegrityReport is the result of a consistency check.
type IntegrityReport struct {
	Violations []Violation
}

// OK reports whether the two ledgers were symmetric.
func (r IntegrityReport) OK() bool { return len(r.Violations) == 0 }

// CheckIntegrity scans both ledgers for broken referential symmetry:
// a unit referencing a call must appear in that call's unit set and
// vice versa. Violations are fatal-class: each one is logged, reported
// to the monitor and recorded in history before the reconciliation
// pass repairs it. Units are the source of truth for their own
// assignment, so repairs re-derive call unit sets from unit claims.
func (e *Engine) CheckIntegrity(ctx context.Context) IntegrityReport {
	units := e.units.Snapshot()
	calls := e.calls.Snapshot()

	callsByID := make(map[string]model.Call, len(calls))
	for _, c := range calls {
		callsByID[c.ID] = c
	}
	unitsByID := make(map[string]model.Unit, len(units))
	for _, u := range units {
		unitsByID[u.ID] = u
	}

	var report IntegrityReport

	for _, u := range units {
		if u.CallID == "" {
			continue
		}
		c, ok := callsByID[u.CallID]
		switch {
		case !ok:
			report.Violations = append(report.Violations, e.repair(ctx, &model.IntegrityError{
				UnitID: u.ID, CallID: u.CallID, Detail: "unit references a nonexistent call",
			}, func() string {
				if _, _, err := e.units.Release(u.ID); err != nil {
					return "release failed: " + err.Error()
				}
				return "released unit"
			}))
		case !c.HasUnit(u.ID):
			report.Violations = append(report.Violations, e.repair(ctx, &model.IntegrityError{
				UnitID: u.ID, CallID: u.CallID, Detail: "unit claim missing from call unit set",
			}, func() string {
				if _, err := e.calls.AddUnit(c.ID, u.ID); err != nil {
					return "re-add failed: " + err.Error()
				}
				return "re-added unit to call set"
			}))
		}
	}

	for _, c := range calls {
		for _, unitID := range c.Units {
			u, ok := unitsByID[unitID]
			if ok && u.CallID == c.ID {
				continue
			}
			detail := "call lists a unit that does not claim it"
			if !ok {
				detail = "call lists a nonexistent unit"
			}
			report.Violations = append(report.Violations, e.repair(ctx, &model.IntegrityError{
				UnitID: unitID, CallID: c.ID, Detail: detail,
			}, func() string {
				if _, err := e.calls.RemoveUnit(c.ID, unitID); err != nil {
					return "removal failed: " + err.Error()
				}
				return "removed unit from call set"
			}))
		}
	}

	return report
}

// repair logs, reports and records the violation, then applies fix.
// Nothing is patched silently.
func (e *Engine) repair(ctx context.Context, ierr *model.IntegrityError, fix func() string) Violation {
	e.log.Errorf("%v", ierr)
	monitoring.CaptureException(ierr, map[string]string{
		"unit_id": ierr.UnitID,
		"call_id": ierr.CallID,
	})
	outcome := fix()
	e.record(ctx, history.Record{Kind: history.KindIntegrity, CallID: ierr.CallID, UnitID: ierr.UnitID,
		Detail: map[string]string{"violation": ierr.Detail, "repair": outcome}})
	return Violation{Err: ierr, Repair: outcome}
}
