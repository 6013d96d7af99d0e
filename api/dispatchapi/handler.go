// Package dispatchapi exposes the assignment engine over HTTP:
// assign, unassign, the history log and the integrity scan.
package dispatchapi

import (
	"net/http"
	"time"

	"github.com/openrp/cad/api/httpx"
	"github.com/openrp/cad/core/dispatch"
	"github.com/openrp/cad/core/history"
	"github.com/openrp/cad/core/model"
)

type assignRequest struct {
	CallID string `json:"call_id"`
	UnitID string `json:"unit_id"`
}

type assignResponse struct {
	Call httpx.CallView `json:"call"`
	Unit httpx.UnitView `json:"unit"`
}

// NewAssignHandler serves POST /api/dispatch/assign.
func NewAssignHandler(engine *dispatch.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req assignRequest
		if err := httpx.Decode(r, &req); err != nil {
			httpx.Error(w, &model.ValidationError{Field: "body", Reason: err.Error()})
			return
		}
		call, unit, err := engine.Assign(r.Context(), req.CallID, req.UnitID)
		if err != nil {
			httpx.Error(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, assignResponse{
			Call: httpx.NewCallView(call),
			Unit: httpx.NewUnitView(unit),
		})
	})
}

// NewUnassignHandler serves POST /api/dispatch/unassign.
func NewUnassignHandler(engine *dispatch.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req assignRequest
		if err := httpx.Decode(r, &req); err != nil {
			httpx.Error(w, &model.ValidationError{Field: "body", Reason: err.Error()})
			return
		}
		call, unit, err := engine.Unassign(r.Context(), req.CallID, req.UnitID)
		if err != nil {
			httpx.Error(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, assignResponse{
			Call: httpx.NewCallView(call),
			Unit: httpx.NewUnitView(unit),
		})
	})
}

// NewHistoryHandler serves GET /api/dispatch/history. Requests must
// include "Bearer <token>" when token is non-empty. Filters: start,
// end (RFC3339), kind, call_id, unit_id.
func NewHistoryHandler(store history.LogStore, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !httpx.RequireBearer(w, r, token) {
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := history.Query{
			Kind:   history.Kind(r.URL.Query().Get("kind")),
			CallID: r.URL.Query().Get("call_id"),
			UnitID: r.URL.Query().Get("unit_id"),
		}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			httpx.Error(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, records)
	})
}

type integrityResponse struct {
	OK         bool            `json:"ok"`
	Violations []violationView `json:"violations"`
}

type violationView struct {
	UnitID string `json:"unit_id,omitempty"`
	CallID string `json:"call_id,omitempty"`
	Detail string `json:"detail"`
	Repair string `json:"repair"`
}

// NewIntegrityHandler serves POST /api/dispatch/integrity: runs a
// referential symmetry scan, repairs what it finds and reports it.
func NewIntegrityHandler(engine *dispatch.Engine, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !httpx.RequireBearer(w, r, token) {
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		report := engine.CheckIntegrity(r.Context())
		resp := integrityResponse{OK: report.OK(), Violations: []violationView{}}
		for _, v := range report.Violations {
			resp.Violations = append(resp.Violations, violationView{
				UnitID: v.Err.UnitID,
				CallID: v.Err.CallID,
				Detail: v.Err.Detail,
				Repair: v.Repair,
			})
		}
		httpx.JSON(w, http.StatusOK, resp)
	})
}
