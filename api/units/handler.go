// Package units exposes the unit registry over HTTP: registration,
// status and location reports, deactivation and proximity queries.
package units

import (
	"net/http"
	"strconv"

	"github.com/openrp/cad/api/httpx"
	"github.com/openrp/cad/core/dispatch"
	"github.com/openrp/cad/core/model"
	"github.com/openrp/cad/core/registry"
)

type registerRequest struct {
	Callsign   string               `json:"callsign"`
	Department string               `json:"department"`
	Location   *httpx.LocationInput `json:"location"`
}

// NewHandler serves POST /api/units (register) and GET /api/units
// (list). List filters: department, status, inactive=1.
func NewHandler(engine *dispatch.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req registerRequest
			if err := httpx.Decode(r, &req); err != nil {
				httpx.Error(w, &model.ValidationError{Field: "body", Reason: err.Error()})
				return
			}
			dept, err := model.ParseDepartment(req.Department)
			if err != nil {
				httpx.Error(w, &model.ValidationError{Field: "department", Reason: err.Error()})
				return
			}
			u, err := engine.Units().Register(model.Unit{
				Callsign:   req.Callsign,
				Department: dept,
				Location:   req.Location.Model(),
			})
			if err != nil {
				httpx.Error(w, err)
				return
			}
			httpx.JSON(w, http.StatusCreated, httpx.NewUnitView(u))
		case http.MethodGet:
			f := registry.Filter{IncludeInactive: r.URL.Query().Get("inactive") == "1"}
			if s := r.URL.Query().Get("department"); s != "" {
				d, err := model.ParseDepartment(s)
				if err != nil {
					httpx.Error(w, &model.ValidationError{Field: "department", Reason: err.Error()})
					return
				}
				f.Department = &d
			}
			if s := r.URL.Query().Get("status"); s != "" {
				st, err := model.ParseUnitStatus(s)
				if err != nil {
					httpx.Error(w, &model.ValidationError{Field: "status", Reason: err.Error()})
					return
				}
				f.Status = &st
			}
			httpx.JSON(w, http.StatusOK, httpx.NewUnitViews(engine.Units().List(f)))
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

type statusRequest struct {
	UnitID   string               `json:"unit_id"`
	Status   string               `json:"status"`
	Location *httpx.LocationInput `json:"location"`
}

// NewStatusHandler serves POST /api/units/status. A unit leaving its
// call states has its call reference cleared on both sides.
func NewStatusHandler(engine *dispatch.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req statusRequest
		if err := httpx.Decode(r, &req); err != nil {
			httpx.Error(w, &model.ValidationError{Field: "body", Reason: err.Error()})
			return
		}
		st, err := model.ParseUnitStatus(req.Status)
		if err != nil {
			httpx.Error(w, &model.ValidationError{Field: "status", Reason: err.Error()})
			return
		}
		u, err := engine.ReportStatus(r.Context(), req.UnitID, st, req.Location.Model())
		if err != nil {
			httpx.Error(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, httpx.NewUnitView(u))
	})
}

type locationRequest struct {
	UnitID   string               `json:"unit_id"`
	Location *httpx.LocationInput `json:"location"`
}

// NewLocationHandler serves POST /api/units/location.
func NewLocationHandler(engine *dispatch.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req locationRequest
		if err := httpx.Decode(r, &req); err != nil {
			httpx.Error(w, &model.ValidationError{Field: "body", Reason: err.Error()})
			return
		}
		loc := req.Location.Model()
		if loc == nil {
			httpx.Error(w, &model.ValidationError{Field: "location", Reason: "must not be empty"})
			return
		}
		u, err := engine.ReportLocation(req.UnitID, loc)
		if err != nil {
			httpx.Error(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, httpx.NewUnitView(u))
	})
}

type deactivateRequest struct {
	UnitID string `json:"unit_id"`
}

// NewDeactivateHandler serves POST /api/units/deactivate.
func NewDeactivateHandler(engine *dispatch.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req deactivateRequest
		if err := httpx.Decode(r, &req); err != nil {
			httpx.Error(w, &model.ValidationError{Field: "body", Reason: err.Error()})
			return
		}
		u, err := engine.Deactivate(r.Context(), req.UnitID)
		if err != nil {
			httpx.Error(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, httpx.NewUnitView(u))
	})
}

// NewNearestHandler serves GET /api/units/nearest?x=&y=&limit=.
// Only located AVAILABLE units are returned, nearest first.
func NewNearestHandler(engine *dispatch.Engine, defaultLimit int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		x, errX := strconv.ParseFloat(q.Get("x"), 64)
		y, errY := strconv.ParseFloat(q.Get("y"), 64)
		if errX != nil || errY != nil {
			httpx.Error(w, &model.ValidationError{Field: "x,y", Reason: "must be numeric coordinates"})
			return
		}
		limit := defaultLimit
		if s := q.Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				httpx.Error(w, &model.ValidationError{Field: "limit", Reason: "must be a positive integer"})
				return
			}
			limit = n
		}
		units := engine.Nearest(model.NewCoordinate(x, y), limit)
		httpx.JSON(w, http.StatusOK, httpx.NewUnitViews(units))
	})
}
