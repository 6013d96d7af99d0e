// Package alerts exposes the alert service over HTTP: panic, backup,
// BOLO and supervisor alerts plus lifecycle progression.
package alerts

import (
	"net/http"

	"github.com/openrp/cad/api/httpx"
	"github.com/openrp/cad/core/alert"
	"github.com/openrp/cad/core/model"
)

type triggerRequest struct {
	Kind       string               `json:"kind"`
	UnitID     string               `json:"unit_id"`
	Department string               `json:"department"`
	Urgency    string               `json:"urgency"`
	Priority   string               `json:"priority"`
	Location   *httpx.LocationInput `json:"location"`
	Reason     string               `json:"reason"`
}

type triggerResponse struct {
	Alert        httpx.AlertView        `json:"alert"`
	Notification httpx.NotificationView `json:"notification"`
}

// NewHandler serves POST /api/alerts (trigger) and GET /api/alerts
// (active alerts). The request kind selects the trigger path.
func NewHandler(svc *alert.Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			trigger(svc, w, r)
		case http.MethodGet:
			httpx.JSON(w, http.StatusOK, httpx.NewAlertViews(svc.Active()))
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func trigger(svc *alert.Service, w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, &model.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	kind, err := model.ParseAlertKind(req.Kind)
	if err != nil {
		httpx.Error(w, &model.ValidationError{Field: "kind", Reason: err.Error()})
		return
	}

	var (
		a model.Alert
		n model.Notification
	)
	switch kind {
	case model.AlertPanic:
		a, n, err = svc.TriggerPanic(r.Context(), req.UnitID)
	case model.AlertBackup:
		urgency := model.BackupRoutine
		if req.Urgency != "" {
			if urgency, err = model.ParseBackupUrgency(req.Urgency); err != nil {
				httpx.Error(w, &model.ValidationError{Field: "urgency", Reason: err.Error()})
				return
			}
		}
		a, n, err = svc.RequestBackup(r.Context(), req.UnitID, urgency, req.Reason)
	case model.AlertBOLO:
		dept, derr := model.ParseDepartment(req.Department)
		if derr != nil {
			httpx.Error(w, &model.ValidationError{Field: "department", Reason: derr.Error()})
			return
		}
		priority := model.NotifyNormal
		if req.Priority != "" {
			if priority, err = model.ParseNotificationPriority(req.Priority); err != nil {
				httpx.Error(w, &model.ValidationError{Field: "priority", Reason: err.Error()})
				return
			}
		}
		a, n, err = svc.IssueBOLO(r.Context(), dept, priority, req.Location.Model(), req.Reason)
	case model.AlertSupervisor:
		dept, derr := model.ParseDepartment(req.Department)
		if derr != nil {
			httpx.Error(w, &model.ValidationError{Field: "department", Reason: derr.Error()})
			return
		}
		a, n, err = svc.RaiseSupervisorAlert(r.Context(), dept, req.Reason)
	}
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, triggerResponse{
		Alert:        httpx.NewAlertView(a),
		Notification: httpx.NewNotificationView(n),
	})
}

// NewDetailHandler serves GET /api/alerts/detail?id=<alert id>.
func NewDetailHandler(svc *alert.Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		a, err := svc.Get(r.URL.Query().Get("id"))
		if err != nil {
			httpx.Error(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, httpx.NewAlertView(a))
	})
}

type progressRequest struct {
	AlertID string `json:"alert_id"`
	Status  string `json:"status"`
}

// NewProgressHandler serves POST /api/alerts/status. Resolving a panic
// alert is the only way its unit leaves PANIC.
func NewProgressHandler(svc *alert.Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req progressRequest
		if err := httpx.Decode(r, &req); err != nil {
			httpx.Error(w, &model.ValidationError{Field: "body", Reason: err.Error()})
			return
		}
		st, err := model.ParseAlertStatus(req.Status)
		if err != nil {
			httpx.Error(w, &model.ValidationError{Field: "status", Reason: err.Error()})
			return
		}
		a, err := svc.Progress(r.Context(), req.AlertID, st)
		if err != nil {
			httpx.Error(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, httpx.NewAlertView(a))
	})
}
