// Package calls exposes the call ledger over HTTP: intake, lookup,
// status updates and notes.
package calls

import (
	"net/http"

	"github.com/openrp/cad/api/httpx"
	"github.com/openrp/cad/core/dispatch"
	"github.com/openrp/cad/core/ledger"
	"github.com/openrp/cad/core/model"
)

type openRequest struct {
	Type        string               `json:"type"`
	Priority    string               `json:"priority"`
	Location    *httpx.LocationInput `json:"location"`
	Description string               `json:"description"`
}

// NewHandler serves POST /api/calls (intake) and GET /api/calls (list).
// List filters: status, type, open=1 for non-terminal calls only.
func NewHandler(engine *dispatch.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req openRequest
			if err := httpx.Decode(r, &req); err != nil {
				httpx.Error(w, &model.ValidationError{Field: "body", Reason: err.Error()})
				return
			}
			c := model.Call{
				Type:        req.Type,
				Location:    req.Location.Model(),
				Description: req.Description,
			}
			if req.Priority != "" {
				p, err := model.ParseCallPriority(req.Priority)
				if err != nil {
					httpx.Error(w, &model.ValidationError{Field: "priority", Reason: err.Error()})
					return
				}
				c.Priority = p
			}
			opened, err := engine.OpenCall(r.Context(), c)
			if err != nil {
				httpx.Error(w, err)
				return
			}
			httpx.JSON(w, http.StatusCreated, httpx.NewCallView(opened))
		case http.MethodGet:
			f := ledger.Filter{Type: r.URL.Query().Get("type")}
			if s := r.URL.Query().Get("status"); s != "" {
				st, err := model.ParseCallStatus(s)
				if err != nil {
					httpx.Error(w, &model.ValidationError{Field: "status", Reason: err.Error()})
					return
				}
				f.Status = &st
			}
			if r.URL.Query().Get("open") == "1" {
				f.OpenOnly = true
			}
			httpx.JSON(w, http.StatusOK, httpx.NewCallViews(engine.Calls().List(f)))
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// NewDetailHandler serves GET /api/calls/detail?id=<call id>.
func NewDetailHandler(engine *dispatch.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		c, err := engine.Calls().Get(r.URL.Query().Get("id"))
		if err != nil {
			httpx.Error(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, httpx.NewCallView(c))
	})
}

type statusRequest struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`
}

// NewStatusHandler serves POST /api/calls/status. Status changes are
// forward-only; closing or cancelling releases any assigned units.
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
		st, err := model.ParseCallStatus(req.Status)
		if err != nil {
			httpx.Error(w, &model.ValidationError{Field: "status", Reason: err.Error()})
			return
		}
		c, err := engine.UpdateCallStatus(r.Context(), req.CallID, st)
		if err != nil {
			httpx.Error(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, httpx.NewCallView(c))
	})
}

type attachRequest struct {
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Ref    string `json:"ref"`
}

// NewAttachHandler serves POST /api/calls/attach. The ref is an opaque
// pointer into whatever stores the file itself.
func NewAttachHandler(engine *dispatch.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req attachRequest
		if err := httpx.Decode(r, &req); err != nil {
			httpx.Error(w, &model.ValidationError{Field: "body", Reason: err.Error()})
			return
		}
		if req.Ref == "" {
			httpx.Error(w, &model.ValidationError{Field: "ref", Reason: "must not be empty"})
			return
		}
		c, err := engine.Calls().Attach(req.CallID, model.Attachment{Name: req.Name, Ref: req.Ref})
		if err != nil {
			httpx.Error(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, httpx.NewCallView(c))
	})
}

type noteRequest struct {
	CallID   string `json:"call_id"`
	AuthorID string `json:"author_id"`
	Body     string `json:"body"`
}

// NewNoteHandler serves POST /api/calls/note.
func NewNoteHandler(engine *dispatch.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req noteRequest
		if err := httpx.Decode(r, &req); err != nil {
			httpx.Error(w, &model.ValidationError{Field: "body", Reason: err.Error()})
			return
		}
		if req.Body == "" {
			httpx.Error(w, &model.ValidationError{Field: "body", Reason: "must not be empty"})
			return
		}
		c, err := engine.Calls().AppendNote(req.CallID, model.Note{AuthorID: req.AuthorID, Body: req.Body})
		if err != nil {
			httpx.Error(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, httpx.NewCallView(c))
	})
}
