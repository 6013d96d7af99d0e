// Package notifications exposes the notification sink over HTTP for
// polling clients: per-recipient feeds and read receipts.
package notifications

import (
	"net/http"

	"github.com/openrp/cad/api/httpx"
	"github.com/openrp/cad/core/model"
	"github.com/openrp/cad/core/notify"
)

// NewHandler serves GET /api/notifications?recipient=<id>. The feed
// contains broadcasts plus the recipient's direct notifications, with
// per-recipient read flags. unread=1 filters to unread only.
func NewHandler(sink *notify.Sink) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		recipient := r.URL.Query().Get("recipient")
		if recipient == "" {
			httpx.Error(w, &model.ValidationError{Field: "recipient", Reason: "must not be empty"})
			return
		}
		var items []model.Notification
		if r.URL.Query().Get("unread") == "1" {
			items = sink.Unread(recipient)
		} else {
			items = sink.All(recipient)
		}
		httpx.JSON(w, http.StatusOK, httpx.NewNotificationViews(items))
	})
}

type readRequest struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
}

// NewReadHandler serves POST /api/notifications/read.
func NewReadHandler(sink *notify.Sink) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req readRequest
		if err := httpx.Decode(r, &req); err != nil {
			httpx.Error(w, &model.ValidationError{Field: "body", Reason: err.Error()})
			return
		}
		if req.Recipient == "" {
			httpx.Error(w, &model.ValidationError{Field: "recipient", Reason: "must not be empty"})
			return
		}
		if err := sink.MarkRead(req.ID, req.Recipient); err != nil {
			httpx.Error(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]bool{"read": true})
	})
}

type readAllRequest struct {
	Recipient string `json:"recipient"`
}

// NewReadAllHandler serves POST /api/notifications/read_all and
// reports how many notifications were newly marked.
func NewReadAllHandler(sink *notify.Sink) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req readAllRequest
		if err := httpx.Decode(r, &req); err != nil {
			httpx.Error(w, &model.ValidationError{Field: "body", Reason: err.Error()})
			return
		}
		if req.Recipient == "" {
			httpx.Error(w, &model.ValidationError{Field: "recipient", Reason: "must not be empty"})
			return
		}
		marked := sink.MarkAllRead(req.Recipient)
		httpx.JSON(w, http.StatusOK, map[string]int{"marked": marked})
	})
}
