package httpx

import (
	"time"

	"github.com/openrp/cad/core/model"
)

// LocationView renders a location for API responses.
type LocationView struct {
	X       *float64 `json:"x,omitempty"`
	Y       *float64 `json:"y,omitempty"`
	Address string   `json:"address,omitempty"`
}

// NewLocationView converts a location, returning nil for nil input.
func NewLocationView(l *model.Location) *LocationView {
	if l == nil {
		return nil
	}
	v := &LocationView{Address: l.Text}
	if l.HasXY {
		x, y := l.X, l.Y
		v.X, v.Y = &x, &y
	}
	return v
}

// LocationInput is the request-side location shape. Coordinates and a
// free-form address are both optional; coordinates win when present.
type LocationInput struct {
	X       *float64 `json:"x"`
	Y       *float64 `json:"y"`
	Address string   `json:"address"`
}

// Model converts the input to a domain location, nil when empty.
func (in *LocationInput) Model() *model.Location {
	if in == nil {
		return nil
	}
	if in.X != nil && in.Y != nil {
		l := model.NewCoordinate(*in.X, *in.Y)
		l.Text = in.Address
		return l
	}
	if in.Address != "" {
		return model.NewAddress(in.Address)
	}
	return nil
}

// UnitView renders a unit for API responses.
type UnitView struct {
	ID         string        `json:"id"`
	Callsign   string        `json:"callsign"`
	Department string        `json:"department"`
	Status     string        `json:"status"`
	Location   *LocationView `json:"location,omitempty"`
	CallID     string        `json:"call_id,omitempty"`
	Inactive   bool          `json:"inactive,omitempty"`
	Version    uint64        `json:"version"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// NewUnitView converts a unit.
func NewUnitView(u model.Unit) UnitView {
	return UnitView{
		ID:         u.ID,
		Callsign:   u.Callsign,
		Department: u.Department.String(),
		Status:     u.Status.String(),
		Location:   NewLocationView(u.Location),
		CallID:     u.CallID,
		Inactive:   u.Inactive,
		Version:    u.Version,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// NewUnitViews converts a slice of units.
func NewUnitViews(units []model.Unit) []UnitView {
	out := make([]UnitView, len(units))
	for i, u := range units {
		out[i] = NewUnitView(u)
	}
	return out
}

// NoteView renders a call note.
type NoteView struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// AttachmentView renders a call attachment.
type AttachmentView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Ref       string    `json:"ref"`
	CreatedAt time.Time `json:"created_at"`
}

// CallView renders a call for API responses.
type CallView struct {
	ID           string           `json:"id"`
	Number       string           `json:"number"`
	Type         string           `json:"type"`
	Priority     string           `json:"priority"`
	Location     *LocationView    `json:"location,omitempty"`
	Description  string           `json:"description,omitempty"`
	Status       string           `json:"status"`
	Units        []string         `json:"units"`
	Notes        []NoteView       `json:"notes,omitempty"`
	Attachments  []AttachmentView `json:"attachments,omitempty"`
	Version      uint64           `json:"version"`
	CreatedAt    time.Time        `json:"created_at"`
	DispatchedAt *time.Time       `json:"dispatched_at,omitempty"`
	ClosedAt     *time.Time       `json:"closed_at,omitempty"`
}

// NewCallView converts a call.
func NewCallView(c model.Call) CallView {
	v := CallView{
		ID:           c.ID,
		Number:       c.Number,
		Type:         c.Type,
		Priority:     c.Priority.String(),
		Location:     NewLocationView(c.Location),
		Description:  c.Description,
		Status:       c.Status.String(),
		Units:        c.Units,
		Version:      c.Version,
		CreatedAt:    c.CreatedAt,
		DispatchedAt: c.DispatchedAt,
		ClosedAt:     c.ClosedAt,
	}
	if v.Units == nil {
		v.Units = []string{}
	}
	for _, n := range c.Notes {
		v.Notes = append(v.Notes, NoteView{ID: n.ID, AuthorID: n.AuthorID, Body: n.Body, CreatedAt: n.CreatedAt})
	}
	for _, a := range c.Attachments {
		v.Attachments = append(v.Attachments, AttachmentView{ID: a.ID, Name: a.Name, Ref: a.Ref, CreatedAt: a.CreatedAt})
	}
	return v
}

// NewCallViews converts a slice of calls.
func NewCallViews(calls []model.Call) []CallView {
	out := make([]CallView, len(calls))
	for i, c := range calls {
		out[i] = NewCallView(c)
	}
	return out
}

// AlertView renders an alert for API responses.
type AlertView struct {
	ID         string        `json:"id"`
	Kind       string        `json:"kind"`
	UnitID     string        `json:"unit_id,omitempty"`
	Department string        `json:"department"`
	Location   *LocationView `json:"location,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Urgency    string        `json:"urgency,omitempty"`
	Priority   string        `json:"priority"`
	Status     string        `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}

// NewAlertView converts an alert.
func NewAlertView(a model.Alert) AlertView {
	v := AlertView{
		ID:         a.ID,
		Kind:       a.Kind.String(),
		UnitID:     a.UnitID,
		Department: a.Department.String(),
		Location:   NewLocationView(a.Location),
		Reason:     a.Reason,
		Priority:   a.Priority.String(),
		Status:     a.Status.String(),
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
		ResolvedAt: a.ResolvedAt,
	}
	if a.Kind == model.AlertBackup {
		v.Urgency = a.Urgency.String()
	}
	return v
}

// NewAlertViews converts a slice of alerts.
func NewAlertViews(alerts []model.Alert) []AlertView {
	out := make([]AlertView, len(alerts))
	for i, a := range alerts {
		out[i] = NewAlertView(a)
	}
	return out
}

// NotificationView renders a notification for API responses.
type NotificationView struct {
	ID        string    `json:"id"`
	RefKind   string    `json:"ref_kind"`
	RefID     string    `json:"ref_id"`
	Recipient string    `json:"recipient,omitempty"`
	Broadcast bool      `json:"broadcast"`
	Priority  string    `json:"priority"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// NewNotificationView converts a notification.
func NewNotificationView(n model.Notification) NotificationView {
	return NotificationView{
		ID:        n.ID,
		RefKind:   n.RefKind.String(),
		RefID:     n.RefID,
		Recipient: n.Scope.Recipient,
		Broadcast: n.Scope.IsBroadcast(),
		Priority:  n.Priority.String(),
		Message:   n.Message,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}

// NewNotificationViews converts a slice of notifications.
func NewNotificationViews(ns []model.Notification) []NotificationView {
	out := make([]NotificationView, len(ns))
	for i, n := range ns {
		out[i] = NewNotificationView(n)
	}
	return out
}
