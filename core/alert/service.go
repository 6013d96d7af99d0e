// Package alert generates urgent events (panic, backup request, BOLO,
// supervisor alert) and fans them out as notifications. Every alert is
// paired with exactly one notification; the pairing is applied under
// one lock so no observer can see an alert without its notification.
package alert

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openrp/cad/core/bridge"
	"github.com/openrp/cad/core/history"
	"github.com/openrp/cad/core/logger"
	"github.com/openrp/cad/core/metrics"
	"github.com/openrp/cad/core/model"
	"github.com/openrp/cad/core/notify"
	"github.com/openrp/cad/core/registry"
)

// Service creates and resolves alerts.
type Service struct {
	mu     sync.RWMutex
	alerts map[string]*model.Alert

	units  registry.Registry
	sink   *notify.Sink
	bridge bridge.Bridge
	mx     metrics.MetricsSink
	store  history.LogStore
	log    logger.Logger
	policy *OverloadPolicy
}

// Option configures the service.
type Option func(*Service)

// WithBridge attaches the game-server bridge used to broadcast alerts.
func WithBridge(b bridge.Bridge) Option { return func(s *Service) { s.bridge = b } }

// WithMetrics attaches a metrics sink.
func WithMetrics(m metrics.MetricsSink) Option { return func(s *Service) { s.mx = m } }

// WithHistory attaches the append-only history store.
func WithHistory(h history.LogStore) Option { return func(s *Service) { s.store = h } }

// WithOverloadPolicy enables supervisor alerts on department overload.
func WithOverloadPolicy(p *OverloadPolicy) Option { return func(s *Service) { s.policy = p } }

// NewService creates the alert fan-out.
func NewService(units registry.Registry, sink *notify.Sink, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		alerts: map[string]*model.Alert{},
		units:  units,
		sink:   sink,
		mx:     metrics.NopSink{},
		store:  history.NopStore{},
		log:    log,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// create stores the alert and publishes its paired notification under
// one lock.
func (s *Service) create(ctx context.Context, a model.Alert, scope model.Scope, message string) (model.Alert, model.Notification, error) {
	now := time.Now().UTC()
	a.ID = uuid.NewString()
	a.Status = model.AlertActive
	a.CreatedAt = now
	a.UpdatedAt = now

	s.mu.Lock()
	stored := a
	s.alerts[a.ID] = &stored
	n := s.sink.Publish(model.Notification{
		RefKind:  model.RefAlert,
		RefID:    a.ID,
		Scope:    scope,
		Priority: a.Priority,
		Message:  message,
	})
	s.mu.Unlock()

	s.log.Infof("%s alert %s raised (%s)", a.Kind, a.ID, a.Priority)
	if err := s.mx.RecordAlert(metrics.AlertEvent{
		AlertID: a.ID, Kind: a.Kind, Department: a.Department, Priority: a.Priority, Time: now,
	}); err != nil {
		s.log.Warnf("metrics: %v", err)
	}
	if err := s.store.Append(ctx, history.Record{
		Timestamp: now, Kind: history.KindAlert, AlertID: a.ID, UnitID: a.UnitID,
		Detail: map[string]string{"alert_kind": a.Kind.String(), "priority": a.Priority.String()},
	}); err != nil {
		s.log.Errorf("history append: %v", err)
	}
	if s.bridge != nil {
		if err := s.bridge.BroadcastAlert(a); err != nil {
			s.log.Errorf("alert broadcast: %v", err)
		}
	}
	return a, n, nil
}

// TriggerPanic raises a CRITICAL panic alert for the unit and forces
// it into PANIC status. The unit keeps its call reference.
func (s *Service) TriggerPanic(ctx context.Context, unitID string) (model.Alert, model.Notification, error) {
	unit, err := s.units.SetPanic(unitID)
	if err != nil {
		return model.Alert{}, model.Notification{}, err
	}
	a := model.Alert{
		Kind:       model.AlertPanic,
		UnitID:     unit.ID,
		Department: unit.Department,
		Location:   unit.Location,
		Priority:   model.NotifyCritical,
	}
	msg := fmt.Sprintf("PANIC: unit %s (%s)", unit.Callsign, unit.Department)
	if unit.Location != nil {
		msg += " at " + unit.Location.String()
	}
	return s.create(ctx, a, model.Broadcast, msg)
}

// RequestBackup raises a backup request for the unit. EMERGENCY
// urgency maps to CRITICAL priority, everything else to HIGH.
func (s *Service) RequestBackup(ctx context.Context, unitID string, urgency model.BackupUrgency, reason string) (model.Alert, model.Notification, error) {
	unit, err := s.units.Get(unitID)
	if err != nil {
		return model.Alert{}, model.Notification{}, err
	}
	prio := model.NotifyHigh
	if urgency == model.BackupEmergency {
		prio = model.NotifyCritical
	}
	a := model.Alert{
		Kind:       model.AlertBackup,
		UnitID:     unit.ID,
		Department: unit.Department,
		Location:   unit.Location,
		Reason:     reason,
		Urgency:    urgency,
		Priority:   prio,
	}
	msg := fmt.Sprintf("Backup requested by %s (%s urgency)", unit.Callsign, urgency)
	return s.create(ctx, a, model.Broadcast, msg)
}

// IssueBOLO broadcasts a be-on-the-lookout alert. The notification
// priority comes from the BOLO itself.
func (s *Service) IssueBOLO(ctx context.Context, dept model.Department, priority model.NotificationPriority, loc *model.Location, reason string) (model.Alert, model.Notification, error) {
	if reason == "" {
		return model.Alert{}, model.Notification{}, &model.ValidationError{Field: "reason", Reason: "must not be empty"}
	}
	a := model.Alert{
		Kind:       model.AlertBOLO,
		Department: dept,
		Location:   loc,
		Reason:     reason,
		Priority:   priority,
	}
	return s.create(ctx, a, model.Broadcast, "BOLO: "+reason)
}

// RaiseSupervisorAlert surfaces a policy or escalation notice to
// command staff at HIGH priority.
func (s *Service) RaiseSupervisorAlert(ctx context.Context, dept model.Department, reason string) (model.Alert, model.Notification, error) {
	if reason == "" {
		return model.Alert{}, model.Notification{}, &model.ValidationError{Field: "reason", Reason: "must not be empty"}
	}
	a := model.Alert{
		Kind:       model.AlertSupervisor,
		Department: dept,
		Reason:     reason,
		Priority:   model.NotifyHigh,
	}
	return s.create(ctx, a, model.Broadcast, fmt.Sprintf("Supervisor alert (%s): %s", dept, reason))
}

// Get returns the alert by id.
func (s *Service) Get(id string) (model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return model.Alert{}, &model.NotFoundError{Kind: "alert", ID: id}
	}
	return *a, nil
}

// Active returns non-terminal alerts, newest first.
func (s *Service) Active() []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.Alert
	for _, a := range s.alerts {
		if !a.Status.Terminal() {
			res = append(res, *a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res
}

// Progress moves an alert forward through its response lifecycle.
// Regressions are rejected as invalid transitions. Terminal statuses
// stamp ResolvedAt; re-applying the same terminal status is a no-op.
// Resolving a panic alert is the only path returning its unit from
// PANIC to AVAILABLE.
func (s *Service) Progress(ctx context.Context, id string, status model.AlertStatus) (model.Alert, error) {
	s.mu.Lock()
	a, ok := s.alerts[id]
	if !ok {
		s.mu.Unlock()
		return model.Alert{}, &model.NotFoundError{Kind: "alert", ID: id}
	}
	if a.Status.Terminal() {
		if a.Status == status {
			out := *a
			s.mu.Unlock()
			return out, nil
		}
		out := *a
		s.mu.Unlock()
		return out, &model.ConflictError{Reason: "alert is " + a.Status.String()}
	}
	if !a.Status.CanTransition(status) {
		out := *a
		s.mu.Unlock()
		return out, &model.InvalidTransitionError{Kind: "alert", ID: id,
			From: a.Status.String(), To: status.String()}
	}
	now := time.Now().UTC()
	a.Status = status
	a.UpdatedAt = now
	if status.Terminal() {
		a.ResolvedAt = &now
	}
	out := *a
	s.mu.Unlock()

	if out.Kind == model.AlertPanic && status.Terminal() && out.UnitID != "" {
		if _, _, err := s.units.ClearPanic(out.UnitID); err != nil {
			s.log.Errorf("clear panic for unit %s: %v", out.UnitID, err)
		}
	}
	if err := s.store.Append(ctx, history.Record{
		Timestamp: now, Kind: history.KindAlert, AlertID: out.ID, UnitID: out.UnitID,
		Detail: map[string]string{"alert_kind": out.Kind.String(), "status": out.Status.String()},
	}); err != nil {
		s.log.Errorf("history append: %v", err)
	}
	return out, nil
}

// CheckOverload evaluates the overload policy against the current
// unit snapshot and raises one supervisor alert per overloaded
// department. Departments with an active supervisor alert are skipped.
func (s *Service) CheckOverload(ctx context.Context) []model.Alert {
	if s.policy == nil {
		return nil
	}
	overloaded := s.policy.Evaluate(s.units.Snapshot())
	var raised []model.Alert
	for _, dept := range overloaded {
		if s.hasActiveSupervisorAlert(dept) {
			continue
		}
		a, _, err := s.RaiseSupervisorAlert(ctx, dept, "department workload exceeds overload threshold")
		if err != nil {
			s.log.Errorf("overload alert for %s: %v", dept, err)
			continue
		}
		raised = append(raised, a)
	}
	return raised
}

func (s *Service) hasActiveSupervisorAlert(dept model.Department) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.alerts {
		if a.Kind == model.AlertSupervisor && a.Department == dept && !a.Status.Terminal() {
			return true
		}
	}
	return false
}
