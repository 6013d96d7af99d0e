// Package notify implements the append-only notification feed consumed
// by dispatcher clients. Notifications are created once and never
// rewritten; only per-recipient read state mutates.
package notify

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openrp/cad/core/model"
	"github.com/openrp/cad/internal/eventbus"
)

// Sink is the in-memory notification store plus a push feed. Clients
// may poll Unread or subscribe to Feed; both see the same records.
type Sink struct {
	mu     sync.RWMutex
	items  []model.Notification
	byID   map[string]int
	readBy map[string]map[string]struct{} // notification id -> recipients who read it
	bus    *eventbus.Bus[model.Notification]
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{
		byID:   map[string]int{},
		readBy: map[string]map[string]struct{}{},
		bus:    eventbus.New[model.Notification](),
	}
}

// Publish appends a notification and pushes it to subscribers. The
// stored record is immutable from this point on.
func (s *Sink) Publish(n model.Notification) model.Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.byID[n.ID] = len(s.items)
	s.items = append(s.items, n)
	s.mu.Unlock()
	s.bus.Publish(n)
	return n
}

// Get returns the notification by id.
func (s *Sink) Get(id string) (model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return model.Notification{}, &model.NotFoundError{Kind: "notification", ID: id}
	}
	return s.items[idx], nil
}

// Unread returns the unread notifications visible to the recipient,
// newest first. The Read flag on each copy reflects the recipient's
// own read state.
func (s *Sink) Unread(recipient string) []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.Notification
	for _, n := range s.items {
		if !n.Scope.Matches(recipient) {
			continue
		}
		if s.isRead(n.ID, recipient) {
			continue
		}
		res = append(res, n)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res
}

// All returns every notification visible to the recipient, newest
// first, with per-recipient read flags applied.
func (s *Sink) All(recipient string) []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.Notification
	for _, n := range s.items {
		if !n.Scope.Matches(recipient) {
			continue
		}
		n.Read = s.isRead(n.ID, recipient)
		res = append(res, n)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res
}

func (s *Sink) isRead(id, recipient string) bool {
	set, ok := s.readBy[id]
	if !ok {
		return false
	}
	_, read := set[recipient]
	return read
}

// MarkRead records that the recipient has read the notification. Only
// read state changes; the notification itself is untouched.
func (s *Sink) MarkRead(id, recipient string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return &model.NotFoundError{Kind: "notification", ID: id}
	}
	set, ok := s.readBy[id]
	if !ok {
		set = map[string]struct{}{}
		s.readBy[id] = set
	}
	set[recipient] = struct{}{}
	return nil
}

// MarkAllRead records that the recipient has read everything currently
// visible to them.
func (s *Sink) MarkAllRead(recipient string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, item := range s.items {
		if !item.Scope.Matches(recipient) {
			continue
		}
		set, ok := s.readBy[item.ID]
		if !ok {
			set = map[string]struct{}{}
			s.readBy[item.ID] = set
		}
		if _, read := set[recipient]; !read {
			set[recipient] = struct{}{}
			n++
		}
	}
	return n
}

// Feed returns a push channel of new notifications.
func (s *Sink) Feed() <-chan model.Notification { return s.bus.Subscribe() }

// Unsubscribe releases a feed channel.
func (s *Sink) Unsubscribe(ch <-chan model.Notification) { s.bus.Unsubscribe(ch) }

// Close shuts down the push feed.
func (s *Sink) Close() { s.bus.Close() }
