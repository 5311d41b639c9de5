package datastores

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stevenmeyer142/pintler-va-app/internal/logger"
)

type EventType string

const (
	EventUpsert EventType = "upsert"
	EventDelete EventType = "delete"
)

// Event is one record change.
type Event struct {
	Type   EventType `json:"type"`
	ID     string    `json:"id"`
	Record *Record   `json:"record,omitempty"`
	At     time.Time `json:"at"`
	// Origin names the bus instance that published the event.
	Origin string `json:"origin,omitempty"`
}

// Notifier receives record changes after they are written.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

type fanout []Notifier

// Fanout notifies every non-nil notifier in order. One failing does not stop
// the rest; their errors are joined.
func Fanout(notifiers ...Notifier) Notifier {
	var f fanout
	for _, n := range notifiers {
		if n != nil {
			f = append(f, n)
		}
	}
	return f
}

func (f fanout) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const subscriptionBuffer = 16

// Hub fans record events out to in-process subscribers.
type Hub struct {
	mu   sync.RWMutex
	log  *logger.Logger
	subs map[*Subscription]struct{}
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:  log.With("component", "DatastoreHub"),
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscription delivers events for one record id, or every record when the id is empty.
type Subscription struct {
	ID       uuid.UUID
	recordID string
	events   chan Event
	hub      *Hub
	once     sync.Once
}

func (h *Hub) Subscribe(recordID string) *Subscription {
	sub := &Subscription{
		ID:       uuid.New(),
		recordID: recordID,
		events:   make(chan Event, subscriptionBuffer),
		hub:      h,
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("subscriber added", "subscriptionID", sub.ID, "record_id", recordID)
	return sub
}

func (s *Subscription) Events() <-chan Event { return s.events }

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		close(s.events)
		s.hub.mu.Unlock()
		s.hub.log.Debug("subscriber removed", "subscriptionID", s.ID)
	})
}

func (s *Subscription) wants(e Event) bool {
	return s.recordID == "" || s.recordID == e.ID
}

// Notify broadcasts without blocking; a full subscriber buffer drops the event.
func (h *Hub) Notify(ctx context.Context, e Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if !sub.wants(e) {
			continue
		}
		select {
		case sub.events <- e:
		default:
			h.log.Warn("dropping record event; subscriber buffer full", "subscriptionID", sub.ID, "record_id", e.ID)
		}
	}
	return nil
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
