package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andresvelez/carshare-backend/pkg/config"
	"github.com/andresvelez/carshare-backend/pkg/logger"
	"github.com/andresvelez/carshare-backend/pkg/metrics"
)

// Event names streamed to live subscribers. These are wire names, distinct
// from the broker event types.
const (
	EventNameConnected = "connected"
	EventNameHeartbeat = "heartbeat"
	EventNameConfirmed = "rental-confirmed"
	EventNamePickedUp  = "rental-picked-up"
	EventNameReturned  = "rental-returned"
	EventNameApproved  = "rental-approved"
	EventNameCancelled = "rental-cancelled"
)

// Event is a single message pushed to a live subscriber.
type Event struct {
	Name      string          `json:"name"`
	RentalID  int64           `json:"rentalId,omitempty"`
	RenterID  uuid.UUID       `json:"renterId,omitempty"`
	OwnerID   uuid.UUID       `json:"ownerId,omitempty"`
	VehicleID uuid.UUID       `json:"vehicleId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Filter scopes a subscription to the events a caller may see. A zero filter
// matches nothing; admin streams set MatchAll.
type Filter struct {
	RenterID uuid.UUID
	OwnerID  uuid.UUID
	MatchAll bool
}

func (f Filter) matches(event Event) bool {
	if f.MatchAll {
		return true
	}
	if f.RenterID != uuid.Nil && event.RenterID == f.RenterID {
		return true
	}
	if f.OwnerID != uuid.Nil && event.OwnerID == f.OwnerID {
		return true
	}
	return false
}

// Subscription is one live connection's view of the hub.
type Subscription struct {
	ID     string
	Events <-chan Event

	filter Filter
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// trySend queues the event unless the buffer is full. Sends after close are
// ignored so a concurrent unsubscribe cannot panic a broadcast.
func (s *Subscription) trySend(event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- event:
		return true
	default:
		return false
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Hub owns the in-memory subscription set. All state is instance-scoped so
// unit tests and multiple relays can coexist.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]*Subscription
	cfg     config.RelayConfig
	logg    *logger.Logger
	metrics *metrics.RelayMetrics
}

func NewHub(cfg config.RelayConfig, logg *logger.Logger, m *metrics.RelayMetrics) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 16
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 25 * time.Second
	}
	return &Hub{
		subs:    make(map[string]*Subscription),
		cfg:     cfg,
		logg:    logg,
		metrics: m,
	}
}

// Subscribe registers a new subscription. The caller must call Unsubscribe
// when the connection closes. A connected event is queued immediately so the
// client learns its subscription id.
func (h *Hub) Subscribe(subscriberID string, filter Filter) *Subscription {
	if subscriberID == "" {
		subscriberID = uuid.NewString()
	}
	ch := make(chan Event, h.cfg.BufferSize)
	sub := &Subscription{
		ID:     subscriberID,
		Events: ch,
		filter: filter,
		ch:     ch,
	}

	h.mu.Lock()
	// A reconnect with the same id replaces the stale subscription.
	if prev, ok := h.subs[subscriberID]; ok {
		prev.close()
	}
	h.subs[subscriberID] = sub
	count := len(h.subs)
	h.mu.Unlock()

	sub.trySend(Event{Name: EventNameConnected})
	h.metrics.SetSubscriptions(count)
	return sub
}

// Unsubscribe removes the subscription and closes its channel. Safe to call
// more than once.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	count := len(h.subs)
	h.mu.Unlock()

	if ok {
		sub.close()
	}
	h.metrics.SetSubscriptions(count)
}

// Count reports the active subscription count.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Broadcast fans the event out to every subscription whose filter matches.
// Delivery is best effort: a subscriber whose buffer is full is dropped so a
// slow reader cannot stall the rest.
func (h *Hub) Broadcast(ctx context.Context, event Event) {
	h.mu.Lock()
	snapshot := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		// Heartbeats keep every connection alive regardless of filter.
		if event.Name == EventNameHeartbeat || sub.filter.matches(event) {
			snapshot = append(snapshot, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range snapshot {
		if sub.trySend(event) {
			h.metrics.IncDelivered(event.Name)
			continue
		}
		h.metrics.IncDropped(event.Name)
		logCtx := h.logg.WithFields(ctx, map[string]any{
			"subscription_id": sub.ID,
			"event":           event.Name,
		})
		h.logg.Warn(logCtx, "dropping slow live subscriber")
		h.Unsubscribe(sub.ID)
	}
}

// RunHeartbeat pushes a heartbeat to every subscription on a fixed interval
// until the context is canceled. Run it once per hub.
func (h *Hub) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Broadcast(ctx, Event{Name: EventNameHeartbeat})
		}
	}
}
