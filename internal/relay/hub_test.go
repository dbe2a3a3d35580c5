package relay

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/andresvelez/carshare-backend/pkg/config"
	"github.com/andresvelez/carshare-backend/pkg/logger"
)

func newTestHub(t *testing.T, bufferSize int) *Hub {
	t.Helper()
	cfg := config.RelayConfig{
		HeartbeatInterval: 5 * time.Millisecond,
		SendTimeout:       time.Second,
		BufferSize:        bufferSize,
	}
	logg := logger.New(logger.Options{ServiceName: "relay-test", Output: io.Discard})
	return NewHub(cfg, logg, nil)
}

func drainConnected(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case event := <-sub.Events:
		if event.Name != EventNameConnected {
			t.Fatalf("expected connected event first, got %q", event.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connected event")
	}
}

func TestSubscribeDeliversConnectedEvent(t *testing.T) {
	hub := newTestHub(t, 4)
	sub := hub.Subscribe("", Filter{MatchAll: true})
	defer hub.Unsubscribe(sub.ID)

	if sub.ID == "" {
		t.Fatal("expected a generated subscription id")
	}
	drainConnected(t, sub)
	if hub.Count() != 1 {
		t.Fatalf("expected one subscription, got %d", hub.Count())
	}
}

func TestBroadcastHonorsFilters(t *testing.T) {
	hub := newTestHub(t, 4)
	renterID := uuid.New()
	ownerID := uuid.New()

	renterSub := hub.Subscribe("renter", Filter{RenterID: renterID})
	ownerSub := hub.Subscribe("owner", Filter{OwnerID: ownerID})
	strangerSub := hub.Subscribe("stranger", Filter{RenterID: uuid.New()})
	defer hub.Unsubscribe(renterSub.ID)
	defer hub.Unsubscribe(ownerSub.ID)
	defer hub.Unsubscribe(strangerSub.ID)
	drainConnected(t, renterSub)
	drainConnected(t, ownerSub)
	drainConnected(t, strangerSub)

	hub.Broadcast(context.Background(), Event{
		Name:     EventNameConfirmed,
		RentalID: 7,
		RenterID: renterID,
		OwnerID:  ownerID,
	})

	for _, sub := range []*Subscription{renterSub, ownerSub} {
		select {
		case event := <-sub.Events:
			if event.Name != EventNameConfirmed || event.RentalID != 7 {
				t.Fatalf("unexpected event for %s: %+v", sub.ID, event)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s did not receive the event", sub.ID)
		}
	}

	select {
	case event := <-strangerSub.Events:
		t.Fatalf("stranger should not receive the event, got %q", event.Name)
	default:
	}
}

func TestBroadcastDropsSlowSubscriber(t *testing.T) {
	hub := newTestHub(t, 1)
	sub := hub.Subscribe("slow", Filter{MatchAll: true})
	// The connected event fills the single-slot buffer; the subscriber never
	// reads, so the next broadcast must evict it.
	hub.Broadcast(context.Background(), Event{Name: EventNameConfirmed})

	if hub.Count() != 0 {
		t.Fatalf("slow subscriber should be removed, count=%d", hub.Count())
	}
	if _, open := <-sub.Events; !open {
		return
	}
	// Drain the buffered connected event, then the channel must be closed.
	if _, open := <-sub.Events; open {
		t.Fatal("expected subscription channel to be closed")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	hub := newTestHub(t, 4)
	sub := hub.Subscribe("once", Filter{MatchAll: true})
	hub.Unsubscribe(sub.ID)
	hub.Unsubscribe(sub.ID)
	if hub.Count() != 0 {
		t.Fatalf("expected zero subscriptions, got %d", hub.Count())
	}
}

func TestHeartbeatReachesFilteredSubscribers(t *testing.T) {
	hub := newTestHub(t, 4)
	sub := hub.Subscribe("renter", Filter{RenterID: uuid.New()})
	defer hub.Unsubscribe(sub.ID)
	drainConnected(t, sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.RunHeartbeat(ctx)

	select {
	case event := <-sub.Events:
		if event.Name != EventNameHeartbeat {
			t.Fatalf("expected heartbeat, got %q", event.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for heartbeat")
	}
}

func TestResubscribeReplacesStaleConnection(t *testing.T) {
	hub := newTestHub(t, 4)
	first := hub.Subscribe("client-1", Filter{MatchAll: true})
	drainConnected(t, first)
	second := hub.Subscribe("client-1", Filter{MatchAll: true})
	defer hub.Unsubscribe(second.ID)

	if hub.Count() != 1 {
		t.Fatalf("expected the stale subscription replaced, count=%d", hub.Count())
	}
	if _, open := <-first.Events; open {
		t.Fatal("expected the first subscription channel to be closed")
	}
}
