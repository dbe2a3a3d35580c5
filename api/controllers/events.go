package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/andresvelez/carshare-backend/api/middleware"
	"github.com/andresvelez/carshare-backend/api/responses"
	"github.com/andresvelez/carshare-backend/internal/relay"
	pkgerrors "github.com/andresvelez/carshare-backend/pkg/errors"
	"github.com/andresvelez/carshare-backend/pkg/logger"
)

// RentalEvents streams live rental lifecycle events over SSE. The connection
// stays open until the client disconnects; delivery is best effort.
func RentalEvents(hub *relay.Hub, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		filter, err := filterFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		sub := hub.Subscribe(r.URL.Query().Get("subscriber_id"), filter)
		defer hub.Unsubscribe(sub.ID)

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case event, open := <-sub.Events:
				if !open {
					return
				}
				if err := writeSSE(w, event); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

// RelaySubscriptionCount reports the number of open live connections.
func RelaySubscriptionCount(hub *relay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]int{"active_subscriptions": hub.Count()})
	}
}

// filterFromRequest scopes the stream to the caller's own rentals. The scope
// query parameter picks which side of the rental the caller watches.
func filterFromRequest(r *http.Request) (relay.Filter, error) {
	actorID := middleware.ActorIDFromContext(r.Context())
	scope := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("scope")))
	switch scope {
	case "", "renter":
		return relay.Filter{RenterID: actorID}, nil
	case "owner":
		return relay.Filter{OwnerID: actorID}, nil
	default:
		return relay.Filter{}, pkgerrors.New(pkgerrors.CodeValidation, "scope must be renter or owner")
	}
}

func writeSSE(w http.ResponseWriter, event relay.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, data)
	return err
}
