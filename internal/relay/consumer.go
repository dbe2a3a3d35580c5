package relay

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/andresvelez/carshare-backend/pkg/enums"
	"github.com/andresvelez/carshare-backend/pkg/logger"
	"github.com/andresvelez/carshare-backend/pkg/outbox"
	"github.com/andresvelez/carshare-backend/pkg/outbox/idempotency"
	"github.com/andresvelez/carshare-backend/pkg/outbox/payloads"
	"github.com/andresvelez/carshare-backend/pkg/outbox/registry"
)

const relayConsumer = "relay"

// Consumer bridges the broker to the in-memory hub. Delivery downstream of
// the broker is at-most-once; the idempotency guard only suppresses
// duplicate broker redeliveries, it adds no durability.
type Consumer struct {
	hub          *Hub
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	decoders     *registry.DecoderRegistry
	logg         *logger.Logger
}

func NewConsumer(hub *Hub, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if hub == nil {
		return nil, fmt.Errorf("relay hub required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("relay subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		hub:          hub,
		subscription: subscription,
		idempotency:  manager,
		decoders:     relayDecoders(),
		logg:         logg,
	}, nil
}

// relayDecoders registers the version 1 payload shape for every rental
// lifecycle event the stream relays.
func relayDecoders() *registry.DecoderRegistry {
	decoders := registry.NewDecoderRegistry()
	decoders.Register(enums.EventRentalConfirmed, 1, func(payload json.RawMessage) (interface{}, error) {
		var p payloads.RentalConfirmedEvent
		return &p, json.Unmarshal(payload, &p)
	})
	decoders.Register(enums.EventRentalPickedUp, 1, func(payload json.RawMessage) (interface{}, error) {
		var p payloads.RentalPickedUpEvent
		return &p, json.Unmarshal(payload, &p)
	})
	decoders.Register(enums.EventRentalReturned, 1, func(payload json.RawMessage) (interface{}, error) {
		var p payloads.RentalReturnedEvent
		return &p, json.Unmarshal(payload, &p)
	})
	decoders.Register(enums.EventRentalReturnApproved, 1, func(payload json.RawMessage) (interface{}, error) {
		var p payloads.RentalReturnApprovedEvent
		return &p, json.Unmarshal(payload, &p)
	})
	decoders.Register(enums.EventRentalCancelled, 1, func(payload json.RawMessage) (interface{}, error) {
		var p payloads.RentalCancelledEvent
		return &p, json.Unmarshal(payload, &p)
	})
	return decoders
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	fields := map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	}
	logCtx := c.logg.WithFields(ctx, fields)

	name, ok := eventNameFor(eventType)
	if !ok {
		c.logg.Debug(logCtx, "skipping event with no live stream mapping")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	if envelope.EventID == "" {
		c.logg.Warn(logCtx, "envelope missing event id")
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, relayConsumer, envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already relayed")
		return processResult{ack: true}
	}

	decoded, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode payload", err)
		_ = c.idempotency.Delete(ctx, relayConsumer, envelope.EventID)
		return processResult{ack: true}
	}

	c.hub.Broadcast(logCtx, lifecycleEvent(name, decoded, envelope.Data))
	return processResult{ack: true}
}

func eventNameFor(eventType enums.OutboxEventType) (string, bool) {
	switch eventType {
	case enums.EventRentalConfirmed:
		return EventNameConfirmed, true
	case enums.EventRentalPickedUp:
		return EventNamePickedUp, true
	case enums.EventRentalReturned:
		return EventNameReturned, true
	case enums.EventRentalReturnApproved:
		return EventNameApproved, true
	case enums.EventRentalCancelled:
		return EventNameCancelled, true
	default:
		return "", false
	}
}

// lifecycleEvent extracts the routing fields from the decoded payload and
// keeps the raw payload for the client.
func lifecycleEvent(name string, decoded interface{}, data json.RawMessage) Event {
	event := Event{Name: name, Data: data}
	switch p := decoded.(type) {
	case *payloads.RentalConfirmedEvent:
		event.RentalID, event.RenterID, event.OwnerID, event.VehicleID = p.RentalID, p.RenterID, p.OwnerID, p.VehicleID
	case *payloads.RentalPickedUpEvent:
		event.RentalID, event.RenterID, event.OwnerID, event.VehicleID = p.RentalID, p.RenterID, p.OwnerID, p.VehicleID
	case *payloads.RentalReturnedEvent:
		event.RentalID, event.RenterID, event.OwnerID, event.VehicleID = p.RentalID, p.RenterID, p.OwnerID, p.VehicleID
	case *payloads.RentalReturnApprovedEvent:
		event.RentalID, event.RenterID, event.OwnerID, event.VehicleID = p.RentalID, p.RenterID, p.OwnerID, p.VehicleID
	case *payloads.RentalCancelledEvent:
		event.RentalID, event.RenterID, event.OwnerID, event.VehicleID = p.RentalID, p.RenterID, p.OwnerID, p.VehicleID
	}
	return event
}
