package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/quickserve/food-dispatch/internal/event"
	kafkax "github.com/quickserve/food-dispatch/internal/kafka"
	"github.com/quickserve/food-dispatch/internal/orders"
)

type Dedup interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// OrderFetcher re-fetches the authoritative order from the order service.
type OrderFetcher interface {
	FetchOrder(ctx context.Context, orderID, token string) (*orders.Order, error)
}

type SubscriberStore interface {
	UpsertOrderCopy(ctx context.Context, oc *OrderCopy) (bool, error)
	UpsertAgent(ctx context.Context, a *Agent) error
}

// OrderCreatedSubscriber persists the delivery-local copy of each new
// order. The event only names the order; the full record comes from an
// authoritative re-fetch using the event's auth token. A failed fetch is
// transient: the handler errors, the message stays uncommitted and is
// redelivered.
type OrderCreatedSubscriber struct {
	Store  SubscriberStore
	Orders OrderFetcher
	Dedup  Dedup
}

func (s *OrderCreatedSubscriber) Handle(ctx context.Context, m kafkago.Message) error {
	var env event.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Printf("order event: dropping undecodable message: %v", err)
		return nil
	}
	if env.EventType != event.TypeOrderCreated {
		return nil
	}
	if seen, err := s.Dedup.Seen(ctx, env.EventID); err == nil && seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[event.OrderCreatedPayload](env.Payload)
	if err != nil || p.OrderID == "" {
		log.Printf("order event %s: dropping bad payload: %v", env.EventID, err)
		return nil
	}

	o, err := s.Orders.FetchOrder(ctx, p.OrderID, p.AuthToken)
	if err != nil {
		return fmt.Errorf("order event %s: %w", env.EventID, err)
	}

	inserted, err := s.Store.UpsertOrderCopy(ctx, &OrderCopy{
		OrderID:       o.ID,
		CustomerID:    o.CustomerID,
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		RestaurantID:  o.RestaurantID,
		Address:       o.Address,
		TotalCents:    o.TotalCents,
		Status:        o.Status,
	})
	if err != nil {
		return fmt.Errorf("order event %s: upsert: %w", env.EventID, err)
	}
	if !inserted {
		log.Printf("order event %s: order=%s already known", env.EventID, o.ID)
	}

	if err := s.Dedup.Mark(ctx, env.EventID); err != nil {
		log.Printf("order event %s: dedup mark: %v", env.EventID, err)
	}
	return nil
}

// AgentRegisteredSubscriber persists newly registered couriers.
type AgentRegisteredSubscriber struct {
	Store SubscriberStore
	Dedup Dedup
}

func (s *AgentRegisteredSubscriber) Handle(ctx context.Context, m kafkago.Message) error {
	var env event.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Printf("agent event: dropping undecodable message: %v", err)
		return nil
	}
	if env.EventType != event.TypeAgentRegistered {
		return nil
	}
	if seen, err := s.Dedup.Seen(ctx, env.EventID); err == nil && seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[event.AgentRegisteredPayload](env.Payload)
	if err != nil || p.Name == "" || p.Phone == "" || p.VehicleType == "" {
		log.Printf("agent event %s: dropping bad payload: %v", env.EventID, err)
		return nil
	}

	if err := s.Store.UpsertAgent(ctx, &Agent{
		Name:         p.Name,
		Phone:        p.Phone,
		VehicleType:  p.VehicleType,
		LicensePlate: p.VehicleLicensePlate,
	}); err != nil {
		return fmt.Errorf("agent event %s: upsert: %w", env.EventID, err)
	}

	if err := s.Dedup.Mark(ctx, env.EventID); err != nil {
		log.Printf("agent event %s: dedup mark: %v", env.EventID, err)
	}
	return nil
}

// Registration publishes delivery-person-registered events from the intake
// endpoint; persistence happens in the consumer.
type Registration struct {
	Producer    orders.Publisher
	ServiceName string
}

func (r *Registration) Register(ctx context.Context, p event.AgentRegisteredPayload) error {
	if p.Name == "" || p.Phone == "" || p.VehicleType == "" {
		return fmt.Errorf("%w: name, phone and vehicle type required", ErrValidation)
	}
	env := event.NewEnvelope(event.TypeAgentRegistered, r.ServiceName, "", p.Phone, kafkax.MustMarshal(p))
	r.Producer.Publish(event.PartitionKey(p.Phone), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(event.TypeAgentRegistered)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	return nil
}
