package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/quickserve/food-dispatch/internal/event"
	kafkax "github.com/quickserve/food-dispatch/internal/kafka"
	"github.com/quickserve/food-dispatch/internal/payments"
)

type Dedup interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// PaymentSubscriber applies payment-updated events to orders: completed
// auto-confirms, a failed payment compensates by cancelling the order.
// Returning an error leaves the message uncommitted for redelivery; a
// permanent rejection is logged and acknowledged.
type PaymentSubscriber struct {
	Store Store
	Dedup Dedup
}

func (s *PaymentSubscriber) Handle(ctx context.Context, m kafkago.Message) error {
	var env event.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Printf("payment event: dropping undecodable message: %v", err)
		return nil // poison, deliberate drop
	}
	if env.EventType != event.TypePaymentUpdated {
		return nil
	}

	if seen, err := s.Dedup.Seen(ctx, env.EventID); err == nil && seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[event.PaymentUpdatedPayload](env.Payload)
	if err != nil {
		log.Printf("payment event %s: dropping bad payload: %v", env.EventID, err)
		return nil
	}

	status := payments.Status(p.NewPaymentStatus)
	switch status {
	case payments.StatusPending, payments.StatusCompleted, payments.StatusFailed,
		payments.StatusCancelled, payments.StatusRefunded, payments.StatusChargedback:
	default:
		log.Printf("payment event %s: dropping unknown status %q", env.EventID, p.NewPaymentStatus)
		return nil
	}

	// The order may not exist yet when events arrive out of order; an
	// unknown order is transient here, not a permanent error.
	if err := s.Store.SetPaymentStatus(ctx, p.OrderID, string(status)); err != nil {
		return fmt.Errorf("set payment status order=%s: %w", p.OrderID, err)
	}

	switch status {
	case payments.StatusCompleted:
		if _, err := s.Store.ApplyTransition(ctx, p.OrderID, StatusConfirmed, "Payment confirmed"); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				// already confirmed or further along; redelivered event
				log.Printf("payment event %s: order=%s already past pending", env.EventID, p.OrderID)
			} else {
				return err
			}
		}
	case payments.StatusFailed, payments.StatusCancelled, payments.StatusChargedback:
		cur, _, err := s.Store.CurrentStatus(ctx, p.OrderID)
		if err != nil {
			return err
		}
		if cur == StatusPending || cur == StatusConfirmed {
			if _, err := s.Store.ApplyTransition(ctx, p.OrderID, StatusCancelled, "Payment "+string(status)); err != nil {
				if !errors.Is(err, ErrInvalidTransition) {
					return err
				}
			}
		}
	}

	if err := s.Dedup.Mark(ctx, env.EventID); err != nil {
		log.Printf("payment event %s: dedup mark: %v", env.EventID, err)
	}
	return nil
}
