package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/quickserve/food-dispatch/internal/auth"
	"github.com/quickserve/food-dispatch/internal/notify"
	"github.com/quickserve/food-dispatch/internal/orders"
)

type AssignStore interface {
	GetOrderCopy(ctx context.Context, orderID string) (*OrderCopy, error)
	SetOrderStatus(ctx context.Context, orderID string, status orders.Status) error
	FindAvailableAgent(ctx context.Context, vehicleType string) (*Agent, error)
	ClaimAgentTx(ctx context.Context, agentID, orderID string) (bool, error)
	ReleaseAgent(ctx context.Context, agentID, orderID string) error
}

// OrderTransitioner pushes the resulting lifecycle transition back to the
// authoritative order service.
type OrderTransitioner interface {
	Transition(ctx context.Context, orderID string, to orders.Status, role auth.Role, note string) error
}

type Notifier interface {
	Send(ctx context.Context, recipientID, eventType string, payload map[string]string) error
}

// Assigner binds exactly one agent to a ready order. Claims are atomic
// against concurrent assignments contending for the same agent; a lost
// race retries with a fresh candidate a bounded number of times.
type Assigner struct {
	Store       AssignStore
	Orders      OrderTransitioner
	Notifier    Notifier
	MaxAttempts int
}

func (a *Assigner) attempts() int {
	if a.MaxAttempts <= 0 {
		return 3
	}
	return a.MaxAttempts
}

func (a *Assigner) Assign(ctx context.Context, orderID, vehicleType string) (AssignResult, error) {
	oc, err := a.Store.GetOrderCopy(ctx, orderID)
	if err != nil {
		return AssignResult{}, err
	}

	// duplicate redelivery guard: an assigned order is a no-op, not an error
	if oc.AgentID != "" {
		return AssignResult{OrderID: orderID, AgentID: oc.AgentID, AlreadyAssigned: true}, nil
	}
	if oc.Status != orders.StatusReadyForDelivery {
		return AssignResult{}, fmt.Errorf("%w: order %s is %s", ErrNotReady, orderID, oc.Status)
	}

	for i := 0; i < a.attempts(); i++ {
		agent, err := a.Store.FindAvailableAgent(ctx, vehicleType)
		if err != nil {
			return AssignResult{}, err // includes ErrNoAgentAvailable; retryable later
		}

		claimed, err := a.Store.ClaimAgentTx(ctx, agent.ID, orderID)
		if errors.Is(err, ErrNotReady) {
			// the order moved while we were claiming; report, nothing held
			return AssignResult{}, err
		}
		if err != nil {
			return AssignResult{}, err
		}
		if !claimed {
			continue // someone else took this agent; pick another
		}

		// reflect the transition on the authoritative order record;
		// failures here are operational noise, the claim itself stands
		if a.Orders != nil {
			if err := a.Orders.Transition(ctx, orderID, orders.StatusOutForDelivery, auth.RoleInternal, "Assigned to "+agent.Name); err != nil {
				log.Printf("assign order=%s: authoritative transition: %v", orderID, err)
			}
		}
		notify.Best("agent assigned", func() error {
			return a.Notifier.Send(ctx, agent.ID, "delivery_assigned", map[string]string{
				"order_id": orderID,
				"address":  oc.Address,
			})
		})

		return AssignResult{OrderID: orderID, AgentID: agent.ID}, nil
	}

	return AssignResult{}, fmt.Errorf("%w: all candidates contested", ErrNoAgentAvailable)
}

// CompleteDelivery marks the local copy delivered and releases the agent.
// The caller is responsible for the role-gated transition on the order
// service side.
func (a *Assigner) CompleteDelivery(ctx context.Context, orderID string) error {
	oc, err := a.Store.GetOrderCopy(ctx, orderID)
	if err != nil {
		return err
	}
	if oc.Status != orders.StatusOutForDelivery || oc.AgentID == "" {
		return fmt.Errorf("%w: order %s is %s", ErrNotReady, orderID, oc.Status)
	}

	if err := a.Store.SetOrderStatus(ctx, orderID, orders.StatusDelivered); err != nil {
		return err
	}
	if err := a.Store.ReleaseAgent(ctx, oc.AgentID, orderID); err != nil {
		return err
	}

	if a.Orders != nil {
		if err := a.Orders.Transition(ctx, orderID, orders.StatusDelivered, auth.RoleDelivery, "Delivered"); err != nil {
			log.Printf("deliver order=%s: authoritative transition: %v", orderID, err)
		}
	}
	notify.Best("order delivered", func() error {
		return a.Notifier.Send(ctx, oc.CustomerID, "order_delivered", map[string]string{"order_id": orderID})
	})
	return nil
}
