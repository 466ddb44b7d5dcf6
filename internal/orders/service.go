package orders

import (
	"context"
	"fmt"
	"log"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/quickserve/food-dispatch/internal/auth"
	"github.com/quickserve/food-dispatch/internal/event"
	kafkax "github.com/quickserve/food-dispatch/internal/kafka"
	"github.com/quickserve/food-dispatch/internal/notify"
	"github.com/quickserve/food-dispatch/internal/payments"
)

type Store interface {
	CreateOrderTx(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	CurrentStatus(ctx context.Context, id string) (Status, StatusUpdate, error)
	Tracking(ctx context.Context, id string) ([]StatusUpdate, error)
	ApplyTransition(ctx context.Context, id string, to Status, note string) (Status, error)
	SetPaymentStatus(ctx context.Context, id, paymentStatus string) error
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type UserDirectory interface {
	FetchUser(ctx context.Context, userID, token string) (name, phone string)
}

type RestaurantGate interface {
	Available(ctx context.Context, restaurantID string) (bool, error)
}

type PaymentGateway interface {
	CreatePayment(ctx context.Context, orderID, customerID string, amountCents int, description string) (payments.Descriptor, error)
	RefundByOrder(ctx context.Context, orderID string) error
}

type Notifier interface {
	Send(ctx context.Context, recipientID, eventType string, payload map[string]string) error
}

const (
	PaymentMethodCard = "card"
	PaymentMethodCash = "cod"
)

type CheckoutItem struct {
	RestaurantID string `json:"restaurant_id"`
	ProductID    string `json:"product_id"`
	Name         string `json:"name"`
	PriceCents   int    `json:"price_cents"`
	Qty          int    `json:"qty"`
}

type CheckoutRequest struct {
	CartID        string         `json:"cart_id"`
	CustomerID    string         `json:"customer_id"`
	AuthToken     string         `json:"-"`
	PaymentMethod string         `json:"payment_method"`
	Address       string         `json:"address"`
	DeliveryPoint GeoPoint       `json:"delivery_point"`
	Items         []CheckoutItem `json:"items"`
}

type CheckoutResult struct {
	Order      *Order               `json:"order"`
	Descriptor *payments.Descriptor `json:"payment,omitempty"`
}

// CheckoutService turns one cart into one order per restaurant, obtains a
// payment descriptor for card flows and publishes order-created events.
type CheckoutService struct {
	Store       Store
	Restaurants RestaurantGate
	Users       UserDirectory
	Payments    PaymentGateway
	Producer    Publisher
	Notifier    Notifier
	ServiceName string

	PrepBaseMin int
	PrepPerItem int
	TravelMin   int
}

func (s *CheckoutService) eta(itemCount int) ETA {
	prep := s.PrepBaseMin + s.PrepPerItem*itemCount
	return ETA{
		PrepMinutes:   prep,
		TravelMinutes: s.TravelMin,
		TotalMinutes:  prep + s.TravelMin,
		ComputedAt:    time.Now().UTC(),
	}
}

func (s *CheckoutService) validate(req CheckoutRequest) error {
	if req.CustomerID == "" || len(req.Items) == 0 {
		return fmt.Errorf("%w: customer and items required", ErrValidation)
	}
	switch req.PaymentMethod {
	case PaymentMethodCard, PaymentMethodCash:
	default:
		return fmt.Errorf("%w: unknown payment method %q", ErrValidation, req.PaymentMethod)
	}
	for _, it := range req.Items {
		if it.RestaurantID == "" || it.ProductID == "" || it.Qty <= 0 || it.PriceCents < 0 {
			return fmt.Errorf("%w: bad line item %s", ErrValidation, it.ProductID)
		}
	}
	return nil
}

// Checkout splits the cart by restaurant and creates the orders in the
// first-seen restaurant order. The restaurant availability check is
// essential and fails the request; the user lookup degrades to placeholder
// data; the order-created publish and notifications are best-effort.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) ([]CheckoutResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	var restaurantIDs []string
	grouped := map[string][]OrderItem{}
	for _, it := range req.Items {
		if _, ok := grouped[it.RestaurantID]; !ok {
			restaurantIDs = append(restaurantIDs, it.RestaurantID)
		}
		grouped[it.RestaurantID] = append(grouped[it.RestaurantID], OrderItem{
			ProductID:  it.ProductID,
			Name:       it.Name,
			PriceCents: it.PriceCents,
			Qty:        it.Qty,
			ItemStatus: "ordered",
		})
	}

	name, phone := s.Users.FetchUser(ctx, req.CustomerID, req.AuthToken)

	var results []CheckoutResult
	for _, rid := range restaurantIDs {
		open, err := s.Restaurants.Available(ctx, rid)
		if err != nil {
			return nil, fmt.Errorf("%w: restaurant %s: %v", ErrUpstream, rid, err)
		}
		if !open {
			return nil, fmt.Errorf("%w: restaurant %s is not accepting orders", ErrValidation, rid)
		}

		items := grouped[rid]
		o := &Order{
			CustomerID:    req.CustomerID,
			CustomerName:  name,
			CustomerPhone: phone,
			RestaurantID:  rid,
			Items:         items,
			Address:       req.Address,
			DeliveryPoint: req.DeliveryPoint,
			PaymentStatus: string(payments.StatusPending),
			ETA:           s.eta(len(items)),
		}
		if err := s.Store.CreateOrderTx(ctx, o); err != nil {
			return nil, err
		}

		res := CheckoutResult{Order: o}
		if req.PaymentMethod == PaymentMethodCard {
			d, err := s.Payments.CreatePayment(ctx, o.ID, o.CustomerID, o.TotalCents, "Order "+o.ID)
			if err != nil {
				// the order cannot proceed without its payment descriptor
				if _, cErr := s.Store.ApplyTransition(ctx, o.ID, StatusCancelled, "Payment setup failed"); cErr != nil {
					log.Printf("compensating cancel order=%s: %v", o.ID, cErr)
				}
				return nil, fmt.Errorf("%w: payment setup for order %s: %v", ErrUpstream, o.ID, err)
			}
			res.Descriptor = &d
		}

		s.publishCreated(o.ID, req.AuthToken)
		notify.Best("order placed", func() error {
			return s.Notifier.Send(ctx, o.CustomerID, "order_placed", map[string]string{
				"order_id": o.ID,
				"status":   string(o.Status),
			})
		})
		results = append(results, res)
	}
	return results, nil
}

func (s *CheckoutService) publishCreated(orderID, authToken string) {
	payload := kafkax.MustMarshal(event.OrderCreatedPayload{OrderID: orderID, AuthToken: authToken})
	env := event.NewEnvelope(event.TypeOrderCreated, s.ServiceName, "", orderID, payload)
	s.Producer.Publish(event.PartitionKey(orderID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(event.TypeOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// LifecycleService applies role-gated status transitions. The graph check
// lives in the store transaction; the role gate lives here, kept separate
// per the policy/graph split.
type LifecycleService struct {
	Store    Store
	Payments PaymentGateway
	Notifier Notifier
}

func gateFor(to Status) (auth.Action, bool) {
	switch to {
	case StatusConfirmed:
		return auth.ActionConfirm, true
	case StatusPreparing:
		return auth.ActionPrepare, true
	case StatusReadyForDelivery:
		return auth.ActionReady, true
	case StatusOutForDelivery:
		return auth.ActionDispatch, true
	case StatusDelivered:
		return auth.ActionDeliver, true
	case StatusCancelled:
		return auth.ActionCancel, true
	}
	return "", false
}

// Transition validates the role gate, applies the move and runs the cancel
// side effects. The returned order reflects the new state.
func (s *LifecycleService) Transition(ctx context.Context, orderID string, to Status, role auth.Role, callerID, note string) (*Order, error) {
	action, ok := gateFor(to)
	if !ok {
		return nil, fmt.Errorf("%w: unknown target status %q", ErrValidation, to)
	}

	o, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	owns := func() bool { return o.CustomerID == callerID }
	if !auth.Allow(role, action, owns) {
		return nil, fmt.Errorf("%w: role %s may not %s", ErrForbidden, role, action)
	}
	if to == StatusCancelled && (role == auth.RoleCustomer || role == auth.RoleInternal) && !CustomerCancellable(o.Status) {
		return nil, fmt.Errorf("%w: %s orders cannot be cancelled by %s", ErrForbidden, o.Status, role)
	}

	if _, err := s.Store.ApplyTransition(ctx, orderID, to, note); err != nil {
		return nil, err
	}

	if to == StatusCancelled && o.PaymentStatus == string(payments.StatusCompleted) {
		// refund side effect; the cancellation stands even when this fails,
		// the payment-updated event reconciles the recorded status later
		if err := s.Payments.RefundByOrder(ctx, orderID); err != nil {
			log.Printf("refund for cancelled order=%s: %v", orderID, err)
		}
	}

	notify.Best("status change", func() error {
		return s.Notifier.Send(ctx, o.CustomerID, "order_"+string(to), map[string]string{
			"order_id": orderID,
			"status":   string(to),
			"note":     note,
		})
	})

	return s.Store.Get(ctx, orderID)
}
