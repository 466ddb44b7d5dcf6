package payments

import (
	"context"
	"fmt"
	"log"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/quickserve/food-dispatch/internal/event"
	kafkax "github.com/quickserve/food-dispatch/internal/kafka"
)

type Store interface {
	Create(ctx context.Context, p *Payment) (*Payment, bool, error)
	Get(ctx context.Context, id string) (*Payment, error)
	GetByOrder(ctx context.Context, orderID string) (*Payment, error)
	Decide(ctx context.Context, id string, to Status, gatewayPaymentID string) (bool, error)
	MarkRefunded(ctx context.Context, id string) (bool, error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Coordinator owns payment creation, gateway callback reconciliation and
// refunds. It notifies the order subsystem asynchronously; that
// notification is best-effort and never rolls back a persisted decision.
type Coordinator struct {
	Store       Store
	Producer    Publisher
	MerchantID  string
	Secret      string
	Currency    string
	CheckoutURL string
	ServiceName string
}

// Descriptor is what the checkout flow hands to the client to start the
// gateway redirect.
type Descriptor struct {
	PaymentID   string `json:"payment_id"`
	OrderID     string `json:"order_id"`
	MerchantID  string `json:"merchant_id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Hash        string `json:"hash"`
	CheckoutURL string `json:"checkout_url"`
}

func (c *Coordinator) descriptor(p *Payment) Descriptor {
	return Descriptor{
		PaymentID:   p.ID,
		OrderID:     p.OrderID,
		MerchantID:  c.MerchantID,
		Amount:      FormatAmount(p.AmountCents),
		Currency:    p.Currency,
		Hash:        CheckoutHash(c.MerchantID, p.OrderID, p.AmountCents, p.Currency, c.Secret),
		CheckoutURL: c.CheckoutURL,
	}
}

// Create persists a pending payment for the order, or returns the existing
// one so retried checkout calls stay idempotent.
func (c *Coordinator) Create(ctx context.Context, orderID, customerID string, amountCents int, description string) (Descriptor, error) {
	if orderID == "" || customerID == "" || amountCents <= 0 {
		return Descriptor{}, fmt.Errorf("%w: order, customer and positive amount required", ErrValidation)
	}
	p := &Payment{
		OrderID:     orderID,
		CustomerID:  customerID,
		AmountCents: amountCents,
		Currency:    c.Currency,
		Description: description,
	}
	p.Hash = CheckoutHash(c.MerchantID, orderID, amountCents, c.Currency, c.Secret)
	stored, _, err := c.Store.Create(ctx, p)
	if err != nil {
		return Descriptor{}, err
	}
	return c.descriptor(stored), nil
}

// Callback is the gateway notify body. Amount and StatusCode stay strings
// until after signature verification: the hash covers the raw field values.
type Callback struct {
	MerchantID       string
	OrderID          string
	GatewayPaymentID string
	Amount           string
	Currency         string
	StatusCode       string
	Signature        string
}

// HandleCallback verifies the callback signature against the callback's own
// fields, maps the gateway code and persists the decision exactly once.
// A signature mismatch mutates nothing.
func (c *Coordinator) HandleCallback(ctx context.Context, cb Callback) (Status, error) {
	if !VerifyNotify(cb.MerchantID, cb.OrderID, cb.Amount, cb.Currency, cb.StatusCode, c.Secret, cb.Signature) {
		log.Printf("SECURITY payment callback signature mismatch order=%s gateway_payment=%s", cb.OrderID, cb.GatewayPaymentID)
		return "", ErrBadSignature
	}

	code, err := strconv.Atoi(cb.StatusCode)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownCode, cb.StatusCode)
	}
	target, ok := MapGatewayCode(code)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownCode, code)
	}

	p, err := c.Store.GetByOrder(ctx, cb.OrderID)
	if err != nil {
		return "", err
	}

	if target == StatusPending {
		// gateway still processing; nothing to decide yet
		return StatusPending, nil
	}

	applied, err := c.Store.Decide(ctx, p.ID, target, cb.GatewayPaymentID)
	if err != nil {
		return "", err
	}
	if !applied {
		if p.Status == target {
			return target, nil // duplicate callback, same outcome
		}
		return p.Status, ErrAlreadyDecided
	}

	c.publishUpdate(p.OrderID, target, cb.GatewayPaymentID)
	return target, nil
}

// Refund transitions completed -> refunded and notifies the order side.
func (c *Coordinator) Refund(ctx context.Context, paymentID string) (*Payment, error) {
	p, err := c.Store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	ok, err := c.Store.MarkRefunded(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: status=%s", ErrNotRefundable, p.Status)
	}
	p.Status = StatusRefunded
	c.publishUpdate(p.OrderID, StatusRefunded, p.GatewayPaymentID)
	return p, nil
}

// RefundByOrder is the compensation entry point used when a paid order is
// cancelled.
func (c *Coordinator) RefundByOrder(ctx context.Context, orderID string) (*Payment, error) {
	p, err := c.Store.GetByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return c.Refund(ctx, p.ID)
}

func (c *Coordinator) publishUpdate(orderID string, status Status, gatewayPaymentID string) {
	payload := kafkax.MustMarshal(event.PaymentUpdatedPayload{
		OrderID:          orderID,
		NewPaymentStatus: string(status),
		GatewayPaymentID: gatewayPaymentID,
	})
	env := event.NewEnvelope(event.TypePaymentUpdated, c.ServiceName, "", orderID, payload)
	c.Producer.Publish(event.PartitionKey(orderID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(event.TypePaymentUpdated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
