package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/quickserve/food-dispatch/internal/payments"
)

// MockStore is an in-memory Store enforcing the same transition rules as
// the Postgres repo.
type MockStore struct {
	mu     sync.Mutex
	orders map[string]*Order

	CreateFunc     func(ctx context.Context, o *Order) error
	TransitionFunc func(ctx context.Context, id string, to Status, note string) (Status, error)
}

func NewMockStore() *MockStore {
	return &MockStore{orders: make(map[string]*Order)}
}

func (m *MockStore) CreateOrderTx(ctx context.Context, o *Order) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: order has no items", ErrValidation)
	}
	o.ID = uuid.NewString()
	o.Status = StatusPending
	o.TotalCents = TotalCents(o.Items)
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	o.History = []StatusUpdate{{Status: StatusPending, Note: "Order placed", At: now}}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *MockStore) Get(ctx context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.History = append([]StatusUpdate(nil), o.History...)
	return &cp, nil
}

func (m *MockStore) CurrentStatus(ctx context.Context, id string) (Status, StatusUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return "", StatusUpdate{}, ErrNotFound
	}
	return o.Status, o.History[len(o.History)-1], nil
}

func (m *MockStore) Tracking(ctx context.Context, id string) ([]StatusUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]StatusUpdate(nil), o.History...), nil
}

func (m *MockStore) ApplyTransition(ctx context.Context, id string, to Status, note string) (Status, error) {
	if m.TransitionFunc != nil {
		return m.TransitionFunc(ctx, id, to, note)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return "", ErrNotFound
	}
	from := o.Status
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	o.History = append(o.History, StatusUpdate{Status: to, Note: note, At: o.UpdatedAt})
	return from, nil
}

func (m *MockStore) SetPaymentStatus(ctx context.Context, id, paymentStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.PaymentStatus = paymentStatus
	return nil
}

type MockPublisher struct {
	mu       sync.Mutex
	Messages []kafkago.Message
}

func (m *MockPublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, kafkago.Message{Key: key, Value: value, Headers: headers})
}

type MockUserDirectory struct {
	FetchFunc func(ctx context.Context, userID, token string) (string, string)
}

func (m *MockUserDirectory) FetchUser(ctx context.Context, userID, token string) (string, string) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, userID, token)
	}
	return "Jane Perera", "+9477000000"
}

type MockRestaurantGate struct {
	AvailableFunc func(ctx context.Context, restaurantID string) (bool, error)
}

func (m *MockRestaurantGate) Available(ctx context.Context, restaurantID string) (bool, error) {
	if m.AvailableFunc != nil {
		return m.AvailableFunc(ctx, restaurantID)
	}
	return true, nil
}

type MockPaymentGateway struct {
	mu         sync.Mutex
	Created    []string
	Refunded   []string
	CreateFunc func(ctx context.Context, orderID, customerID string, amountCents int, description string) (payments.Descriptor, error)
	RefundFunc func(ctx context.Context, orderID string) error
}

func (m *MockPaymentGateway) CreatePayment(ctx context.Context, orderID, customerID string, amountCents int, description string) (payments.Descriptor, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, orderID, customerID, amountCents, description)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Created = append(m.Created, orderID)
	return payments.Descriptor{PaymentID: "pay-" + orderID, OrderID: orderID, Amount: payments.FormatAmount(amountCents)}, nil
}

func (m *MockPaymentGateway) RefundByOrder(ctx context.Context, orderID string) error {
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Refunded = append(m.Refunded, orderID)
	return nil
}

type MockNotifier struct {
	mu       sync.Mutex
	Sent     []string
	SendFunc func(ctx context.Context, recipientID, eventType string, payload map[string]string) error
}

func (m *MockNotifier) Send(ctx context.Context, recipientID, eventType string, payload map[string]string) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, recipientID, eventType, payload)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, eventType)
	return nil
}

type MockDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewMockDedup() *MockDedup { return &MockDedup{seen: make(map[string]bool)} }

func (m *MockDedup) Seen(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[eventID], nil
}

func (m *MockDedup) Mark(ctx context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[eventID] = true
	return nil
}
