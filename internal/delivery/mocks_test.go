package delivery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quickserve/food-dispatch/internal/auth"
	"github.com/quickserve/food-dispatch/internal/orders"
)

// MemStore is an in-memory store with the same claim semantics as the
// Postgres repo: the agent flip, the claim ledger entry and the order
// update succeed or fail as one unit under the lock.
type MemStore struct {
	mu     sync.Mutex
	agents map[string]*Agent
	orders map[string]*OrderCopy
	claims []claim

	FindFunc  func(ctx context.Context, vehicleType string) (*Agent, error)
	ClaimFunc func(ctx context.Context, agentID, orderID string) (bool, error)
}

type claim struct {
	agentID  string
	orderID  string
	released bool
}

func NewMemStore() *MemStore {
	return &MemStore{agents: make(map[string]*Agent), orders: make(map[string]*OrderCopy)}
}

func (m *MemStore) seedAgent(name, vehicle string, available, active bool) *Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := &Agent{
		ID:          uuid.NewString(),
		Name:        name,
		Phone:       "+9477" + name,
		VehicleType: vehicle,
		Available:   available,
		IsActive:    active,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	m.agents[a.ID] = a
	return a
}

func (m *MemStore) seedOrder(orderID string, status orders.Status) *OrderCopy {
	m.mu.Lock()
	defer m.mu.Unlock()
	oc := &OrderCopy{
		OrderID:      orderID,
		CustomerID:   "cust-1",
		CustomerName: "Jane Perera",
		RestaurantID: "rest-a",
		Address:      "12 Galle Rd",
		TotalCents:   3600,
		Status:       status,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	m.orders[orderID] = oc
	return oc
}

func (m *MemStore) UpsertOrderCopy(ctx context.Context, oc *OrderCopy) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[oc.OrderID]; ok {
		return false, nil
	}
	cp := *oc
	m.orders[oc.OrderID] = &cp
	return true, nil
}

func (m *MemStore) GetOrderCopy(ctx context.Context, orderID string) (*OrderCopy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	oc, ok := m.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *oc
	return &cp, nil
}

func (m *MemStore) SetOrderStatus(ctx context.Context, orderID string, status orders.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	oc, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	oc.Status = status
	return nil
}

func (m *MemStore) UpsertAgent(ctx context.Context, a *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.agents {
		if existing.Phone == a.Phone {
			existing.Name = a.Name
			existing.VehicleType = a.VehicleType
			existing.LicensePlate = a.LicensePlate
			return nil
		}
	}
	cp := *a
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.Available, cp.IsActive = true, true
	m.agents[cp.ID] = &cp
	return nil
}

func (m *MemStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemStore) FindAvailableAgent(ctx context.Context, vehicleType string) (*Agent, error) {
	if m.FindFunc != nil {
		return m.FindFunc(ctx, vehicleType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var candidates []*Agent
	for _, a := range m.agents {
		if a.IsActive && a.Available && (vehicleType == "" || a.VehicleType == vehicleType) {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoAgentAvailable
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	cp := *candidates[0]
	return &cp, nil
}

func (m *MemStore) ClaimAgentTx(ctx context.Context, agentID, orderID string) (bool, error) {
	if m.ClaimFunc != nil {
		return m.ClaimFunc(ctx, agentID, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[agentID]
	if !ok || !a.Available || !a.IsActive {
		return false, nil
	}
	oc, ok := m.orders[orderID]
	if !ok || oc.Status != orders.StatusReadyForDelivery || oc.AgentID != "" {
		return false, ErrNotReady
	}
	a.Available = false
	oc.AgentID = agentID
	oc.Status = orders.StatusOutForDelivery
	m.claims = append(m.claims, claim{agentID: agentID, orderID: orderID})
	return true, nil
}

func (m *MemStore) ReleaseAgent(ctx context.Context, agentID, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[agentID]
	if !ok {
		return ErrAgentNotFound
	}
	a.Available = true
	for i := range m.claims {
		if m.claims[i].agentID == agentID && m.claims[i].orderID == orderID && !m.claims[i].released {
			m.claims[i].released = true
		}
	}
	return nil
}

func (m *MemStore) openClaims() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.claims {
		if !c.released {
			n++
		}
	}
	return n
}

type recordedTransition struct {
	OrderID string
	To      orders.Status
	Role    auth.Role
}

type MockTransitioner struct {
	mu             sync.Mutex
	Transitions    []recordedTransition
	TransitionFunc func(ctx context.Context, orderID string, to orders.Status, role auth.Role, note string) error
}

func (m *MockTransitioner) Transition(ctx context.Context, orderID string, to orders.Status, role auth.Role, note string) error {
	if m.TransitionFunc != nil {
		return m.TransitionFunc(ctx, orderID, to, role, note)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Transitions = append(m.Transitions, recordedTransition{OrderID: orderID, To: to, Role: role})
	return nil
}

type MockFetcher struct {
	FetchFunc func(ctx context.Context, orderID, token string) (*orders.Order, error)
}

func (m *MockFetcher) FetchOrder(ctx context.Context, orderID, token string) (*orders.Order, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, orderID, token)
	}
	return &orders.Order{
		ID:           orderID,
		CustomerID:   "cust-1",
		CustomerName: "Jane Perera",
		RestaurantID: "rest-a",
		Address:      "12 Galle Rd",
		TotalCents:   3600,
		Status:       orders.StatusPending,
	}, nil
}

type MockNotifier struct {
	mu   sync.Mutex
	Sent []string
}

func (m *MockNotifier) Send(ctx context.Context, recipientID, eventType string, payload map[string]string) error {
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
