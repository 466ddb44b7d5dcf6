package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/quickserve/food-dispatch/internal/auth"
	"github.com/quickserve/food-dispatch/internal/orders"
)

func newAssigner(store *MemStore) (*Assigner, *MockTransitioner, *MockNotifier) {
	tr := &MockTransitioner{}
	n := &MockNotifier{}
	return &Assigner{Store: store, Orders: tr, Notifier: n}, tr, n
}

func TestAssignBindsOneAgent(t *testing.T) {
	store := NewMemStore()
	agent := store.seedAgent("kamal", "bike", true, true)
	store.seedOrder("ord-1", orders.StatusReadyForDelivery)
	asg, tr, notifier := newAssigner(store)

	res, err := asg.Assign(context.Background(), "ord-1", "")
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if res.AgentID != agent.ID || res.AlreadyAssigned {
		t.Errorf("result = %+v", res)
	}

	got, _ := store.GetAgent(context.Background(), agent.ID)
	if got.Available {
		t.Error("claimed agent still available")
	}
	oc, _ := store.GetOrderCopy(context.Background(), "ord-1")
	if oc.Status != orders.StatusOutForDelivery || oc.AgentID != agent.ID {
		t.Errorf("order copy = %+v", oc)
	}
	if store.openClaims() != 1 {
		t.Errorf("open claims = %d, want 1", store.openClaims())
	}

	if len(tr.Transitions) != 1 || tr.Transitions[0].To != orders.StatusOutForDelivery || tr.Transitions[0].Role != auth.RoleInternal {
		t.Errorf("authoritative transitions = %+v", tr.Transitions)
	}
	if len(notifier.Sent) != 1 || notifier.Sent[0] != "delivery_assigned" {
		t.Errorf("notifications = %v", notifier.Sent)
	}
}

func TestAssignVehicleFilter(t *testing.T) {
	store := NewMemStore()
	store.seedAgent("kamal", "bike", true, true)
	car := store.seedAgent("nimal", "car", true, true)
	store.seedOrder("ord-1", orders.StatusReadyForDelivery)
	asg, _, _ := newAssigner(store)

	res, err := asg.Assign(context.Background(), "ord-1", "car")
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if res.AgentID != car.ID {
		t.Errorf("assigned %s, want the car courier %s", res.AgentID, car.ID)
	}
}

func TestAssignSkipsInactiveAndBusyAgents(t *testing.T) {
	store := NewMemStore()
	store.seedAgent("busy", "bike", false, true)
	store.seedAgent("suspended", "bike", true, false)
	store.seedOrder("ord-1", orders.StatusReadyForDelivery)
	asg, _, _ := newAssigner(store)

	if _, err := asg.Assign(context.Background(), "ord-1", ""); !errors.Is(err, ErrNoAgentAvailable) {
		t.Errorf("Assign() error = %v, want ErrNoAgentAvailable", err)
	}
}

func TestAssignAlreadyAssignedIsNoOp(t *testing.T) {
	store := NewMemStore()
	agent := store.seedAgent("kamal", "bike", true, true)
	store.seedOrder("ord-1", orders.StatusReadyForDelivery)
	asg, tr, _ := newAssigner(store)

	if _, err := asg.Assign(context.Background(), "ord-1", ""); err != nil {
		t.Fatalf("first Assign() error = %v", err)
	}
	res, err := asg.Assign(context.Background(), "ord-1", "")
	if err != nil {
		t.Fatalf("second Assign() error = %v", err)
	}
	if !res.AlreadyAssigned || res.AgentID != agent.ID {
		t.Errorf("result = %+v, want idempotent hit on %s", res, agent.ID)
	}
	if len(tr.Transitions) != 1 {
		t.Errorf("transitions = %d, want 1", len(tr.Transitions))
	}
	if store.openClaims() != 1 {
		t.Errorf("open claims = %d, want 1", store.openClaims())
	}
}

func TestAssignRejectsUnreadyOrder(t *testing.T) {
	for _, status := range []orders.Status{orders.StatusPending, orders.StatusPreparing, orders.StatusDelivered, orders.StatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			store := NewMemStore()
			agent := store.seedAgent("kamal", "bike", true, true)
			store.seedOrder("ord-1", status)
			asg, _, _ := newAssigner(store)

			if _, err := asg.Assign(context.Background(), "ord-1", ""); !errors.Is(err, ErrNotReady) {
				t.Fatalf("Assign() error = %v, want ErrNotReady", err)
			}
			got, _ := store.GetAgent(context.Background(), agent.ID)
			if !got.Available {
				t.Error("rejected assignment still claimed the agent")
			}
			if store.openClaims() != 0 {
				t.Errorf("open claims = %d, want 0", store.openClaims())
			}
		})
	}
}

func TestAssignUnknownOrder(t *testing.T) {
	store := NewMemStore()
	asg, _, _ := newAssigner(store)
	if _, err := asg.Assign(context.Background(), "no-such-order", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Assign() error = %v, want ErrNotFound", err)
	}
}

func TestAssignConcurrentOrdersOneAgent(t *testing.T) {
	store := NewMemStore()
	store.seedAgent("kamal", "bike", true, true)
	store.seedOrder("ord-1", orders.StatusReadyForDelivery)
	store.seedOrder("ord-2", orders.StatusReadyForDelivery)
	asg, _, _ := newAssigner(store)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, orderID := range []string{"ord-1", "ord-2"} {
		wg.Add(1)
		go func(i int, orderID string) {
			defer wg.Done()
			_, results[i] = asg.Assign(context.Background(), orderID, "")
		}(i, orderID)
	}
	wg.Wait()

	var wins, exhausted int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrNoAgentAvailable):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || exhausted != 1 {
		t.Errorf("wins = %d, exhausted = %d; want exactly one of each", wins, exhausted)
	}
	if store.openClaims() != 1 {
		t.Errorf("open claims = %d, want 1", store.openClaims())
	}
}

func TestAssignRetriesAfterLostRace(t *testing.T) {
	store := NewMemStore()
	contested := store.seedAgent("kamal", "bike", true, true)
	fallback := store.seedAgent("nimal", "bike", true, true)
	store.seedOrder("ord-1", orders.StatusReadyForDelivery)
	asg, _, _ := newAssigner(store)

	// first claim attempt loses the race, the retry proceeds normally
	lost := false
	store.ClaimFunc = func(ctx context.Context, agentID, orderID string) (bool, error) {
		if !lost {
			lost = true
			return false, nil
		}
		store.ClaimFunc = nil
		return store.ClaimAgentTx(ctx, agentID, orderID)
	}

	res, err := asg.Assign(context.Background(), "ord-1", "")
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if res.AgentID != contested.ID && res.AgentID != fallback.ID {
		t.Errorf("assigned unknown agent %s", res.AgentID)
	}
}

func TestAssignBoundedRetries(t *testing.T) {
	store := NewMemStore()
	store.seedAgent("kamal", "bike", true, true)
	store.seedOrder("ord-1", orders.StatusReadyForDelivery)
	asg, _, _ := newAssigner(store)
	asg.MaxAttempts = 3

	attempts := 0
	store.ClaimFunc = func(ctx context.Context, agentID, orderID string) (bool, error) {
		attempts++
		return false, nil // every candidate is contested
	}

	if _, err := asg.Assign(context.Background(), "ord-1", ""); !errors.Is(err, ErrNoAgentAvailable) {
		t.Fatalf("Assign() error = %v, want ErrNoAgentAvailable", err)
	}
	if attempts != 3 {
		t.Errorf("claim attempts = %d, want 3", attempts)
	}
}

func TestAssignSurvivesAuthoritativeTransitionFailure(t *testing.T) {
	store := NewMemStore()
	store.seedAgent("kamal", "bike", true, true)
	store.seedOrder("ord-1", orders.StatusReadyForDelivery)
	asg, tr, _ := newAssigner(store)
	tr.TransitionFunc = func(ctx context.Context, orderID string, to orders.Status, role auth.Role, note string) error {
		return fmt.Errorf("order service unreachable")
	}

	res, err := asg.Assign(context.Background(), "ord-1", "")
	if err != nil {
		t.Fatalf("Assign() error = %v, claim must stand", err)
	}
	if res.AgentID == "" {
		t.Error("no agent in result")
	}
}

func TestCompleteDeliveryReleasesAgent(t *testing.T) {
	store := NewMemStore()
	agent := store.seedAgent("kamal", "bike", true, true)
	store.seedOrder("ord-1", orders.StatusReadyForDelivery)
	asg, tr, notifier := newAssigner(store)

	if _, err := asg.Assign(context.Background(), "ord-1", ""); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if err := asg.CompleteDelivery(context.Background(), "ord-1"); err != nil {
		t.Fatalf("CompleteDelivery() error = %v", err)
	}

	got, _ := store.GetAgent(context.Background(), agent.ID)
	if !got.Available {
		t.Error("agent not released after delivery")
	}
	oc, _ := store.GetOrderCopy(context.Background(), "ord-1")
	if oc.Status != orders.StatusDelivered {
		t.Errorf("order copy status = %s, want delivered", oc.Status)
	}
	if store.openClaims() != 0 {
		t.Errorf("open claims = %d, want 0", store.openClaims())
	}
	if len(tr.Transitions) != 2 || tr.Transitions[1].To != orders.StatusDelivered || tr.Transitions[1].Role != auth.RoleDelivery {
		t.Errorf("transitions = %+v", tr.Transitions)
	}
	if len(notifier.Sent) != 2 || notifier.Sent[1] != "order_delivered" {
		t.Errorf("notifications = %v", notifier.Sent)
	}
}

func TestCompleteDeliveryRequiresAssignment(t *testing.T) {
	store := NewMemStore()
	store.seedOrder("ord-1", orders.StatusReadyForDelivery)
	asg, _, _ := newAssigner(store)

	if err := asg.CompleteDelivery(context.Background(), "ord-1"); !errors.Is(err, ErrNotReady) {
		t.Errorf("CompleteDelivery() error = %v, want ErrNotReady", err)
	}
}
