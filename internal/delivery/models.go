package delivery

import (
	"errors"
	"time"

	"github.com/quickserve/food-dispatch/internal/orders"
)

// Agent is a courier with one availability flag and an approval gate.
// Both must be true (plus the optional vehicle filter) for assignment.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	VehicleType  string    `json:"vehicle_type"`
	LicensePlate string    `json:"license_plate"`
	Available    bool      `json:"available"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OrderCopy is the delivery-local read copy of an order, fed by
// order-created events plus an authoritative re-fetch. The order service
// remains the source of truth for lifecycle status.
type OrderCopy struct {
	OrderID       string        `json:"order_id"`
	CustomerID    string        `json:"customer_id"`
	CustomerName  string        `json:"customer_name"`
	CustomerPhone string        `json:"customer_phone"`
	RestaurantID  string        `json:"restaurant_id"`
	Address       string        `json:"address"`
	TotalCents    int           `json:"total_cents"`
	Status        orders.Status `json:"status"`
	AgentID       string        `json:"agent_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// AssignResult distinguishes a fresh claim from the idempotent no-op hit
// when the order already carries an agent (duplicate event redelivery).
type AssignResult struct {
	OrderID         string `json:"order_id"`
	AgentID         string `json:"agent_id"`
	AlreadyAssigned bool   `json:"already_assigned"`
}

var (
	ErrNotFound         = errors.New("delivery order not found")
	ErrAgentNotFound    = errors.New("agent not found")
	ErrNoAgentAvailable = errors.New("no agent available")
	ErrNotReady         = errors.New("order not ready for assignment")
	ErrValidation       = errors.New("invalid delivery request")
)
