package orders

import "time"

type GeoPoint struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

type OrderItem struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	PriceCents int    `json:"price_cents"`
	Qty        int    `json:"qty"`
	ItemStatus string `json:"item_status"`
}

// StatusUpdate rows are append-only: written once at transition time,
// never edited or reordered.
type StatusUpdate struct {
	Status Status    `json:"status"`
	Note   string    `json:"note,omitempty"`
	At     time.Time `json:"at"`
}

// ETA is the canonical estimated-delivery shape, computed once at checkout.
type ETA struct {
	PrepMinutes   int       `json:"prep_minutes"`
	TravelMinutes int       `json:"travel_minutes"`
	TotalMinutes  int       `json:"total_minutes"`
	ComputedAt    time.Time `json:"computed_at"`
}

type Order struct {
	ID            string         `json:"id"`
	CustomerID    string         `json:"customer_id"`
	CustomerName  string         `json:"customer_name"`
	CustomerPhone string         `json:"customer_phone"`
	RestaurantID  string         `json:"restaurant_id"`
	Items         []OrderItem    `json:"items"`
	Address       string         `json:"address"`
	DeliveryPoint GeoPoint       `json:"delivery_point"`
	TotalCents    int            `json:"total_cents"`
	PaymentStatus string         `json:"payment_status"`
	Status        Status         `json:"status"`
	AgentID       string         `json:"agent_id,omitempty"`
	ETA           ETA            `json:"eta"`
	History       []StatusUpdate `json:"history,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// TotalCents is the only place order totals are computed; the stored value
// is fixed at creation and never recomputed implicitly.
func TotalCents(items []OrderItem) int {
	total := 0
	for _, it := range items {
		total += it.PriceCents * it.Qty
	}
	return total
}
