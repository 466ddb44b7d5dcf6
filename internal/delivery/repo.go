package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quickserve/food-dispatch/internal/orders"
)

type Repo struct{ DB *pgxpool.Pool }

// UpsertOrderCopy inserts the local copy if not already present; a
// redelivered order-created event becomes a no-op.
func (r *Repo) UpsertOrderCopy(ctx context.Context, oc *OrderCopy) (inserted bool, err error) {
	now := time.Now().UTC()
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO delivery_orders(order_id, customer_id, customer_name, customer_phone,
			restaurant_id, address, total_cents, status, agent_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULL,$9,$9)
		ON CONFLICT (order_id) DO NOTHING`,
		oc.OrderID, oc.CustomerID, oc.CustomerName, oc.CustomerPhone,
		oc.RestaurantID, oc.Address, oc.TotalCents, oc.Status, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) GetOrderCopy(ctx context.Context, orderID string) (*OrderCopy, error) {
	var oc OrderCopy
	var agentID *string
	err := r.DB.QueryRow(ctx, `
		SELECT order_id, customer_id, customer_name, customer_phone, restaurant_id,
		       address, total_cents, status, agent_id, created_at, updated_at
		FROM delivery_orders WHERE order_id=$1`, orderID).Scan(
		&oc.OrderID, &oc.CustomerID, &oc.CustomerName, &oc.CustomerPhone, &oc.RestaurantID,
		&oc.Address, &oc.TotalCents, &oc.Status, &agentID, &oc.CreatedAt, &oc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if agentID != nil {
		oc.AgentID = *agentID
	}
	return &oc, nil
}

func (r *Repo) SetOrderStatus(ctx context.Context, orderID string, status orders.Status) error {
	ct, err := r.DB.Exec(ctx, `UPDATE delivery_orders SET status=$2, updated_at=now() WHERE order_id=$1`, orderID, status)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertAgent keys on phone: a redelivered registration event updates the
// same row instead of duplicating the agent.
func (r *Repo) UpsertAgent(ctx context.Context, a *Agent) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	_, err := r.DB.Exec(ctx, `
		INSERT INTO delivery_agents(id, name, phone, vehicle_type, license_plate, available, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,true,true,$6,$6)
		ON CONFLICT (phone) DO UPDATE SET
			name=EXCLUDED.name, vehicle_type=EXCLUDED.vehicle_type,
			license_plate=EXCLUDED.license_plate, updated_at=EXCLUDED.updated_at`,
		a.ID, a.Name, a.Phone, a.VehicleType, a.LicensePlate, now)
	return err
}

func (r *Repo) GetAgent(ctx context.Context, id string) (*Agent, error) {
	var a Agent
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, phone, vehicle_type, coalesce(license_plate,''), available, is_active, created_at, updated_at
		FROM delivery_agents WHERE id=$1`, id).Scan(
		&a.ID, &a.Name, &a.Phone, &a.VehicleType, &a.LicensePlate, &a.Available, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindAvailableAgent picks the first approved, available agent matching the
// optional vehicle filter. The returned candidate is not reserved: the
// claim happens in ClaimAgentTx and may still lose the race.
func (r *Repo) FindAvailableAgent(ctx context.Context, vehicleType string) (*Agent, error) {
	var a Agent
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, phone, vehicle_type, coalesce(license_plate,''), available, is_active, created_at, updated_at
		FROM delivery_agents
		WHERE is_active AND available AND ($1 = '' OR vehicle_type = $1)
		ORDER BY updated_at
		LIMIT 1`, vehicleType).Scan(
		&a.ID, &a.Name, &a.Phone, &a.VehicleType, &a.LicensePlate, &a.Available, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoAgentAvailable
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ClaimAgentTx is the compound write in one transaction: flip the agent
// unavailable, record which order claimed it, and move the local order to
// out_for_delivery. claimed=false means the agent was taken between the
// candidate query and this write (lost race, caller retries).
func (r *Repo) ClaimAgentTx(ctx context.Context, agentID, orderID string) (claimed bool, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE delivery_agents SET available=false, updated_at=now()
		WHERE id=$1 AND available AND is_active`, agentID)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() != 1 {
		return false, nil // lost the race
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO agent_claims(agent_id, order_id, claimed_at)
		VALUES ($1,$2,now())`, agentID, orderID); err != nil {
		return false, err
	}

	ct, err = tx.Exec(ctx, `
		UPDATE delivery_orders SET agent_id=$2, status=$3, updated_at=now()
		WHERE order_id=$1 AND status=$4 AND agent_id IS NULL`,
		orderID, agentID, orders.StatusOutForDelivery, orders.StatusReadyForDelivery)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() != 1 {
		// order changed underneath us; leave the agent untouched
		return false, ErrNotReady
	}

	return true, tx.Commit(ctx)
}

// ReleaseAgent restores availability and closes the claim ledger entry,
// recording which order released it.
func (r *Repo) ReleaseAgent(ctx context.Context, agentID, orderID string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE delivery_agents SET available=true, updated_at=now() WHERE id=$1`, agentID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrAgentNotFound
	}

	if _, err := tx.Exec(ctx, `
		UPDATE agent_claims SET released_at=now()
		WHERE agent_id=$1 AND order_id=$2 AND released_at IS NULL`, agentID, orderID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
