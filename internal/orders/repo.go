package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

// CreateOrderTx persists one order with its items and the initial history
// row in a single transaction. Totals are computed here, once, from the
// priced line items; the stored value is never recomputed.
func (r *Repo) CreateOrderTx(ctx context.Context, o *Order) error {
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: order has no items", ErrValidation)
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o.ID = uuid.NewString()
	o.Status = StatusPending
	o.TotalCents = TotalCents(o.Items)
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, customer_id, customer_name, customer_phone, restaurant_id,
			address, lng, lat, total_cents, payment_status, status, agent_id,
			eta_prep_minutes, eta_travel_minutes, eta_total_minutes, eta_computed_at,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NULL,$12,$13,$14,$15,$16,$17)`,
		o.ID, o.CustomerID, o.CustomerName, o.CustomerPhone, o.RestaurantID,
		o.Address, o.DeliveryPoint.Lng, o.DeliveryPoint.Lat, o.TotalCents, o.PaymentStatus, o.Status,
		o.ETA.PrepMinutes, o.ETA.TravelMinutes, o.ETA.TotalMinutes, o.ETA.ComputedAt,
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	for _, it := range o.Items {
		if it.Qty <= 0 || it.PriceCents < 0 {
			return fmt.Errorf("%w: bad item %s", ErrValidation, it.ProductID)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, name, price_cents, qty, item_status)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, it.ProductID, it.Name, it.PriceCents, it.Qty, it.ItemStatus); err != nil {
			return err
		}
	}

	first := StatusUpdate{Status: StatusPending, Note: "Order placed", At: now}
	if _, err := tx.Exec(ctx, `
		INSERT INTO order_status_updates(order_id, status, note, at)
		VALUES ($1,$2,$3,$4)`, o.ID, first.Status, first.Note, first.At); err != nil {
		return err
	}
	o.History = []StatusUpdate{first}

	return tx.Commit(ctx)
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	var o Order
	var agentID *string
	err := r.DB.QueryRow(ctx, `
		SELECT id, customer_id, customer_name, customer_phone, restaurant_id,
		       address, lng, lat, total_cents, payment_status, status, agent_id,
		       eta_prep_minutes, eta_travel_minutes, eta_total_minutes, eta_computed_at,
		       created_at, updated_at
		FROM orders WHERE id=$1`, id).Scan(
		&o.ID, &o.CustomerID, &o.CustomerName, &o.CustomerPhone, &o.RestaurantID,
		&o.Address, &o.DeliveryPoint.Lng, &o.DeliveryPoint.Lat, &o.TotalCents, &o.PaymentStatus, &o.Status, &agentID,
		&o.ETA.PrepMinutes, &o.ETA.TravelMinutes, &o.ETA.TotalMinutes, &o.ETA.ComputedAt,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if agentID != nil {
		o.AgentID = *agentID
	}

	rows, err := r.DB.Query(ctx, `
		SELECT product_id, name, price_cents, qty, item_status
		FROM order_items WHERE order_id=$1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.PriceCents, &it.Qty, &it.ItemStatus); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	o.History, err = r.Tracking(ctx, id)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CurrentStatus returns the live status plus the last history entry.
func (r *Repo) CurrentStatus(ctx context.Context, id string) (Status, StatusUpdate, error) {
	var s Status
	err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, id).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", StatusUpdate{}, ErrNotFound
	}
	if err != nil {
		return "", StatusUpdate{}, err
	}

	var last StatusUpdate
	err = r.DB.QueryRow(ctx, `
		SELECT status, coalesce(note,''), at FROM order_status_updates
		WHERE order_id=$1 ORDER BY at DESC, id DESC LIMIT 1`, id).
		Scan(&last.Status, &last.Note, &last.At)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", StatusUpdate{}, err
	}
	return s, last, nil
}

// Tracking lists history in real transition order: rows are appended at
// transition time and returned in insertion order, never re-sorted.
func (r *Repo) Tracking(ctx context.Context, id string) ([]StatusUpdate, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT status, coalesce(note,''), at FROM order_status_updates
		WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusUpdate
	for rows.Next() {
		var u StatusUpdate
		if err := rows.Scan(&u.Status, &u.Note, &u.At); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ApplyTransition validates the move against the lifecycle graph under a
// row lock, then updates the order and appends exactly one history row in
// the same transaction. An illegal move leaves the order untouched.
func (r *Repo) ApplyTransition(ctx context.Context, id string, to Status, note string) (from Status, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, id).Scan(&from)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	at := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`, id, to, at); err != nil {
		return from, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO order_status_updates(order_id, status, note, at)
		VALUES ($1,$2,$3,$4)`, id, to, note, at); err != nil {
		return from, err
	}
	return from, tx.Commit(ctx)
}

// SetPaymentStatus is an idempotent set, not an append.
func (r *Repo) SetPaymentStatus(ctx context.Context, id, paymentStatus string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET payment_status=$2, updated_at=now() WHERE id=$1`, id, paymentStatus)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
