package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const paymentCols = `id, order_id, customer_id, amount_cents, currency, status, coalesce(gateway_payment_id,''), coalesce(hash,''), coalesce(description,''), created_at, updated_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.CustomerID, &p.AmountCents, &p.Currency, &p.Status,
		&p.GatewayPaymentID, &p.Hash, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create is idempotent on order_id: a second request for the same order
// returns the existing payment instead of creating a duplicate. The unique
// index on order_id closes the check-then-insert race.
func (r *Repo) Create(ctx context.Context, p *Payment) (*Payment, bool, error) {
	if existing, err := r.GetByOrder(ctx, p.OrderID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	p.ID = uuid.NewString()
	p.Status = StatusPending
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	ct, err := r.DB.Exec(ctx, `
		INSERT INTO payments(id, order_id, customer_id, amount_cents, currency, status, hash, description, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (order_id) DO NOTHING`,
		p.ID, p.OrderID, p.CustomerID, p.AmountCents, p.Currency, p.Status, p.Hash, p.Description, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, false, err
	}
	if ct.RowsAffected() == 0 {
		existing, err := r.GetByOrder(ctx, p.OrderID)
		return existing, false, err
	}
	return p, true, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Payment, error) {
	return scanPayment(r.DB.QueryRow(ctx, `SELECT `+paymentCols+` FROM payments WHERE id=$1`, id))
}

func (r *Repo) GetByOrder(ctx context.Context, orderID string) (*Payment, error) {
	return scanPayment(r.DB.QueryRow(ctx, `SELECT `+paymentCols+` FROM payments WHERE order_id=$1`, orderID))
}

// Decide moves a payment out of pending exactly once. Returns false when
// the payment was already decided (duplicate callback).
func (r *Repo) Decide(ctx context.Context, id string, to Status, gatewayPaymentID string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE payments SET status=$2, gateway_payment_id=$3, updated_at=now()
		WHERE id=$1 AND status='pending'`,
		id, to, gatewayPaymentID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// MarkRefunded is only legal from completed.
func (r *Repo) MarkRefunded(ctx context.Context, id string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE payments SET status='refunded', updated_at=now()
		WHERE id=$1 AND status='completed'`, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
