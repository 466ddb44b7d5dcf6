package payments

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusRefunded    Status = "refunded"
	StatusCancelled   Status = "cancelled"
	StatusChargedback Status = "chargedback"
)

// One-directional transitions: a pending payment is decided exactly once by
// the gateway callback; refund is the only move out of a decided state.
var validNext = map[Status]map[Status]bool{
	StatusPending:     {StatusCompleted: true, StatusFailed: true, StatusCancelled: true, StatusChargedback: true},
	StatusCompleted:   {StatusRefunded: true},
	StatusFailed:      {},
	StatusRefunded:    {},
	StatusCancelled:   {},
	StatusChargedback: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Gateway status codes as delivered on the notify callback.
const (
	GatewayCodeSuccess    = 2
	GatewayCodePending    = 0
	GatewayCodeCancelled  = -1
	GatewayCodeFailed     = -2
	GatewayCodeChargeback = -3
)

func MapGatewayCode(code int) (Status, bool) {
	switch code {
	case GatewayCodeSuccess:
		return StatusCompleted, true
	case GatewayCodePending:
		return StatusPending, true
	case GatewayCodeCancelled:
		return StatusCancelled, true
	case GatewayCodeFailed:
		return StatusFailed, true
	case GatewayCodeChargeback:
		return StatusChargedback, true
	}
	return "", false
}

type Payment struct {
	ID               string    `json:"id"`
	OrderID          string    `json:"order_id"`
	CustomerID       string    `json:"customer_id"`
	AmountCents      int       `json:"amount_cents"`
	Currency         string    `json:"currency"`
	Status           Status    `json:"status"`
	GatewayPaymentID string    `json:"gateway_payment_id,omitempty"`
	Hash             string    `json:"-"`
	Description      string    `json:"description,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

var (
	ErrNotFound       = errors.New("payment not found")
	ErrBadSignature   = errors.New("callback signature mismatch")
	ErrUnknownCode    = errors.New("unknown gateway status code")
	ErrAlreadyDecided = errors.New("payment already decided")
	ErrNotRefundable  = errors.New("payment not refundable")
	ErrValidation     = errors.New("invalid payment request")
)
