package redisx

import "time"

const (
	// Idempotency for checkout: idem:checkout:{cart_id} -> checkout results JSON
	KeyIdemCheckout = "idem:checkout:%s"

	// Cache of order status: order_status:{order_id} -> {"status":"...","note":"...","updated_at":"..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup for event consumers: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
