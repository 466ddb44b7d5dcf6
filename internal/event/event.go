package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeOrderCreated    = "OrderCreated"
	TypePaymentUpdated  = "PaymentUpdated"
	TypeAgentRegistered = "DeliveryPersonRegistered"
)

// Envelope is the stable wire shape every message carries. EventID is the
// consumer-side dedup key; CorrelationID is the order id where one exists.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType, producer, traceID, correlationID string, payload []byte) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: correlationID,
		Payload:       payload,
	}
}

// OrderCreatedPayload deliberately carries no order detail beyond the id:
// consumers re-fetch the authoritative record with the auth token instead
// of trusting a possibly stale embedded copy.
type OrderCreatedPayload struct {
	OrderID   string `json:"order_id"`
	AuthToken string `json:"auth_token"`
}

type PaymentUpdatedPayload struct {
	OrderID          string `json:"order_id"`
	NewPaymentStatus string `json:"new_payment_status"`
	GatewayPaymentID string `json:"gateway_payment_id,omitempty"`
}

type AgentRegisteredPayload struct {
	Name                string `json:"name"`
	Phone               string `json:"phone"`
	VehicleType         string `json:"vehicle_type"`
	VehicleLicensePlate string `json:"vehicle_license_plate"`
}
