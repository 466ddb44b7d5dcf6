package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/quickserve/food-dispatch/internal/auth"
	"github.com/quickserve/food-dispatch/internal/delivery"
	"github.com/quickserve/food-dispatch/internal/orders"
	"github.com/quickserve/food-dispatch/internal/payments"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP codes in one place.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, orders.ErrValidation),
		errors.Is(err, delivery.ErrValidation),
		errors.Is(err, payments.ErrValidation),
		errors.Is(err, payments.ErrUnknownCode),
		errors.Is(err, payments.ErrBadSignature):
		code = http.StatusBadRequest
	case errors.Is(err, orders.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, payments.ErrNotFound),
		errors.Is(err, delivery.ErrNotFound),
		errors.Is(err, delivery.ErrAgentNotFound):
		code = http.StatusNotFound
	case errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, payments.ErrAlreadyDecided),
		errors.Is(err, payments.ErrNotRefundable),
		errors.Is(err, delivery.ErrNotReady):
		code = http.StatusConflict
	case errors.Is(err, delivery.ErrNoAgentAvailable):
		// retryable: no agent right now is not a permanent failure
		code = http.StatusServiceUnavailable
	case errors.Is(err, orders.ErrUpstream):
		code = http.StatusBadGateway
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func callerRole(r *http.Request) auth.Role {
	return auth.Role(r.Header.Get("X-Role"))
}

func callerID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
