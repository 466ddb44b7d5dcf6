package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quickserve/food-dispatch/internal/auth"
	"github.com/quickserve/food-dispatch/internal/orders"
	"github.com/quickserve/food-dispatch/internal/payments"
)

type PaymentsHandler struct {
	Coord *payments.Coordinator
}

func (h *PaymentsHandler) Register(r *chi.Mux) {
	r.Post("/payments", h.create)
	r.Post("/payments/notify", h.notify)
	r.Get("/payments/by-order/{orderID}", h.getByOrder)
	r.Post("/payments/{id}/refund", h.refund)
	r.Post("/payments/by-order/{orderID}/refund", h.refundByOrder)
}

type createPaymentReq struct {
	OrderID     string `json:"order_id"`
	CustomerID  string `json:"customer_id"`
	AmountCents int    `json:"amount_cents"`
	Description string `json:"description,omitempty"`
}

func (h *PaymentsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	d, err := h.Coord.Create(ctx, req.OrderID, req.CustomerID, req.AmountCents, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// notify is the gateway callback endpoint; the body is form-encoded per
// the gateway contract. A tampered signature changes nothing and is
// rejected outright.
func (h *PaymentsHandler) notify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid form"})
		return
	}
	cb := payments.Callback{
		MerchantID:       r.PostFormValue("merchant_id"),
		OrderID:          r.PostFormValue("order_id"),
		GatewayPaymentID: r.PostFormValue("payment_id"),
		Amount:           r.PostFormValue("payhere_amount"),
		Currency:         r.PostFormValue("payhere_currency"),
		StatusCode:       r.PostFormValue("status_code"),
		Signature:        r.PostFormValue("md5sig"),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, err := h.Coord.HandleCallback(ctx, cb)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (h *PaymentsHandler) getByOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Coord.Store.GetByOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PaymentsHandler) refund(w http.ResponseWriter, r *http.Request) {
	if !auth.Allow(callerRole(r), auth.ActionRefund, nil) {
		writeError(w, fmt.Errorf("%w: refund requires admin", orders.ErrForbidden))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Coord.Refund(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PaymentsHandler) refundByOrder(w http.ResponseWriter, r *http.Request) {
	if !auth.Allow(callerRole(r), auth.ActionRefund, nil) {
		writeError(w, fmt.Errorf("%w: refund requires admin or internal caller", orders.ErrForbidden))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Coord.RefundByOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
