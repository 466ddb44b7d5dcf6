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
	"github.com/quickserve/food-dispatch/internal/redisx"
)

type OrdersHandler struct {
	Checkout  *orders.CheckoutService
	Lifecycle *orders.LifecycleService
	Store     orders.Store
	Cache     redisx.Cache
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/checkout", h.checkout)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Get("/orders/{id}/tracking", h.getTracking)
	r.Post("/orders/{id}/status", h.transition)
	r.Post("/orders/{id}/cancel", h.cancel)
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	if !auth.Allow(callerRole(r), auth.ActionCheckout, nil) {
		writeError(w, fmt.Errorf("%w: checkout is customer-only", orders.ErrForbidden))
		return
	}

	var req orders.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	req.CustomerID = callerID(r)
	req.AuthToken = bearerToken(r)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// fast-path idempotency keyed by cart id: a retried checkout replays
	// the stored results, payment descriptors included, so a card client
	// keeps its gateway redirect data across retries
	idemKey := ""
	if req.CartID != "" {
		idemKey = fmt.Sprintf(redisx.KeyIdemCheckout, req.CartID)
		if cached, ok := h.Cache.Get(ctx, idemKey); ok && cached != "" {
			var results []orders.CheckoutResult
			if err := json.Unmarshal([]byte(cached), &results); err == nil && len(results) > 0 {
				for i := range results {
					if o, err := h.Store.Get(ctx, results[i].Order.ID); err == nil {
						results[i].Order = o
					}
				}
				writeJSON(w, http.StatusOK, map[string]any{"orders": results, "idempotent": true})
				return
			}
		}
	}

	results, err := h.Checkout.Checkout(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}

	for _, res := range results {
		h.cacheStatus(ctx, res.Order.ID, res.Order.Status, "Order placed")
	}
	if idemKey != "" {
		if b, err := json.Marshal(results); err == nil {
			h.Cache.Set(ctx, idemKey, string(b), redisx.TTLIdempotency)
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"orders": results, "idempotent": false})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	role := callerRole(r)
	if !auth.Valid(role) {
		writeError(w, fmt.Errorf("%w: cannot view orders", orders.ErrForbidden))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Store.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !auth.Allow(role, auth.ActionViewOrder, func() bool { return o.CustomerID == callerID(r) }) {
		writeError(w, fmt.Errorf("%w: cannot view this order", orders.ErrForbidden))
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, ok := h.Cache.Get(ctx, key); ok && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	status, last, err := h.Store.CurrentStatus(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	body := map[string]any{"status": status, "note": last.Note, "updated_at": last.At}
	b, _ := json.Marshal(body)
	h.Cache.Set(ctx, key, string(b), redisx.TTLStatusCache)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *OrdersHandler) getTracking(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	history, err := h.Store.Tracking(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if len(history) == 0 {
		writeError(w, orders.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

type transitionReq struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	var req transitionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	to := orders.Status(req.Status)
	if !orders.ValidStatus(to) {
		writeError(w, fmt.Errorf("%w: unknown status %q", orders.ErrValidation, req.Status))
		return
	}
	h.applyTransition(w, r, to, req.Note)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note,omitempty"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Note == "" {
		req.Note = "Cancelled by " + string(callerRole(r))
	}
	h.applyTransition(w, r, orders.StatusCancelled, req.Note)
}

func (h *OrdersHandler) applyTransition(w http.ResponseWriter, r *http.Request, to orders.Status, note string) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Lifecycle.Transition(ctx, orderID, to, callerRole(r), callerID(r), note)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, orderID, o.Status, note)
	writeJSON(w, http.StatusOK, map[string]any{"order_id": o.ID, "status": o.Status})
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, orderID string, status orders.Status, note string) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	b, _ := json.Marshal(map[string]any{"status": status, "note": note, "updated_at": time.Now().UTC()})
	h.Cache.Set(ctx, key, string(b), redisx.TTLStatusCache)
}
