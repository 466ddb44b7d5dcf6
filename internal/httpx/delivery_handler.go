package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quickserve/food-dispatch/internal/auth"
	"github.com/quickserve/food-dispatch/internal/delivery"
	"github.com/quickserve/food-dispatch/internal/event"
	"github.com/quickserve/food-dispatch/internal/orders"
)

type DeliveryStore interface {
	GetOrderCopy(ctx context.Context, orderID string) (*delivery.OrderCopy, error)
	GetAgent(ctx context.Context, id string) (*delivery.Agent, error)
	ReleaseAgent(ctx context.Context, agentID, orderID string) error
}

type DeliveryHandler struct {
	Assigner     *delivery.Assigner
	Registration *delivery.Registration
	Store        DeliveryStore
}

func (h *DeliveryHandler) Register(r *chi.Mux) {
	r.Post("/agents", h.registerAgent)
	r.Get("/agents/{id}", h.getAgent)
	r.Post("/agents/{id}/release", h.releaseAgent)
	r.Get("/deliveries/{orderID}", h.getDelivery)
	r.Post("/deliveries/{orderID}/assign", h.assign)
	r.Post("/deliveries/{orderID}/delivered", h.delivered)
}

func (h *DeliveryHandler) registerAgent(w http.ResponseWriter, r *http.Request) {
	var p event.AgentRegisteredPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if err := h.Registration.Register(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "registration accepted"})
}

func (h *DeliveryHandler) getAgent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	a, err := h.Store.GetAgent(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *DeliveryHandler) getDelivery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	oc, err := h.Store.GetOrderCopy(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, oc)
}

func (h *DeliveryHandler) assign(w http.ResponseWriter, r *http.Request) {
	if !auth.Allow(callerRole(r), auth.ActionAssignAgent, nil) {
		writeError(w, fmt.Errorf("%w: assignment is not available to %s", orders.ErrForbidden, callerRole(r)))
		return
	}

	var req struct {
		VehicleType string `json:"vehicle_type,omitempty"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Assigner.Assign(ctx, chi.URLParam(r, "orderID"), req.VehicleType)
	if err != nil {
		writeError(w, err)
		return
	}
	code := http.StatusOK
	if !res.AlreadyAssigned {
		code = http.StatusCreated
	}
	writeJSON(w, code, res)
}

func (h *DeliveryHandler) delivered(w http.ResponseWriter, r *http.Request) {
	if !auth.Allow(callerRole(r), auth.ActionDeliver, nil) {
		writeError(w, fmt.Errorf("%w: only delivery personnel may mark delivered", orders.ErrForbidden))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Assigner.CompleteDelivery(ctx, chi.URLParam(r, "orderID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

func (h *DeliveryHandler) releaseAgent(w http.ResponseWriter, r *http.Request) {
	if !auth.Allow(callerRole(r), auth.ActionReleaseAgent, nil) {
		writeError(w, fmt.Errorf("%w: release requires admin", orders.ErrForbidden))
		return
	}

	var req struct {
		OrderID string `json:"order_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Store.ReleaseAgent(ctx, chi.URLParam(r, "id"), req.OrderID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}
