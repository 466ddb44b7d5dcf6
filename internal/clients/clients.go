package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/quickserve/food-dispatch/internal/auth"
	"github.com/quickserve/food-dispatch/internal/orders"
	"github.com/quickserve/food-dispatch/internal/payments"
)

// Every outbound call carries a bounded timeout; exceeding it is a
// transient failure for the caller to retry (queue consumers retry via
// redelivery, the checkout path degrades where the spec allows).

type base struct {
	url     string
	http    *http.Client
	timeout time.Duration
}

func newBase(url string, timeout time.Duration) base {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return base{url: url, http: &http.Client{Timeout: timeout}, timeout: timeout}
}

func (b base) getJSON(ctx context.Context, path, token string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url+path, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (b base) postJSON(ctx context.Context, path, token string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("POST %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// UserClient looks up the contact snapshot captured on each order.
type UserClient struct{ base }

func NewUserClient(url string, timeout time.Duration) *UserClient {
	return &UserClient{newBase(url, timeout)}
}

// FetchUser degrades to placeholder contact data when the user service is
// unreachable: checkout must not fail on a missing display name.
func (c *UserClient) FetchUser(ctx context.Context, userID, token string) (name, phone string) {
	var out struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if err := c.getJSON(ctx, "/users/"+userID, token, &out); err != nil || out.Name == "" {
		return "Customer", "Unknown"
	}
	if out.Phone == "" {
		out.Phone = "Unknown"
	}
	return out.Name, out.Phone
}

// RecipientsByRole lists the user ids holding a role, for broadcast
// fan-out. Unlike FetchUser this does not degrade: a broadcast without its
// recipient list has nothing useful to do.
func (c *UserClient) RecipientsByRole(ctx context.Context, role string) ([]string, error) {
	var out struct {
		IDs []string `json:"ids"`
	}
	if err := c.getJSON(ctx, "/users?role="+url.QueryEscape(role), "", &out); err != nil {
		return nil, fmt.Errorf("recipients for role %s: %w", role, err)
	}
	return out.IDs, nil
}

// RestaurantClient gates order creation on restaurant availability. This
// call is essential: unreachable means the checkout fails.
type RestaurantClient struct{ base }

func NewRestaurantClient(url string, timeout time.Duration) *RestaurantClient {
	return &RestaurantClient{newBase(url, timeout)}
}

func (c *RestaurantClient) Available(ctx context.Context, restaurantID string) (bool, error) {
	var out struct {
		Available bool `json:"available"`
	}
	if err := c.getJSON(ctx, "/restaurants/"+restaurantID+"/availability", "", &out); err != nil {
		return false, fmt.Errorf("restaurant availability: %w", err)
	}
	return out.Available, nil
}

// OrderClient re-fetches the authoritative order record; used by the
// delivery consumer instead of trusting event-embedded data.
type OrderClient struct{ base }

func NewOrderClient(url string, timeout time.Duration) *OrderClient {
	return &OrderClient{newBase(url, timeout)}
}

// FetchOrder identifies as an internal caller: the order endpoint gates on
// role before ownership, and the consumer fetches orders it does not own.
func (c *OrderClient) FetchOrder(ctx context.Context, orderID, token string) (*orders.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/orders/"+orderID, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-Role", string(auth.RoleInternal))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch order %s: %w", orderID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch order %s: status %d", orderID, resp.StatusCode)
	}
	var o orders.Order
	if err := json.NewDecoder(resp.Body).Decode(&o); err != nil {
		return nil, fmt.Errorf("fetch order %s: %w", orderID, err)
	}
	return &o, nil
}

// Transition requests a role-gated status change on the authoritative
// order record.
func (c *OrderClient) Transition(ctx context.Context, orderID string, to orders.Status, role auth.Role, note string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"status": string(to), "note": note})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/orders/"+orderID+"/status", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", string(role))
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("transition order %s to %s: status %d", orderID, to, resp.StatusCode)
	}
	return nil
}

// PaymentClient fronts the payment coordinator for checkout and refunds.
type PaymentClient struct{ base }

func NewPaymentClient(url string, timeout time.Duration) *PaymentClient {
	return &PaymentClient{newBase(url, timeout)}
}

func (c *PaymentClient) CreatePayment(ctx context.Context, orderID, customerID string, amountCents int, description string) (payments.Descriptor, error) {
	in := map[string]any{
		"order_id":     orderID,
		"customer_id":  customerID,
		"amount_cents": amountCents,
		"description":  description,
	}
	var d payments.Descriptor
	if err := c.postJSON(ctx, "/payments", "", in, &d); err != nil {
		return payments.Descriptor{}, fmt.Errorf("create payment: %w", err)
	}
	return d, nil
}

func (c *PaymentClient) RefundByOrder(ctx context.Context, orderID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/payments/by-order/"+orderID+"/refund", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Role", string(auth.RoleInternal))
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("refund order %s: status %d", orderID, resp.StatusCode)
	}
	return nil
}
