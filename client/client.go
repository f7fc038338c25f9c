// Package client is a Go client for the checkout API, used by the
// storefront and by operational tooling.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"checkout-pipeline/models"

	"github.com/go-resty/resty/v2"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("checkout api: status %d: %s", e.StatusCode, e.Message)
}

type errorBody struct {
	Error string `json:"error"`
}

type Client struct {
	http *resty.Client
}

// New builds a client for baseURL that authenticates with token.
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(token).
			SetTimeout(timeout).
			SetRetryCount(0).
			SetHeader("Accept", "application/json"),
	}
}

// SubmitCheckout enqueues a cart. A non-empty idempotencyKey makes a retried
// call return the original order id.
func (c *Client) SubmitCheckout(ctx context.Context, req models.CheckoutRequest, idempotencyKey string) (models.CheckoutReceipt, error) {
	var receipt models.CheckoutReceipt

	r := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&receipt).
		SetError(&errorBody{})
	if idempotencyKey != "" {
		r.SetHeader("Idempotency-Key", idempotencyKey)
	}

	resp, err := r.Post("/api/orders/enqueue")
	if err := check(resp, err); err != nil {
		return models.CheckoutReceipt{}, err
	}

	return receipt, nil
}

// ListOrders lists the caller's orders, optionally only those in status.
func (c *Client) ListOrders(ctx context.Context, status models.OrderStatus) ([]models.OrderSummary, error) {
	var orders []models.OrderSummary

	r := c.http.R().
		SetContext(ctx).
		SetResult(&orders).
		SetError(&errorBody{})
	if status != "" {
		r.SetQueryParam("status", string(status))
	}

	resp, err := r.Get("/api/orders")
	if err := check(resp, err); err != nil {
		return nil, err
	}

	return orders, nil
}

func (c *Client) OrderDetails(ctx context.Context, orderID string) (models.OrderDetails, error) {
	var details models.OrderDetails

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&details).
		SetError(&errorBody{}).
		Get("/api/orders/" + url.PathEscape(orderID))
	if err := check(resp, err); err != nil {
		return models.OrderDetails{}, err
	}

	return details, nil
}

// UpdateOrderStatus sets the status of every line of an order. It needs an
// admin token.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"status": string(status)}).
		SetError(&errorBody{}).
		Put("/api/admin/orders/" + url.PathEscape(orderID) + "/status")

	return check(resp, err)
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("checkout api: %w", err)
	}
	if resp.IsSuccess() {
		return nil
	}

	msg := http.StatusText(resp.StatusCode())
	if body, ok := resp.Error().(*errorBody); ok && body.Error != "" {
		msg = body.Error
	}

	return &APIError{StatusCode: resp.StatusCode(), Message: msg}
}
