package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"checkout-pipeline/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitCheckout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/orders/enqueue", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))

		var req models.CheckoutRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.Customer)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"accepted":true,"order_id":"o-1"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", time.Second)

	receipt, err := c.SubmitCheckout(t.Context(), models.CheckoutRequest{
		Customer: "alice",
		Items: []models.CheckoutLine{
			{ProductID: "p1", Name: "Widget", UnitPrice: decimal.RequireFromString("9.99"), Quantity: 2},
		},
	}, "key-1")
	require.NoError(t, err)
	assert.Equal(t, models.CheckoutReceipt{Accepted: true, OrderID: "o-1"}, receipt)
}

func TestSubmitCheckoutQueueDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"checkout queue unavailable"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "tok", time.Second).SubmitCheckout(t.Context(), models.CheckoutRequest{}, "")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "checkout queue unavailable", apiErr.Message)
}

func TestListOrdersAndDetails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Completed", r.URL.Query().Get("status"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"order_id":"o-1","customer":"alice","status":"Completed","total_items":3,"total_amount":"4.50"}]`))
	})
	mux.HandleFunc("GET /api/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "o-1" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Order not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"order_id":"o-1","customer":"alice","status":"Completed","items":[],"total_amount":"4.50"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, "tok", time.Second)

	orders, err := c.ListOrders(t.Context(), models.StatusCompleted)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 3, orders[0].TotalItems)
	assert.True(t, decimal.RequireFromString("4.5").Equal(orders[0].TotalAmount))

	details, err := c.OrderDetails(t.Context(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", details.Customer)

	_, err = c.OrderDetails(t.Context(), "o-2")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestUpdateOrderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/admin/orders/o-1/status", r.URL.Path)

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Cancelled", body["status"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"Order status updated"}`))
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL, "tok", time.Second).UpdateOrderStatus(t.Context(), "o-1", models.StatusCancelled))
}
