package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/service"
	apperrors "github.com/leduxro-prog/erp-dashboard-sub000/pkg/errors"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/httpclient"
)

func testDoer() httpclient.Doer {
	return httpclient.New(httpclient.Config{
		Timeout:         2 * time.Second,
		MaxRetries:      0,
		MaxConnsPerHost: 4,
	})
}

func writeData(t *testing.T, w http.ResponseWriter, status int, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": data}))
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": code, "message": message}})
}

// --- Product ---

func TestProductClient_GetProducts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/products/batch", r.URL.Path)

		var body struct {
			IDs []string `json:"ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"p1", "p2"}, body.IDs)

		writeData(t, w, http.StatusOK, []map[string]any{
			{"id": "p1", "sku": "S1", "name": "Cable", "price": 1000, "cost_price": 700, "cost_source": "erp"},
			{"id": "p2", "sku": "S2", "name": "Switch", "price": 2500},
		})
	}))
	defer server.Close()

	products, err := NewProductClient(testDoer(), server.URL+"/").GetProducts(context.Background(), []string{"p1", "p2"})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, int64(1000), products[0].Price)
	require.NotNil(t, products[0].CostPrice)
	assert.Equal(t, int64(700), *products[0].CostPrice)
	assert.Nil(t, products[1].CostPrice)
}

func TestProductClient_EmptyIDsSkipsCall(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	products, err := NewProductClient(testDoer(), server.URL).GetProducts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.False(t, called)
}

func TestProductClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "boom")
	}))
	defer server.Close()

	_, err := NewProductClient(testDoer(), server.URL).GetProducts(context.Background(), []string{"p1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "product")
}

// --- Inventory ---

func TestInventoryClient_CheckAvailability(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/inventory/availability", r.URL.Path)
		assert.Equal(t, "p1", r.URL.Query().Get("product_id"))
		assert.Equal(t, "10", r.URL.Query().Get("quantity"))
		writeData(t, w, http.StatusOK, map[string]any{"available": false, "quantity": 4})
	}))
	defer server.Close()

	avail, err := NewInventoryClient(testDoer(), server.URL).CheckAvailability(context.Background(), "p1", 10)
	require.NoError(t, err)
	assert.Equal(t, service.Availability{ProductID: "p1", Available: false, Quantity: 4}, avail)
}

func TestInventoryClient_ReserveStock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/inventory/reservations", r.URL.Path)
		assert.Equal(t, "order-12-reserve", r.Header.Get(IdempotencyHeader))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"order_id":12,"items":[{"product_id":"p1","quantity":3}]}`, string(body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	err := NewInventoryClient(testDoer(), server.URL).ReserveStock(context.Background(), 12, []service.StockLine{{ProductID: "p1", Quantity: 3}})
	require.NoError(t, err)
}

func TestInventoryClient_ReserveStock_Conflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusConflict, "INSUFFICIENT_STOCK", "not enough units")
	}))
	defer server.Close()

	err := NewInventoryClient(testDoer(), server.URL).ReserveStock(context.Background(), 12, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestInventoryClient_ReleaseStock(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"released", http.StatusNoContent, false},
		{"already gone", http.StatusNotFound, false},
		{"rejected", http.StatusBadRequest, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				assert.Equal(t, "/api/v1/inventory/reservations/12", r.URL.Path)
				if tt.status >= 400 {
					writeError(w, tt.status, "X", "y")
					return
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := NewInventoryClient(testDoer(), server.URL).ReleaseStock(context.Background(), 12)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// --- Accounting ---

func TestAccountingClient_GenerateProforma(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/proformas", r.URL.Path)
		assert.Equal(t, "order-5-proforma", r.Header.Get(IdempotencyHeader))

		var req struct {
			OrderNumber string          `json:"order_number"`
			Total       int64           `json:"total"`
			TaxRate     decimal.Decimal `json:"tax_rate"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ORD-000005", req.OrderNumber)
		assert.Equal(t, int64(7045), req.Total)
		assert.True(t, decimal.RequireFromString("0.19").Equal(req.TaxRate))

		writeData(t, w, http.StatusCreated, map[string]string{"number": "PRO-2026-0001"})
	}))
	defer server.Close()

	number, err := NewAccountingClient(testDoer(), server.URL).GenerateProforma(context.Background(), service.DocumentRequest{
		OrderID:     5,
		OrderNumber: "ORD-000005",
		Total:       7045,
		TaxRate:     decimal.RequireFromString("0.19"),
	})
	require.NoError(t, err)
	assert.Equal(t, "PRO-2026-0001", number)
}

func TestAccountingClient_GenerateInvoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/invoices", r.URL.Path)
		assert.Equal(t, "order-5-invoice", r.Header.Get(IdempotencyHeader))
		writeData(t, w, http.StatusCreated, map[string]string{"number": "INV-77"})
	}))
	defer server.Close()

	number, err := NewAccountingClient(testDoer(), server.URL).GenerateInvoice(context.Background(), service.DocumentRequest{OrderID: 5})
	require.NoError(t, err)
	assert.Equal(t, "INV-77", number)
}

func TestAccountingClient_EmptyNumber(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(t, w, http.StatusCreated, map[string]string{"number": " "})
	}))
	defer server.Close()

	_, err := NewAccountingClient(testDoer(), server.URL).GenerateInvoice(context.Background(), service.DocumentRequest{OrderID: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty invoice number")
}

func TestAccountingClient_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cb := httpclient.NewCircuitBreakerClient(testDoer(), httpclient.CircuitBreakerConfig{
		Name:         "accounting-test",
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c := NewAccountingClient(cb, server.URL)

	for i := 0; i < 2; i++ {
		_, err := c.GenerateProforma(context.Background(), service.DocumentRequest{OrderID: 1})
		require.Error(t, err)
	}
	_, err := c.GenerateProforma(context.Background(), service.DocumentRequest{OrderID: 1})
	assert.ErrorIs(t, err, httpclient.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}
