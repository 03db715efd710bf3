package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/service"
	apperrors "github.com/leduxro-prog/erp-dashboard-sub000/pkg/errors"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/httpclient"
)

// InventoryClient checks and reserves stock in the inventory service.
type InventoryClient struct {
	doer    httpclient.Doer
	baseURL string
}

// NewInventoryClient creates an inventory client rooted at baseURL.
func NewInventoryClient(doer httpclient.Doer, baseURL string) *InventoryClient {
	return &InventoryClient{doer: doer, baseURL: strings.TrimRight(baseURL, "/")}
}

var _ service.StockService = (*InventoryClient)(nil)

// CheckAvailability asks whether quantity units of productID can be reserved.
func (c *InventoryClient) CheckAvailability(ctx context.Context, productID string, quantity int) (service.Availability, error) {
	q := url.Values{}
	q.Set("product_id", productID)
	q.Set("quantity", strconv.Itoa(quantity))

	var out service.Availability
	if err := httpclient.DoJSON(ctx, c.doer, http.MethodGet, c.baseURL+"/api/v1/inventory/availability?"+q.Encode(), "inventory", nil, &out, nil); err != nil {
		return service.Availability{}, err
	}
	if out.ProductID == "" {
		out.ProductID = productID
	}
	return out, nil
}

// ReserveStock reserves all lines for the order. The order id doubles as the
// idempotency key so a retried reservation is not applied twice.
func (c *InventoryClient) ReserveStock(ctx context.Context, orderID int64, lines []service.StockLine) error {
	req := struct {
		OrderID int64               `json:"order_id"`
		Items   []service.StockLine `json:"items"`
	}{OrderID: orderID, Items: lines}

	headers := map[string]string{IdempotencyHeader: fmt.Sprintf("order-%d-reserve", orderID)}
	return httpclient.DoJSON(ctx, c.doer, http.MethodPost, c.baseURL+"/api/v1/inventory/reservations", "inventory", req, nil, headers)
}

// ReleaseStock releases the order's reservation. A reservation that no longer
// exists counts as released.
func (c *InventoryClient) ReleaseStock(ctx context.Context, orderID int64) error {
	endpoint := fmt.Sprintf("%s/api/v1/inventory/reservations/%d", c.baseURL, orderID)
	err := httpclient.DoJSON(ctx, c.doer, http.MethodDelete, endpoint, "inventory", nil, nil, nil)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	return err
}
