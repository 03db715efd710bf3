// Package client implements the downstream service ports over HTTP. Every
// client goes through an httpclient.Doer, which in production is the retrying
// client wrapped in a circuit breaker.
package client

import (
	"context"
	"net/http"
	"strings"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/service"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/httpclient"
)

// IdempotencyHeader lets downstream services deduplicate retried writes.
const IdempotencyHeader = "Idempotency-Key"

// ProductClient reads product snapshots from the catalog service.
type ProductClient struct {
	doer    httpclient.Doer
	baseURL string
}

// NewProductClient creates a catalog client rooted at baseURL.
func NewProductClient(doer httpclient.Doer, baseURL string) *ProductClient {
	return &ProductClient{doer: doer, baseURL: strings.TrimRight(baseURL, "/")}
}

var _ service.ProductService = (*ProductClient)(nil)

// GetProducts fetches snapshots for ids in one batch call. Ids the catalog
// does not know are simply absent from the result.
func (c *ProductClient) GetProducts(ctx context.Context, ids []string) ([]service.ProductSnapshot, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	req := struct {
		IDs []string `json:"ids"`
	}{IDs: ids}

	var products []service.ProductSnapshot
	if err := httpclient.DoJSON(ctx, c.doer, http.MethodPost, c.baseURL+"/api/v1/products/batch", "product", req, &products, nil); err != nil {
		return nil, err
	}
	return products, nil
}
