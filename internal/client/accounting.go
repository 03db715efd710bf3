package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/service"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/httpclient"
)

// AccountingClient issues proformas and invoices through the accounting
// service.
type AccountingClient struct {
	doer    httpclient.Doer
	baseURL string
}

// NewAccountingClient creates an accounting client rooted at baseURL.
func NewAccountingClient(doer httpclient.Doer, baseURL string) *AccountingClient {
	return &AccountingClient{doer: doer, baseURL: strings.TrimRight(baseURL, "/")}
}

var (
	_ service.ProformaService = (*AccountingClient)(nil)
	_ service.InvoiceService  = (*AccountingClient)(nil)
)

type documentResponse struct {
	Number string `json:"number"`
}

// GenerateProforma issues a proforma and returns its number.
func (c *AccountingClient) GenerateProforma(ctx context.Context, req service.DocumentRequest) (string, error) {
	return c.issue(ctx, "/api/v1/proformas", "proforma", req)
}

// GenerateInvoice issues an invoice and returns its number.
func (c *AccountingClient) GenerateInvoice(ctx context.Context, req service.DocumentRequest) (string, error) {
	return c.issue(ctx, "/api/v1/invoices", "invoice", req)
}

func (c *AccountingClient) issue(ctx context.Context, path, kind string, req service.DocumentRequest) (string, error) {
	headers := map[string]string{IdempotencyHeader: fmt.Sprintf("order-%d-%s", req.OrderID, kind)}

	var out documentResponse
	if err := httpclient.DoJSON(ctx, c.doer, http.MethodPost, c.baseURL+path, "accounting", req, &out, headers); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Number) == "" {
		return "", fmt.Errorf("accounting returned an empty %s number", kind)
	}
	return out.Number, nil
}
