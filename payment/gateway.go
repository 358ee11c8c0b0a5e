package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/shopspring/decimal"
)

// Connector is the wire-level client of one payment gateway.
type Connector interface {
	SendPayment(ctx context.Context, code string, amount decimal.Decimal, phoneNumber string) ([]byte, error)
	Reconcile(ctx context.Context, code string, amount decimal.Decimal) ([]byte, bool, error)
}

// NewConnector resolves the configured connector identifier. An unknown
// identifier is a configuration fault, not a per-request one.
func NewConnector(settings config.GatewaySettings) (Connector, error) {
	switch settings.ConnectorClass {
	case "", "http":
		return &HTTPGatewayConnector{Settings: settings, Client: &http.Client{Timeout: settings.Timeout}}, nil
	default:
		return nil, fmt.Errorf("%w: unknown gateway connector %q", utils.ErrConfiguration, settings.ConnectorClass)
	}
}

// HTTPGatewayConnector talks JSON over HTTP to the gateway's payment and
// reconciliation endpoints.
type HTTPGatewayConnector struct {
	Settings config.GatewaySettings
	Client   *http.Client
}

type paymentRequest struct {
	InvoiceId   string          `json:"invoice_id"`
	Amount      decimal.Decimal `json:"amount"`
	PhoneNumber string          `json:"phone_number,omitempty"`
}

type reconcileResponse struct {
	Success bool `json:"success"`
}

func (c *HTTPGatewayConnector) SendPayment(ctx context.Context, code string, amount decimal.Decimal, phoneNumber string) ([]byte, error) {
	body, err := c.post(ctx, c.Settings.PaymentEndpoint(), paymentRequest{
		InvoiceId:   code,
		Amount:      amount,
		PhoneNumber: phoneNumber,
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *HTTPGatewayConnector) Reconcile(ctx context.Context, code string, amount decimal.Decimal) ([]byte, bool, error) {
	body, err := c.post(ctx, c.Settings.ReconciliationEndpoint(), paymentRequest{
		InvoiceId: code,
		Amount:    amount,
	})
	if err != nil {
		return nil, false, err
	}
	var resp reconcileResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return body, false, fmt.Errorf("%w: unreadable reconciliation response: %v", utils.ErrGateway, err)
	}
	return body, resp.Success, nil
}

func (c *HTTPGatewayConnector) post(ctx context.Context, url string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	for k, v := range c.Settings.Headers() {
		req.Header.Set(k, v)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrGateway, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrGateway, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: gateway returned %d: %s", utils.ErrGateway, resp.StatusCode, string(body))
	}
	return body, nil
}
