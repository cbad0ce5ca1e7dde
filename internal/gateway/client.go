// Package gateway implements the payment.Gateway port against the external
// payment provider's REST API. It is the only package that talks to the
// provider; everything else sees the domain-level interface.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/mercato/backoffice/internal/domain/payment"
)

// Client calls the provider over HTTPS with the merchant secret key. Every
// call is bounded by the configured timeout; a hung provider delays only the
// single request or batch item that issued it.
type Client struct {
	baseURL string
	auth    string
	http    *http.Client
}

// NewClient creates a Client for the given API base URL and secret key.
func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		auth:    "Basic " + base64.StdEncoding.EncodeToString([]byte(secretKey+":")),
		http:    &http.Client{Timeout: timeout},
	}
}

var _ payment.Gateway = (*Client)(nil)

// confirmation is the provider's wire representation of a payment.
type confirmation struct {
	PaymentKey  string          `json:"paymentKey"`
	OrderCode   string          `json:"orderId"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Method      string          `json:"method"`
	ApprovedAt  time.Time       `json:"approvedAt"`
}

// apiError is the provider's error envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Confirm captures a payment the buyer approved in the provider UI.
func (c *Client) Confirm(ctx context.Context, paymentKey, orderCode string, amount decimal.Decimal) (*payment.Confirmation, error) {
	body := map[string]any{
		"paymentKey": paymentKey,
		"orderId":    orderCode,
		"amount":     amount,
	}
	return c.post(ctx, "/v1/payments/confirm", body)
}

// Cancel reverses a captured payment.
func (c *Client) Cancel(ctx context.Context, paymentKey, reason string) error {
	path := fmt.Sprintf("/v1/payments/%s/cancel", url.PathEscape(paymentKey))
	_, err := c.post(ctx, path, map[string]any{"cancelReason": reason})
	return err
}

// QueryByOrderCode fetches the payment state for an order code.
func (c *Client) QueryByOrderCode(ctx context.Context, orderCode string) (*payment.Confirmation, error) {
	path := "/v1/payments/orders/" + url.PathEscape(orderCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build query request")
	}
	return c.do(req)
}

// Charge captures a recurring payment with a stored billing key.
func (c *Client) Charge(ctx context.Context, billingKey, orderCode string, amount decimal.Decimal) (*payment.Confirmation, error) {
	path := fmt.Sprintf("/v1/billing/%s", url.PathEscape(billingKey))
	body := map[string]any{
		"orderId": orderCode,
		"amount":  amount,
	}
	return c.post(ctx, path, body)
}

func (c *Client) post(ctx context.Context, path string, body map[string]any) (*payment.Confirmation, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*payment.Confirmation, error) {
	req.Header.Set("Authorization", c.auth)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &payment.GatewayError{Code: "NETWORK_ERROR", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, payment.ErrPaymentNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			apiErr = apiError{Code: fmt.Sprintf("HTTP_%d", resp.StatusCode), Message: resp.Status}
		}
		return nil, &payment.GatewayError{Code: apiErr.Code, Message: apiErr.Message}
	}

	var conf confirmation
	if err := json.NewDecoder(resp.Body).Decode(&conf); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return &payment.Confirmation{
		PaymentKey: conf.PaymentKey,
		OrderCode:  conf.OrderCode,
		Status:     payment.Status(conf.Status),
		Amount:     conf.TotalAmount,
		Method:     conf.Method,
		ApprovedAt: conf.ApprovedAt,
	}, nil
}
