// Package directory is the read-only client for the product catalog
// service. The core never mutates catalog data.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/mercato/backoffice/internal/domain/order"
)

// Client implements order.Directory against the catalog service HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the given catalog base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

var _ order.Directory = (*Client)(nil)

type productPayload struct {
	ID       int64           `json:"id"`
	SellerID int64           `json:"sellerId"`
	Price    decimal.Decimal `json:"price"`
}

// ProductsByIDs fetches the order-relevant projection of products in one
// batch call.
func (c *Client) ProductsByIDs(ctx context.Context, ids []int64) ([]order.ProductInfo, error) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	url := c.baseURL + "/v1/products?ids=" + strings.Join(parts, ",")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "query catalog")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("catalog returned %s", resp.Status)
	}

	var payload []productPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "decode catalog response")
	}

	products := make([]order.ProductInfo, len(payload))
	for i, p := range payload {
		products[i] = order.ProductInfo{ID: p.ID, SellerID: p.SellerID, Price: p.Price}
	}
	return products, nil
}
