package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/mercato/backoffice/internal/domain/settlement"
)

var _ settlement.FundsTransferer = (*Client)(nil)

// Transfer moves a seller payout through the provider's transfer API. A
// rejection surfaces to the payout runner, which retries the row on the next
// scheduled run.
func (c *Client) Transfer(ctx context.Context, sellerID int64, amount decimal.Decimal, reference string) error {
	body := map[string]any{
		"sellerId":  sellerID,
		"amount":    amount,
		"reference": reference,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode transfer request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(err, "build transfer request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.auth)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "transfer funds")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return errors.Errorf("transfer rejected: %s", resp.Status)
		}
		return errors.Errorf("transfer rejected: %s (%s)", apiErr.Message, apiErr.Code)
	}
	return nil
}
