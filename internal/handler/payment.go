// Package handler translates the payment provider's confirmation callback
// into the domain confirmation call. Authentication and richer input
// validation live at the API gateway in front of this service.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mercato/backoffice/internal/domain/payment"
)

// Confirmer is the slice of the confirmation service the webhook needs.
type Confirmer interface {
	Confirm(ctx context.Context, paymentKey, orderCode string, amount decimal.Decimal) error
}

// PaymentWebhook handles the provider's payment confirmation callback.
type PaymentWebhook struct {
	confirm Confirmer
}

// NewPaymentWebhook creates a PaymentWebhook handler.
func NewPaymentWebhook(confirm Confirmer) *PaymentWebhook {
	return &PaymentWebhook{confirm: confirm}
}

// confirmRequest is the callback payload.
type confirmRequest struct {
	PaymentKey string          `json:"paymentKey"`
	OrderCode  string          `json:"orderId"`
	Amount     decimal.Decimal `json:"amount"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ServeHTTP confirms one payment. Validation and state-conflict errors map
// to client errors; a gateway failure maps to 502 so the provider retries
// the callback after compensation has run.
func (h *PaymentWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PaymentKey == "" || req.OrderCode == "" || !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "paymentKey, orderId and a positive amount are required")
		return
	}

	err := h.confirm.Confirm(r.Context(), req.PaymentKey, req.OrderCode, req.Amount)
	if err != nil {
		h.writeConfirmError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "DONE"})
}

func (h *PaymentWebhook) writeConfirmError(w http.ResponseWriter, r *http.Request, err error) {
	var gwErr *payment.GatewayError
	switch {
	case errors.Is(err, payment.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, payment.ErrAmountMismatch),
		errors.Is(err, payment.ErrDuplicatePayment):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &gwErr):
		writeError(w, http.StatusBadGateway, "payment failed, please retry")
	default:
		zctx.From(r.Context()).Error("payment confirmation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Code: status, Message: message})
}
