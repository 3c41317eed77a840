package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"jewelstore/payments/razorpay"
	"jewelstore/services/checkout/ledger"
	"jewelstore/services/checkout/models"
	"jewelstore/services/checkout/notify"
)

// invalidCurrencyLabel is the metric label for orders rejected before a currency was accepted.
const invalidCurrencyLabel = "INVALID"

// CreateOrderRequest is the storefront's request to open a payment order.
type CreateOrderRequest struct {
	Amount   float64           `json:"amount"`
	Currency string            `json:"currency,omitempty"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrderResponse carries what the browser needs to open the provider checkout.
type CreateOrderResponse struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
	KeyID    string `json:"keyId"`
}

// VerifyPaymentRequest mirrors the fields the provider checkout hands back to the browser.
type VerifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

type VerifyPaymentResponse struct {
	Verified bool   `json:"verified"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)
	var req CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	receipt := strings.TrimSpace(req.Receipt)
	if receipt == "" {
		receipt = newReceipt()
	}

	start := s.now()
	order, err := s.checkout.CreateOrder(r.Context(), razorpay.CheckoutRequest{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  receipt,
		Notes:    req.Notes,
	})
	switch {
	case errors.Is(err, razorpay.ErrInvalidAmount),
		errors.Is(err, razorpay.ErrUnsupportedCurrency),
		errors.Is(err, razorpay.ErrInvalidReceipt):
		s.metrics.RecordOrder(invalidCurrencyLabel, 0, err)
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		s.metrics.RecordOrder(s.requestCurrency(req.Currency), s.now().Sub(start), err)
		logger.Error("create provider order failed", slog.String("receipt", receipt), slog.Any("error", err))
		writeError(w, http.StatusBadGateway, errors.New("payment provider unavailable"))
		return
	}
	s.metrics.RecordOrder(order.Currency, s.now().Sub(start), nil)

	record := &models.Order{
		ID:       order.ID,
		Receipt:  order.Receipt,
		Amount:   order.Amount,
		Currency: order.Currency,
		Notes:    req.Notes,
	}
	if err := s.ledger.RecordOrder(r.Context(), record); err != nil {
		logger.Error("record order failed", slog.String("order_id", order.ID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, errors.New("order could not be recorded"))
		return
	}
	logger.Info("order created",
		slog.String("order_id", order.ID),
		slog.Int64("amount", order.Amount),
		slog.String("display_amount", razorpay.FormatMinorUnits(order.Amount)),
		slog.String("currency", order.Currency))
	s.notifier.Notify(r.Context(), notify.Event{
		Type:     notify.EventOrderCreated,
		OrderID:  order.ID,
		Receipt:  order.Receipt,
		Amount:   order.Amount,
		Currency: order.Currency,
		Source:   "checkout",
	})

	writeJSON(w, http.StatusCreated, CreateOrderResponse{
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		Receipt:  order.Receipt,
		Status:   order.Status,
		KeyID:    s.keyID,
	})
}

// handleVerifyPayment checks the signature the browser received after payment. The answer
// depends only on the signature. Ledger updates are best effort since the webhook is the
// authoritative capture signal.
func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)
	var req VerifyPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, VerifyPaymentResponse{Error: "invalid JSON payload"})
		return
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.PaymentID = strings.TrimSpace(req.PaymentID)
	if req.OrderID == "" || req.PaymentID == "" || strings.TrimSpace(req.Signature) == "" {
		writeJSON(w, http.StatusBadRequest, VerifyPaymentResponse{Error: "razorpay_order_id, razorpay_payment_id and razorpay_signature are required"})
		return
	}

	verified := s.verifier.VerifyPaymentSignature(req.OrderID, req.PaymentID, req.Signature)
	s.metrics.RecordConfirmation(verified)
	if !verified {
		logger.Warn("payment signature mismatch", slog.String("order_id", req.OrderID), slog.String("payment_id", req.PaymentID))
		writeJSON(w, http.StatusBadRequest, VerifyPaymentResponse{Error: "payment signature mismatch"})
		return
	}

	order, err := s.ledger.MarkVerified(r.Context(), req.OrderID, req.PaymentID)
	switch {
	case err == nil:
		s.notifier.Notify(r.Context(), notify.Event{
			Type:      notify.EventOrderVerified,
			OrderID:   order.ID,
			PaymentID: req.PaymentID,
			Receipt:   order.Receipt,
			Amount:    order.Amount,
			Currency:  order.Currency,
			Source:    "checkout",
		})
	case errors.Is(err, ledger.ErrInvalidTransition):
		logger.Info("order already past verification", slog.String("order_id", req.OrderID), slog.String("status", string(order.Status)))
	case errors.Is(err, ledger.ErrOrderNotFound):
		logger.Warn("verified payment for unknown order", slog.String("order_id", req.OrderID))
	default:
		logger.Error("mark order verified failed", slog.String("order_id", req.OrderID), slog.Any("error", err))
	}
	writeJSON(w, http.StatusOK, VerifyPaymentResponse{Verified: true})
}

// requestCurrency labels metrics for a request that passed validation. Client input never
// becomes a label unless it is a supported currency code.
func (s *Server) requestCurrency(requested string) string {
	if strings.TrimSpace(requested) == "" {
		return s.checkout.Currency()
	}
	code, err := razorpay.NormalizeCurrency(requested)
	if err != nil {
		return invalidCurrencyLabel
	}
	return code
}

// newReceipt returns a provider-safe receipt of at most 40 characters.
func newReceipt() string {
	return "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
