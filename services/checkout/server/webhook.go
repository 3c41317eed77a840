package server

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"jewelstore/gateway/middleware"
	"jewelstore/payments/razorpay"
	"jewelstore/services/checkout/ledger"
	"jewelstore/services/checkout/models"
	"jewelstore/services/checkout/notify"
)

// Webhook response statuses.
const (
	webhookProcessed      = "processed"
	webhookDuplicate      = "duplicate"
	webhookIgnored        = "ignored"
	webhookUnknownOrder   = "unknown_order"
	webhookAmountMismatch = "amount_mismatch"
)

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)
	captured, ok := middleware.RawBodyFromContext(r.Context())
	if !ok {
		logger.Error("webhook route mounted without raw body capture")
		writeError(w, http.StatusInternalServerError, errors.New("request body unavailable"))
		return
	}
	bodySize := len(captured.Raw)

	signature := strings.TrimSpace(r.Header.Get(razorpay.HeaderSignature))
	if !s.verifier.VerifyWebhookSignature(captured.Raw, signature) {
		s.metrics.RecordWebhook("", "invalid_signature", bodySize)
		logger.Warn("webhook signature rejected", slog.Int("body_bytes", bodySize))
		writeError(w, http.StatusUnauthorized, errors.New("invalid webhook signature"))
		return
	}
	if !captured.Structured {
		s.metrics.RecordWebhook("", "malformed", bodySize)
		writeError(w, http.StatusBadRequest, errors.New("webhook body is not valid JSON"))
		return
	}
	event, err := razorpay.DecodeWebhookEvent(captured.Raw)
	if err != nil {
		s.metrics.RecordWebhook("", "malformed", bodySize)
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid webhook payload: %w", err))
		return
	}

	digest := sha256.Sum256(captured.Raw)
	delivery := &models.WebhookDelivery{
		ID:            deliveryID(r.Header.Get(razorpay.HeaderEventID), digest[:]),
		Event:         event.Event,
		OrderID:       event.OrderID(),
		PaymentID:     event.PaymentID(),
		PayloadSHA256: hex.EncodeToString(digest[:]),
	}
	var pending []notify.Event
	outcome, err := s.ledger.ProcessDelivery(r.Context(), delivery, func(tx *ledger.Ledger) (string, error) {
		result, evt, err := s.applyWebhook(r, tx, event)
		if evt != nil {
			pending = append(pending, *evt)
		}
		return result, err
	})
	switch {
	case errors.Is(err, ledger.ErrDuplicateDelivery):
		outcome = webhookDuplicate
	case err != nil:
		s.metrics.RecordWebhook(event.Event, "error", bodySize)
		logger.Error("apply webhook failed",
			slog.String("event", event.Event),
			slog.String("order_id", delivery.OrderID),
			slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, errors.New("webhook could not be processed"))
		return
	default:
		for _, evt := range pending {
			s.notifier.Notify(r.Context(), evt)
		}
	}

	s.metrics.RecordWebhook(event.Event, outcome, bodySize)
	logger.Info("webhook handled",
		slog.String("event", event.Event),
		slog.String("order_id", delivery.OrderID),
		slog.String("payment_id", delivery.PaymentID),
		slog.String("outcome", outcome))
	writeJSON(w, http.StatusOK, map[string]string{"status": outcome})
}

// applyWebhook moves the local order according to the event. It runs inside the delivery
// transaction, so a returned error rolls back both the delivery record and the update.
func (s *Server) applyWebhook(r *http.Request, tx *ledger.Ledger, event *razorpay.WebhookEvent) (string, *notify.Event, error) {
	ctx := r.Context()
	orderID := event.OrderID()
	paymentID := event.PaymentID()
	switch event.Event {
	case razorpay.EventPaymentCaptured, razorpay.EventOrderPaid, razorpay.EventPaymentFailed:
	default:
		return webhookIgnored, nil, nil
	}
	if orderID == "" {
		return webhookIgnored, nil, nil
	}

	order, err := tx.GetOrder(ctx, orderID)
	if errors.Is(err, ledger.ErrOrderNotFound) {
		return webhookUnknownOrder, nil, nil
	}
	if err != nil {
		return "", nil, err
	}

	if event.Event == razorpay.EventPaymentFailed {
		updated, err := tx.MarkFailed(ctx, orderID, paymentID, event.FailureReason())
		if errors.Is(err, ledger.ErrInvalidTransition) {
			return webhookIgnored, nil, nil
		}
		if err != nil {
			return "", nil, err
		}
		return webhookProcessed, &notify.Event{
			Type:      notify.EventOrderFailed,
			OrderID:   updated.ID,
			PaymentID: paymentID,
			Receipt:   updated.Receipt,
			Amount:    updated.Amount,
			Currency:  updated.Currency,
			Reason:    updated.FailureReason,
			Source:    "webhook",
		}, nil
	}

	if payment := event.Payload.Payment; payment != nil && payment.Entity.Amount > 0 {
		if payment.Entity.Amount != order.Amount || !strings.EqualFold(payment.Entity.Currency, order.Currency) {
			s.requestLogger(r).Error("captured amount does not match order",
				slog.String("order_id", orderID),
				slog.String("payment_id", paymentID),
				slog.Int64("expected", order.Amount),
				slog.Int64("captured", payment.Entity.Amount))
			return webhookAmountMismatch, nil, nil
		}
	}
	updated, err := tx.MarkPaid(ctx, orderID, paymentID)
	if errors.Is(err, ledger.ErrInvalidTransition) {
		return webhookIgnored, nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	return webhookProcessed, &notify.Event{
		Type:      notify.EventOrderPaid,
		OrderID:   updated.ID,
		PaymentID: paymentID,
		Receipt:   updated.Receipt,
		Amount:    updated.Amount,
		Currency:  updated.Currency,
		Source:    "webhook",
	}, nil
}

// deliveryID prefers the provider event id and falls back to the payload digest so that
// byte-identical redeliveries still deduplicate. The ledger bounds its length.
func deliveryID(header string, digest []byte) string {
	if id := strings.TrimSpace(header); id != "" {
		return id
	}
	return "sha256:" + hex.EncodeToString(digest)
}
