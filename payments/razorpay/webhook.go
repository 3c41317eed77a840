package razorpay

import (
	"encoding/json"
	"errors"
	"strings"
)

// Webhook headers set by Razorpay on every delivery.
const (
	HeaderSignature = "X-Razorpay-Signature"
	HeaderEventID   = "X-Razorpay-Event-Id"
)

// Webhook event names the storefront acts on.
const (
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentCaptured   = "payment.captured"
	EventPaymentFailed     = "payment.failed"
	EventOrderPaid         = "order.paid"
)

// WebhookEvent is the envelope Razorpay posts to webhook endpoints.
type WebhookEvent struct {
	Entity    string         `json:"entity"`
	AccountID string         `json:"account_id"`
	Event     string         `json:"event"`
	Contains  []string       `json:"contains"`
	Payload   WebhookPayload `json:"payload"`
	CreatedAt int64          `json:"created_at"`
}

// WebhookPayload carries the entities attached to an event.
type WebhookPayload struct {
	Payment *EntityWrapper[Payment] `json:"payment,omitempty"`
	Order   *EntityWrapper[Order]   `json:"order,omitempty"`
}

// EntityWrapper matches Razorpay's {"entity": {...}} nesting.
type EntityWrapper[T any] struct {
	Entity T `json:"entity"`
}

// Payment is the subset of the payment entity used for reconciliation.
type Payment struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	Method           string `json:"method"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	CreatedAt        int64  `json:"created_at"`
}

// DecodeWebhookEvent decodes a verified raw body into an envelope.
func DecodeWebhookEvent(raw []byte) (*WebhookEvent, error) {
	var evt WebhookEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, err
	}
	if strings.TrimSpace(evt.Event) == "" {
		return nil, errors.New("webhook event name missing")
	}
	return &evt, nil
}

// OrderID returns the order the event refers to, preferring the order entity.
func (e *WebhookEvent) OrderID() string {
	if e == nil {
		return ""
	}
	if e.Payload.Order != nil && e.Payload.Order.Entity.ID != "" {
		return e.Payload.Order.Entity.ID
	}
	if e.Payload.Payment != nil {
		return e.Payload.Payment.Entity.OrderID
	}
	return ""
}

// PaymentID returns the payment the event refers to, if any.
func (e *WebhookEvent) PaymentID() string {
	if e == nil || e.Payload.Payment == nil {
		return ""
	}
	return e.Payload.Payment.Entity.ID
}

// FailureReason returns the provider's error description for failed payments.
func (e *WebhookEvent) FailureReason() string {
	if e == nil || e.Payload.Payment == nil {
		return ""
	}
	p := e.Payload.Payment.Entity
	if p.ErrorDescription != "" {
		return p.ErrorDescription
	}
	return p.ErrorCode
}
