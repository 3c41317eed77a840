package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrMissingSecret indicates the verifier was constructed without one of its secrets.
var ErrMissingSecret = errors.New("razorpay secret not configured")

// Secrets carries the process-wide signing material. KeySecret signs client-side payment
// confirmations, WebhookSecret signs webhook deliveries.
type Secrets struct {
	KeySecret     string
	WebhookSecret string
}

// Verifier checks signatures produced by Razorpay. It holds no mutable state and is safe for
// concurrent use.
type Verifier struct {
	keySecret     []byte
	webhookSecret []byte
}

// NewVerifier returns a verifier bound to the supplied secrets. Blank secrets are rejected so a
// misconfigured process can never verify against an empty key. Secrets are used byte for byte
// as configured, matching what Sign produces for the same value.
func NewVerifier(secrets Secrets) (*Verifier, error) {
	if strings.TrimSpace(secrets.KeySecret) == "" {
		return nil, errors.Join(ErrMissingSecret, errors.New("key secret required"))
	}
	if strings.TrimSpace(secrets.WebhookSecret) == "" {
		return nil, errors.Join(ErrMissingSecret, errors.New("webhook secret required"))
	}
	return &Verifier{
		keySecret:     []byte(secrets.KeySecret),
		webhookSecret: []byte(secrets.WebhookSecret),
	}, nil
}

// PaymentPayload builds the canonical string Razorpay signs after a checkout completes.
func PaymentPayload(orderID, paymentID string) []byte {
	return []byte(orderID + "|" + paymentID)
}

// Sign returns the lowercase hex HMAC-SHA256 of payload keyed with secret.
func Sign(secret string, payload []byte) string {
	return hex.EncodeToString(computeHMAC([]byte(secret), payload))
}

// VerifyPaymentSignature reports whether signature matches the checkout callback for the
// order/payment pair.
func (v *Verifier) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	if v == nil {
		return false
	}
	if strings.TrimSpace(orderID) == "" || strings.TrimSpace(paymentID) == "" {
		return false
	}
	return verifyHMAC(v.keySecret, PaymentPayload(orderID, paymentID), signature)
}

// VerifyWebhookSignature reports whether signature matches rawBody. rawBody must be the bytes
// exactly as received on the wire.
func (v *Verifier) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	if v == nil {
		return false
	}
	return verifyHMAC(v.webhookSecret, rawBody, signature)
}

func computeHMAC(secret, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

func verifyHMAC(secret, payload []byte, signature string) bool {
	if len(secret) == 0 {
		return false
	}
	if strings.TrimSpace(signature) == "" {
		return false
	}
	// Compared as lowercase hex text so case-flipped signatures do not decode to a match.
	expected := hex.EncodeToString(computeHMAC(secret, payload))
	if len(signature) != len(expected) {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(expected))
}
