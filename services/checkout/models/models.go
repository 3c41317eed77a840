package models

import (
	"time"

	"gorm.io/gorm"
)

// OrderStatus is the local lifecycle state of a provider order.
type OrderStatus string

const (
	StatusCreated  OrderStatus = "created"
	StatusVerified OrderStatus = "verified"
	StatusPaid     OrderStatus = "paid"
	StatusFailed   OrderStatus = "failed"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusCreated, StatusVerified, StatusPaid, StatusFailed:
		return true
	}
	return false
}

// Order mirrors an order created at the payment provider. ID is the provider order id.
type Order struct {
	ID            string            `gorm:"primaryKey;size:64" json:"id"`
	Receipt       string            `gorm:"size:40;index" json:"receipt"`
	Amount        int64             `gorm:"not null" json:"amount"`
	Currency      string            `gorm:"size:3;not null" json:"currency"`
	Status        OrderStatus       `gorm:"size:16;index;not null" json:"status"`
	PaymentID     string            `gorm:"size:64;index" json:"paymentId,omitempty"`
	FailureReason string            `gorm:"size:255" json:"failureReason,omitempty"`
	Notes         map[string]string `gorm:"serializer:json" json:"notes,omitempty"`
	VerifiedAt    *time.Time        `json:"verifiedAt,omitempty"`
	PaidAt        *time.Time        `json:"paidAt,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// WebhookDelivery records every provider notification that passed signature verification.
// ID is the provider event id, or the payload digest when the header is absent.
type WebhookDelivery struct {
	ID            string    `gorm:"primaryKey;size:128" json:"id"`
	Event         string    `gorm:"size:64;index" json:"event"`
	OrderID       string    `gorm:"size:64;index" json:"orderId,omitempty"`
	PaymentID     string    `gorm:"size:64" json:"paymentId,omitempty"`
	PayloadSHA256 string    `gorm:"size:64" json:"payloadSha256"`
	Outcome       string    `gorm:"size:32" json:"outcome"`
	ReceivedAt    time.Time `gorm:"index" json:"receivedAt"`
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Order{},
		&WebhookDelivery{},
	)
}
