package razorpay

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const maxReceiptLength = 40

var (
	// ErrInvalidReceipt indicates a missing or over-long receipt identifier.
	ErrInvalidReceipt = errors.New("invalid receipt")
	// ErrCheckoutFailed wraps provider failures during order creation.
	ErrCheckoutFailed = errors.New("checkout creation failed")
)

// Checkout turns storefront checkout requests into Razorpay orders.
type Checkout struct {
	client   Client
	currency string
}

// NewCheckout binds a provider client to the store's default currency.
func NewCheckout(client Client, currency string) (*Checkout, error) {
	if client == nil {
		return nil, errors.New("razorpay client required")
	}
	code, err := NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	return &Checkout{client: client, currency: code}, nil
}

// Currency reports the default currency orders are created in.
func (c *Checkout) Currency() string {
	return c.currency
}

// CheckoutRequest describes a checkout in major currency units.
type CheckoutRequest struct {
	Amount   float64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// CreateOrder converts the amount to minor units and asks the provider for a single order.
func (c *Checkout) CreateOrder(ctx context.Context, req CheckoutRequest) (*Order, error) {
	currency := req.Currency
	if strings.TrimSpace(currency) == "" {
		currency = c.currency
	}
	code, err := NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	receipt := strings.TrimSpace(req.Receipt)
	if receipt == "" {
		return nil, fmt.Errorf("%w: receipt required", ErrInvalidReceipt)
	}
	if len(receipt) > maxReceiptLength {
		return nil, fmt.Errorf("%w: receipt exceeds %d characters", ErrInvalidReceipt, maxReceiptLength)
	}
	minor, err := ToMinorUnits(req.Amount, code)
	if err != nil {
		return nil, err
	}
	order, err := c.client.CreateOrder(ctx, OrderRequest{
		Amount:   minor,
		Currency: code,
		Receipt:  receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCheckoutFailed, err)
	}
	if order == nil || strings.TrimSpace(order.ID) == "" {
		return nil, fmt.Errorf("%w: provider returned no order id", ErrCheckoutFailed)
	}
	return order, nil
}
