package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultBaseURL is the public Razorpay REST endpoint.
const DefaultBaseURL = "https://api.razorpay.com/v1"

const maxErrorBody = 64 << 10

// Client defines the subset of the Razorpay Orders API the storefront requires.
type Client interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
}

// OrderRequest is the payload accepted by POST /orders. Amount is in minor units.
type OrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Order mirrors the order entity returned by Razorpay.
type Order struct {
	ID         string `json:"id"`
	Entity     string `json:"entity"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	Notes      Notes  `json:"notes"`
	CreatedAt  int64  `json:"created_at"`
}

// Notes holds the free-form key/value pairs attached to an order. Razorpay encodes an empty
// set as [] rather than {}.
type Notes map[string]string

func (n *Notes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")) {
		*n = nil
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return err
	}
	*n = m
	return nil
}

// ProviderError describes a non-2xx response from Razorpay.
type ProviderError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Field       string `json:"field,omitempty"`
}

func (e *ProviderError) Error() string {
	desc := e.Description
	if desc == "" {
		desc = http.StatusText(e.StatusCode)
	}
	if e.Code == "" {
		return fmt.Sprintf("razorpay: status=%d: %s", e.StatusCode, desc)
	}
	return fmt.Sprintf("razorpay: status=%d code=%s: %s", e.StatusCode, e.Code, desc)
}

// HTTPClient implements Client against the Razorpay REST API using basic auth.
type HTTPClient struct {
	keyID     string
	keySecret string
	baseURL   string
	http      *http.Client
}

// NewHTTPClient constructs an instrumented client. A zero timeout falls back to 10s.
func NewHTTPClient(baseURL, keyID, keySecret string, timeout time.Duration) *HTTPClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// CreateOrder issues a single order creation request. Failures are returned as-is; the caller
// decides whether to retry.
func (c *HTTPClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if c == nil {
		return nil, errors.New("razorpay client not configured")
	}
	var order Order
	if err := c.do(ctx, http.MethodPost, "/orders", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("razorpay %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeProviderError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode razorpay response: %w", err)
	}
	return nil
}

func decodeProviderError(resp *http.Response) error {
	perr := &ProviderError{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return perr
	}
	var envelope struct {
		Error *ProviderError `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error == nil {
		perr.Description = strings.TrimSpace(string(raw))
		return perr
	}
	envelope.Error.StatusCode = resp.StatusCode
	return envelope.Error
}
