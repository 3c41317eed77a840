package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"jewelstore/gateway/middleware"
	"jewelstore/payments/razorpay"
	"jewelstore/services/checkout/ledger"
	"jewelstore/services/checkout/models"
	"jewelstore/services/checkout/notify"
)

const (
	testKeyID         = "rzp_test_key"
	testKeySecret     = "key_secret"
	testWebhookSecret = "whsec_test"
	testAdminSecret   = "admin-secret"
)

type stubProvider struct {
	mu       sync.Mutex
	requests []razorpay.OrderRequest
	err      error
	seq      int
}

func (s *stubProvider) CreateOrder(ctx context.Context, req razorpay.OrderRequest) (*razorpay.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	s.seq++
	return &razorpay.Order{
		ID:        fmt.Sprintf("order_%03d", s.seq),
		Entity:    "order",
		Amount:    req.Amount,
		AmountDue: req.Amount,
		Currency:  req.Currency,
		Receipt:   req.Receipt,
		Status:    "created",
	}, nil
}

type testEnv struct {
	server   *Server
	provider *stubProvider
	ledger   *ledger.Ledger
	events   *notify.Recorder
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := ledger.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	l, err := ledger.New(db)
	require.NoError(t, err)

	provider := &stubProvider{}
	checkout, err := razorpay.NewCheckout(provider, "INR")
	require.NoError(t, err)
	verifier, err := razorpay.NewVerifier(razorpay.Secrets{KeySecret: testKeySecret, WebhookSecret: testWebhookSecret})
	require.NoError(t, err)

	events := &notify.Recorder{}
	srv, err := New(Config{
		Checkout: checkout,
		Verifier: verifier,
		Ledger:   l,
		Notifier: notify.NewNotifier(events, nil),
		KeyID:    testKeyID,
		AdminAuth: middleware.AdminAuthConfig{
			Enabled:    true,
			HMACSecret: testAdminSecret,
		},
	})
	require.NoError(t, err)
	return &testEnv{server: srv, provider: provider, ledger: l, events: events}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedOrder(t *testing.T, id string, amount int64) {
	t.Helper()
	require.NoError(t, e.ledger.RecordOrder(context.Background(), &models.Order{
		ID: id, Receipt: "rcpt_" + id, Amount: amount, Currency: "INR",
	}))
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	require.ErrorContains(t, err, "checkout")
	require.ErrorContains(t, err, "verifier")
	require.ErrorContains(t, err, "ledger")
}

func TestCreateOrder(t *testing.T) {
	env := setupTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/checkout/orders", []byte(`{"amount":1999.50,"receipt":"rcpt_001","notes":{"sku":"RING-18K"}}`), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeBody[CreateOrderResponse](t, rec)
	require.Equal(t, "order_001", resp.OrderID)
	require.Equal(t, int64(199950), resp.Amount)
	require.Equal(t, "INR", resp.Currency)
	require.Equal(t, "rcpt_001", resp.Receipt)
	require.Equal(t, testKeyID, resp.KeyID)

	require.Len(t, env.provider.requests, 1)
	require.Equal(t, int64(199950), env.provider.requests[0].Amount)
	require.Equal(t, "rcpt_001", env.provider.requests[0].Receipt)

	order, err := env.ledger.GetOrder(context.Background(), "order_001")
	require.NoError(t, err)
	require.Equal(t, models.StatusCreated, order.Status)
	require.Equal(t, "RING-18K", order.Notes["sku"])

	events := env.events.Events()
	require.Len(t, events, 1)
	require.Equal(t, notify.EventOrderCreated, events[0].Type)
}

func TestCreateOrderGeneratesReceipt(t *testing.T) {
	env := setupTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/checkout/orders", []byte(`{"amount":499}`), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[CreateOrderResponse](t, rec)
	require.Regexp(t, `^rcpt_[0-9a-f]{32}$`, resp.Receipt)
	require.Equal(t, int64(49900), resp.Amount)
}

func TestCreateOrderValidation(t *testing.T) {
	env := setupTestEnv(t)
	for _, body := range []string{
		`{"amount":-5,"receipt":"r1"}`,
		`{"amount":0,"receipt":"r1"}`,
		`{"amount":10,"currency":"JPY","receipt":"r1"}`,
		`{"amount":10,"receipt":"this-receipt-is-definitely-longer-than-forty-chars"}`,
		`{"amount":"ten"}`,
		`not json`,
	} {
		rec := env.do(t, http.MethodPost, "/api/checkout/orders", []byte(body), nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	require.Empty(t, env.provider.requests)
}

func orderCurrencyLabels(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	labels := map[string]bool{}
	for _, family := range families {
		if family.GetName() != "storefront_checkout_orders_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "currency" {
					labels[label.GetValue()] = true
				}
			}
		}
	}
	return labels
}

func TestCreateOrderRejectedCurrencyDoesNotCreateSeries(t *testing.T) {
	env := setupTestEnv(t)
	for i := 0; i < 5; i++ {
		body := fmt.Sprintf(`{"amount":10,"currency":"bogus-%d","receipt":"r1"}`, i)
		rec := env.do(t, http.MethodPost, "/api/checkout/orders", []byte(body), nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}

	labels := orderCurrencyLabels(t)
	require.True(t, labels[invalidCurrencyLabel])
	for label := range labels {
		require.False(t, strings.HasPrefix(label, "BOGUS"), "client input leaked into label %q", label)
	}
}

func TestCreateOrderProviderFailure(t *testing.T) {
	env := setupTestEnv(t)
	env.provider.err = &razorpay.ProviderError{StatusCode: http.StatusUnauthorized, Code: "BAD_REQUEST_ERROR", Description: "Authentication failed"}
	rec := env.do(t, http.MethodPost, "/api/checkout/orders", []byte(`{"amount":10,"receipt":"r1"}`), nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Len(t, env.provider.requests, 1)
	require.NotContains(t, rec.Body.String(), "Authentication failed")

	orders, err := env.ledger.ListOrders(context.Background(), "", 0)
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestVerifyPayment(t *testing.T) {
	env := setupTestEnv(t)
	env.seedOrder(t, "order_abc", 49900)
	sig := razorpay.Sign(testKeySecret, []byte("order_abc|pay_xyz"))

	body, _ := json.Marshal(VerifyPaymentRequest{OrderID: "order_abc", PaymentID: "pay_xyz", Signature: sig})
	rec := env.do(t, http.MethodPost, "/api/checkout/verify", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decodeBody[VerifyPaymentResponse](t, rec).Verified)

	order, err := env.ledger.GetOrder(context.Background(), "order_abc")
	require.NoError(t, err)
	require.Equal(t, models.StatusVerified, order.Status)
	require.Equal(t, "pay_xyz", order.PaymentID)

	rec = env.do(t, http.MethodPost, "/api/checkout/verify", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, "repeat confirmations stay verified")
}

func TestVerifyPaymentRejectsBadSignature(t *testing.T) {
	env := setupTestEnv(t)
	env.seedOrder(t, "order_abc", 49900)
	wrong := razorpay.Sign("different_secret", []byte("order_abc|pay_xyz"))

	body, _ := json.Marshal(VerifyPaymentRequest{OrderID: "order_abc", PaymentID: "pay_xyz", Signature: wrong})
	rec := env.do(t, http.MethodPost, "/api/checkout/verify", body, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[VerifyPaymentResponse](t, rec)
	require.False(t, resp.Verified)
	require.NotEmpty(t, resp.Error)

	order, err := env.ledger.GetOrder(context.Background(), "order_abc")
	require.NoError(t, err)
	require.Equal(t, models.StatusCreated, order.Status)

	rec = env.do(t, http.MethodPost, "/api/checkout/verify", []byte(`{"razorpay_order_id":"order_abc"}`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, decodeBody[VerifyPaymentResponse](t, rec).Verified)
}

func TestVerifyPaymentUnknownOrderStillVerifies(t *testing.T) {
	env := setupTestEnv(t)
	sig := razorpay.Sign(testKeySecret, razorpay.PaymentPayload("order_elsewhere", "pay_1"))
	body, _ := json.Marshal(VerifyPaymentRequest{OrderID: "order_elsewhere", PaymentID: "pay_1", Signature: sig})
	rec := env.do(t, http.MethodPost, "/api/checkout/verify", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decodeBody[VerifyPaymentResponse](t, rec).Verified)
}

func adminToken(t *testing.T, scope string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "ops@jewelstore.example",
		"scope": scope,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testAdminSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAdminEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	env.seedOrder(t, "order_1", 100)
	env.seedOrder(t, "order_2", 200)
	_, err := env.ledger.MarkPaid(context.Background(), "order_2", "pay_2")
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/admin/orders", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/admin/orders", nil, map[string]string{"Authorization": adminToken(t, "webhooks:read")})
	require.Equal(t, http.StatusForbidden, rec.Code)

	auth := map[string]string{"Authorization": adminToken(t, scopeOrdersRead)}
	rec = env.do(t, http.MethodGet, "/admin/orders?status=paid", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Orders []models.Order `json:"orders"`
	}](t, rec)
	require.Len(t, list.Orders, 1)
	require.Equal(t, "order_2", list.Orders[0].ID)

	rec = env.do(t, http.MethodGet, "/admin/orders?status=refunded", nil, auth)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodGet, "/admin/orders?limit=abc", nil, auth)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/admin/orders/order_1", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(100), decodeBody[models.Order](t, rec).Amount)

	rec = env.do(t, http.MethodGet, "/admin/orders/order_missing", nil, auth)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/admin/webhooks", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminReadsLogSubject(t *testing.T) {
	env := setupTestEnv(t)
	env.seedOrder(t, "order_1", 100)
	var logs bytes.Buffer
	env.server.logger = slog.New(slog.NewJSONHandler(&logs, nil))

	rec := env.do(t, http.MethodGet, "/admin/orders/order_1", nil, map[string]string{"Authorization": adminToken(t, scopeOrdersRead)})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, logs.String(), `"msg":"admin read order"`)
	require.Contains(t, logs.String(), `"subject":"ops@jewelstore.example"`)
}

func TestHealthAndMetrics(t *testing.T) {
	env := setupTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeBody[map[string]string](t, rec)["status"])

	env.do(t, http.MethodPost, "/api/checkout/orders", []byte(`{"amount":10,"receipt":"r1"}`), nil)
	rec = env.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "storefront_http_requests_total")
	require.Contains(t, rec.Body.String(), "storefront_checkout_orders_total")
}
