package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"jewelstore/gateway/middleware"
	"jewelstore/observability"
	"jewelstore/payments/razorpay"
	"jewelstore/services/checkout/ledger"
	"jewelstore/services/checkout/notify"
)

const (
	maxJSONBody = 64 << 10

	rateLimitCheckout = "checkout"
	rateLimitVerify   = "verify"
	rateLimitWebhook  = "webhook"

	scopeOrdersRead = "orders:read"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Checkout         *razorpay.Checkout
	Verifier         *razorpay.Verifier
	Ledger           *ledger.Ledger
	Notifier         *notify.Notifier
	KeyID            string
	WebhookBodyLimit int64
	AdminAuth        middleware.AdminAuthConfig
	RateLimits       map[string]middleware.RateLimit
	CORS             middleware.CORSConfig
	Observability    middleware.ObservabilityConfig
	Logger           *slog.Logger
}

// Server exposes checkout, payment confirmation, provider webhooks and operator reads.
type Server struct {
	checkout *razorpay.Checkout
	verifier *razorpay.Verifier
	ledger   *ledger.Ledger
	notifier *notify.Notifier
	keyID    string
	logger   *slog.Logger
	metrics  *observability.CheckoutMetrics
	now      func() time.Time

	bodyLimit int64
	obs       *middleware.Observability
	limiter   *middleware.RateLimiter
	admin     *middleware.AdminAuthenticator
	cors      middleware.CORSConfig
	router    http.Handler
}

// New validates the dependencies and builds the router. Missing payment or ledger
// collaborators are a startup error.
func New(cfg Config) (*Server, error) {
	var missing []string
	if cfg.Checkout == nil {
		missing = append(missing, "checkout")
	}
	if cfg.Verifier == nil {
		missing = append(missing, "verifier")
	}
	if cfg.Ledger == nil {
		missing = append(missing, "ledger")
	}
	if strings.TrimSpace(cfg.KeyID) == "" {
		missing = append(missing, "key id")
	}
	if len(missing) > 0 {
		return nil, errors.New("server: missing " + strings.Join(missing, ", "))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewNotifier(notify.Nop{}, logger)
	}
	bodyLimit := cfg.WebhookBodyLimit
	if bodyLimit <= 0 {
		bodyLimit = middleware.DefaultRawBodyLimit
	}
	srv := &Server{
		checkout:  cfg.Checkout,
		verifier:  cfg.Verifier,
		ledger:    cfg.Ledger,
		notifier:  notifier,
		keyID:     strings.TrimSpace(cfg.KeyID),
		logger:    logger,
		metrics:   observability.Checkout(),
		now:       time.Now,
		bodyLimit: bodyLimit,
		obs:       middleware.NewObservability(cfg.Observability, logger),
		limiter:   middleware.NewRateLimiter(cfg.RateLimits, logger),
		admin:     middleware.NewAdminAuthenticator(cfg.AdminAuth, logger),
		cors:      cfg.CORS,
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.obs.Middleware)
	r.Use(middleware.CORS(s.cors))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.obs.MetricsHandler())

	r.Route("/api", func(api chi.Router) {
		api.With(s.limiter.Middleware(rateLimitCheckout)).Post("/checkout/orders", s.handleCreateOrder)
		api.With(s.limiter.Middleware(rateLimitVerify)).Post("/checkout/verify", s.handleVerifyPayment)
		// Capture must run before anything reads the body so the signature covers the exact bytes.
		api.With(s.limiter.Middleware(rateLimitWebhook), middleware.CaptureRawBody(s.bodyLimit)).
			Post("/webhooks/razorpay", s.handleWebhook)
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(s.admin.Require(scopeOrdersRead))
		admin.Get("/orders", s.handleListOrders)
		admin.Get("/orders/{id}", s.handleGetOrder)
		admin.Get("/webhooks", s.handleListDeliveries)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.ledger.Ping(ctx); err != nil {
		s.requestLogger(r).Error("health check failed", slog.Any("error", err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requestLogger(r *http.Request) *slog.Logger {
	if id := chimw.GetReqID(r.Context()); id != "" {
		return s.logger.With(slog.String("request_id", id))
	}
	return s.logger
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if decoder.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
