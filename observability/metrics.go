package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics tracks order creation, client confirmations and webhook processing.
type CheckoutMetrics struct {
	orders          *prometheus.CounterVec
	confirmations   *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	bodyBytes       prometheus.Histogram
}

var (
	checkoutMetricsOnce sync.Once
	checkoutRegistry    *CheckoutMetrics
)

// Checkout returns the lazily-initialised checkout metrics registered on the default registry.
func Checkout() *CheckoutMetrics {
	checkoutMetricsOnce.Do(func() {
		checkoutRegistry = &CheckoutMetrics{
			orders: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "storefront",
				Subsystem: "checkout",
				Name:      "orders_total",
				Help:      "Count of order creation attempts segmented by currency and outcome.",
			}, []string{"currency", "outcome"}),
			confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "storefront",
				Subsystem: "checkout",
				Name:      "confirmations_total",
				Help:      "Count of client-side payment confirmations segmented by outcome.",
			}, []string{"outcome"}),
			webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "storefront",
				Subsystem: "checkout",
				Name:      "webhooks_total",
				Help:      "Count of provider webhook deliveries segmented by event and outcome.",
			}, []string{"event", "outcome"}),
			providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "storefront",
				Subsystem: "checkout",
				Name:      "provider_request_duration_seconds",
				Help:      "Latency distribution for calls to the payment provider.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation", "outcome"}),
			bodyBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "storefront",
				Subsystem: "checkout",
				Name:      "webhook_body_bytes",
				Help:      "Size distribution of captured webhook bodies.",
				Buckets:   prometheus.ExponentialBuckets(256, 2, 10),
			}),
		}
		prometheus.MustRegister(
			checkoutRegistry.orders,
			checkoutRegistry.confirmations,
			checkoutRegistry.webhooks,
			checkoutRegistry.providerLatency,
			checkoutRegistry.bodyBytes,
		)
	})
	return checkoutRegistry
}

// RecordOrder counts an order creation attempt and its provider round trip.
func (m *CheckoutMetrics) RecordOrder(currency string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "UNKNOWN"
	}
	outcome := outcomeOf(err)
	m.orders.WithLabelValues(currency, outcome).Inc()
	if duration > 0 {
		m.providerLatency.WithLabelValues("create_order", outcome).Observe(duration.Seconds())
	}
}

// RecordConfirmation counts a client confirmation as verified or rejected.
func (m *CheckoutMetrics) RecordConfirmation(verified bool) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if verified {
		outcome = "verified"
	}
	m.confirmations.WithLabelValues(outcome).Inc()
}

// RecordWebhook counts a webhook delivery. Outcomes should be stable strings such as
// "processed", "duplicate" or "invalid_signature" so dashboards stay consistent.
func (m *CheckoutMetrics) RecordWebhook(event, outcome string, bodySize int) {
	if m == nil {
		return
	}
	event = strings.TrimSpace(event)
	if event == "" {
		event = "unknown"
	}
	if outcome == "" {
		outcome = "unspecified"
	}
	m.webhooks.WithLabelValues(event, outcome).Inc()
	m.bodyBytes.Observe(float64(bodySize))
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
