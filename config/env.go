package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	telemetry "jewelstore/observability/otel"
)

const (
	envListen           = "STOREFRONT_LISTEN"
	envEnvironment      = "STOREFRONT_ENV"
	envKeyID            = "STOREFRONT_RAZORPAY_KEY_ID"
	envKeySecret        = "STOREFRONT_RAZORPAY_KEY_SECRET"
	envWebhookSecret    = "STOREFRONT_RAZORPAY_WEBHOOK_SECRET"
	envRazorpayBaseURL  = "STOREFRONT_RAZORPAY_BASE_URL"
	envCurrency         = "STOREFRONT_CURRENCY"
	envRazorpayTimeout  = "STOREFRONT_RAZORPAY_TIMEOUT"
	envDatabaseDriver   = "STOREFRONT_DB_DRIVER"
	envDatabaseDSN      = "STOREFRONT_DB_DSN"
	envAdminEnabled     = "STOREFRONT_ADMIN_ENABLED"
	envAdminSecret      = "STOREFRONT_ADMIN_JWT_SECRET"
	envNATSURL          = "STOREFRONT_NATS_URL"
	envLogLevel         = "STOREFRONT_LOG_LEVEL"
	envLogFile          = "STOREFRONT_LOG_FILE"
	envOTLPEndpoint     = "STOREFRONT_OTLP_ENDPOINT"
	envOTLPHeaders      = "STOREFRONT_OTLP_HEADERS"
	envWebhookBodyLimit = "STOREFRONT_WEBHOOK_BODY_LIMIT"
)

// ApplyEnv overrides file values with any STOREFRONT_* variables that are set. Secrets are
// expected to arrive this way in production.
func (c *Config) ApplyEnv() error {
	setString(&c.ListenAddress, envListen)
	setString(&c.Environment, envEnvironment)
	setString(&c.Razorpay.KeyID, envKeyID)
	setString(&c.Razorpay.KeySecret, envKeySecret)
	setString(&c.Razorpay.WebhookSecret, envWebhookSecret)
	setString(&c.Razorpay.BaseURL, envRazorpayBaseURL)
	setString(&c.Razorpay.Currency, envCurrency)
	setString(&c.Database.Driver, envDatabaseDriver)
	setString(&c.Database.DSN, envDatabaseDSN)
	setString(&c.Admin.JWTSecret, envAdminSecret)
	setString(&c.NATS.URL, envNATSURL)
	setString(&c.Logging.Level, envLogLevel)
	setString(&c.Logging.File, envLogFile)
	setString(&c.Telemetry.Endpoint, envOTLPEndpoint)
	if raw, ok := lookup(envOTLPHeaders); ok {
		c.Telemetry.Headers = telemetry.ParseHeaders(raw)
	}

	if raw, ok := lookup(envRazorpayTimeout); ok {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", envRazorpayTimeout, err)
		}
		c.Razorpay.Timeout = dur
	}
	if raw, ok := lookup(envAdminEnabled); ok {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", envAdminEnabled, err)
		}
		c.Admin.Enabled = enabled
	}
	if raw, ok := lookup(envWebhookBodyLimit); ok {
		limit, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", envWebhookBodyLimit, err)
		}
		c.WebhookBodyLimit = limit
	}
	return nil
}

func lookup(key string) (string, bool) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	val = strings.TrimSpace(val)
	return val, val != ""
}

func setString(dst *string, key string) {
	if val, ok := lookup(key); ok {
		*dst = val
	}
}
