package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv(envKeyID, "rzp_test_key")
	t.Setenv(envKeySecret, "key_secret")
	t.Setenv(envWebhookSecret, "whsec_test")
}

func TestLoadYAML(t *testing.T) {
	setSecrets(t)
	path := writeConfig(t, "storefront.yaml", `
listen: ":9090"
razorpay:
  currency: USD
  timeout: 5s
database:
  driver: postgres
  dsn: postgres://store@localhost/store
rateLimits:
  - id: checkout
    ratePerSecond: 2
    burst: 4
cors:
  allowedOrigins: ["https://shop.example.com"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ListenAddress)
	require.Equal(t, "USD", cfg.Razorpay.Currency)
	require.Equal(t, 5*time.Second, cfg.Razorpay.Timeout)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "https://api.razorpay.com/v1", cfg.Razorpay.BaseURL)
	require.Len(t, cfg.RateLimits, 1)
	require.Equal(t, "checkout", cfg.RateLimits[0].ID)
	require.Equal(t, 4, cfg.RateLimits[0].Burst)
	require.Equal(t, []string{"https://shop.example.com"}, cfg.CORS.AllowedOrigins)
	require.Equal(t, "whsec_test", cfg.Razorpay.WebhookSecret)
}

func TestLoadTOML(t *testing.T) {
	setSecrets(t)
	path := writeConfig(t, "storefront.toml", `
ListenAddress = "127.0.0.1:8088"

[Razorpay]
Currency = "INR"
Timeout = "3s"

[Database]
Driver = "sqlite"
DSN = "file:ledger.db"

[NATS]
URL = "nats://127.0.0.1:4222"
SubjectPrefix = "jewelstore"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8088", cfg.ListenAddress)
	require.Equal(t, 3*time.Second, cfg.Razorpay.Timeout)
	require.Equal(t, "file:ledger.db", cfg.Database.DSN)
	require.Equal(t, "jewelstore", cfg.NATS.SubjectPrefix)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	setSecrets(t)
	_, err := Load(writeConfig(t, "storefront.yaml", "listen: \":8080\"\nrazorpayy: {}\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "storefront.toml", "Bogus = true\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "storefront.json", "{}"))
	require.ErrorContains(t, err, "unsupported config format")
}

func TestLoadRequiresRazorpaySecrets(t *testing.T) {
	t.Setenv(envKeyID, "rzp_test_key")
	t.Setenv(envKeySecret, "key_secret")
	t.Setenv(envWebhookSecret, "")
	_, err := Load("")
	require.ErrorIs(t, err, ErrMissingRazorpayCredentials)
	require.ErrorContains(t, err, "webhookSecret")
}

func TestEnvOverridesFile(t *testing.T) {
	setSecrets(t)
	t.Setenv(envListen, ":7000")
	t.Setenv(envRazorpayTimeout, "750ms")
	t.Setenv(envAdminEnabled, "true")
	t.Setenv(envAdminSecret, "admin-secret")
	t.Setenv(envWebhookBodyLimit, "2048")
	t.Setenv(envOTLPHeaders, "authorization=Bearer abc, x-tenant = shop ,broken")
	path := writeConfig(t, "storefront.yaml", "listen: \":9090\"\ntelemetry:\n  headers:\n    stale: value\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.ListenAddress)
	require.Equal(t, 750*time.Millisecond, cfg.Razorpay.Timeout)
	require.True(t, cfg.Admin.Enabled)
	require.Equal(t, int64(2048), cfg.WebhookBodyLimit)
	require.Equal(t, map[string]string{"authorization": "Bearer abc", "x-tenant": "shop"}, cfg.Telemetry.Headers)
}

func TestEnvRejectsMalformedValues(t *testing.T) {
	setSecrets(t)
	t.Setenv(envRazorpayTimeout, "soon")
	_, err := Load("")
	require.ErrorContains(t, err, envRazorpayTimeout)
}

func TestValidate(t *testing.T) {
	base := Default()
	base.Razorpay.KeyID = "rzp_test_key"
	base.Razorpay.KeySecret = "key_secret"
	base.Razorpay.WebhookSecret = "whsec_test"
	require.NoError(t, base.Validate())

	cases := map[string]func(*Config){
		"admin without secret": func(c *Config) { c.Admin.Enabled = true },
		"bad driver":           func(c *Config) { c.Database.Driver = "mysql" },
		"empty dsn":            func(c *Config) { c.Database.DSN = " " },
		"relative base url":    func(c *Config) { c.Razorpay.BaseURL = "/v1" },
		"zero timeout":         func(c *Config) { c.Razorpay.Timeout = 0 },
		"duplicate limit":      func(c *Config) { c.RateLimits = append(c.RateLimits, RateLimitConfig{ID: "checkout"}) },
		"nats without prefix":  func(c *Config) { c.NATS.URL = "nats://x"; c.NATS.SubjectPrefix = "" },
		"zero body limit":      func(c *Config) { c.WebhookBodyLimit = 0 },
	}
	for name, mutate := range cases {
		cfg := base
		cfg.RateLimits = append([]RateLimitConfig(nil), base.RateLimits...)
		mutate(&cfg)
		require.Error(t, cfg.Validate(), name)
	}
}
