package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrMissingRazorpayCredentials = errors.New("razorpay key id, key secret and webhook secret are required")
	ErrAdminSecretRequired        = errors.New("admin.jwtSecret is required when admin access is enabled")
)

// Validate rejects configurations the service cannot safely start with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.ListenAddress) == "" {
		return errors.New("listen address is required")
	}

	var missing []string
	if strings.TrimSpace(c.Razorpay.KeyID) == "" {
		missing = append(missing, "keyId")
	}
	if strings.TrimSpace(c.Razorpay.KeySecret) == "" {
		missing = append(missing, "keySecret")
	}
	if strings.TrimSpace(c.Razorpay.WebhookSecret) == "" {
		missing = append(missing, "webhookSecret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMissingRazorpayCredentials, strings.Join(missing, ", "))
	}
	if parsed, err := url.Parse(c.Razorpay.BaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("razorpay.baseUrl %q is not an absolute URL", c.Razorpay.BaseURL)
	}
	if c.Razorpay.Timeout <= 0 {
		return errors.New("razorpay.timeout must be positive")
	}

	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}

	if c.Admin.Enabled && strings.TrimSpace(c.Admin.JWTSecret) == "" {
		return ErrAdminSecretRequired
	}
	if c.WebhookBodyLimit <= 0 {
		return errors.New("webhookBodyLimit must be positive")
	}

	seen := make(map[string]struct{}, len(c.RateLimits))
	for i, limit := range c.RateLimits {
		id := strings.TrimSpace(limit.ID)
		if id == "" {
			return fmt.Errorf("rateLimits[%d].id cannot be empty", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("rateLimits[%d].id %q is duplicated", i, id)
		}
		seen[id] = struct{}{}
		if limit.RatePerSecond < 0 || limit.Burst < 0 {
			return fmt.Errorf("rateLimits[%d] must not be negative", i)
		}
	}
	if c.NATS.URL != "" && strings.TrimSpace(c.NATS.SubjectPrefix) == "" {
		return errors.New("nats.subjectPrefix is required when nats.url is set")
	}
	return nil
}
