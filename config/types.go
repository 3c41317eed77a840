package config

import "time"

// RazorpayConfig carries the merchant credentials and API settings for the payment provider.
type RazorpayConfig struct {
	KeyID         string        `yaml:"keyId" toml:"KeyID"`
	KeySecret     string        `yaml:"keySecret" toml:"KeySecret"`
	WebhookSecret string        `yaml:"webhookSecret" toml:"WebhookSecret"`
	BaseURL       string        `yaml:"baseUrl" toml:"BaseURL"`
	Currency      string        `yaml:"currency" toml:"Currency"`
	Timeout       time.Duration `yaml:"timeout" toml:"Timeout"`
}

// DatabaseConfig selects the ledger backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"Driver"`
	DSN    string `yaml:"dsn" toml:"DSN"`
}

// AdminConfig guards the read-only operator endpoints.
type AdminConfig struct {
	Enabled    bool          `yaml:"enabled" toml:"Enabled"`
	JWTSecret  string        `yaml:"jwtSecret" toml:"JWTSecret"`
	Issuer     string        `yaml:"issuer" toml:"Issuer"`
	Audience   string        `yaml:"audience" toml:"Audience"`
	ScopeClaim string        `yaml:"scopeClaim" toml:"ScopeClaim"`
	ClockSkew  time.Duration `yaml:"clockSkew" toml:"ClockSkew"`
}

// NATSConfig enables order lifecycle notifications. An empty URL disables publishing.
type NATSConfig struct {
	URL           string        `yaml:"url" toml:"URL"`
	SubjectPrefix string        `yaml:"subjectPrefix" toml:"SubjectPrefix"`
	ClientName    string        `yaml:"clientName" toml:"ClientName"`
	ConnectWait   time.Duration `yaml:"connectWait" toml:"ConnectWait"`
}

type RateLimitConfig struct {
	ID            string  `yaml:"id" toml:"ID"`
	RatePerSecond float64 `yaml:"ratePerSecond" toml:"RatePerSecond"`
	Burst         int     `yaml:"burst" toml:"Burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins" toml:"AllowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials" toml:"AllowCredentials"`
}

// LoggingConfig controls the structured logger. File enables rotated output alongside stdout.
type LoggingConfig struct {
	Level      string `yaml:"level" toml:"Level"`
	File       string `yaml:"file" toml:"File"`
	MaxSizeMB  int    `yaml:"maxSizeMb" toml:"MaxSizeMB"`
	MaxBackups int    `yaml:"maxBackups" toml:"MaxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays" toml:"MaxAgeDays"`
}

type TelemetryConfig struct {
	Endpoint    string            `yaml:"endpoint" toml:"Endpoint"`
	Insecure    bool              `yaml:"insecure" toml:"Insecure"`
	Headers     map[string]string `yaml:"headers" toml:"Headers"`
	Metrics     bool              `yaml:"metrics" toml:"Metrics"`
	Traces      bool              `yaml:"traces" toml:"Traces"`
	LogRequests bool              `yaml:"logRequests" toml:"LogRequests"`
}
