package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config captures runtime configuration for the storefront checkout service.
type Config struct {
	ListenAddress    string            `yaml:"listen" toml:"ListenAddress"`
	Environment      string            `yaml:"environment" toml:"Environment"`
	ReadTimeout      time.Duration     `yaml:"readTimeout" toml:"ReadTimeout"`
	WriteTimeout     time.Duration     `yaml:"writeTimeout" toml:"WriteTimeout"`
	IdleTimeout      time.Duration     `yaml:"idleTimeout" toml:"IdleTimeout"`
	ShutdownTimeout  time.Duration     `yaml:"shutdownTimeout" toml:"ShutdownTimeout"`
	WebhookBodyLimit int64             `yaml:"webhookBodyLimit" toml:"WebhookBodyLimit"`
	Razorpay         RazorpayConfig    `yaml:"razorpay" toml:"Razorpay"`
	Database         DatabaseConfig    `yaml:"database" toml:"Database"`
	Admin            AdminConfig       `yaml:"admin" toml:"Admin"`
	NATS             NATSConfig        `yaml:"nats" toml:"NATS"`
	RateLimits       []RateLimitConfig `yaml:"rateLimits" toml:"RateLimits"`
	CORS             CORSConfig        `yaml:"cors" toml:"CORS"`
	Logging          LoggingConfig     `yaml:"logging" toml:"Logging"`
	Telemetry        TelemetryConfig   `yaml:"telemetry" toml:"Telemetry"`
}

// Default returns the configuration used before any file or environment overrides apply.
func Default() Config {
	return Config{
		ListenAddress:    ":8080",
		Environment:      "development",
		ReadTimeout:      15 * time.Second,
		WriteTimeout:     30 * time.Second,
		IdleTimeout:      120 * time.Second,
		ShutdownTimeout:  10 * time.Second,
		WebhookBodyLimit: 1 << 20,
		Razorpay: RazorpayConfig{
			BaseURL:  "https://api.razorpay.com/v1",
			Currency: "INR",
			Timeout:  10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "storefront.db",
		},
		Admin: AdminConfig{
			ScopeClaim: "scope",
			ClockSkew:  2 * time.Minute,
		},
		NATS: NATSConfig{
			SubjectPrefix: "storefront",
			ClientName:    "storefront-checkout",
			ConnectWait:   2 * time.Second,
		},
		RateLimits: []RateLimitConfig{
			{ID: "checkout", RatePerSecond: 5, Burst: 10},
			{ID: "verify", RatePerSecond: 5, Burst: 10},
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Telemetry: TelemetryConfig{
			Metrics:     true,
			LogRequests: true,
		},
	}
}

// Load reads the configuration file at path (YAML or TOML, chosen by extension), applies
// STOREFRONT_* environment overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, fmt.Errorf("apply environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("decode config: unknown keys %v", undecoded)
		}
		return nil
	case ".yaml", ".yml":
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
}
