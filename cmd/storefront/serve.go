package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"jewelstore/config"
	"jewelstore/gateway/middleware"
	"jewelstore/observability/logging"
	telemetry "jewelstore/observability/otel"
	"jewelstore/payments/razorpay"
	"jewelstore/services/checkout/ledger"
	"jewelstore/services/checkout/models"
	"jewelstore/services/checkout/notify"
	"jewelstore/services/checkout/server"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		logLevel   string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the checkout HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if listen != "" {
				cfg.ListenAddress = listen
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML or TOML configuration file")
	cmd.Flags().StringVar(&listen, "listen", "", "override the listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override the log level (debug, info, warn, error)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, logOutput io.Writer) error {
	opts := []logging.Option{logging.WithLevel(cfg.Logging.Level), logging.WithWriter(logOutput)}
	if cfg.Logging.File != "" {
		opts = append(opts, logging.WithFile(logging.FileConfig{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		}))
	}
	logger := logging.Setup(serviceName, cfg.Environment, opts...)

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        cfg.Telemetry.Headers,
		Metrics:        cfg.Telemetry.Metrics && cfg.Telemetry.Endpoint != "",
		Traces:         cfg.Telemetry.Traces && cfg.Telemetry.Endpoint != "",
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	db, err := ledger.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := models.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate ledger: %w", err)
	}
	store, err := ledger.New(db)
	if err != nil {
		return err
	}

	client := razorpay.NewHTTPClient(cfg.Razorpay.BaseURL, cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, cfg.Razorpay.Timeout)
	checkout, err := razorpay.NewCheckout(client, cfg.Razorpay.Currency)
	if err != nil {
		return err
	}
	verifier, err := razorpay.NewVerifier(razorpay.Secrets{
		KeySecret:     cfg.Razorpay.KeySecret,
		WebhookSecret: cfg.Razorpay.WebhookSecret,
	})
	if err != nil {
		return err
	}

	var publisher notify.Publisher = notify.Nop{}
	if cfg.NATS.URL != "" {
		nc, err := notify.ConnectNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix, cfg.NATS.ClientName, cfg.NATS.ConnectWait)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		publisher = nc
		logger.Info("order notifications enabled", slog.String("subject_prefix", cfg.NATS.SubjectPrefix))
	}
	notifier := notify.NewNotifier(publisher, logger)
	defer func() {
		if err := notifier.Close(); err != nil {
			logger.Warn("close notifier", slog.Any("error", err))
		}
	}()

	srv, err := server.New(server.Config{
		Checkout:         checkout,
		Verifier:         verifier,
		Ledger:           store,
		Notifier:         notifier,
		KeyID:            cfg.Razorpay.KeyID,
		WebhookBodyLimit: cfg.WebhookBodyLimit,
		AdminAuth: middleware.AdminAuthConfig{
			Enabled:    cfg.Admin.Enabled,
			HMACSecret: cfg.Admin.JWTSecret,
			Issuer:     cfg.Admin.Issuer,
			Audience:   cfg.Admin.Audience,
			ScopeClaim: cfg.Admin.ScopeClaim,
			ClockSkew:  cfg.Admin.ClockSkew,
		},
		RateLimits: rateLimits(cfg.RateLimits),
		CORS: middleware.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowCredentials: cfg.CORS.AllowCredentials,
		},
		Observability: middleware.ObservabilityConfig{
			ServiceName: serviceName,
			LogRequests: cfg.Telemetry.LogRequests,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(srv.Handler(), serviceName),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("checkout service listening",
			slog.String("addr", listener.Addr().String()),
			logging.MaskField("key_id", cfg.Razorpay.KeyID),
			slog.String("key_hint", logging.Hint(cfg.Razorpay.KeyID)),
			slog.String("currency", checkout.Currency()),
			slog.String("database", cfg.Database.Driver))
		serveErr <- httpServer.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down checkout service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("error", err))
	}
	return nil
}

// rateLimits keys the configured groups by trimmed id, matching how Validate reads them.
func rateLimits(configured []config.RateLimitConfig) map[string]middleware.RateLimit {
	limits := make(map[string]middleware.RateLimit, len(configured))
	for _, limit := range configured {
		limits[strings.TrimSpace(limit.ID)] = middleware.RateLimit{RatePerSecond: limit.RatePerSecond, Burst: limit.Burst}
	}
	return limits
}
