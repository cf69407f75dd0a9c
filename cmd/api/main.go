// Package main is the entry point for the PushGate ops API server.
//
// The ops API is the operator-facing read surface of the delivery pipeline:
// per-user quota inspection and reset, notification status lookups, and a
// health endpoint that probes the pipeline's dependencies (Postgres, Redis,
// the SQS work queue). It serves no delivery traffic; intake happens on the
// queue and delivery in the worker.
//
// Admin mutations (quota reset, failed-notification listing) are guarded by a
// bcrypt-hashed API key. Everything else is unauthenticated reads behind the
// standard middleware chain.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"pushgate/internal/api/handlers"
	"pushgate/internal/auth"
	"pushgate/internal/config"
	"pushgate/internal/core"
	"pushgate/internal/db"
	"pushgate/internal/ratelimit"
	"pushgate/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var secrets config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		secrets = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}
	cfg, err := config.LoadConfig(secrets)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("ops API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)
	apiLog := &slogAdapter{logger: logger}

	// The ops API is pure reads over the pipeline's stores; without them it
	// has nothing to serve, so both connections fail fast at startup.
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	rdb, err := newRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	verifier := auth.NewVerifier(auth.VerifierConfig{
		KeyHash: cfg.Security.AdminAPIKeyHash,
		Logger:  logger.With("component", "auth"),
	})

	srv, err := core.NewServer(cfg, logger, verifier)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	limiter := ratelimit.NewRedisLimiter(rdb, ratelimit.Settings{
		MaxPerWindow:   cfg.RateLimit.MaxPerWindow,
		Window:         cfg.RateLimit.Window,
		BurstAllowance: cfg.RateLimit.BurstAllowance,
	}, apiLog.With("component", "ratelimit"))
	notifications := db.NewNotificationRepository(pool)

	quotaHandler := handlers.NewQuotaHandler(limiter, logger.With("handler", "quota"))
	notificationsHandler := handlers.NewNotificationsHandler(notifications, logger.With("handler", "notifications"))
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) { quotaHandler.RegisterRoutes(r, srv.AdminOnly) },
		func(r chi.Router) { notificationsHandler.RegisterRoutes(r, srv.AdminOnly) },
	)

	srv.HealthProbes = append(srv.HealthProbes,
		core.NewProbe("database", func(ctx context.Context) error {
			return pool.Ping(ctx)
		}),
		core.NewProbe("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}),
		core.NewProbe("queue", func(ctx context.Context) error {
			_, err := sqsClient.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
				QueueUrl:       aws.String(cfg.Queue.WorkQueueURL),
				AttributeNames: []sqsTypes.QueueAttributeName{sqsTypes.QueueAttributeNameApproximateNumberOfMessages},
			})
			return err
		}),
	)

	srv.MountRoutes()

	return serveHTTP(ctx, cfg, logger, srv.Handler())
}

// serveHTTP starts the server and blocks until a shutdown signal or a listen
// error, then drains in-flight requests within the configured grace period.
func serveHTTP(ctx context.Context, cfg *config.Config, logger *slog.Logger, handler http.Handler) error {
	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown", "grace", cfg.Server.ShutdownGrace)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// newRedisClient connects a go-redis client from config and verifies
// connectivity with a ping.
func newRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return rdb, nil
}

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Debug, Info, Warn, and Error directly, but With
// returns *slog.Logger rather than types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.logger.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)
