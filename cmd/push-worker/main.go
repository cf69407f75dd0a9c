// Package main is the entrypoint for the push delivery worker.
//
// The worker is a long-running SQS consumer. It long-polls the work queue and
// drives each message through the delivery orchestrator: validation, duplicate
// suppression, the per-user rate limit, the circuit breaker, and the provider
// send. Failed deliveries are handed to the retry router, which republishes
// with backoff or parks the message on the dead-letter queue. Horizontal
// scale comes from running more instances against the same queue and
// idempotency store.
//
// Startup:
//  1. Load configuration (SSM-resolved secrets outside local mode).
//  2. Initialize the structured logger.
//  3. Connect the Postgres pool, Redis client, SQS and CloudWatch clients.
//  4. Build the pipeline: consumer, publisher, idempotency guard, rate
//     limiter, provider, sender, breaker, router, orchestrator.
//  5. Supervise the consumer loop and the registry keepalive under an
//     errgroup; SIGINT/SIGTERM cancels the group, the orchestrator drains
//     in-flight retry routings, and the registry lease is released.
//
// Local mode (APP_ENV=local) swaps SQS for JSON lines on stdin, Redis for the
// in-memory guard and limiter, and the provider for the logging stub, so the
// full pipeline runs without any backing services. One NotificationMessage
// per line:
//
//	echo '{"idempotency_key":"k1","user_id":"u1","platform":"android","title":"hi","body":"there"}' | go run ./cmd/push-worker
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"pushgate/internal/breaker"
	"pushgate/internal/config"
	"pushgate/internal/db"
	"pushgate/internal/delivery"
	"pushgate/internal/external"
	"pushgate/internal/idempotency"
	"pushgate/internal/push"
	"pushgate/internal/queue"
	"pushgate/internal/ratelimit"
	"pushgate/internal/registry"
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
	logger.Info("push worker starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"claim_mode", cfg.Idempotency.ClaimMode,
	)
	workerLog := &slogAdapter{logger: logger}

	if cfg.Environment == "local" {
		return runLocal(ctx, cfg, logger, workerLog)
	}
	return runWorker(ctx, cfg, logger, workerLog)
}

// runWorker builds the production pipeline against SQS, Redis, Postgres, and
// CloudWatch, then supervises it until a shutdown signal arrives.
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, workerLog types.Logger) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

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

	consumer := queue.NewConsumer(sqsClient, cfg.Queue, workerLog.With("component", "consumer"))
	publisher := queue.NewPublisher(sqsClient, cfg.Queue, workerLog.With("component", "publisher"))
	guard := idempotency.NewRedisGuard(rdb)
	limiter := ratelimit.NewRedisLimiter(rdb, ratelimit.Settings{
		MaxPerWindow:   cfg.RateLimit.MaxPerWindow,
		Window:         cfg.RateLimit.Window,
		BurstAllowance: cfg.RateLimit.BurstAllowance,
	}, workerLog.With("component", "ratelimit"))

	var metrics delivery.Metrics = delivery.NopMetrics{}
	if cfg.Observability.EnableMetrics {
		metrics = delivery.NewCloudWatchMetrics(cwClient, cfg.Observability.MetricNamespace, workerLog.With("component", "metrics"))
	}

	sender := push.NewSender(push.SenderConfig{
		Provider: external.NewProviderFromConfig(cfg, workerLog),
		Limiter:  limiter,
		Logger:   workerLog.With("component", "sender"),
	})

	brk := breaker.New(breaker.Settings{
		Name:             "push-provider",
		MaxFailures:      cfg.Breaker.MaxFailures,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
		HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
		Logger:           workerLog.With("component", "breaker"),
		OnStateChange: func(name string, _, to types.BreakerState) {
			// Emission leaves the breaker's lock before touching the network.
			go metrics.RecordBreakerState(context.Background(), name, to)
		},
	})

	notifications := db.NewNotificationRepository(pool)
	auditLog := db.NewLogRepository(pool)

	router := delivery.NewRouter(delivery.RouterConfig{
		Publisher:  publisher,
		Store:      notifications,
		Audit:      auditLog,
		Metrics:    metrics,
		Logger:     workerLog.With("component", "router"),
		MaxRetries: cfg.Retry.MaxRetries,
	})

	orchestrator := delivery.NewOrchestrator(delivery.OrchestratorConfig{
		Source:         consumer,
		DeadLetter:     publisher,
		Guard:          guard,
		Sender:         sender,
		Breaker:        brk,
		Router:         router,
		Store:          notifications,
		Audit:          auditLog,
		Metrics:        metrics,
		Logger:         workerLog.With("component", "orchestrator"),
		IdempotencyTTL: cfg.Idempotency.TTL,
		ClaimMode:      cfg.Idempotency.ClaimMode,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orchestrator.Run(gctx) })
	if cfg.Registry.Enabled {
		reg := registry.New(rdb, registry.Settings{
			LeaseTTL: cfg.Registry.LeaseTTL,
			Logger:   workerLog.With("component", "registry"),
		})
		g.Go(func() error { return reg.Run(gctx) })
	}

	logger.Info("push worker running",
		"work_queue", cfg.Queue.WorkQueueURL,
		"registry_enabled", cfg.Registry.Enabled,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("push worker stopped cleanly")
	return nil
}

// runLocal builds the self-contained local pipeline: stdin source, in-memory
// guard and limiter, stub provider, log-only publisher. The worker exits once
// stdin is drained.
func runLocal(ctx context.Context, cfg *config.Config, logger *slog.Logger, workerLog types.Logger) error {
	logger.Info("local mode: reading notification messages from stdin, one JSON object per line")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	source := newStdinSource(os.Stdin, cancel, workerLog.With("component", "stdin"))
	sink := &logPublisher{logger: workerLog.With("component", "publisher")}

	limiter := ratelimit.NewMemoryLimiter(ratelimit.Settings{
		MaxPerWindow:   cfg.RateLimit.MaxPerWindow,
		Window:         cfg.RateLimit.Window,
		BurstAllowance: cfg.RateLimit.BurstAllowance,
	})
	sender := push.NewSender(push.SenderConfig{
		Provider: external.NewProviderFromConfig(cfg, workerLog),
		Limiter:  limiter,
		Logger:   workerLog.With("component", "sender"),
	})
	brk := breaker.New(breaker.Settings{
		Name:             "push-provider",
		MaxFailures:      cfg.Breaker.MaxFailures,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
		HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
		Logger:           workerLog.With("component", "breaker"),
	})
	router := delivery.NewRouter(delivery.RouterConfig{
		Publisher:  sink,
		Store:      nopStore{},
		Audit:      nopAudit{},
		Logger:     workerLog.With("component", "router"),
		MaxRetries: cfg.Retry.MaxRetries,
	})
	orchestrator := delivery.NewOrchestrator(delivery.OrchestratorConfig{
		Source:         source,
		DeadLetter:     sink,
		Guard:          idempotency.NewMemoryGuard(),
		Sender:         sender,
		Breaker:        brk,
		Router:         router,
		Store:          nopStore{},
		Audit:          nopAudit{},
		Logger:         workerLog.With("component", "orchestrator"),
		IdempotencyTTL: cfg.Idempotency.TTL,
		ClaimMode:      cfg.Idempotency.ClaimMode,
	})

	if err := orchestrator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("push worker stopped cleanly")
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
// connectivity with a ping so a bad Redis URL fails startup, not the first
// delivery.
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

// stdinSource implements delivery.MessageSource over stdin for local mode.
// Each non-empty line is one message body. EOF cancels the run context so the
// orchestrator drains and exits once the input is consumed.
type stdinSource struct {
	scanner *bufio.Scanner
	done    context.CancelFunc
	logger  types.Logger
	seq     int
}

func newStdinSource(r io.Reader, done context.CancelFunc, logger types.Logger) *stdinSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &stdinSource{scanner: scanner, done: done, logger: logger}
}

func (s *stdinSource) Receive(ctx context.Context) ([]queue.Message, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		s.seq++
		return []queue.Message{{
			MessageID:     fmt.Sprintf("stdin-%d", s.seq),
			ReceiptHandle: fmt.Sprintf("stdin-%d", s.seq),
			Body:          line,
			SentAt:        time.Now(),
		}}, nil
	}
	if err := s.scanner.Err(); err != nil {
		s.logger.Error("stdin read failed", "error", err)
	}
	s.done()
	return nil, ctx.Err()
}

func (s *stdinSource) Ack(_ context.Context, msg queue.Message) error {
	s.logger.Debug("message settled", "message_id", msg.MessageID)
	return nil
}

// logPublisher stands in for SQS in local mode. Republishes and dead-letters
// are logged rather than queued: a failed local send is visible in the output
// but never redelivered.
type logPublisher struct {
	logger types.Logger
}

func (p *logPublisher) PublishWork(_ context.Context, msg types.NotificationMessage, delay time.Duration) error {
	p.logger.Info("work republish (local mode, not redelivered)",
		"notification_id", msg.NotificationID,
		"attempts", msg.Attempts,
		"delay", delay,
	)
	return nil
}

func (p *logPublisher) PublishDeadLetter(_ context.Context, msg types.NotificationMessage, reason string) error {
	p.logger.Warn("dead-letter (local mode)",
		"notification_id", msg.NotificationID,
		"attempts", msg.Attempts,
		"reason", reason,
	)
	return nil
}

func (p *logPublisher) PublishDeadLetterRaw(_ context.Context, body string, reason string) error {
	p.logger.Warn("dead-letter raw (local mode)", "reason", reason, "body", body)
	return nil
}

// nopStore and nopAudit satisfy the orchestrator's persistence interfaces in
// local mode, where no database is expected to be running.
type nopStore struct{}

func (nopStore) Upsert(context.Context, *types.NotificationRecord) error { return nil }
func (nopStore) UpdateStatus(context.Context, string, types.NotificationStatus, int, types.ProviderResponse, string) error {
	return nil
}

type nopAudit struct{}

func (nopAudit) Append(context.Context, string, string, types.LogEvent, string) error { return nil }

// Compile-time assertions that the local-mode pieces satisfy their contracts.
var (
	_ types.Logger             = (*slogAdapter)(nil)
	_ delivery.MessageSource   = (*stdinSource)(nil)
	_ delivery.WorkPublisher   = (*logPublisher)(nil)
	_ delivery.RawDeadLetterer = (*logPublisher)(nil)
	_ delivery.StatusStore     = nopStore{}
	_ delivery.AuditLog        = nopAudit{}
)
