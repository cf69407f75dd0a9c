package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"pushgate/internal/types"
)

// WorkPublisher is the slice of the queue publisher the router uses.
// Implemented by queue.Publisher.
type WorkPublisher interface {
	PublishWork(ctx context.Context, msg types.NotificationMessage, delay time.Duration) error
	PublishDeadLetter(ctx context.Context, msg types.NotificationMessage, reason string) error
}

// Router decides the next hop for a message whose delivery attempt failed:
// republish to the work queue after a backoff, or park it on the dead-letter
// queue. Each routing runs in a tracked goroutine so one message's backoff
// never blocks intake of the next; Wait drains them on shutdown.
type Router struct {
	publisher  WorkPublisher
	store      StatusStore
	audit      AuditLog
	metrics    Metrics
	logger     types.Logger
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration)

	wg sync.WaitGroup
}

// RouterConfig configures a Router. MaxRetries zero takes DefaultMaxRetries;
// a nil Sleep waits on a real timer. Tests inject Sleep to observe delays
// without waiting them out.
type RouterConfig struct {
	Publisher  WorkPublisher
	Store      StatusStore
	Audit      AuditLog
	Metrics    Metrics
	Logger     types.Logger
	MaxRetries int
	Sleep      func(ctx context.Context, d time.Duration)
}

// NewRouter creates a Router.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics{}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	return &Router{
		publisher:  cfg.Publisher,
		store:      cfg.Store,
		audit:      cfg.Audit,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		maxRetries: cfg.MaxRetries,
		sleep:      cfg.Sleep,
	}
}

// Route dispatches a failed message to its next hop in a tracked goroutine
// and returns immediately. cause must be non-nil. ack is invoked exactly
// once, after the republish or dead-letter publish has been issued; when the
// publish itself fails the message is left unacknowledged so the queue
// redelivers it after the visibility timeout.
func (r *Router) Route(ctx context.Context, msg *types.NotificationMessage, cause error, ack func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.route(ctx, msg, cause, ack)
	}()
}

// Wait blocks until all in-flight routings have finished. Called on worker
// shutdown after intake stops.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) route(ctx context.Context, msg *types.NotificationMessage, cause error, ack func()) {
	log := r.logger.With("notification_id", msg.NotificationID, "user_id", msg.UserID)

	// An error that can never succeed on retry skips the backoff cycle
	// entirely instead of burning three provider calls.
	if !types.IsRetryable(cause) {
		r.park(ctx, log, *msg, cause, "non-retryable: "+string(types.CodeOf(cause)), ack)
		return
	}

	next := *msg
	next.Attempts++

	if next.Attempts >= r.maxRetries {
		r.park(ctx, log, next, cause, "retry ceiling reached", ack)
		return
	}

	delay := BackoffDelay(next.Attempts)
	log.Info("retry scheduled",
		"attempts", next.Attempts,
		"delay", delay,
		"cause", types.CodeOf(cause),
	)
	r.sleep(ctx, delay)

	// The publish and ack run on a detached context: a shutdown mid-backoff
	// cuts the sleep short, but the message must still be republished or it
	// would sit invisible until the visibility timeout expires.
	pubCtx := context.WithoutCancel(ctx)
	if err := r.publisher.PublishWork(pubCtx, next, 0); err != nil {
		log.Error("retry republish failed, leaving message for redelivery", "error", err)
		return
	}
	r.metrics.RecordDelivery(pubCtx, next.Platform, ResultRetry)
	ack()
}

// park publishes msg to the dead-letter queue and records the terminal
// failure. Status-store and audit failures are logged and swallowed: the
// message is already parked, which is the part that matters.
func (r *Router) park(ctx context.Context, log types.Logger, msg types.NotificationMessage, cause error, reason string, ack func()) {
	pubCtx := context.WithoutCancel(ctx)
	if err := r.publisher.PublishDeadLetter(pubCtx, msg, reason); err != nil {
		log.Error("dead-letter publish failed, leaving message for redelivery", "error", err)
		return
	}

	if err := r.store.UpdateStatus(pubCtx, msg.NotificationID, types.StatusFailed, msg.Attempts, providerResponseFrom(cause), cause.Error()); err != nil {
		log.Warn("failed to record terminal status", "error", err)
	}
	if err := r.audit.Append(pubCtx, msg.NotificationID, msg.UserID, types.LogEventFailed, reason); err != nil {
		log.Warn("failed to append failure log", "error", err)
	}

	r.metrics.RecordDelivery(pubCtx, msg.Platform, ResultDeadLetter)
	log.Warn("notification dead-lettered",
		"attempts", msg.Attempts,
		"reason", reason,
		"cause", types.CodeOf(cause),
	)
	ack()
}

// providerResponseFrom pulls the decoded gateway reply off the error chain
// when the provider attached one, so the terminal record keeps the evidence.
func providerResponseFrom(err error) types.ProviderResponse {
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Details == nil {
		return nil
	}
	if resp, ok := appErr.Details["provider_response"].(types.ProviderResponse); ok {
		return resp
	}
	return nil
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
