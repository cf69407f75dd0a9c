package delivery

import (
	"context"
	"time"

	"pushgate/internal/breaker"
	"pushgate/internal/idempotency"
	"pushgate/internal/push"
	"pushgate/internal/queue"
	"pushgate/internal/types"
)

// receiveBackoff is how long Run waits after a failed poll before retrying.
const receiveBackoff = 5 * time.Second

// StatusStore is the slice of the notifications repository the pipeline
// writes. Implemented by db.NotificationRepository. Write failures are logged
// and swallowed; persistence never blocks acknowledgment or retry routing.
type StatusStore interface {
	Upsert(ctx context.Context, rec *types.NotificationRecord) error
	UpdateStatus(ctx context.Context, notificationID string, status types.NotificationStatus, attempts int, providerResponse types.ProviderResponse, errorMessage string) error
}

// AuditLog is the append-only notification event trail. Implemented by
// db.LogRepository.
type AuditLog interface {
	Append(ctx context.Context, notificationID, userID string, event types.LogEvent, message string) error
}

// MessageSource yields work-queue messages and acknowledges them.
// Implemented by queue.Consumer; the worker's stdin mode provides its own.
type MessageSource interface {
	Receive(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
}

// RawDeadLetterer forwards payloads that failed validation before a typed
// message existed. Implemented by queue.Publisher.
type RawDeadLetterer interface {
	PublishDeadLetterRaw(ctx context.Context, body string, reason string) error
}

var (
	_ MessageSource   = (*queue.Consumer)(nil)
	_ RawDeadLetterer = (*queue.Publisher)(nil)
	_ WorkPublisher   = (*queue.Publisher)(nil)
)

// Orchestrator drives one message at a time through the delivery flow:
// validate, suppress duplicates, persist intake, send through the circuit
// breaker, then settle (mark processed and ack, or hand to the retry router).
// Horizontal scale comes from running more worker instances against the same
// queue and idempotency store, not from concurrency inside one instance.
type Orchestrator struct {
	source     MessageSource
	deadLetter RawDeadLetterer
	guard      idempotency.Guard
	sender     push.Sender
	breaker    *breaker.Breaker
	router     *Router
	store      StatusStore
	audit      AuditLog
	metrics    Metrics
	clock      types.Clock
	logger     types.Logger
	idemTTL    time.Duration
	claimMode  bool
}

// OrchestratorConfig wires an Orchestrator. Metrics and Clock may be nil;
// IdempotencyTTL zero takes the guard's default.
type OrchestratorConfig struct {
	Source     MessageSource
	DeadLetter RawDeadLetterer
	Guard      idempotency.Guard
	Sender     push.Sender
	Breaker    *breaker.Breaker
	Router     *Router
	Store      StatusStore
	Audit      AuditLog
	Metrics    Metrics
	Clock      types.Clock
	Logger     types.Logger

	// IdempotencyTTL bounds how long a delivered key suppresses duplicates.
	IdempotencyTTL time.Duration

	// ClaimMode switches duplicate suppression from check-then-mark to an
	// atomic claim taken before delivery and released on failure.
	ClaimMode bool
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics{}
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = idempotency.DefaultTTL
	}
	return &Orchestrator{
		source:     cfg.Source,
		deadLetter: cfg.DeadLetter,
		guard:      cfg.Guard,
		sender:     cfg.Sender,
		breaker:    cfg.Breaker,
		router:     cfg.Router,
		store:      cfg.Store,
		audit:      cfg.Audit,
		metrics:    cfg.Metrics,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		idemTTL:    cfg.IdempotencyTTL,
		claimMode:  cfg.ClaimMode,
	}
}

// Run consumes the work queue until ctx is canceled, handling messages one at
// a time. On exit it drains in-flight retry routings before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("delivery worker started", "claim_mode", o.claimMode)
	for ctx.Err() == nil {
		msgs, err := o.source.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			o.logger.Error("receive failed, backing off", "error", err)
			sleepContext(ctx, receiveBackoff)
			continue
		}
		for _, raw := range msgs {
			if err := o.HandleMessage(ctx, raw); err != nil {
				o.logger.Warn("message left for redelivery", "message_id", raw.MessageID)
			}
		}
	}

	o.logger.Info("delivery worker stopping, draining in-flight routings")
	o.router.Wait()
	return ctx.Err()
}

// HandleMessage runs one message through the delivery flow. A nil return
// means the message's fate is settled: acked, or handed to the retry router
// which acks once the next hop is published. A non-nil return means the
// message was deliberately left unacknowledged for redelivery.
func (o *Orchestrator) HandleMessage(ctx context.Context, raw queue.Message) error {
	start := o.clock.Now()
	if !raw.SentAt.IsZero() {
		o.metrics.RecordQueueLag(ctx, start.Sub(raw.SentAt))
	}

	// A payload that cannot become a valid message can never succeed, no
	// matter how often it is retried. Forward it verbatim for inspection.
	msg, err := types.ParseNotificationMessage([]byte(raw.Body))
	if err != nil {
		o.logger.Warn("dead-lettering invalid payload", "message_id", raw.MessageID, "error", err)
		if dlErr := o.deadLetter.PublishDeadLetterRaw(ctx, raw.Body, err.Error()); dlErr != nil {
			o.logger.Error("dead-letter publish failed", "message_id", raw.MessageID, "error", dlErr)
			return dlErr
		}
		o.metrics.RecordDelivery(ctx, "", ResultDeadLetter)
		return o.ack(ctx, raw)
	}

	log := o.logger.With(
		"notification_id", msg.NotificationID,
		"idempotency_key", msg.IdempotencyKey,
		"user_id", msg.UserID,
		"platform", msg.Platform,
	)

	// Duplicate suppression. Guard failures fail open: a duplicate push
	// beats a silently dropped one.
	if o.claimMode {
		won, claimErr := o.guard.Claim(ctx, msg.IdempotencyKey, o.idemTTL)
		if claimErr != nil {
			log.Warn("idempotency claim errored, proceeding as owner", "error", claimErr)
		}
		if !won {
			log.Debug("duplicate suppressed by existing claim")
			o.metrics.RecordDelivery(ctx, msg.Platform, ResultDuplicate)
			return o.ack(ctx, raw)
		}
	} else {
		processed, checkErr := o.guard.IsProcessed(ctx, msg.IdempotencyKey)
		if checkErr != nil {
			log.Warn("idempotency check errored, assuming not processed", "error", checkErr)
		}
		if processed {
			log.Debug("duplicate suppressed")
			o.metrics.RecordDelivery(ctx, msg.Platform, ResultDuplicate)
			return o.ack(ctx, raw)
		}
	}

	// Record intake before attempting delivery.
	rec := types.RecordFromMessage(msg)
	if err := o.store.Upsert(ctx, &rec); err != nil {
		log.Warn("failed to upsert notification record", "error", err)
	}
	if err := o.audit.Append(ctx, msg.NotificationID, msg.UserID, types.LogEventReceived, "message received"); err != nil {
		log.Warn("failed to append received log", "error", err)
	}

	sendErr := o.breaker.Execute(ctx, func(ctx context.Context) error {
		return o.sender.Send(ctx, msg)
	})
	o.metrics.RecordLatency(ctx, msg.Platform, o.clock.Now().Sub(start))

	if sendErr == nil {
		return o.finishDelivered(ctx, log, raw, msg)
	}
	return o.routeFailure(ctx, log, raw, msg, sendErr)
}

// finishDelivered settles a successful delivery: processed marker, sent
// status, audit entry, ack.
func (o *Orchestrator) finishDelivered(ctx context.Context, log types.Logger, raw queue.Message, msg *types.NotificationMessage) error {
	// In claim mode the claim taken before delivery already serves as the
	// processed marker; check-then-mark mode records it now.
	if !o.claimMode {
		if err := o.guard.MarkProcessed(ctx, msg.IdempotencyKey, o.idemTTL); err != nil {
			log.Warn("failed to mark idempotency key", "error", err)
		}
	}
	if err := o.store.UpdateStatus(ctx, msg.NotificationID, types.StatusSent, msg.Attempts, nil, ""); err != nil {
		log.Warn("failed to record sent status", "error", err)
	}
	if err := o.audit.Append(ctx, msg.NotificationID, msg.UserID, types.LogEventSent, "push delivered"); err != nil {
		log.Warn("failed to append sent log", "error", err)
	}
	o.metrics.RecordDelivery(ctx, msg.Platform, ResultSuccess)
	log.Info("notification delivered", "attempts", msg.Attempts)
	return o.ack(ctx, raw)
}

// routeFailure hands a failed delivery to the retry router. The router acks
// the original message once the republish or dead-letter publish is issued.
func (o *Orchestrator) routeFailure(ctx context.Context, log types.Logger, raw queue.Message, msg *types.NotificationMessage, sendErr error) error {
	if o.claimMode {
		// Free the claim so the retry (or a replay from the dead-letter
		// queue) can take it again.
		if err := o.guard.Release(ctx, msg.IdempotencyKey); err != nil {
			log.Warn("failed to release idempotency claim", "error", err)
		}
	}
	o.metrics.RecordDelivery(ctx, msg.Platform, ResultFailure)
	if err := o.audit.Append(ctx, msg.NotificationID, msg.UserID, types.LogEventRetry, sendErr.Error()); err != nil {
		log.Warn("failed to append retry log", "error", err)
	}
	log.Warn("delivery failed, handing to retry routing",
		"error_code", types.CodeOf(sendErr),
		"attempts", msg.Attempts,
		"rejected_by_breaker", breaker.IsRejection(sendErr),
	)

	o.router.Route(ctx, msg, sendErr, func() {
		if err := o.source.Ack(context.WithoutCancel(ctx), raw); err != nil {
			log.Error("failed to ack message after routing", "error", err)
		}
	})
	return nil
}

// ack acknowledges raw, logging the failure when the delete does not go
// through. The message then redelivers after the visibility timeout; the
// idempotency guard suppresses the duplicate delivery.
func (o *Orchestrator) ack(ctx context.Context, raw queue.Message) error {
	if err := o.source.Ack(ctx, raw); err != nil {
		o.logger.Error("failed to ack message", "message_id", raw.MessageID, "error", err)
		return err
	}
	return nil
}
