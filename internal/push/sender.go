// Package push implements the provider-send boundary: the single path through
// which the delivery pipeline contacts the upstream push gateway. The boundary
// enforces the per-user quota and the non-empty token contract before any
// provider traffic happens; everything above it (circuit breaker, retry
// routing) is wired by the orchestrator.
package push

import (
	"context"
	"errors"
	"fmt"

	"pushgate/internal/external"
	"pushgate/internal/ratelimit"
	"pushgate/internal/types"
)

// Sender is the provider-send contract consumed by the delivery orchestrator.
type Sender interface {
	// Send delivers one notification to all of its device tokens. It returns
	// nil only when the provider accepted every token; any other outcome is
	// an AppError whose code routes the failure (retry vs dead-letter).
	Send(ctx context.Context, msg *types.NotificationMessage) error
}

// GatewaySender is the production Sender implementation.
type GatewaySender struct {
	provider external.PushProvider
	limiter  ratelimit.Limiter
	logger   types.Logger
}

// SenderConfig holds the dependencies needed to create a GatewaySender.
type SenderConfig struct {
	Provider external.PushProvider
	Limiter  ratelimit.Limiter
	Logger   types.Logger
}

// NewSender creates a GatewaySender with the given dependencies.
func NewSender(cfg SenderConfig) *GatewaySender {
	return &GatewaySender{
		provider: cfg.Provider,
		limiter:  cfg.Limiter,
		logger:   cfg.Logger,
	}
}

// Send executes the delivery boundary:
//
//  1. Per-user quota: a rate-limited user fails immediately, without any
//     provider traffic. A quota-store failure fails open (logged, send
//     proceeds).
//  2. Token contract: an empty resolved token set fails immediately. The
//     failure is a validation kind, so the router dead-letters it instead of
//     retrying an unwinnable send.
//  3. Provider call: an error, or a reply rejecting any token, is a failure.
func (s *GatewaySender) Send(ctx context.Context, msg *types.NotificationMessage) error {
	limited, err := s.limiter.IsRateLimited(ctx, msg.UserID)
	if err != nil {
		s.logger.Warn("quota check failed, proceeding",
			"user_id", msg.UserID,
			"error", err.Error(),
		)
	}
	if limited {
		s.logger.Info("send rejected by user quota",
			"notification_id", msg.NotificationID,
			"user_id", msg.UserID,
		)
		return types.NewAppError(
			types.ErrCodeRateLimited,
			fmt.Sprintf("user %s exhausted the send window", msg.UserID),
			nil,
		)
	}

	if len(msg.DeviceTokens) == 0 {
		return types.NewAppError(
			types.ErrCodeValidationNoTokens,
			"no device tokens resolved for user",
			nil,
		)
	}

	result, err := s.provider.SendPush(ctx, msg)
	if err != nil {
		// A non-nil result means the gateway answered; carry its reply on
		// the error so the failure path can persist it.
		var appErr *types.AppError
		if result != nil && errors.As(err, &appErr) {
			return appErr.WithDetails(map[string]any{
				"provider_response": result.Response,
			})
		}
		return err
	}

	if !result.Success {
		total := result.SuccessCount + result.FailureCount
		return types.NewAppErrorWithDetails(
			types.ErrCodeProviderFailure,
			fmt.Sprintf("gateway rejected %d of %d tokens", result.FailureCount, total),
			nil,
			map[string]any{"provider_response": result.Response},
		)
	}

	s.logger.Info("push delivered",
		"notification_id", msg.NotificationID,
		"user_id", msg.UserID,
		"platform", string(msg.Platform),
		"tokens", len(msg.DeviceTokens),
	)
	return nil
}

// Compile-time assertion that GatewaySender implements Sender.
var _ Sender = (*GatewaySender)(nil)
