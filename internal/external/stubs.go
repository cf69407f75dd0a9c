package external

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pushgate/internal/types"
)

// ---------------------------------------------------------------------------
// Stub Implementations
//
// Stub implementations allow the pipeline to run in local/test mode without
// real gateway credentials. They log all actions and return predictable
// results. The worker selects the stub automatically when the provider API
// key is absent.
// ---------------------------------------------------------------------------

// StubPushProvider implements PushProvider without network calls. Latency
// simulates gateway round-trip time; FailEveryN makes every Nth call report
// a full delivery failure so retry paths can be exercised locally.
type StubPushProvider struct {
	failEveryN int
	latency    time.Duration
	logger     types.Logger

	mu    sync.Mutex
	calls int
}

// NewStubPushProvider creates a StubPushProvider. failEveryN <= 0 disables
// simulated failures; latency <= 0 responds immediately.
func NewStubPushProvider(failEveryN int, latency time.Duration, logger types.Logger) *StubPushProvider {
	return &StubPushProvider{
		failEveryN: failEveryN,
		latency:    latency,
		logger:     logger,
	}
}

// SendPush simulates one multicast delivery. The latency sleep is
// context-cancellable so shutdown is not held up by a slow stub.
func (s *StubPushProvider) SendPush(ctx context.Context, msg *types.NotificationMessage) (*types.PushResult, error) {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, types.NewAppError(types.ErrCodeProviderFailure, "stub send canceled", ctx.Err())
		case <-timer.C:
		}
	}

	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()

	tokens := len(msg.DeviceTokens)
	if s.failEveryN > 0 && n%s.failEveryN == 0 {
		s.logger.Info("stub: simulated delivery failure",
			"notification_id", msg.NotificationID,
			"call", n,
		)
		return &types.PushResult{
			Success:      false,
			FailureCount: tokens,
			Response: types.ProviderResponse{
				"stub":    true,
				"failure": tokens,
			},
		}, nil
	}

	s.logger.Info("stub: push delivered",
		"notification_id", msg.NotificationID,
		"user_id", msg.UserID,
		"tokens", tokens,
	)
	return &types.PushResult{
		Success:      true,
		SuccessCount: tokens,
		Response: types.ProviderResponse{
			"stub":       true,
			"message_id": fmt.Sprintf("stub_%s", msg.NotificationID),
			"success":    tokens,
		},
	}, nil
}

// Calls returns how many sends the stub has served.
func (s *StubPushProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// ---------------------------------------------------------------------------
// Interface Compliance
// ---------------------------------------------------------------------------

var _ PushProvider = (*StubPushProvider)(nil)
