package external

import (
	"context"

	"pushgate/internal/types"
)

// PushProvider abstracts the upstream push gateway. Implementations translate
// a NotificationMessage into the vendor wire format and interpret the reply.
//
// The result is non-nil whenever the gateway answered, even on failure, so
// callers can persist the provider response. A nil result with an error means
// the call never produced a reply (network failure, breaker open).
type PushProvider interface {
	SendPush(ctx context.Context, msg *types.NotificationMessage) (*types.PushResult, error)
}
