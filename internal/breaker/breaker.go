// Package breaker implements the failure-isolating call wrapper that guards
// provider invocations. It is a three-state machine (CLOSED, OPEN, HALF_OPEN)
// with call-time recovery probing: an OPEN breaker admits nothing until the
// reset timeout has elapsed, then admits a bounded number of probe calls and
// closes again only when a probe succeeds.
//
// This is intentionally not gobreaker: the pipeline requires the failure
// count to survive the CLOSED->OPEN transition (resetting only on entering
// CLOSED), a monotonic success counter that never drives transitions, and a
// caller-visible distinction between "rejected without calling" and "called
// and failed". The transport-level gobreaker instance inside the HTTP client
// is a separate concern and remains in place.
package breaker

import (
	"context"
	"sync"
	"time"

	"pushgate/internal/types"
)

// Defaults for Settings fields left zero.
const (
	DefaultMaxFailures      = 3
	DefaultResetTimeout     = 60 * time.Second
	DefaultHalfOpenMaxCalls = 1
)

// Rejection sentinels. Both carry breaker_* codes so types.IsRetryable
// classifies them as retryable; callers needing to know the call was never
// attempted use IsRejection.
var (
	// ErrOpen is returned when the breaker is OPEN and the reset timeout has
	// not yet elapsed. The wrapped function is not invoked.
	ErrOpen = types.NewAppError(types.ErrCodeBreakerOpen, "circuit breaker is open", nil)

	// ErrTooManyCalls is returned when the breaker is HALF_OPEN and the probe
	// budget is spent. The wrapped function is not invoked.
	ErrTooManyCalls = types.NewAppError(types.ErrCodeBreakerExhausted, "circuit breaker half-open call limit reached", nil)
)

// IsRejection reports whether err means the breaker refused the call without
// invoking the wrapped function, as opposed to the call itself failing.
func IsRejection(err error) bool {
	switch types.CodeOf(err) {
	case types.ErrCodeBreakerOpen, types.ErrCodeBreakerExhausted:
		return true
	default:
		return false
	}
}

// Settings configures a Breaker. Zero fields take the package defaults; a
// nil Clock uses the system clock.
type Settings struct {
	// Name appears in logs and state-change notifications.
	Name string

	// MaxFailures is the consecutive-failure count in CLOSED that opens the
	// breaker.
	MaxFailures int

	// ResetTimeout is how long an OPEN breaker waits after the last recorded
	// failure before admitting probe calls.
	ResetTimeout time.Duration

	// HalfOpenMaxCalls bounds concurrent-or-sequential probe admissions in
	// HALF_OPEN.
	HalfOpenMaxCalls int

	Clock  types.Clock
	Logger types.Logger

	// OnStateChange, when set, is invoked (under the breaker's lock) on every
	// state transition. Used for metrics emission.
	OnStateChange func(name string, from, to types.BreakerState)
}

// Breaker is a single protected call-site's state machine. One instance per
// call-site, living for the process lifetime; state is never shared across
// workers. Safe for concurrent use.
type Breaker struct {
	name             string
	maxFailures      int
	resetTimeout     time.Duration
	halfOpenMaxCalls int
	clock            types.Clock
	logger           types.Logger
	onStateChange    func(string, types.BreakerState, types.BreakerState)

	mu              sync.Mutex
	state           types.BreakerState
	failureCount    int
	successCount    uint64
	halfOpenCalls   int
	lastFailureTime time.Time
}

// Stats is a point-in-time snapshot of the breaker's counters, exposed for
// the health surface and operational logging.
type Stats struct {
	Name            string             `json:"name"`
	State           types.BreakerState `json:"state"`
	FailureCount    int                `json:"failure_count"`
	SuccessCount    uint64             `json:"success_count"`
	HalfOpenCalls   int                `json:"half_open_calls"`
	LastFailureTime time.Time          `json:"last_failure_time,omitzero"`
}

// New creates a Breaker in the CLOSED state.
func New(s Settings) *Breaker {
	if s.Name == "" {
		s.Name = "breaker"
	}
	if s.MaxFailures <= 0 {
		s.MaxFailures = DefaultMaxFailures
	}
	if s.ResetTimeout <= 0 {
		s.ResetTimeout = DefaultResetTimeout
	}
	if s.HalfOpenMaxCalls <= 0 {
		s.HalfOpenMaxCalls = DefaultHalfOpenMaxCalls
	}
	if s.Clock == nil {
		s.Clock = types.RealClock{}
	}
	return &Breaker{
		name:             s.Name,
		maxFailures:      s.MaxFailures,
		resetTimeout:     s.ResetTimeout,
		halfOpenMaxCalls: s.HalfOpenMaxCalls,
		clock:            s.Clock,
		logger:           s.Logger,
		onStateChange:    s.OnStateChange,
		state:            types.BreakerClosed,
	}
}

// Execute runs fn through the breaker. When the breaker admits the call, the
// outcome is recorded and fn's original error is returned unmodified so the
// caller can distinguish it from a rejection (IsRejection). A context
// cancellation inside fn counts as a failure like any other.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	admitted, err := b.admit()
	if err != nil {
		return err
	}

	callErr := fn(ctx)
	b.record(admitted, callErr == nil)
	return callErr
}

// admit decides whether a call may proceed, applying the call-time
// OPEN->HALF_OPEN transition. It returns the state under which the call was
// admitted so record can attribute the outcome correctly even if the state
// changes while the call is in flight.
func (b *Breaker) admit() (types.BreakerState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == types.BreakerOpen {
		if b.clock.Now().Sub(b.lastFailureTime) < b.resetTimeout {
			return "", ErrOpen
		}
		// Reset timeout elapsed: probe before evaluating this call.
		b.transition(types.BreakerHalfOpen)
	}

	if b.state == types.BreakerHalfOpen {
		if b.halfOpenCalls >= b.halfOpenMaxCalls {
			return "", ErrTooManyCalls
		}
		b.halfOpenCalls++
		return types.BreakerHalfOpen, nil
	}

	return types.BreakerClosed, nil
}

// record applies the call outcome. successCount is monotonic and only
// observational; failureCount resets exclusively on entering CLOSED.
func (b *Breaker) record(admitted types.BreakerState, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.successCount++
		if admitted == types.BreakerHalfOpen && b.state == types.BreakerHalfOpen {
			// Probe succeeded: downstream recovered.
			b.transition(types.BreakerClosed)
			return
		}
		if b.state == types.BreakerClosed {
			b.failureCount = 0
		}
		return
	}

	if admitted == types.BreakerHalfOpen && b.state == types.BreakerHalfOpen {
		// Probe failed: back to OPEN with a fresh reset window.
		b.lastFailureTime = b.clock.Now()
		b.transition(types.BreakerOpen)
		return
	}

	if b.state == types.BreakerClosed {
		b.failureCount++
		if b.failureCount >= b.maxFailures {
			b.lastFailureTime = b.clock.Now()
			b.transition(types.BreakerOpen)
		}
	}
	// A straggler failing after the breaker already opened changes nothing:
	// extending the open window would punish recovery probing.
}

// transition moves the state machine, applying entry actions. Callers hold b.mu.
func (b *Breaker) transition(to types.BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	switch to {
	case types.BreakerClosed:
		b.failureCount = 0
		b.halfOpenCalls = 0
	case types.BreakerHalfOpen:
		b.halfOpenCalls = 0
	}

	if b.logger != nil {
		b.logger.Info("circuit breaker state change",
			"breaker", b.name,
			"from", string(from),
			"to", string(to),
			"failure_count", b.failureCount,
		)
	}
	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}

// Reset forces the breaker to CLOSED regardless of counters. Administrative
// recovery only; the success counter is preserved.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(types.BreakerClosed)
	// transition is a no-op when already CLOSED, but the counters must still
	// clear for a manual reset.
	b.failureCount = 0
	b.halfOpenCalls = 0
}

// State returns the breaker's stored state. The OPEN->HALF_OPEN move happens
// at call time, not here: an idle OPEN breaker reports OPEN even after the
// reset timeout has elapsed.
func (b *Breaker) State() types.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns current counters for observability.
func (b *Breaker) Snapshot() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:            b.name,
		State:           b.state,
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		HalfOpenCalls:   b.halfOpenCalls,
		LastFailureTime: b.lastFailureTime,
	}
}
