// Package delivery contains the worker-side pipeline: the orchestrator that
// drives one message through idempotency, persistence, and the breaker-wrapped
// provider send, and the retry router that decides republish vs. dead-letter
// on failure.
package delivery

import "time"

// DefaultMaxRetries is the retry ceiling applied when RouterConfig leaves
// MaxRetries zero.
const DefaultMaxRetries = 3

// BackoffDelay returns the wait before redelivering a message that has been
// attempted the given number of times: 2^attempts seconds, so attempts 1-3
// wait 2s, 4s, and 8s. The growth is deliberately unjittered and uncapped;
// with the default ceiling of 3 the longest possible wait is 8s, but raising
// MaxRetries without revisiting this schedule makes the tail waits grow
// without bound.
func BackoffDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	delay := time.Second
	for i := 0; i < attempts; i++ {
		delay *= 2
	}
	return delay
}
