package types

import "errors"

// Error kinds shared across port boundaries. Adapters convert transport-layer
// failures into one of these before anything reaches the pipeline; the engine
// dispatches on them with errors.Is.
var (
	// ErrTransport is a transient network or exchange failure. Recover locally:
	// skip the cycle or drop the affected unit, retry on the next cycle.
	ErrTransport = errors.New("transport error")

	// ErrRateLimited means the exchange is throttling us. Apply backoff.
	ErrRateLimited = errors.New("rate limited")

	// ErrPermanent is an invalid request, unknown ticker, or closed market.
	// Never retried.
	ErrPermanent = errors.New("permanent error")

	// ErrDeadlineExceeded is a per-operation timeout. Treated as a local skip.
	ErrDeadlineExceeded = errors.New("deadline exceeded")

	// ErrValidation is a malformed domain value (price outside [1,99], empty
	// cache key). Programmer error; aborts the cycle.
	ErrValidation = errors.New("validation error")

	// ErrReasonerUnavailable means the reasoning port failed or timed out.
	// The scheduler falls back to the top admitted opportunity.
	ErrReasonerUnavailable = errors.New("reasoner unavailable")

	// ErrRiskBlocked marks an opportunity rejected by the risk gate. Not a
	// failure; surfaces as a RISK_BLOCKED event.
	ErrRiskBlocked = errors.New("risk blocked")

	// ErrCircuitBreaker means the daily loss limit tripped. Trading halts for
	// the calendar day; portfolio reads continue.
	ErrCircuitBreaker = errors.New("circuit breaker tripped")
)

// Retriable reports whether an error kind may resolve on its own next cycle.
func Retriable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrDeadlineExceeded)
}
