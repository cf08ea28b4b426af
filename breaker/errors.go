package breaker

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCircuitOpen admission was denied because the circuit is open.
	// Always recoverable: callers may retry after the recovery timeout.
	ErrCircuitOpen = errors.New("breaker: circuit breaker is open")

	// ErrLatencyExceeded marks a functionally successful operation whose
	// elapsed time crossed the latency threshold. It is used as the
	// failure cause in events; it is never returned to callers.
	ErrLatencyExceeded = errors.New("breaker: latency threshold exceeded")
)

// OperationError wraps the wrapped operation's own error, which is
// opaque to the breaker and simply forwarded.
type OperationError struct {
	Cause   error
	Elapsed time.Duration
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("breaker: operation failed after %s: %v", e.Elapsed, e.Cause)
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}
