package breaker

import "sync/atomic"

// metrics holds the monotone request counters. Increments are atomic so
// concurrent callers never lose updates; unlike the state machine
// counters, these survive state transitions and Reset.
type metrics struct {
	totalRequests      atomic.Int64
	blockedRequests    atomic.Int64
	successfulRequests atomic.Int64
	failedRequests     atomic.Int64
	stateChanges       atomic.Int64
}

func (m *metrics) snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRequests:      m.totalRequests.Load(),
		BlockedRequests:    m.blockedRequests.Load(),
		SuccessfulRequests: m.successfulRequests.Load(),
		FailedRequests:     m.failedRequests.Load(),
		StateChanges:       m.stateChanges.Load(),
	}
}
