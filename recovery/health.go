package recovery

import (
	"context"
	"time"
)

// HealthStatus 单次健康探测的结果
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency,omitempty"`
	Details string        `json:"details,omitempty"`
}

// HealthChecker probes the protected resource independently of live
// traffic. A returned error is treated exactly like an unhealthy
// result: the recovery loop backs off and tries again.
type HealthChecker interface {
	Check(ctx context.Context) (HealthStatus, error)
}

// HealthCheckerFunc adapts a function to the HealthChecker interface.
type HealthCheckerFunc func(ctx context.Context) (HealthStatus, error)

func (f HealthCheckerFunc) Check(ctx context.Context) (HealthStatus, error) {
	return f(ctx)
}
