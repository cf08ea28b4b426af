// Package breaker 提供延迟触发的熔断器功能
//
// 设计理念：
//   - 独立包，不依赖其他组件（除 latency 窗口统计）
//   - 事件驱动，应用层可订阅所有事件
//   - 指标开放，应用层可访问实时快照
//   - 准入判断走热路径，不做任何 I/O
package breaker

import (
	"context"
	"time"
)

// Operation 受保护的调用
type Operation func(ctx context.Context) (interface{}, error)

// Fallback 降级逻辑，在请求被拒绝或调用失败时执行，err 为原始错误
type Fallback func(ctx context.Context, err error) (interface{}, error)

// StateListener is notified synchronously whenever the breaker
// transitions between states. Implementations must be non-blocking; a
// panicking listener is logged and skipped, never allowed to corrupt
// breaker state.
type StateListener interface {
	OnStateChange(from, to State)
}

// StateListenerFunc adapts a function to the StateListener interface.
type StateListenerFunc func(from, to State)

func (f StateListenerFunc) OnStateChange(from, to State) {
	f(from, to)
}

// State 熔断器状态
type State int

const (
	// StateClosed 关闭（正常，所有请求放行）
	StateClosed State = iota

	// StateOpen 打开（熔断，仅恢复超时后放行探测请求）
	StateOpen

	// StateHalfOpen 半开（放行有限数量的试探请求）
	StateHalfOpen
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// IsOpen 是否处于熔断状态
func (s State) IsOpen() bool {
	return s == StateOpen
}

// IsClosed 是否处于正常状态
func (s State) IsClosed() bool {
	return s == StateClosed
}

// IsHalfOpen 是否处于半开状态
func (s State) IsHalfOpen() bool {
	return s == StateHalfOpen
}

// MetricsSnapshot 指标快照（应用层可访问）
type MetricsSnapshot struct {
	Name  string
	State State

	TotalRequests      int64
	BlockedRequests    int64
	SuccessfulRequests int64
	FailedRequests     int64
	StateChanges       int64

	CurrentFailureCount int
	LastFailure         time.Time
}
