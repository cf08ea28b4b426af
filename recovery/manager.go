package recovery

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/KOMKZ/go-tradeguard/breaker"
	"go.uber.org/zap"
)

// DefaultIdleInterval 熔断器非 Open 状态下的轮询间隔
const DefaultIdleInterval = 5 * time.Second

// DefaultProbeTimeout 单次健康探测的超时时间
const DefaultProbeTimeout = 5 * time.Second

// StateReader exposes the breaker state the manager polls. The manager
// only ever reads through this accessor; it never reaches into breaker
// internals and never forces a transition.
type StateReader interface {
	State() breaker.State
}

// Manager is the background recovery control loop. While the breaker
// is Open it sleeps an exponentially growing delay, then probes the
// resource through the injected HealthChecker; a healthy probe resets
// the retry count so the next caller-triggered admission check finds a
// confirmed-healthy resource. When the breaker is not Open the loop
// idles at a fixed interval.
type Manager struct {
	reader  StateReader
	checker HealthChecker

	backoff      BackoffStrategy
	idleInterval time.Duration
	probeTimeout time.Duration
	logger       *zap.Logger

	retryCount atomic.Int32
	probes     atomic.Int64
}

// ManagerOption 构造选项
type ManagerOption func(*Manager)

// WithLogger 设置 Logger，nil 时不输出日志
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger.With(zap.String("component", "recovery"))
		}
	}
}

// WithBackoff 设置退避策略
func WithBackoff(strategy BackoffStrategy) ManagerOption {
	return func(m *Manager) {
		if strategy != nil {
			m.backoff = strategy
		}
	}
}

// WithIdleInterval 设置非 Open 状态下的轮询间隔
func WithIdleInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.idleInterval = d
		}
	}
}

// WithProbeTimeout 设置单次探测超时
func WithProbeTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.probeTimeout = d
		}
	}
}

// NewManager 创建恢复管理器
//
// 默认退避策略：base 1s、multiplier 2.0、max 300s、jitter 0.1。
func NewManager(reader StateReader, checker HealthChecker, opts ...ManagerOption) *Manager {
	m := &Manager{
		reader:       reader,
		checker:      checker,
		backoff:      ExponentialBackoff(time.Second),
		idleInterval: DefaultIdleInterval,
		probeTimeout: DefaultProbeTimeout,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Run is the long-lived control loop. It blocks until ctx is
// cancelled. No failure path inside the loop is ever fatal: health
// check errors count as unhealthy probes and the loop keeps going.
func (m *Manager) Run(ctx context.Context) {
	if m.logger != nil {
		m.logger.Info("recovery manager started",
			zap.Duration("idle_interval", m.idleInterval),
			zap.Duration("probe_timeout", m.probeTimeout))
	}

	for {
		if m.reader.State() != breaker.StateOpen {
			// 非熔断状态：空转轮询，重试计数保持为零
			m.retryCount.Store(0)
			if !m.wait(ctx, m.idleInterval) {
				return
			}
			continue
		}

		delay := m.backoff.Next(int(m.retryCount.Load()))
		if m.logger != nil {
			m.logger.Debug("breaker open, backing off before probe",
				zap.Duration("delay", delay),
				zap.Int32("retry_count", m.retryCount.Load()))
		}
		if !m.wait(ctx, delay) {
			return
		}

		// 退避期间状态可能已经变化
		if m.reader.State() != breaker.StateOpen {
			continue
		}

		m.probe(ctx)
	}
}

// probe runs one health check; errors are equivalent to an unhealthy
// result.
func (m *Manager) probe(ctx context.Context) {
	m.probes.Add(1)

	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	status, err := m.checker.Check(probeCtx)
	cancel()

	if err == nil && status.Healthy {
		m.retryCount.Store(0)
		if m.logger != nil {
			m.logger.Info("health probe succeeded",
				zap.Duration("latency", status.Latency),
				zap.String("details", status.Details))
		}
		return
	}

	m.retryCount.Add(1)
	if m.logger != nil {
		m.logger.Warn("health probe failed",
			zap.Int32("retry_count", m.retryCount.Load()),
			zap.String("details", status.Details),
			zap.Error(err))
	}
}

// RetryCount 当前重试计数（熔断器非 Open 时保持为零）
func (m *Manager) RetryCount() int {
	return int(m.retryCount.Load())
}

// Probes 累计探测次数
func (m *Manager) Probes() int64 {
	return m.probes.Load()
}

// wait sleeps d or until ctx is done; reports false when ctx ended.
func (m *Manager) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		// 仍需响应取消
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
