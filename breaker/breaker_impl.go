package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KOMKZ/go-tradeguard/latency"
	"go.uber.org/zap"
)

// TradingBreaker is the public façade used by call sites: it checks
// admission, times the wrapped operation, feeds the outcome back into
// the latency monitor and the state machine, and translates breaker
// rejection into ErrCircuitOpen. One instance protects one resource
// (e.g. one trading venue) and lives for the process lifetime.
type TradingBreaker struct {
	name    string
	config  Config
	states  *stateManager
	monitor *latency.Monitor
	metrics *metrics

	eventBus EventBus
	logger   *zap.Logger
	fallback Fallback

	listeners   []StateListener
	listenersMu sync.RWMutex
}

// New 创建熔断器实例
//
// 使用示例:
//
//	cb, _ := breaker.New(breaker.Config{
//		FailureThreshold: 5,
//		RecoveryTimeout:  30 * time.Second,
//		HalfOpenTrials:   3,
//		LatencyThreshold: breaker.Duration(500 * time.Millisecond),
//	}, breaker.WithName("venue-nyse"), breaker.WithLogger(logger))
func New(cfg Config, opts ...Option) (*TradingBreaker, error) {
	cfg = DefaultConfig().Merge(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opt := options{name: "default", windowCapacity: cfg.WindowCapacity}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger != nil {
		logger = logger.With(zap.String("component", "breaker"), zap.String("name", opt.name))
		logger.Info("creating circuit breaker",
			zap.Int("failure_threshold", cfg.FailureThreshold),
			zap.Duration("recovery_timeout", cfg.RecoveryTimeout),
			zap.Int("half_open_trials", cfg.HalfOpenTrials),
			zap.Duration("latency_threshold", cfg.latencyThreshold()),
			zap.Float64("error_rate_threshold", cfg.ErrorRateThreshold))
	}

	return &TradingBreaker{
		name:     opt.name,
		config:   cfg,
		states:   newStateManager(),
		monitor:  latency.NewMonitor(opt.windowCapacity, cfg.latencyThreshold()),
		metrics:  &metrics{},
		eventBus: NewEventBus(cfg.EventBusBuffer),
		logger:   logger,
		fallback: opt.fallback,
	}, nil
}

// Execute 执行受保护的调用
//
// Admission is denied with ErrCircuitOpen while the circuit is open;
// the operation is then never invoked and no latency is recorded. An
// operation error is recorded as a failure and forwarded wrapped in
// OperationError. A functionally successful call whose elapsed time
// crosses the latency threshold (per call or by window P99) still
// returns its result, but counts as a failure for breaker purposes.
func (b *TradingBreaker) Execute(ctx context.Context, op Operation) (interface{}, error) {
	b.metrics.totalRequests.Add(1)

	allowed, tr := b.states.CanExecute(b.config)
	if tr.changed {
		b.onTransition(ctx, tr)
	}

	if !allowed {
		b.metrics.blockedRequests.Add(1)
		if b.logger != nil {
			b.logger.Warn("request rejected", zap.String("state", b.states.State().String()))
		}
		b.eventBus.Publish(&RejectedEvent{
			BaseEvent:    NewBaseEvent(EventCallRejected, b.name, ctx),
			CurrentState: b.states.State(),
		})
		if b.fallback != nil {
			return b.executeFallback(ctx, ErrCircuitOpen)
		}
		return nil, ErrCircuitOpen
	}

	start := time.Now()
	result, err := op(ctx)
	elapsed := time.Since(start)

	// 取消视为失败，部分执行的耗时照常记录
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	if err != nil {
		b.handleFailure(ctx, elapsed, err)
		opErr := &OperationError{Cause: err, Elapsed: elapsed}
		if b.fallback != nil {
			return b.executeFallback(ctx, opErr)
		}
		return result, opErr
	}

	breached := false
	if elapsed > 0 {
		breached = b.monitor.Record(elapsed)
	}

	threshold := b.config.latencyThreshold()
	if (threshold > 0 && elapsed > threshold) || breached {
		// 功能上成功，但延迟超标对熔断器而言是失败信号
		if b.logger != nil {
			b.logger.Warn("latency breach on successful call",
				zap.Duration("elapsed", elapsed),
				zap.Duration("threshold", threshold),
				zap.Bool("p99_breach", breached))
		}
		b.recordFailure(ctx, elapsed, ErrLatencyExceeded)
		return result, nil
	}

	b.handleSuccess(ctx, elapsed)
	return result, nil
}

// handleSuccess 处理成功
func (b *TradingBreaker) handleSuccess(ctx context.Context, elapsed time.Duration) {
	b.metrics.successfulRequests.Add(1)

	b.eventBus.Publish(&CallEvent{
		BaseEvent: NewBaseEvent(EventCallSuccess, b.name, ctx),
		Success:   true,
		Duration:  elapsed,
	})

	if tr := b.states.RecordSuccess(); tr.changed {
		b.onTransition(ctx, tr)
	}
}

// handleFailure 处理调用失败（记录延迟后走统一失败路径）
func (b *TradingBreaker) handleFailure(ctx context.Context, elapsed time.Duration, err error) {
	if elapsed > 0 {
		b.monitor.Record(elapsed)
	}
	b.recordFailure(ctx, elapsed, err)
}

// recordFailure 统一的失败信号：硬错误、取消和延迟超标共用一个失败计数
func (b *TradingBreaker) recordFailure(ctx context.Context, elapsed time.Duration, err error) {
	b.metrics.failedRequests.Add(1)

	if b.logger != nil && !errors.Is(err, ErrLatencyExceeded) {
		b.logger.Debug("call failed", zap.Duration("elapsed", elapsed), zap.Error(err))
	}

	b.eventBus.Publish(&CallEvent{
		BaseEvent: NewBaseEvent(EventCallFailure, b.name, ctx),
		Success:   false,
		Duration:  elapsed,
		Error:     err,
	})

	if tr := b.states.RecordFailure(b.config); tr.changed {
		b.onTransition(ctx, tr)
	}
}

// executeFallback 执行降级逻辑，originalErr 为触发降级的原始错误
func (b *TradingBreaker) executeFallback(ctx context.Context, originalErr error) (interface{}, error) {
	start := time.Now()
	result, err := b.fallback(ctx, originalErr)
	elapsed := time.Since(start)

	eventType := EventFallbackSuccess
	if err != nil {
		eventType = EventFallbackFailure
	}
	b.eventBus.Publish(&FallbackEvent{
		BaseEvent: NewBaseEvent(eventType, b.name, ctx),
		Success:   err == nil,
		Duration:  elapsed,
		Error:     err,
	})

	return result, err
}

// onTransition fires the synchronous listeners and publishes the state
// change. Listener panics are logged and skipped; they never propagate
// into the admission path.
func (b *TradingBreaker) onTransition(ctx context.Context, tr transition) {
	b.metrics.stateChanges.Add(1)

	if b.logger != nil {
		b.logger.Info("state changed",
			zap.String("from", tr.from.String()),
			zap.String("to", tr.to.String()),
			zap.String("reason", tr.reason))
	}

	b.listenersMu.RLock()
	listeners := make([]StateListener, len(b.listeners))
	copy(listeners, b.listeners)
	b.listenersMu.RUnlock()

	for _, l := range listeners {
		b.notifyListener(l, tr.from, tr.to)
	}

	b.eventBus.Publish(&StateChangedEvent{
		BaseEvent: NewBaseEvent(EventStateChanged, b.name, ctx),
		FromState: tr.from,
		ToState:   tr.to,
		Reason:    tr.reason,
		Metrics:   b.Metrics(),
	})
}

func (b *TradingBreaker) notifyListener(l StateListener, from, to State) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("state listener panicked", zap.Any("panic", r))
		}
	}()
	l.OnStateChange(from, to)
}

// AddStateListener 注册状态变化监听器（转换时同步调用）
func (b *TradingBreaker) AddStateListener(l StateListener) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Name 返回熔断器名称
func (b *TradingBreaker) Name() string {
	return b.name
}

// State 获取当前状态
func (b *TradingBreaker) State() State {
	return b.states.State()
}

// Metrics 获取指标快照
func (b *TradingBreaker) Metrics() MetricsSnapshot {
	snapshot := b.metrics.snapshot()
	snapshot.Name = b.name
	snapshot.State = b.states.State()
	snapshot.CurrentFailureCount = b.states.FailureCount()
	snapshot.LastFailure = b.states.LastFailure()
	return snapshot
}

// LatencyStatistics 获取延迟统计
func (b *TradingBreaker) LatencyStatistics() latency.Statistics {
	return b.monitor.Statistics()
}

// Monitor 返回延迟监控器
func (b *TradingBreaker) Monitor() *latency.Monitor {
	return b.monitor
}

// EventBus 获取事件总线（用于订阅事件）
func (b *TradingBreaker) EventBus() EventBus {
	return b.eventBus
}

// Reset 手动重置熔断器状态并清空延迟窗口
func (b *TradingBreaker) Reset() {
	if tr := b.states.Reset(); tr.changed {
		b.onTransition(context.Background(), tr)
	}
	b.monitor.Reset()
}

// Close 关闭熔断器（清理事件总线）
func (b *TradingBreaker) Close() {
	b.eventBus.Close()
}
