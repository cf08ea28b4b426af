package breaker

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelBreakerMetrics exports breaker activity through an OpenTelemetry
// Meter: request/success/failure/rejection counters, a latency
// histogram and an observable state gauge.
type OTelBreakerMetrics struct {
	config     BreakerMetricsConfig
	meter      metric.Meter
	registered bool
	mu         sync.RWMutex

	requestsTotal   metric.Int64Counter
	successesTotal  metric.Int64Counter
	failuresTotal   metric.Int64Counter
	rejectionsTotal metric.Int64Counter
	latency         metric.Float64Histogram
	stateGauge      metric.Int64ObservableGauge // 0=closed, 1=open, 2=half-open

	stateCallbacks map[string]func() int64
	stateMu        sync.RWMutex
}

// BreakerMetricsConfig holds configuration for breaker metrics
type BreakerMetricsConfig struct {
	Enabled     bool
	RecordState bool
}

// NewOTelBreakerMetrics creates a new OTel metrics provider for breaker
func NewOTelBreakerMetrics(cfg BreakerMetricsConfig) *OTelBreakerMetrics {
	return &OTelBreakerMetrics{
		config:         cfg,
		stateCallbacks: make(map[string]func() int64),
	}
}

// MetricsName returns the metrics group name
func (m *OTelBreakerMetrics) MetricsName() string {
	return "breaker"
}

// IsMetricsEnabled returns whether metrics collection is enabled
func (m *OTelBreakerMetrics) IsMetricsEnabled() bool {
	return m.config.Enabled
}

// RegisterMetrics registers all breaker metrics with the provided Meter
func (m *OTelBreakerMetrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	m.meter = meter
	var err error

	m.requestsTotal, err = meter.Int64Counter(
		"breaker_requests_total",
		metric.WithDescription("Total number of circuit breaker requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.successesTotal, err = meter.Int64Counter(
		"breaker_successes_total",
		metric.WithDescription("Total number of successful requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.failuresTotal, err = meter.Int64Counter(
		"breaker_failures_total",
		metric.WithDescription("Total number of failed requests (errors and latency breaches)"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.rejectionsTotal, err = meter.Int64Counter(
		"breaker_rejections_total",
		metric.WithDescription("Total number of rejected requests (circuit open)"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.latency, err = meter.Float64Histogram(
		"breaker_latency_seconds",
		metric.WithDescription("Request latency distribution"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	if m.config.RecordState {
		m.stateGauge, err = meter.Int64ObservableGauge(
			"breaker_state",
			metric.WithDescription("Current circuit breaker state (0=closed, 1=open, 2=half-open)"),
			metric.WithInt64Callback(m.collectState),
		)
		if err != nil {
			return err
		}
	}

	m.registered = true
	return nil
}

// collectState is the callback for the observable gauge
func (m *OTelBreakerMetrics) collectState(_ context.Context, observer metric.Int64Observer) error {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()

	for name, callback := range m.stateCallbacks {
		observer.Observe(callback(),
			metric.WithAttributes(attribute.String("name", name)),
		)
	}
	return nil
}

// RegisterStateCallback registers a callback for a breaker's state
func (m *OTelBreakerMetrics) RegisterStateCallback(name string, callback func() int64) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.stateCallbacks[name] = callback
}

// UnregisterStateCallback removes a breaker's state callback
func (m *OTelBreakerMetrics) UnregisterStateCallback(name string) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	delete(m.stateCallbacks, name)
}

// Observe subscribes to the breaker's event bus and registers its state
// for the gauge, so every call outcome flows into the instruments.
// Returns the bus subscription ID for later removal.
func (m *OTelBreakerMetrics) Observe(b *TradingBreaker) SubscriptionID {
	m.RegisterStateCallback(b.Name(), func() int64 {
		return int64(b.State())
	})

	return b.EventBus().Subscribe(EventListenerFunc(func(e Event) {
		switch ev := e.(type) {
		case *CallEvent:
			if ev.Success {
				m.RecordSuccess(ev.Context(), ev.Name(), ev.Duration)
			} else {
				errType := "unknown"
				if ev.Error != nil {
					errType = ev.Error.Error()
				}
				m.RecordFailure(ev.Context(), ev.Name(), ev.Duration, errType)
			}
		case *RejectedEvent:
			m.RecordRejection(ev.Context(), ev.Name())
		}
	}), EventCallSuccess, EventCallFailure, EventCallRejected)
}

// RecordSuccess records a successful request
func (m *OTelBreakerMetrics) RecordSuccess(ctx context.Context, name string, duration time.Duration) {
	if !m.IsRegistered() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("name", name),
		attribute.String("result", "success"),
	}

	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.successesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("name", name)))
	m.latency.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("name", name)))
}

// RecordFailure records a failed request
func (m *OTelBreakerMetrics) RecordFailure(ctx context.Context, name string, duration time.Duration, errorType string) {
	if !m.IsRegistered() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("name", name),
		attribute.String("result", "failure"),
	}

	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.failuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("name", name),
		attribute.String("error_type", errorType),
	))
	m.latency.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("name", name)))
}

// RecordRejection records a rejected request
func (m *OTelBreakerMetrics) RecordRejection(ctx context.Context, name string) {
	if !m.IsRegistered() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("name", name),
		attribute.String("result", "rejected"),
	}

	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.rejectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("name", name)))
}

// IsRegistered returns whether metrics have been registered
func (m *OTelBreakerMetrics) IsRegistered() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registered
}
