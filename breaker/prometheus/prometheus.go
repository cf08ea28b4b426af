// Package prometheus exposes TradingBreaker metrics through a
// prometheus Registerer.
package prometheus

import (
	"errors"
	"unicode/utf8"

	"github.com/KOMKZ/go-tradeguard/breaker"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// MetricsNamespace is the common metric namespace (prefix).
	MetricsNamespace = "circuit_breaker"

	// RequestsMetricName is the suffix of the requests metric.
	RequestsMetricName = "requests_total"
	requestsMetricHelp = "Number of requests seen by the circuit breaker."

	// OpenStateMetricName is the suffix of the open metric.
	OpenStateMetricName = "open"
	openStateMetricHelp = "One if the circuit is not in the closed state."

	// FailureCountMetricName is the suffix of the current failure count metric.
	FailureCountMetricName = "failure_count"
	failureCountMetricHelp = "Current consecutive failure count of the circuit breaker."

	// CircuitBreakerNameLabel is the label name for the circuit breaker name.
	CircuitBreakerNameLabel = "name"
	// RequestStatusLabel is the label name for the request status.
	RequestStatusLabel = "status"
)

// ErrInvalidCircuitBreakerName is returned when the breaker name is not
// a valid utf-8 string.
var ErrInvalidCircuitBreakerName = errors.New("invalid circuit breaker name")

// RegisterMetricsToDefaultRegisterer registers the breaker metrics using
// the prometheus DefaultRegisterer, labelled with the breaker's name.
func RegisterMetricsToDefaultRegisterer(b *breaker.TradingBreaker) error {
	return RegisterMetrics(b, prom.DefaultRegisterer)
}

// RegisterMetrics registers the breaker metrics using the provided
// Registerer, labelled with the breaker's name.
func RegisterMetrics(b *breaker.TradingBreaker, registerer prom.Registerer) error {
	return RegisterMetricsWithFactory(b, promauto.With(registerer))
}

// RegisterMetricsWithFactory registers the breaker metrics using the
// provided promauto Factory.
func RegisterMetricsWithFactory(b *breaker.TradingBreaker, factory promauto.Factory) error {
	if !utf8.ValidString(b.Name()) {
		return ErrInvalidCircuitBreakerName
	}

	circuitBreakerOpen(b, factory)
	failureCount(b, factory)
	requestCounters(b, factory)

	return nil
}

func circuitBreakerOpen(b *breaker.TradingBreaker, factory promauto.Factory) {
	factory.NewGaugeFunc(
		prom.GaugeOpts{
			Namespace:   MetricsNamespace,
			Name:        OpenStateMetricName,
			Help:        openStateMetricHelp,
			ConstLabels: prom.Labels{CircuitBreakerNameLabel: b.Name()},
		},
		func() float64 {
			if b.State() == breaker.StateClosed {
				return 0.0
			}
			return 1.0
		},
	)
}

func failureCount(b *breaker.TradingBreaker, factory promauto.Factory) {
	factory.NewGaugeFunc(
		prom.GaugeOpts{
			Namespace:   MetricsNamespace,
			Name:        FailureCountMetricName,
			Help:        failureCountMetricHelp,
			ConstLabels: prom.Labels{CircuitBreakerNameLabel: b.Name()},
		},
		func() float64 {
			return float64(b.Metrics().CurrentFailureCount)
		},
	)
}

func requestCounters(b *breaker.TradingBreaker, factory promauto.Factory) {
	counter := func(status string, value func(breaker.MetricsSnapshot) int64) {
		factory.NewCounterFunc(
			prom.CounterOpts{
				Namespace: MetricsNamespace,
				Name:      RequestsMetricName,
				Help:      requestsMetricHelp,
				ConstLabels: prom.Labels{
					CircuitBreakerNameLabel: b.Name(),
					RequestStatusLabel:      status,
				},
			},
			func() float64 {
				return float64(value(b.Metrics()))
			},
		)
	}

	counter("success", func(s breaker.MetricsSnapshot) int64 { return s.SuccessfulRequests })
	counter("failure", func(s breaker.MetricsSnapshot) int64 { return s.FailedRequests })
	counter("blocked", func(s breaker.MetricsSnapshot) int64 { return s.BlockedRequests })
}
