package breaker

import (
	"context"
	"time"
)

// Event interface
type Event interface {
	Type() EventType
	Name() string
	Timestamp() time.Time
	Context() context.Context
}

// EventType 事件类型
type EventType string

const (
	// EventStateChanged state change event
	EventStateChanged EventType = "state_changed"

	// EventCallSuccess call success event
	EventCallSuccess EventType = "call_success"

	// EventCallFailure call failure event (operation error, cancellation or latency breach)
	EventCallFailure EventType = "call_failure"

	// EventCallRejected request rejected (circuit breaker open)
	EventCallRejected EventType = "call_rejected"

	// EventFallbackSuccess fallback success event
	EventFallbackSuccess EventType = "fallback_success"

	// EventFallbackFailure fallback failure event
	EventFallbackFailure EventType = "fallback_failure"
)

// EventBus event bus interface
type EventBus interface {
	// Subscribe to events (with optional filter for event types)
	Subscribe(listener EventListener, filters ...EventType) SubscriptionID

	// Unsubscribe from subscription
	Unsubscribe(id SubscriptionID)

	// Publish internal event
	Publish(event Event)

	// Close event bus
	Close()
}

// EventListener (event listener implementation in the application layer)
type EventListener interface {
	OnEvent(event Event)
}

// SubscriptionID 订阅标识
type SubscriptionID string

// EventListenerFunc 函数式监听器（便捷用法）
type EventListenerFunc func(event Event)

func (f EventListenerFunc) OnEvent(event Event) {
	f(event)
}

// BaseEvent basic event
type BaseEvent struct {
	eventType EventType
	name      string
	timestamp time.Time
	ctx       context.Context
}

func (e *BaseEvent) Type() EventType          { return e.eventType }
func (e *BaseEvent) Name() string             { return e.name }
func (e *BaseEvent) Timestamp() time.Time     { return e.timestamp }
func (e *BaseEvent) Context() context.Context { return e.ctx }

// NewBaseEvent creates a base event
func NewBaseEvent(eventType EventType, name string, ctx context.Context) BaseEvent {
	return BaseEvent{
		eventType: eventType,
		name:      name,
		timestamp: time.Now(),
		ctx:       ctx,
	}
}

// StateChangedEvent state change event
type StateChangedEvent struct {
	BaseEvent
	FromState State
	ToState   State
	Reason    string
	Metrics   MetricsSnapshot
}

// CallEvent call outcome event (success/failure)
type CallEvent struct {
	BaseEvent
	Success  bool
	Duration time.Duration
	Error    error
}

// RejectedEvent rejected event
type RejectedEvent struct {
	BaseEvent
	CurrentState State
}

// FallbackEvent fallback event
type FallbackEvent struct {
	BaseEvent
	Success  bool
	Duration time.Duration
	Error    error
}
