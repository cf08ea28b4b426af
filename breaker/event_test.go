package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectingListener 收集事件的测试监听器
type collectingListener struct {
	mu     sync.Mutex
	events []Event
}

func (l *collectingListener) OnEvent(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *collectingListener) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// TestEventBus_PublishSubscribe 发布订阅
func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	listener := &collectingListener{}
	bus.Subscribe(listener)

	bus.Publish(&CallEvent{
		BaseEvent: NewBaseEvent(EventCallSuccess, "venue", context.Background()),
		Success:   true,
		Duration:  time.Millisecond,
	})

	waitFor(t, func() bool { return len(listener.snapshot()) == 1 })

	events := listener.snapshot()
	assert.Equal(t, EventCallSuccess, events[0].Type())
	assert.Equal(t, "venue", events[0].Name())
}

// TestEventBus_Filter 按类型过滤
func TestEventBus_Filter(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	listener := &collectingListener{}
	bus.Subscribe(listener, EventCallRejected)

	bus.Publish(&CallEvent{BaseEvent: NewBaseEvent(EventCallSuccess, "venue", context.Background())})
	bus.Publish(&RejectedEvent{BaseEvent: NewBaseEvent(EventCallRejected, "venue", context.Background())})

	waitFor(t, func() bool { return len(listener.snapshot()) == 1 })

	events := listener.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, EventCallRejected, events[0].Type())
}

// TestEventBus_Unsubscribe 取消订阅后不再接收
func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	listener := &collectingListener{}
	id := bus.Subscribe(listener)
	bus.Unsubscribe(id)

	bus.Publish(&CallEvent{BaseEvent: NewBaseEvent(EventCallSuccess, "venue", context.Background())})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, listener.snapshot())
}

// TestEventBus_PanickingListener panic 的监听器不影响其他订阅者
func TestEventBus_PanickingListener(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	bus.Subscribe(EventListenerFunc(func(e Event) {
		panic("bad subscriber")
	}))
	listener := &collectingListener{}
	bus.Subscribe(listener)

	bus.Publish(&CallEvent{BaseEvent: NewBaseEvent(EventCallFailure, "venue", context.Background())})

	waitFor(t, func() bool { return len(listener.snapshot()) == 1 })
}

// TestEventBus_CloseIdempotent 重复关闭与关闭后发布都安全
func TestEventBus_CloseIdempotent(t *testing.T) {
	bus := NewEventBus(10)
	bus.Close()
	bus.Close()

	assert.NotPanics(t, func() {
		bus.Publish(&CallEvent{BaseEvent: NewBaseEvent(EventCallSuccess, "venue", context.Background())})
	})
}

// TestEventBus_ConcurrentPublishClose 关闭与并发发布竞争时绝不 panic
func TestEventBus_ConcurrentPublishClose(t *testing.T) {
	for i := 0; i < 20; i++ {
		bus := NewEventBus(4)

		var wg sync.WaitGroup
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					bus.Publish(&CallEvent{BaseEvent: NewBaseEvent(EventCallSuccess, "venue", context.Background())})
				}
			}()
		}

		bus.Close()
		wg.Wait()
	}
}

// TestBreakerEvents 熔断器在状态转换和拒绝时发布事件
func TestBreakerEvents(t *testing.T) {
	b := newTestBreaker(t, nil)
	ctx := context.Background()

	listener := &collectingListener{}
	b.EventBus().Subscribe(listener, EventStateChanged, EventCallRejected)

	for i := 0; i < 3; i++ {
		b.Execute(ctx, func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("boom")
		})
	}
	b.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})

	waitFor(t, func() bool { return len(listener.snapshot()) >= 2 })

	events := listener.snapshot()
	var stateChanged *StateChangedEvent
	var rejected *RejectedEvent
	for _, e := range events {
		switch ev := e.(type) {
		case *StateChangedEvent:
			stateChanged = ev
		case *RejectedEvent:
			rejected = ev
		}
	}

	require.NotNil(t, stateChanged)
	assert.Equal(t, StateClosed, stateChanged.FromState)
	assert.Equal(t, StateOpen, stateChanged.ToState)
	assert.NotEmpty(t, stateChanged.Reason)

	require.NotNil(t, rejected)
	assert.Equal(t, StateOpen, rejected.CurrentState)
}
