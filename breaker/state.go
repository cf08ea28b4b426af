package breaker

import (
	"sync"
	"time"
)

// transition carries the outcome of a state-machine call back to the
// façade, which fires listeners and events outside the lock.
type transition struct {
	changed bool
	from    State
	to      State
	reason  string
}

// stateManager owns the authoritative breaker state and its counters.
// All transitions happen under the write lock, so they are totally
// ordered per breaker instance.
type stateManager struct {
	state State

	// failureCount 连续失败次数（Closed 态成功时清零）
	failureCount int
	// successCount 进入 Closed 后的成功次数（用于错误率判断）
	successCount int
	// windowFailures 进入 Closed 后的累计失败次数（用于错误率判断）
	windowFailures int
	// halfOpenTrials 半开状态已发放的试探名额
	halfOpenTrials int

	lastFailure time.Time

	mu sync.RWMutex
}

func newStateManager() *stateManager {
	return &stateManager{state: StateClosed}
}

// State 获取当前状态（线程安全）
func (sm *stateManager) State() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// FailureCount 获取当前连续失败次数
func (sm *stateManager) FailureCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.failureCount
}

// LastFailure 获取最近一次失败时间
func (sm *stateManager) LastFailure() time.Time {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.lastFailure
}

// CanExecute is the sole admission gate. In the Open state it performs
// the Open->HalfOpen transition inline once the recovery timeout has
// elapsed, consuming the first trial slot in the same critical section:
// of all callers racing at the timeout boundary, exactly one wins the
// transition and the rest observe the already-updated HalfOpen state.
func (sm *stateManager) CanExecute(cfg Config) (allowed bool, tr transition) {
	// Closed 快路径，只读锁
	sm.mu.RLock()
	if sm.state == StateClosed {
		sm.mu.RUnlock()
		return true, transition{}
	}
	sm.mu.RUnlock()

	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch sm.state {
	case StateClosed:
		return true, transition{}

	case StateOpen:
		if time.Since(sm.lastFailure) >= cfg.RecoveryTimeout {
			from := sm.state
			sm.transitionTo(StateHalfOpen)
			// 转换和首个试探名额的发放是同一个原子单元
			sm.halfOpenTrials = 1
			return true, transition{changed: true, from: from, to: StateHalfOpen, reason: "recovery timeout elapsed"}
		}
		return false, transition{}

	case StateHalfOpen:
		if sm.halfOpenTrials < cfg.HalfOpenTrials {
			sm.halfOpenTrials++
			return true, transition{}
		}
		return false, transition{}

	default:
		return false, transition{}
	}
}

// RecordSuccess 记录成功
func (sm *stateManager) RecordSuccess() (tr transition) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch sm.state {
	case StateClosed:
		// Closed 态成功，连续失败次数清零
		sm.failureCount = 0
		sm.successCount++

	case StateHalfOpen:
		// 半开态单次成功即恢复
		from := sm.state
		sm.transitionTo(StateClosed)
		return transition{changed: true, from: from, to: StateClosed, reason: "trial succeeded"}
	}

	return transition{}
}

// RecordFailure 记录失败
func (sm *stateManager) RecordFailure(cfg Config) (tr transition) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch sm.state {
	case StateClosed:
		sm.lastFailure = time.Now()
		sm.failureCount++
		sm.windowFailures++

		if sm.failureCount >= cfg.FailureThreshold {
			from := sm.state
			sm.transitionTo(StateOpen)
			return transition{changed: true, from: from, to: StateOpen, reason: "failure threshold reached"}
		}

		// 可选的次级条件：错误率
		if sm.errorRateExceeded(cfg) {
			from := sm.state
			sm.transitionTo(StateOpen)
			return transition{changed: true, from: from, to: StateOpen, reason: "error rate threshold exceeded"}
		}

	case StateHalfOpen:
		// 半开态失败，直接回到熔断
		sm.lastFailure = time.Now()
		from := sm.state
		sm.transitionTo(StateOpen)
		return transition{changed: true, from: from, to: StateOpen, reason: "trial failed"}

	case StateOpen:
		// 迟到的失败（熔断前已放行的调用），不顺延恢复窗口
	}

	return transition{}
}

// Reset 手动重置为 Closed
func (sm *stateManager) Reset() (tr transition) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state == StateClosed {
		sm.failureCount = 0
		sm.successCount = 0
		sm.windowFailures = 0
		return transition{}
	}

	from := sm.state
	sm.transitionTo(StateClosed)
	return transition{changed: true, from: from, to: StateClosed, reason: "manual reset"}
}

// errorRateExceeded 判断错误率是否超阈值（调用方需持有写锁）
func (sm *stateManager) errorRateExceeded(cfg Config) bool {
	if cfg.ErrorRateThreshold <= 0 {
		return false
	}

	total := sm.successCount + sm.windowFailures
	if total < cfg.MinRequests {
		return false
	}

	rate := float64(sm.windowFailures) / float64(total)
	return rate >= cfg.ErrorRateThreshold
}

// transitionTo 切换状态（内部方法，需持有写锁）
func (sm *stateManager) transitionTo(newState State) {
	sm.state = newState

	switch newState {
	case StateClosed:
		// 进入 Closed 时计数器全部清零
		sm.failureCount = 0
		sm.successCount = 0
		sm.windowFailures = 0
		sm.halfOpenTrials = 0
	case StateHalfOpen:
		// 进入 HalfOpen 时重置试探名额
		sm.halfOpenTrials = 0
	}
}
