// Package latency 提供滚动窗口延迟统计
//
// 设计理念：
//   - 独立包，不依赖 breaker 组件，可单独测试
//   - 固定容量 FIFO 窗口，超出容量时淘汰最旧样本
//   - 百分位基于排序副本计算，窗口本身保持插入顺序
package latency

import (
	"sort"
	"sync"
	"time"
)

// DefaultWindowCapacity 默认窗口容量
const DefaultWindowCapacity = 1000

// Statistics is a point-in-time summary of the current window.
type Statistics struct {
	Count int
	Mean  time.Duration
	Min   time.Duration
	Max   time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
}

// Monitor keeps a bounded, insertion-ordered history of operation
// latencies and computes percentile statistics on demand. It holds no
// breaker state: callers compare the breach signal themselves.
type Monitor struct {
	threshold time.Duration
	capacity  int

	// ring buffer: samples[head] is the oldest sample
	samples []time.Duration
	head    int
	size    int

	mu sync.RWMutex
}

// NewMonitor creates a monitor with the given window capacity.
// A non-positive capacity falls back to DefaultWindowCapacity.
// threshold is the P99 level above which Record reports a breach;
// zero disables the breach signal.
func NewMonitor(capacity int, threshold time.Duration) *Monitor {
	if capacity <= 0 {
		capacity = DefaultWindowCapacity
	}
	return &Monitor{
		threshold: threshold,
		capacity:  capacity,
		samples:   make([]time.Duration, capacity),
	}
}

// Record appends a sample, evicting the oldest one when the window is
// full, and reports whether the recomputed P99 exceeds the threshold.
// Callers are expected to reject non-positive durations before calling.
func (m *Monitor) Record(sample time.Duration) bool {
	m.mu.Lock()
	if m.size < m.capacity {
		m.samples[(m.head+m.size)%m.capacity] = sample
		m.size++
	} else {
		m.samples[m.head] = sample
		m.head = (m.head + 1) % m.capacity
	}
	m.mu.Unlock()

	if m.threshold <= 0 {
		return false
	}
	return m.Percentile(0.99) > m.threshold
}

// Percentile returns the p-th percentile (0.0-1.0) of the current
// window, selecting index floor((n-1)*p) of a sorted copy.
// An empty window returns zero.
func (m *Monitor) Percentile(p float64) time.Duration {
	sorted := m.sortedSnapshot()
	return percentileOf(sorted, p)
}

// Statistics computes count, mean, min, max and the P50/P95/P99
// percentiles over the current window.
func (m *Monitor) Statistics() Statistics {
	sorted := m.sortedSnapshot()
	if len(sorted) == 0 {
		return Statistics{}
	}

	var total time.Duration
	for _, s := range sorted {
		total += s
	}

	return Statistics{
		Count: len(sorted),
		Mean:  total / time.Duration(len(sorted)),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		P50:   percentileOf(sorted, 0.50),
		P95:   percentileOf(sorted, 0.95),
		P99:   percentileOf(sorted, 0.99),
	}
}

// Count returns the number of samples currently in the window.
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Threshold returns the configured P99 breach threshold.
func (m *Monitor) Threshold() time.Duration {
	return m.threshold
}

// Reset discards all samples.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.head = 0
	m.size = 0
}

// sortedSnapshot copies the window under the read lock and sorts the
// copy outside it, so concurrent Record calls are not blocked by the
// O(n log n) sort.
func (m *Monitor) sortedSnapshot() []time.Duration {
	m.mu.RLock()
	snapshot := make([]time.Duration, m.size)
	for i := 0; i < m.size; i++ {
		snapshot[i] = m.samples[(m.head+i)%m.capacity]
	}
	m.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i] < snapshot[j] })
	return snapshot
}

// percentileOf selects index floor((n-1)*p) from an already-sorted slice.
func percentileOf(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return sorted[int(float64(n-1)*p)]
}
