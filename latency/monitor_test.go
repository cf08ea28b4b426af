package latency

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewMonitor 测试创建 Monitor
func TestNewMonitor(t *testing.T) {
	t.Run("使用指定容量", func(t *testing.T) {
		m := NewMonitor(100, time.Second)
		assert.Equal(t, 100, m.capacity)
		assert.Equal(t, time.Second, m.Threshold())
	})

	t.Run("非法容量回退到默认值", func(t *testing.T) {
		m := NewMonitor(0, 0)
		assert.Equal(t, DefaultWindowCapacity, m.capacity)

		m = NewMonitor(-5, 0)
		assert.Equal(t, DefaultWindowCapacity, m.capacity)
	})
}

// TestMonitor_Percentile_P99 验证 1..1000ms 的 P99 为 990ms
func TestMonitor_Percentile_P99(t *testing.T) {
	m := NewMonitor(1000, 0)
	for i := 1; i <= 1000; i++ {
		m.Record(time.Duration(i) * time.Millisecond)
	}

	// index floor(999*0.99)=989, zero-indexed value 990ms
	assert.Equal(t, 990*time.Millisecond, m.Percentile(0.99))
	assert.Equal(t, 500*time.Millisecond, m.Percentile(0.50))
	assert.Equal(t, 1*time.Millisecond, m.Percentile(0))
	assert.Equal(t, 1000*time.Millisecond, m.Percentile(1))
}

// TestMonitor_Percentile_Empty 空窗口返回零值
func TestMonitor_Percentile_Empty(t *testing.T) {
	m := NewMonitor(10, 0)
	assert.Equal(t, time.Duration(0), m.Percentile(0.99))
	assert.Equal(t, Statistics{}, m.Statistics())
}

// TestMonitor_Percentile_SmallWindow 窗口小于百分位索引时仍返回有效估计
func TestMonitor_Percentile_SmallWindow(t *testing.T) {
	m := NewMonitor(10, 0)
	m.Record(5 * time.Millisecond)

	assert.Equal(t, 5*time.Millisecond, m.Percentile(0.99))

	// 两个样本时 floor((2-1)*0.99)=0，P99 取较小者
	m.Record(10 * time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, m.Percentile(0.99))
	assert.Equal(t, 10*time.Millisecond, m.Percentile(1))
}

// TestMonitor_Eviction 插入 1500 个样本后只保留最近 1000 个
func TestMonitor_Eviction(t *testing.T) {
	m := NewMonitor(1000, 0)
	for i := 1; i <= 1500; i++ {
		m.Record(time.Duration(i) * time.Millisecond)
	}

	stats := m.Statistics()
	require.Equal(t, 1000, stats.Count)
	// 最旧的 500 个被淘汰
	assert.Equal(t, 501*time.Millisecond, stats.Min)
	assert.Equal(t, 1500*time.Millisecond, stats.Max)
}

// TestMonitor_Statistics 验证统计值
func TestMonitor_Statistics(t *testing.T) {
	m := NewMonitor(10, 0)
	for _, d := range []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
		40 * time.Millisecond,
	} {
		m.Record(d)
	}

	stats := m.Statistics()
	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 25*time.Millisecond, stats.Mean)
	assert.Equal(t, 10*time.Millisecond, stats.Min)
	assert.Equal(t, 40*time.Millisecond, stats.Max)
	// floor(3*0.5)=1 -> 20ms
	assert.Equal(t, 20*time.Millisecond, stats.P50)
}

// TestMonitor_RecordBreach P99 超过阈值时返回 true
func TestMonitor_RecordBreach(t *testing.T) {
	t.Run("低于阈值", func(t *testing.T) {
		m := NewMonitor(10, 100*time.Millisecond)
		breached := m.Record(50 * time.Millisecond)
		assert.False(t, breached)
	})

	t.Run("超过阈值", func(t *testing.T) {
		m := NewMonitor(10, 100*time.Millisecond)
		breached := m.Record(200 * time.Millisecond)
		assert.True(t, breached)
	})

	t.Run("阈值为零时不触发", func(t *testing.T) {
		m := NewMonitor(10, 0)
		breached := m.Record(time.Hour)
		assert.False(t, breached)
	})
}

// TestMonitor_Reset 重置后窗口为空
func TestMonitor_Reset(t *testing.T) {
	m := NewMonitor(10, 0)
	m.Record(time.Millisecond)
	m.Record(2 * time.Millisecond)
	require.Equal(t, 2, m.Count())

	m.Reset()
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, time.Duration(0), m.Percentile(0.99))
}

// TestMonitor_ConcurrentRecord 并发写入不破坏窗口
func TestMonitor_ConcurrentRecord(t *testing.T) {
	m := NewMonitor(100, 0)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 1; i <= 100; i++ {
				m.Record(time.Duration(i) * time.Millisecond)
				m.Percentile(0.99)
			}
		}()
	}
	wg.Wait()

	stats := m.Statistics()
	assert.Equal(t, 100, stats.Count)
	assert.GreaterOrEqual(t, stats.Max, stats.Min)
}
