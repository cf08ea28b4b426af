// Package recovery 提供熔断恢复控制：退避探测循环与健康检查
package recovery

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy 退避策略接口
type BackoffStrategy interface {
	// Next 返回第 retryCount 次重试的延迟时间（retryCount 从 0 开始）
	Next(retryCount int) time.Duration
}

// BackoffOption 退避策略选项
type BackoffOption func(*backoffConfig)

// backoffConfig 退避策略配置
type backoffConfig struct {
	multiplier float64       // 指数倍数（默认 2.0）
	maxDelay   time.Duration // 最大延迟（默认 300s）
	jitter     float64       // 抖动比例（默认 0.1，即 ±10%）
}

func defaultBackoffConfig() *backoffConfig {
	return &backoffConfig{
		multiplier: 2.0,
		maxDelay:   300 * time.Second,
		jitter:     0.1,
	}
}

// WithMultiplier 设置指数倍数
func WithMultiplier(m float64) BackoffOption {
	return func(c *backoffConfig) {
		if m > 0 {
			c.multiplier = m
		}
	}
}

// WithMaxDelay 设置最大延迟
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(c *backoffConfig) {
		if d > 0 {
			c.maxDelay = d
		}
	}
}

// WithJitter 设置抖动比例（0.0 - 1.0），0 表示不抖动
func WithJitter(ratio float64) BackoffOption {
	return func(c *backoffConfig) {
		if ratio >= 0 && ratio <= 1.0 {
			c.jitter = ratio
		}
	}
}

// exponentialBackoff 指数退避策略
type exponentialBackoff struct {
	base   time.Duration
	config *backoffConfig
}

// ExponentialBackoff 创建指数退避策略
// delay = min(base * multiplier^retryCount, maxDelay) ± jitter
// 例如：base=1s, multiplier=2.0
//
//	retry 0: 1s
//	retry 1: 2s
//	retry 2: 4s
//	retry 3: 8s
func ExponentialBackoff(base time.Duration, opts ...BackoffOption) BackoffStrategy {
	config := defaultBackoffConfig()
	for _, opt := range opts {
		opt(config)
	}

	return &exponentialBackoff{
		base:   base,
		config: config,
	}
}

// Next 实现 BackoffStrategy 接口
func (b *exponentialBackoff) Next(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	delay := float64(b.base) * math.Pow(b.config.multiplier, float64(retryCount))

	if delay > float64(b.config.maxDelay) {
		delay = float64(b.config.maxDelay)
	}

	if b.config.jitter > 0 {
		delay = applyJitter(delay, b.config.jitter)
	}

	return time.Duration(delay)
}

// constantBackoff 固定退避策略
type constantBackoff struct {
	delay  time.Duration
	config *backoffConfig
}

// ConstantBackoff 创建固定退避策略（每次探测间隔相同）
func ConstantBackoff(delay time.Duration, opts ...BackoffOption) BackoffStrategy {
	config := defaultBackoffConfig()
	config.jitter = 0
	for _, opt := range opts {
		opt(config)
	}

	return &constantBackoff{
		delay:  delay,
		config: config,
	}
}

// Next 实现 BackoffStrategy 接口
func (b *constantBackoff) Next(retryCount int) time.Duration {
	delay := float64(b.delay)

	if b.config.jitter > 0 {
		delay = applyJitter(delay, b.config.jitter)
	}

	return time.Duration(delay)
}

// applyJitter 在 [delay*(1-jitter), delay*(1+jitter)] 范围内随机取值
func applyJitter(delay float64, jitter float64) float64 {
	delta := delay * jitter
	offset := (rand.Float64()*2 - 1) * delta

	result := delay + offset
	if result < 0 {
		return 0
	}
	return result
}
