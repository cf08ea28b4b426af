package breaker

import "go.uber.org/zap"

// Option 构造选项
type Option func(*options)

type options struct {
	name           string
	logger         *zap.Logger
	windowCapacity int
	fallback       Fallback
}

// WithName 设置熔断器名称（用于日志、事件和指标标签）
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger 设置 Logger，nil 时不输出日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithWindowCapacity 设置延迟窗口容量（覆盖 Config.WindowCapacity）
func WithWindowCapacity(capacity int) Option {
	return func(o *options) {
		if capacity > 0 {
			o.windowCapacity = capacity
		}
	}
}

// WithFallback 设置降级逻辑，在请求被拒绝或调用失败时执行
func WithFallback(fb Fallback) Option {
	return func(o *options) {
		o.fallback = fb
	}
}
