package breaker

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config 熔断器配置（构造后不可变）
type Config struct {
	// FailureThreshold 连续失败次数阈值，达到后 Closed -> Open
	FailureThreshold int `mapstructure:"failure_threshold"`

	// RecoveryTimeout Open 状态持续时间，超时后允许探测请求
	RecoveryTimeout time.Duration `mapstructure:"recovery_timeout"`

	// HalfOpenTrials 半开状态允许的试探请求数
	HalfOpenTrials int `mapstructure:"half_open_trials"`

	// LatencyThreshold 延迟阈值，调用耗时或窗口 P99 超过该值记为失败。
	// nil 使用默认值，Duration(0) 显式关闭延迟判定
	LatencyThreshold *time.Duration `mapstructure:"latency_threshold"`

	// ErrorRateThreshold 错误率阈值 (0.0-1.0)，可选的次级熔断条件，0 表示禁用
	ErrorRateThreshold float64 `mapstructure:"error_rate_threshold"`

	// MinRequests 错误率判断的最小请求数（避免小流量误判）
	MinRequests int `mapstructure:"min_requests"`

	// WindowCapacity 延迟窗口容量
	WindowCapacity int `mapstructure:"window_capacity"`

	// EventBusBuffer 事件总线缓冲区大小
	EventBusBuffer int `mapstructure:"event_bus_buffer"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		FailureThreshold:   5,
		RecoveryTimeout:    30 * time.Second,
		HalfOpenTrials:     3,
		LatencyThreshold:   Duration(time.Second),
		ErrorRateThreshold: 0, // 默认禁用
		MinRequests:        20,
		WindowCapacity:     1000,
		EventBusBuffer:     500,
	}
}

// Duration 返回时长指针，用于设置 Config.LatencyThreshold
func Duration(d time.Duration) *time.Duration {
	return &d
}

// latencyThreshold 返回生效的延迟阈值，nil 视为 0（关闭）
func (c Config) latencyThreshold() time.Duration {
	if c.LatencyThreshold == nil {
		return 0
	}
	return *c.LatencyThreshold
}

// Merge 合并配置（override 覆盖默认值，只覆盖已设置的字段）
func (c Config) Merge(override Config) Config {
	result := c

	if override.FailureThreshold > 0 {
		result.FailureThreshold = override.FailureThreshold
	}
	if override.RecoveryTimeout > 0 {
		result.RecoveryTimeout = override.RecoveryTimeout
	}
	if override.HalfOpenTrials > 0 {
		result.HalfOpenTrials = override.HalfOpenTrials
	}
	if override.LatencyThreshold != nil {
		result.LatencyThreshold = override.LatencyThreshold
	}
	if override.ErrorRateThreshold > 0 {
		result.ErrorRateThreshold = override.ErrorRateThreshold
	}
	if override.MinRequests > 0 {
		result.MinRequests = override.MinRequests
	}
	if override.WindowCapacity > 0 {
		result.WindowCapacity = override.WindowCapacity
	}
	if override.EventBusBuffer > 0 {
		result.EventBusBuffer = override.EventBusBuffer
	}

	return result
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.FailureThreshold <= 0 {
		return &ValidationError{Field: "FailureThreshold", Message: "must be > 0"}
	}

	if c.RecoveryTimeout <= 0 {
		return &ValidationError{Field: "RecoveryTimeout", Message: "must be > 0"}
	}

	if c.HalfOpenTrials <= 0 {
		return &ValidationError{Field: "HalfOpenTrials", Message: "must be > 0"}
	}

	if c.LatencyThreshold != nil && *c.LatencyThreshold < 0 {
		return &ValidationError{Field: "LatencyThreshold", Message: "must be >= 0"}
	}

	if c.ErrorRateThreshold < 0 || c.ErrorRateThreshold > 1 {
		return &ValidationError{Field: "ErrorRateThreshold", Message: "must be between 0.0 and 1.0"}
	}

	if c.MinRequests < 0 {
		return &ValidationError{Field: "MinRequests", Message: "must be >= 0"}
	}

	if c.WindowCapacity < 0 {
		return &ValidationError{Field: "WindowCapacity", Message: "must be >= 0"}
	}

	return nil
}

// LoadConfig 从配置文件加载配置（未设置的字段使用默认值）
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("breaker: read config: %w", err)
	}

	var override Config
	if err := v.Unmarshal(&override); err != nil {
		return Config{}, fmt.Errorf("breaker: unmarshal config: %w", err)
	}

	cfg := DefaultConfig().Merge(override)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ValidationError 配置验证错误
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "breaker config validation failed for field '" + e.Field + "': " + e.Message
}
