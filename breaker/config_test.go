package breaker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig 默认配置合法
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.RecoveryTimeout)
	assert.Equal(t, 3, cfg.HalfOpenTrials)
	assert.Equal(t, 1000, cfg.WindowCapacity)
	assert.Zero(t, cfg.ErrorRateThreshold)
}

// TestConfig_Validate 配置校验
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"FailureThreshold 为零", func(c *Config) { c.FailureThreshold = 0 }, "FailureThreshold"},
		{"RecoveryTimeout 为负", func(c *Config) { c.RecoveryTimeout = -time.Second }, "RecoveryTimeout"},
		{"HalfOpenTrials 为零", func(c *Config) { c.HalfOpenTrials = 0 }, "HalfOpenTrials"},
		{"LatencyThreshold 为负", func(c *Config) { c.LatencyThreshold = Duration(-time.Second) }, "LatencyThreshold"},
		{"ErrorRateThreshold 超出范围", func(c *Config) { c.ErrorRateThreshold = 1.2 }, "ErrorRateThreshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

// TestConfig_Merge 只覆盖已设置的字段
func TestConfig_Merge(t *testing.T) {
	base := DefaultConfig()
	merged := base.Merge(Config{
		FailureThreshold: 10,
		LatencyThreshold: Duration(200 * time.Millisecond),
	})

	assert.Equal(t, 10, merged.FailureThreshold)
	require.NotNil(t, merged.LatencyThreshold)
	assert.Equal(t, 200*time.Millisecond, *merged.LatencyThreshold)
	// 未覆盖的字段保留默认值
	assert.Equal(t, base.RecoveryTimeout, merged.RecoveryTimeout)
	assert.Equal(t, base.HalfOpenTrials, merged.HalfOpenTrials)
}

// TestConfig_Merge_ExplicitZeroLatency 显式置零不会被默认值覆盖
func TestConfig_Merge_ExplicitZeroLatency(t *testing.T) {
	merged := DefaultConfig().Merge(Config{LatencyThreshold: Duration(0)})

	require.NotNil(t, merged.LatencyThreshold)
	assert.Equal(t, time.Duration(0), *merged.LatencyThreshold)

	// 未设置时仍取默认值
	merged = DefaultConfig().Merge(Config{})
	require.NotNil(t, merged.LatencyThreshold)
	assert.Equal(t, time.Second, *merged.LatencyThreshold)
}

// TestLoadConfig 从 YAML 文件加载
func TestLoadConfig(t *testing.T) {
	t.Run("正常加载", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "breaker.yaml")
		content := []byte(`
failure_threshold: 7
recovery_timeout: 10s
latency_threshold: 250ms
error_rate_threshold: 0.6
`)
		require.NoError(t, os.WriteFile(path, content, 0o644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 7, cfg.FailureThreshold)
		assert.Equal(t, 10*time.Second, cfg.RecoveryTimeout)
		require.NotNil(t, cfg.LatencyThreshold)
		assert.Equal(t, 250*time.Millisecond, *cfg.LatencyThreshold)
		assert.Equal(t, 0.6, cfg.ErrorRateThreshold)
		// 未出现在文件中的字段使用默认值
		assert.Equal(t, DefaultConfig().HalfOpenTrials, cfg.HalfOpenTrials)
	})

	t.Run("文件不存在", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("非法取值", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "breaker.yaml")
		require.NoError(t, os.WriteFile(path, []byte("error_rate_threshold: 2.0\n"), 0o644))

		_, err := LoadConfig(path)
		require.Error(t, err)

		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}
