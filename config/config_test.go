package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewConfig 测试创建默认配置
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, AlgorithmCubic, cfg.Congestion.Algorithm)
	assert.Equal(t, 10.0, cfg.Congestion.InitialCwnd)
	assert.Equal(t, 2.0, cfg.Congestion.MinCwnd)
	assert.Equal(t, 0.2, cfg.Congestion.Beta)
	assert.Equal(t, 0.05, cfg.Congestion.BrakeThreshold)
	assert.Equal(t, 10, cfg.Congestion.CubicThreshold)
	assert.Equal(t, 16, cfg.Stream.Window)

	t.Log("✅ NewConfig 测试通过")
}

// TestTransmissionConfig 测试传输配置
func TestTransmissionConfig(t *testing.T) {
	t.Run("FirstDataCapacity", func(t *testing.T) {
		cfg := DefaultTransmissionConfig()
		assert.Equal(t, cfg.GeneSize-HeaderSize, cfg.FirstDataCapacity())
	})

	t.Run("GeneSizeTooSmall", func(t *testing.T) {
		cfg := DefaultTransmissionConfig()
		cfg.GeneSize = HeaderSize
		assert.Error(t, cfg.Validate())
	})

	t.Run("InstantAckRange", func(t *testing.T) {
		cfg := DefaultTransmissionConfig()
		cfg.InstantAckMaxGenes = 4
		assert.Error(t, cfg.Validate())
	})
}

// TestCongestionConfig 测试拥塞控制配置
func TestCongestionConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *CongestionConfig)
	}{
		{"UnknownAlgorithm", func(c *CongestionConfig) { c.Algorithm = "bbr" }},
		{"MaxBelowMin", func(c *CongestionConfig) { c.MaxCwnd = 1; c.MinCwnd = 2 }},
		{"InitialOutOfRange", func(c *CongestionConfig) { c.InitialCwnd = 1 }},
		{"BetaZero", func(c *CongestionConfig) { c.Beta = 0 }},
		{"BrakeThresholdOne", func(c *CongestionConfig) { c.BrakeThreshold = 1 }},
		{"EtaInverted", func(c *CongestionConfig) { c.HystartEtaMax = Duration(time.Millisecond) }},
		{"BoostBelowOne", func(c *CongestionConfig) { c.BoostFactor = 0.5 }},
		{"RtoInverted", func(c *CongestionConfig) { c.MaxRto = Duration(time.Millisecond) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCongestionConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// TestFromJSON 测试 JSON 加载
func TestFromJSON(t *testing.T) {
	data := []byte(`{
		"congestion": {"algorithm": "none", "min_rto": "50ms"},
		"stream": {"window": 32, "max_receive_stream_delay": "10ms"}
	}`)

	cfg, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, AlgorithmNone, cfg.Congestion.Algorithm)
	assert.Equal(t, 50*time.Millisecond, cfg.Congestion.MinRto.Duration())
	assert.Equal(t, 32, cfg.Stream.Window)
	assert.Equal(t, 10*time.Millisecond, cfg.Stream.MaxReceiveStreamDelay.Duration())
	// 未出现的字段保留默认值
	assert.Equal(t, 1200, cfg.Transmission.GeneSize)
	assert.NoError(t, cfg.Validate())
}

// TestFromJSON_Invalid 测试非法 JSON
func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON([]byte(`{"pump": {"interval": "soon"}}`))
	assert.Error(t, err)
}

// TestLoadFile 测试从文件加载
func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genet.json")

	cfg := NewConfig()
	cfg.Transmission.GeneSize = 900
	data, err := ToJSON(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 900, loaded.Transmission.GeneSize)
	assert.Equal(t, cfg.Congestion.MinRto, loaded.Congestion.MinRto)

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

// TestApplyPreset 测试预设
func TestApplyPreset(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, ApplyPreset(cfg, "lan"))
	assert.Equal(t, 64, cfg.Stream.Window)
	assert.NoError(t, cfg.Validate())

	cfg = NewConfig()
	require.NoError(t, ApplyPreset(cfg, "diagnostic"))
	assert.Equal(t, AlgorithmNone, cfg.Congestion.Algorithm)

	assert.Error(t, ApplyPreset(cfg, "moon"))
	assert.Error(t, ApplyPreset(nil, "lan"))
}

// TestValidateAndFix 测试自动修复
func TestValidateAndFix(t *testing.T) {
	cfg := NewConfig()
	cfg.Congestion.MinCwnd = 100
	cfg.Congestion.MaxCwnd = 4
	cfg.Congestion.InitialCwnd = 1000
	cfg.Pump.Interval = 0
	cfg.Stream.MaxReceiveStreamDelay = 0

	fixed, err := ValidateAndFix(cfg)
	require.NoError(t, err)
	assert.Equal(t, 4.0, fixed.Congestion.MinCwnd)
	assert.Equal(t, 100.0, fixed.Congestion.MaxCwnd)
	assert.Equal(t, 100.0, fixed.Congestion.InitialCwnd)
	assert.Equal(t, DefaultPumpConfig().Interval, fixed.Pump.Interval)
	assert.Equal(t, fixed.Stream.InitialReceiveStreamDelay, fixed.Stream.MaxReceiveStreamDelay)
}

// TestDurations 测试时间配置
func TestDurations(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1500us"`)))
	assert.Equal(t, int64(1500), d.Microseconds())

	require.NoError(t, d.UnmarshalJSON([]byte(`2000000`)))
	assert.Equal(t, 2*time.Millisecond, d.Duration())

	out, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2ms"`, string(out))
}

// TestCloneConfig 测试克隆
func TestCloneConfig(t *testing.T) {
	cfg := NewConfig()
	cloned := CloneConfig(cfg)
	cloned.Stream.Window = 99
	assert.Equal(t, 16, cfg.Stream.Window)
	assert.Nil(t, CloneConfig(nil))
}
