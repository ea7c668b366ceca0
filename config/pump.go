package config

import (
	"errors"
	"time"
)

// PumpConfig I/O 泵配置
type PumpConfig struct {
	// Interval 节拍间隔
	// 默认值: 1ms
	Interval Duration `json:"interval"`

	// Workers 每个节拍并行处理管理器的协程数
	// 默认值: 1
	Workers int `json:"workers"`
}

// DefaultPumpConfig 返回默认 I/O 泵配置
func DefaultPumpConfig() PumpConfig {
	return PumpConfig{
		Interval: Duration(time.Millisecond),
		Workers:  1,
	}
}

// Validate 验证 I/O 泵配置
func (c *PumpConfig) Validate() error {
	if c.Interval <= 0 {
		return errors.New("pump interval must be positive")
	}
	if c.Workers <= 0 {
		return errors.New("pump workers must be positive")
	}
	return nil
}

// LinkConfig 模拟链路配置
//
// 仅用于 netsim 链路（测试、压测命令）。
type LinkConfig struct {
	// Rate 每秒允许发送的数据报数，0 表示不限制
	Rate float64 `json:"rate"`

	// Burst 突发上限
	// 默认值: 64
	Burst int `json:"burst"`

	// LossRate 随机丢包率 [0,1)
	LossRate float64 `json:"loss_rate"`

	// Delay 单向传播时延，0 表示同步投递
	Delay Duration `json:"delay"`

	// QueueSize 异步投递队列长度
	// 默认值: 4096
	QueueSize int `json:"queue_size"`
}

// DefaultLinkConfig 返回默认链路配置
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		Burst:     64,
		QueueSize: 4096,
	}
}

// Validate 验证链路配置
func (c *LinkConfig) Validate() error {
	if c.Rate < 0 {
		return errors.New("link rate must not be negative")
	}
	if c.Rate > 0 && c.Burst <= 0 {
		return errors.New("link burst must be positive when rate is limited")
	}
	if c.LossRate < 0 || c.LossRate >= 1 {
		return errors.New("link loss_rate must be in [0,1)")
	}
	if c.Delay < 0 {
		return errors.New("link delay must not be negative")
	}
	if c.QueueSize <= 0 {
		return errors.New("link queue_size must be positive")
	}
	return nil
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否注册 Prometheus 采集器
	// 默认值: true
	Enabled bool `json:"enabled"`

	// Namespace 指标命名空间
	// 默认值: genet
	Namespace string `json:"namespace"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "genet",
	}
}

// Validate 验证指标配置
func (c *MetricsConfig) Validate() error {
	if c.Enabled && c.Namespace == "" {
		return errors.New("metrics namespace must not be empty")
	}
	return nil
}
