package genet

import (
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-genet/config"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	config     *config.Config
	preset     string
	clock      clock.Clock
	registerer prometheus.Registerer
	fxOptions  []fx.Option
}

func newOptions() *options {
	return &options{config: config.NewConfig()}
}

// WithConfig 使用完整配置
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		o.config = config.CloneConfig(cfg)
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// WithPreset 应用预设（lan、wan、diagnostic），在其它选项之后生效
func WithPreset(name string) Option {
	return func(o *options) error {
		o.preset = name
		return nil
	}
}

// WithCongestion 选择拥塞控制算法（cubic、none）
func WithCongestion(algorithm string) Option {
	return func(o *options) error {
		switch algorithm {
		case config.AlgorithmCubic, config.AlgorithmNone:
			o.config.Congestion.Algorithm = algorithm
			return nil
		default:
			return fmt.Errorf("unknown congestion algorithm: %s", algorithm)
		}
	}
}

// WithPumpInterval 设置 I/O 泵节拍间隔
func WithPumpInterval(d config.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("pump interval must be positive")
		}
		o.config.Pump.Interval = d
		return nil
	}
}

// WithClock 注入时钟（测试用）
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}

// WithRegisterer 把指标采集器注册到外部 Prometheus 注册表
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithMetrics 启用或禁用指标采集器注册
func WithMetrics(enabled bool) Option {
	return func(o *options) error {
		o.config.Metrics.Enabled = enabled
		return nil
	}
}

// WithFxOptions 追加自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}
