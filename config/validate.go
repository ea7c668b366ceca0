package config

import (
	"errors"
	"fmt"
)

// ValidateAll 验证整个配置的有效性
func ValidateAll(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}

// ValidateAndFix 验证配置并尝试自动修复常见问题
//
// 可修复的问题：
//   - 最小值大于最大值 -> 交换
//   - 节拍间隔、泵协程数或轮询间隔为零 -> 使用默认值
//   - 初始窗口越界 -> 夹到 [MinCwnd, MaxCwnd]
func ValidateAndFix(c *Config) (*Config, error) {
	if c == nil {
		return NewConfig(), nil
	}

	cc := &c.Congestion
	if cc.MinCwnd > cc.MaxCwnd {
		cc.MinCwnd, cc.MaxCwnd = cc.MaxCwnd, cc.MinCwnd
	}
	if cc.InitialCwnd < cc.MinCwnd {
		cc.InitialCwnd = cc.MinCwnd
	}
	if cc.InitialCwnd > cc.MaxCwnd {
		cc.InitialCwnd = cc.MaxCwnd
	}
	if cc.HystartEtaMin > cc.HystartEtaMax {
		cc.HystartEtaMin, cc.HystartEtaMax = cc.HystartEtaMax, cc.HystartEtaMin
	}
	if cc.MinRto > cc.MaxRto {
		cc.MinRto, cc.MaxRto = cc.MaxRto, cc.MinRto
	}

	if c.Pump.Interval <= 0 {
		c.Pump.Interval = DefaultPumpConfig().Interval
	}
	if c.Pump.Workers <= 0 {
		c.Pump.Workers = DefaultPumpConfig().Workers
	}

	sc := &c.Stream
	if sc.InitialReceiveStreamDelay <= 0 {
		sc.InitialReceiveStreamDelay = DefaultStreamConfig().InitialReceiveStreamDelay
	}
	if sc.MaxReceiveStreamDelay < sc.InitialReceiveStreamDelay {
		sc.MaxReceiveStreamDelay = sc.InitialReceiveStreamDelay
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed after fixes: %w", err)
	}
	return c, nil
}

// MustValidate 验证配置，如果失败则 panic
//
// 仅用于初始化阶段或测试代码。
func MustValidate(c *Config) {
	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("config validation failed: %v", err))
	}
}
