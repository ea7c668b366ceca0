package metrics

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/internal/core/pump"
	"github.com/dep2p/go-genet/internal/core/transmission"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config  *config.Config
	Factory *transmission.Factory
	Pump    *pump.Pump  `optional:"true"`
	Clock   clock.Clock `optional:"true"`
}

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Bandwidth *BandwidthCounter
	Collector *Collector
}

// ProvideServices 提供带宽计数器与采集器
func ProvideServices(input ModuleInput) ModuleOutput {
	bw := NewBandwidthCounter(input.Clock)
	c := NewCollector(input.Config.Metrics, input.Factory, bw)
	if input.Pump != nil {
		c.SetPump(input.Pump)
	}
	return ModuleOutput{
		Bandwidth: bw,
		Collector: c,
	}
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In

	LC         fx.Lifecycle
	Config     *config.Config
	Collector  *Collector
	Registerer prometheus.Registerer `optional:"true"`
}

func registerLifecycle(input lifecycleInput) {
	if !input.Config.Metrics.Enabled {
		logger.Debug("指标采集已禁用")
		return
	}
	reg := input.Registerer
	if reg == nil {
		reg = input.Collector.Registry()
	}
	input.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := reg.Register(input.Collector); err != nil {
				return fmt.Errorf("register metrics collector: %w", err)
			}
			logger.Info("指标采集器已注册", "engine", input.Collector.Engine())
			return nil
		},
		OnStop: func(_ context.Context) error {
			reg.Unregister(input.Collector)
			return nil
		},
	})
}
