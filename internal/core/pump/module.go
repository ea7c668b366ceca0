package pump

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-genet/config"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config
	Clock  clock.Clock `optional:"true"`
}

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Pump *Pump
}

// ProvidePump 提供 I/O 泵
func ProvidePump(input ModuleInput) ModuleOutput {
	return ModuleOutput{
		Pump: New(input.Config.Pump, input.Clock),
	}
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("pump",
		fx.Provide(ProvidePump),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In

	LC   fx.Lifecycle
	Pump *Pump
}

func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return input.Pump.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return input.Pump.Stop()
		},
	})
}
