package genet

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/internal/core/eventbus"
	"github.com/dep2p/go-genet/internal/core/metrics"
	"github.com/dep2p/go-genet/internal/core/pump"
	"github.com/dep2p/go-genet/internal/core/transmission"
	"github.com/dep2p/go-genet/pkg/lib/log"
)

var fxLogger = log.Logger("genet/fx")

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 配置与时钟
//  2. eventbus：引擎事件总线
//  3. transmission：传输管理器工厂
//  4. pump：I/O 泵
//  5. metrics：带宽统计与 Prometheus 采集器
func buildFxApp(o *options, e *Engine) (*fx.App, error) {
	if err := config.ApplyPreset(o.config, o.preset); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	modules := []fx.Option{
		fx.Supply(o.config),
	}
	if o.clock != nil {
		modules = append(modules, fx.Provide(func() clock.Clock { return o.clock }))
	}
	if o.registerer != nil {
		modules = append(modules, fx.Provide(func() prometheus.Registerer { return o.registerer }))
	}

	modules = append(modules,
		eventbus.Module(),
		transmission.Module(),
		pump.Module(),
		metrics.Module(),
	)
	modules = append(modules, o.fxOptions...)

	modules = append(modules,
		fx.Populate(&e.bus, &e.factory, &e.pump, &e.collector, &e.bandwidth),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	fxLogger.Debug("Fx 应用构建完成",
		"algorithm", o.config.Congestion.Algorithm,
		"metrics", o.config.Metrics.Enabled)
	return app, nil
}
