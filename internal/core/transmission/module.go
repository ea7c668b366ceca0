package transmission

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/internal/core/bufpool"
	"github.com/dep2p/go-genet/internal/core/gene"
	"github.com/dep2p/go-genet/pkg/interfaces"
)

// ============================================================================
//                              Factory
// ============================================================================

// Factory 为连接创建传输管理器，所有管理器共享缓冲池与时钟
type Factory struct {
	cfg   *config.Config
	clock clock.Clock
	pool  *bufpool.Pool

	mu       sync.Mutex
	managers map[*Manager]struct{}
	closed   bool
}

// NewFactory 创建 Factory
func NewFactory(cfg *config.Config, clk clock.Clock) *Factory {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Factory{
		cfg:      cfg,
		clock:    clk,
		pool:     bufpool.New(cfg.Transmission.GeneSize + gene.DataFrameOverhead),
		managers: make(map[*Manager]struct{}),
	}
}

// Config 返回配置
func (f *Factory) Config() *config.Config {
	return f.cfg
}

// Clock 返回时钟
func (f *Factory) Clock() clock.Clock {
	return f.clock
}

// Pool 返回共享缓冲池
func (f *Factory) Pool() *bufpool.Pool {
	return f.pool
}

// Open 为连接创建管理器
func (f *Factory) Open(conn interfaces.Connection, sender interfaces.NetSender, role Role) (*Manager, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrManagerClosed
	}
	m, err := NewManager(Params{
		Config: f.cfg,
		Conn:   conn,
		Sender: sender,
		Role:   role,
		Clock:  f.clock,
		Pool:   f.pool,
	})
	if err != nil {
		return nil, fmt.Errorf("open manager for %s: %w", conn.ID(), err)
	}
	f.managers[m] = struct{}{}
	return m, nil
}

// Managers 返回仍在运行的管理器
func (f *Factory) Managers() []*Manager {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*Manager, 0, len(f.managers))
	for m := range f.managers {
		if m.Closed() {
			delete(f.managers, m)
			continue
		}
		out = append(out, m)
	}
	return out
}

// Close 关闭全部管理器
func (f *Factory) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	managers := f.managers
	f.managers = make(map[*Manager]struct{})
	f.mu.Unlock()

	var err error
	for m := range managers {
		err = multierr.Append(err, m.Close())
	}
	return err
}

// ============================================================================
//                              Fx 模块
// ============================================================================

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config
	Clock  clock.Clock `optional:"true"`
}

// ModuleOutput 模块输出服务
type ModuleOutput struct {
	fx.Out

	Factory *Factory
}

// ProvideFactory 提供 Factory
func ProvideFactory(input ModuleInput) ModuleOutput {
	return ModuleOutput{
		Factory: NewFactory(input.Config, input.Clock),
	}
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("transmission",
		fx.Provide(ProvideFactory),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In

	LC      fx.Lifecycle
	Factory *Factory
}

func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			logger.Info("传输模块停止")
			return input.Factory.Close()
		},
	})
}
