package genet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/internal/core/eventbus"
	"github.com/dep2p/go-genet/internal/core/metrics"
	"github.com/dep2p/go-genet/internal/core/pump"
	"github.com/dep2p/go-genet/internal/core/transmission"
	"github.com/dep2p/go-genet/pkg/interfaces"
	"github.com/dep2p/go-genet/pkg/lib/log"
)

var logger = log.Logger("genet")

const (
	startTimeout = 15 * time.Second
	stopTimeout  = 15 * time.Second
)

// ════════════════════════════════════════════════════════════════════════════
//                              Engine
// ════════════════════════════════════════════════════════════════════════════

// Engine 传输引擎
//
// 持有一个 Fx 应用：配置、事件总线、传输管理器工厂、I/O 泵、指标采集器。
// 每个连接通过 Open 得到一个 Session，由 I/O 泵统一驱动。
type Engine struct {
	cfg *config.Config
	app *fx.App

	bus       *eventbus.Bus
	emitters  emitters
	factory   *transmission.Factory
	pump      *pump.Pump
	collector *metrics.Collector
	bandwidth *metrics.BandwidthCounter

	mu    sync.Mutex
	state EngineState
}

// New 创建引擎（未启动）
func New(opts ...Option) (*Engine, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	e := &Engine{cfg: o.config}
	app, err := buildFxApp(o, e)
	if err != nil {
		return nil, err
	}
	e.app = app

	if err := e.emitters.setup(e.bus); err != nil {
		return nil, fmt.Errorf("create emitters: %w", err)
	}
	e.pump.OnEvict(func(p pump.Processor) {
		if m, ok := p.(*transmission.Manager); ok {
			e.emitters.sessionClosed(m.Conn().ID(), "inactive")
		}
	})
	return e, nil
}

// Start 快捷启动函数，等价于 New() + Start()
func Start(ctx context.Context, opts ...Option) (*Engine, error) {
	e, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := e.Start(ctx); err != nil {
		return nil, multierr.Append(fmt.Errorf("start engine: %w", err), e.Close())
	}
	return e, nil
}

// Start 启动 Fx 应用与 I/O 泵
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateClosed:
		return ErrEngineClosed
	case StateRunning:
		return ErrAlreadyStarted
	case StateStopped:
		// 泵与工厂在停止时已关闭，不可复用
		return ErrEngineClosed
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := e.app.Start(startCtx); err != nil {
		logger.Error("引擎启动失败", "error", err)
		return fmt.Errorf("start fx app: %w", err)
	}
	e.state = StateRunning
	logger.Info("引擎已启动", "algorithm", e.cfg.Congestion.Algorithm)
	return nil
}

// Stop 停止 Fx 应用，关闭全部会话
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateClosed {
		return ErrEngineClosed
	}
	if e.state != StateRunning {
		return ErrNotStarted
	}
	e.state = StateStopped
	e.closeSessions()
	if err := e.app.Stop(ctx); err != nil {
		logger.Error("停止引擎失败", "error", err)
		return fmt.Errorf("stop fx app: %w", err)
	}
	logger.Info("引擎已停止")
	return nil
}

// Close 关闭引擎并释放所有资源，不可再启动
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.state
	if prev == StateClosed {
		return nil
	}
	e.state = StateClosed

	e.closeSessions()

	var err error
	if prev == StateRunning {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		err = multierr.Append(err, e.app.Stop(ctx))
		cancel()
	}
	// 未启动或已停止时 OnStop 不会再执行，这里直接关闭组件（均幂等）
	err = multierr.Append(err, e.pump.Stop())
	err = multierr.Append(err, e.factory.Close())
	err = multierr.Append(err, e.emitters.close())
	err = multierr.Append(err, e.bus.Close())

	logger.Info("引擎已关闭")
	return err
}

// closeSessions 为仍打开的会话发出关闭事件，会话本身由工厂关闭
func (e *Engine) closeSessions() {
	for _, m := range e.factory.Managers() {
		e.emitters.sessionClosed(m.Conn().ID(), "engine closed")
	}
}

// State 引擎状态
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Config 引擎配置
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// ════════════════════════════════════════════════════════════════════════════
//                              会话
// ════════════════════════════════════════════════════════════════════════════

// Session 每连接会话
//
// 内嵌传输管理器；HandleDatagram 额外记录接收字节数，发送端已被计量包装。
type Session struct {
	*transmission.Manager

	receive func([]byte) error
}

// HandleDatagram 处理一个收到的数据报
func (s *Session) HandleDatagram(b []byte) error {
	return s.receive(b)
}

// Open 为连接创建会话并交给 I/O 泵驱动
func (e *Engine) Open(conn interfaces.Connection, sender interfaces.NetSender, role Role) (*Session, error) {
	if e.State() != StateRunning {
		return nil, ErrNotStarted
	}

	metered := metrics.NewMeteredSender(sender, e.bandwidth, conn.ID())
	m, err := e.factory.Open(conn, metered, role)
	if err != nil {
		return nil, err
	}
	connID := conn.ID()
	m.SetFinishHook(func(st *transmission.SendTransmission) {
		e.emitters.transmissionFinished(connID, st)
	})
	if err := e.pump.Register(m); err != nil {
		return nil, multierr.Append(fmt.Errorf("register with pump: %w", err), m.Close())
	}

	e.emitters.sessionOpened(connID, role)
	logger.Debug("会话已打开", "conn", connID, "role", role)
	return &Session{
		Manager: m,
		receive: metrics.MeterReceiver(m.HandleDatagram, e.bandwidth, conn.ID()),
	}, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              观测
// ════════════════════════════════════════════════════════════════════════════

// Stats 引擎统计
type Stats struct {
	Sessions  []transmission.Stats
	Pump      pump.Stats
	Bandwidth metrics.Stats
}

// Stats 返回全部会话与泵的统计快照
func (e *Engine) Stats() Stats {
	managers := e.factory.Managers()
	out := Stats{
		Sessions:  make([]transmission.Stats, 0, len(managers)),
		Pump:      e.pump.Stats(),
		Bandwidth: e.bandwidth.GetBandwidthTotals(),
	}
	for _, m := range managers {
		out.Sessions = append(out.Sessions, m.Stats())
	}
	return out
}

// Gatherer 返回指标采集器自带的注册表（未使用 WithRegisterer 时有效）
func (e *Engine) Gatherer() prometheus.Gatherer {
	return e.collector.Registry()
}

// Bandwidth 返回带宽统计
func (e *Engine) Bandwidth() metrics.Reporter {
	return e.bandwidth
}

// Subscribe 订阅引擎事件，eventType 取 new(EvtSessionOpened) 等
func (e *Engine) Subscribe(eventType interface{}, opts ...eventbus.SubscriptionOpt) (*eventbus.Subscription, error) {
	return e.bus.Subscribe(eventType, opts...)
}

// ════════════════════════════════════════════════════════════════════════════
//                              事件
// ════════════════════════════════════════════════════════════════════════════

// emitters 引擎持有的事件发射器
type emitters struct {
	opened   *eventbus.Emitter
	closed   *eventbus.Emitter
	finished *eventbus.Emitter
}

func (em *emitters) setup(bus *eventbus.Bus) error {
	var err error
	if em.opened, err = bus.Emitter(new(EvtSessionOpened)); err != nil {
		return err
	}
	if em.closed, err = bus.Emitter(new(EvtSessionClosed)); err != nil {
		return err
	}
	em.finished, err = bus.Emitter(new(EvtTransmissionFinished))
	return err
}

func (em *emitters) sessionOpened(conn string, role Role) {
	if err := em.opened.Emit(EvtSessionOpened{Conn: conn, Role: role.String()}); err != nil {
		logger.Debug("发射事件失败", "event", "session_opened", "error", err)
	}
}

func (em *emitters) sessionClosed(conn, reason string) {
	if err := em.closed.Emit(EvtSessionClosed{Conn: conn, Reason: reason}); err != nil {
		logger.Debug("发射事件失败", "event", "session_closed", "error", err)
	}
}

func (em *emitters) transmissionFinished(conn string, st *transmission.SendTransmission) {
	evt := EvtTransmissionFinished{
		Conn:         conn,
		Transmission: st.ID(),
		Mode:         st.Mode(),
		Outcome:      st.Outcome(),
	}
	if err := em.finished.Emit(evt); err != nil {
		logger.Debug("发射事件失败", "event", "transmission_finished", "error", err)
	}
}

func (em *emitters) close() error {
	return multierr.Combine(em.opened.Close(), em.closed.Close(), em.finished.Close())
}
