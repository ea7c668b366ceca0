// Package pump 实现驱动传输管理器的 I/O 泵
//
// 泵以固定节拍依次调用每个管理器的 Process、ProcessSend 与 FlushAcks，
// Process 返回 false 的管理器（连接失活）会被自动注销。
package pump

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/pkg/interfaces"
	"github.com/dep2p/go-genet/pkg/lib/log"
)

var logger = log.Logger("core/pump")

// 泵相关错误
var (
	// ErrPumpClosed 泵已停止
	ErrPumpClosed = errors.New("pump closed")

	// ErrAlreadyRegistered 管理器重复注册
	ErrAlreadyRegistered = errors.New("processor already registered")
)

// Processor 被泵驱动的每连接处理器
type Processor interface {
	// Sender 数据报发送端
	Sender() interfaces.NetSender

	// Process 节拍，返回 false 表示应注销
	Process(sender interfaces.NetSender, elapsed time.Duration) bool

	// ProcessSend 发送到期与新基因
	ProcessSend(sender interfaces.NetSender) int

	// FlushAcks 发送批量确认
	FlushAcks() int
}

// ============================================================================
//                              Pump
// ============================================================================

// Pump I/O 泵
type Pump struct {
	cfg   config.PumpConfig
	clock clock.Clock

	mu      sync.Mutex
	members map[Processor]struct{}
	last    time.Time
	onEvict func(Processor)

	running atomic.Bool
	closed  atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	ticks   atomic.Uint64
	sent    atomic.Uint64
	acks    atomic.Uint64
	evicted atomic.Uint64
}

// New 创建泵，clk 为 nil 时使用真实时钟
func New(cfg config.PumpConfig, clk clock.Clock) *Pump {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Pump{
		cfg:     cfg,
		clock:   clk,
		members: make(map[Processor]struct{}),
	}
}

// Register 注册处理器
func (p *Pump) Register(m Processor) error {
	if p.closed.Load() {
		return ErrPumpClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.members[m]; ok {
		return ErrAlreadyRegistered
	}
	p.members[m] = struct{}{}
	return nil
}

// Unregister 注销处理器
func (p *Pump) Unregister(m Processor) {
	p.mu.Lock()
	delete(p.members, m)
	p.mu.Unlock()
}

// OnEvict 设置处理器被注销时的回调，在节拍协程中调用
func (p *Pump) OnEvict(fn func(Processor)) {
	p.mu.Lock()
	p.onEvict = fn
	p.mu.Unlock()
}

// Len 已注册的处理器数
func (p *Pump) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.members)
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动节拍协程
func (p *Pump) Start(_ context.Context) error {
	if p.closed.Load() {
		return ErrPumpClosed
	}
	if !p.running.CompareAndSwap(false, true) {
		return nil
	}

	// 不使用传入的 ctx：Fx OnStart 的 ctx 在返回后即被取消
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	p.mu.Lock()
	p.last = p.clock.Now()
	p.mu.Unlock()

	go p.loop(ctx)
	logger.Info("I/O 泵已启动", "interval", p.cfg.Interval.Duration(), "workers", p.cfg.Workers)
	return nil
}

// Stop 停止节拍协程并等待退出
func (p *Pump) Stop() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if p.running.Load() {
		p.cancel()
		<-p.done
	}

	p.mu.Lock()
	p.members = make(map[Processor]struct{})
	p.mu.Unlock()

	logger.Info("I/O 泵已停止", "ticks", p.ticks.Load(), "evicted", p.evicted.Load())
	return nil
}

func (p *Pump) loop(ctx context.Context) {
	defer close(p.done)

	ticker := p.clock.Ticker(p.cfg.Interval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick()
		}
	}
}

// ============================================================================
//                              节拍
// ============================================================================

// Tick 执行一次节拍，elapsed 为距上次节拍的时钟时间
func (p *Pump) Tick() {
	p.mu.Lock()
	now := p.clock.Now()
	elapsed := now.Sub(p.last)
	if p.last.IsZero() || elapsed < 0 {
		elapsed = 0
	}
	p.last = now
	members := make([]Processor, 0, len(p.members))
	for m := range p.members {
		members = append(members, m)
	}
	p.mu.Unlock()

	p.ticks.Add(1)
	if len(members) == 0 {
		return
	}

	if p.cfg.Workers == 1 || len(members) == 1 {
		for _, m := range members {
			p.step(m, elapsed)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for _, m := range members {
		m := m
		g.Go(func() error {
			p.step(m, elapsed)
			return nil
		})
	}
	_ = g.Wait()
}

// step 驱动单个处理器一轮
func (p *Pump) step(m Processor, elapsed time.Duration) {
	sender := m.Sender()
	if !m.Process(sender, elapsed) {
		p.mu.Lock()
		delete(p.members, m)
		fn := p.onEvict
		p.mu.Unlock()

		p.evicted.Add(1)
		logger.Debug("处理器失活，已注销")
		if fn != nil {
			fn(m)
		}
		return
	}
	p.sent.Add(uint64(m.ProcessSend(sender)))
	p.acks.Add(uint64(m.FlushAcks()))
}

// Stats 泵统计
type Stats struct {
	Members   int
	Ticks     uint64
	Sent      uint64
	AckFrames uint64
	Evicted   uint64
}

// Stats 返回统计快照
func (p *Pump) Stats() Stats {
	return Stats{
		Members:   p.Len(),
		Ticks:     p.ticks.Load(),
		Sent:      p.sent.Load(),
		AckFrames: p.acks.Load(),
		Evicted:   p.evicted.Load(),
	}
}
