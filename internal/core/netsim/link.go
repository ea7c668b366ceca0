// Package netsim 提供内存中的模拟数据报链路
//
// Link 连接两个 Endpoint，每个 Endpoint 实现 NetSender，
// 发送的数据报投递给对端的接收函数。支持：
//
//   - 速率限制（golang.org/x/time/rate，CanSend 反映令牌是否充足）
//   - 随机丢包与按数据报的丢包钩子
//   - 同步投递（Delay 为 0）或带传播时延的队列投递
//
// 用于测试与压测命令，不做任何真实网络 I/O。
package netsim

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/pkg/interfaces"
	"github.com/dep2p/go-genet/pkg/lib/log"
)

var logger = log.Logger("core/netsim")

// 确保实现接口
var _ interfaces.NetSender = (*Endpoint)(nil)

// Receiver 接收数据报
type Receiver func(datagram []byte) error

// DropHook 返回 true 时丢弃数据报
type DropHook func(datagram []byte) bool

// Option 链路选项
type Option func(*Link)

// WithClock 注入时钟
func WithClock(clk clock.Clock) Option {
	return func(l *Link) {
		l.clock = clk
	}
}

// WithSeed 固定随机丢包的种子
func WithSeed(seed int64) Option {
	return func(l *Link) {
		l.seed = seed
	}
}

// ============================================================================
//                              Link
// ============================================================================

// Link 双向模拟链路
type Link struct {
	cfg   config.LinkConfig
	clock clock.Clock
	seed  int64

	a, b *Endpoint

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
	closed atomic.Bool
}

// NewLink 创建链路
func NewLink(cfg config.LinkConfig, opts ...Option) *Link {
	l := &Link{
		cfg:   cfg,
		clock: clock.New(),
		seed:  time.Now().UnixNano(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.a = newEndpoint(l, "a", l.seed)
	l.b = newEndpoint(l, "b", l.seed+1)
	l.a.peer, l.b.peer = l.b, l.a
	return l
}

// A 链路一端
func (l *Link) A() *Endpoint {
	return l.a
}

// B 链路另一端
func (l *Link) B() *Endpoint {
	return l.b
}

// Async 是否使用队列投递
func (l *Link) Async() bool {
	return l.cfg.Delay > 0
}

// Start 启动队列投递协程，同步链路无需启动
func (l *Link) Start(ctx context.Context) {
	if !l.Async() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.group != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.a.run(ctx) })
	g.Go(func() error { return l.b.run(ctx) })
	l.cancel = cancel
	l.group = g
}

// Close 关闭链路并等待投递协程退出
func (l *Link) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.mu.Lock()
	cancel, group := l.cancel, l.group
	l.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if err := group.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// ============================================================================
//                              Endpoint
// ============================================================================

type delayed struct {
	at   time.Time
	data []byte
}

// Endpoint 链路端点
type Endpoint struct {
	link    *Link
	name    string
	peer    *Endpoint
	limiter *rate.Limiter
	queue   chan delayed

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu       sync.RWMutex
	receiver Receiver
	dropHook DropHook

	sent      atomic.Uint64
	dropped   atomic.Uint64
	delivered atomic.Uint64
	rejected  atomic.Uint64
}

func newEndpoint(l *Link, name string, seed int64) *Endpoint {
	e := &Endpoint{
		link: l,
		name: name,
		rnd:  rand.New(rand.NewSource(seed)),
	}
	if l.cfg.Rate > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(l.cfg.Rate), l.cfg.Burst)
	}
	if l.cfg.Delay > 0 {
		e.queue = make(chan delayed, l.cfg.QueueSize)
	}
	return e
}

// Name 端点名称
func (e *Endpoint) Name() string {
	return e.name
}

// SetReceiver 设置本端接收函数
func (e *Endpoint) SetReceiver(fn Receiver) {
	e.mu.Lock()
	e.receiver = fn
	e.mu.Unlock()
}

// SetDropHook 设置本端发出数据报的丢包钩子
func (e *Endpoint) SetDropHook(fn DropHook) {
	e.mu.Lock()
	e.dropHook = fn
	e.mu.Unlock()
}

// CanSend 实现 NetSender
func (e *Endpoint) CanSend() bool {
	if e.link.closed.Load() {
		return false
	}
	if e.limiter != nil && e.limiter.TokensAt(e.link.clock.Now()) < 1 {
		return false
	}
	return e.queue == nil || len(e.queue) < cap(e.queue)
}

// Send 实现 NetSender
//
// 被丢弃的数据报不返回错误，与真实网络一致。
func (e *Endpoint) Send(datagram []byte) error {
	if e.link.closed.Load() {
		return ErrLinkClosed
	}
	if e.limiter != nil && !e.limiter.AllowN(e.link.clock.Now(), 1) {
		e.rejected.Add(1)
		return ErrBackpressure
	}
	e.sent.Add(1)

	if e.shouldDrop(datagram) {
		e.dropped.Add(1)
		return nil
	}

	data := append([]byte(nil), datagram...)
	if e.queue == nil {
		e.peer.deliver(data)
		return nil
	}

	select {
	case e.queue <- delayed{at: e.link.clock.Now().Add(e.link.cfg.Delay.Duration()), data: data}:
		return nil
	default:
		e.rejected.Add(1)
		return ErrBackpressure
	}
}

func (e *Endpoint) shouldDrop(datagram []byte) bool {
	e.mu.RLock()
	hook := e.dropHook
	e.mu.RUnlock()
	if hook != nil && hook(datagram) {
		return true
	}

	if loss := e.link.cfg.LossRate; loss > 0 {
		e.rndMu.Lock()
		drop := e.rnd.Float64() < loss
		e.rndMu.Unlock()
		return drop
	}
	return false
}

// deliver 交给本端接收函数
func (e *Endpoint) deliver(data []byte) {
	e.mu.RLock()
	fn := e.receiver
	e.mu.RUnlock()
	if fn == nil {
		e.dropped.Add(1)
		return
	}
	e.delivered.Add(1)
	if err := fn(data); err != nil {
		logger.Debug("接收数据报失败", "endpoint", e.name, "error", err)
	}
}

// run 按时延顺序投递队列中的数据报
func (e *Endpoint) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-e.queue:
			if wait := d.at.Sub(e.link.clock.Now()); wait > 0 {
				timer := e.link.clock.Timer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil
				case <-timer.C:
				}
			}
			e.peer.deliver(d.data)
		}
	}
}

// Stats 端点统计
type Stats struct {
	Sent      uint64
	Dropped   uint64
	Delivered uint64
	Rejected  uint64
}

// Stats 返回端点统计，Delivered 为本端收到的数据报数
func (e *Endpoint) Stats() Stats {
	return Stats{
		Sent:      e.sent.Load(),
		Dropped:   e.dropped.Load(),
		Delivered: e.delivered.Load(),
		Rejected:  e.rejected.Load(),
	}
}
