// Package peerconn 提供 Connection 的具体实现
//
// Conn 维护连接标识、活跃状态、最后活动时间与 RTT 估计，
// 没有等待方的完整消息投递到有界通道。
package peerconn

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/internal/core/rtt"
	"github.com/dep2p/go-genet/pkg/interfaces"
	"github.com/dep2p/go-genet/pkg/lib/log"
	"github.com/dep2p/go-genet/pkg/types"
)

var logger = log.Logger("core/peerconn")

// 确保实现接口
var (
	_ interfaces.Connection  = (*Conn)(nil)
	_ interfaces.RttObserver = (*Conn)(nil)
)

// DefaultInboxSize 投递通道默认容量
const DefaultInboxSize = 256

// Option 连接选项
type Option func(*Conn)

// WithID 指定连接标识，默认生成 uuid
func WithID(id string) Option {
	return func(c *Conn) {
		c.id = id
	}
}

// WithClock 注入时钟
func WithClock(clk clock.Clock) Option {
	return func(c *Conn) {
		c.clock = clk
	}
}

// WithInboxSize 设置投递通道容量
func WithInboxSize(n int) Option {
	return func(c *Conn) {
		c.inboxSize = n
	}
}

// WithDeliverFunc 设置消息投递回调，设置后不再写入投递通道
func WithDeliverFunc(fn func(*types.Message)) Option {
	return func(c *Conn) {
		c.deliverFn = fn
	}
}

// Conn 连接
type Conn struct {
	id        string
	clock     clock.Clock
	est       *rtt.Estimator
	inboxSize int
	deliverFn func(*types.Message)

	active       atomic.Bool
	lastActivity atomic.Int64
	dropped      atomic.Uint64

	mu     sync.RWMutex
	closed bool
	inbox  chan *types.Message
}

// New 创建连接
func New(cfg config.CongestionConfig, opts ...Option) *Conn {
	c := &Conn{
		clock:     clock.New(),
		est:       rtt.NewEstimator(cfg.MinRto.Duration(), cfg.MaxRto.Duration()),
		inboxSize: DefaultInboxSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.id == "" {
		c.id = uuid.NewString()
	}
	c.inbox = make(chan *types.Message, c.inboxSize)
	c.active.Store(true)
	c.Touch()
	return c
}

// ID 实现 Connection
func (c *Conn) ID() string {
	return c.id
}

// SmoothedRtt 实现 Connection
func (c *Conn) SmoothedRtt() time.Duration {
	return c.est.Smoothed()
}

// MinRtt 实现 Connection
func (c *Conn) MinRtt() time.Duration {
	return c.est.Min()
}

// RetransmissionTimeout 实现 Connection
func (c *Conn) RetransmissionTimeout() time.Duration {
	return c.est.RTO()
}

// ObserveRtt 实现 RttObserver
func (c *Conn) ObserveRtt(sample time.Duration) {
	c.est.Update(sample)
}

// Estimator 返回 RTT 估计器
func (c *Conn) Estimator() *rtt.Estimator {
	return c.est
}

// IsActive 实现 Connection
func (c *Conn) IsActive() bool {
	return c.active.Load()
}

// Touch 实现 Connection
func (c *Conn) Touch() {
	c.lastActivity.Store(c.clock.Now().UnixNano())
}

// LastActivity 最后活动时间
func (c *Conn) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// Idle 距最后活动的时长
func (c *Conn) Idle() time.Duration {
	return c.clock.Since(c.LastActivity())
}

// Deliver 实现 Connection
//
// 投递通道已满时丢弃消息并计数，不阻塞调用方。
func (c *Conn) Deliver(msg *types.Message) {
	if c.deliverFn != nil {
		c.deliverFn(msg)
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		return
	}
	select {
	case c.inbox <- msg:
	default:
		c.dropped.Add(1)
		logger.Warn("投递通道已满，丢弃消息", "conn", log.TruncateID(c.id, 8), "transmission", msg.Transmission)
	}
}

// Inbox 返回投递通道，连接关闭后通道被关闭
func (c *Conn) Inbox() <-chan *types.Message {
	return c.inbox
}

// DroppedDeliveries 被丢弃的投递数
func (c *Conn) DroppedDeliveries() uint64 {
	return c.dropped.Load()
}

// Close 标记连接失活并关闭投递通道
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.active.Store(false)
	close(c.inbox)
	logger.Debug("连接关闭", "conn", log.TruncateID(c.id, 8))
	return nil
}
