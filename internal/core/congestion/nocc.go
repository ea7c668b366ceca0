package congestion

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/internal/core/gene"
	"github.com/dep2p/go-genet/pkg/interfaces"
)

// 确保实现接口
var _ Controller = (*NoCongestionControl)(nil)

// NoCongestionControl 无拥塞控制
//
// 每轮最多发送 NoCCCap 个基因（新发送与重传合计），不限制在途数量。
// 仍然跟踪在途基因以便超时重传。
type NoCongestionControl struct {
	cfg   config.CongestionConfig
	conn  interfaces.Connection
	clock clock.Clock

	closed atomic.Bool

	mu       sync.Mutex
	inflight *inFlight
	used     int

	sent, resent, acked, lost uint64
}

// NewNoCongestionControl 创建无拥塞控制
func NewNoCongestionControl(cfg config.CongestionConfig, conn interfaces.Connection, clk clock.Clock) *NoCongestionControl {
	if clk == nil {
		clk = clock.New()
	}
	return &NoCongestionControl{
		cfg:      cfg,
		conn:     conn,
		clock:    clk,
		inflight: newInFlight(),
	}
}

// AddInFlight 实现 Controller
func (n *NoCongestionControl) AddInFlight(g *gene.Gene) {
	now := n.clock.Now()

	n.mu.Lock()
	n.inflight.add(g, now)
	n.used++
	n.sent++
	g.Retain()
	n.mu.Unlock()
}

// RemoveInFlight 实现 Controller
func (n *NoCongestionControl) RemoveInFlight(g *gene.Gene) (time.Duration, bool) {
	now := n.clock.Now()

	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.inflight.remove(g) {
		return 0, false
	}
	n.acked++
	rtt, _ := g.RttSample(now)
	return rtt, true
}

// LossDetected 实现 Controller
func (n *NoCongestionControl) LossDetected(g *gene.Gene) {
	if g.Acked() || !g.MarkLossDetected() {
		return
	}
	n.inflight.lossQ.Push(g)

	n.mu.Lock()
	n.lost++
	n.mu.Unlock()
}

// AddRtt 实现 Controller，无慢启动可喂
func (n *NoCongestionControl) AddRtt(int64) {}

// Budget 实现 Controller
func (n *NoCongestionControl) Budget() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if left := n.cfg.NoCCCap - n.used; left > 0 {
		return left
	}
	return 0
}

// OnCapacityLimited 实现 Controller
func (n *NoCongestionControl) OnCapacityLimited() {}

// Resend 实现 Controller
func (n *NoCongestionControl) Resend(sender interfaces.NetSender) int {
	if n.closed.Load() || !sender.CanSend() {
		return 0
	}
	t := readTiming(&n.cfg, n.conn)
	now := n.clock.Now()

	n.mu.Lock()
	due := n.inflight.collect(now, t.rto, n.cfg.NoCCCap-n.used, func(time.Time) {
		n.used++
		n.resent++
	})
	n.mu.Unlock()

	sendAll(sender, due)
	return len(due)
}

// Process 实现 Controller，开始新一轮
func (n *NoCongestionControl) Process(sender interfaces.NetSender, _ time.Duration) bool {
	if n.closed.Load() || !n.conn.IsActive() {
		return false
	}
	n.mu.Lock()
	n.used = 0
	n.mu.Unlock()

	n.Resend(sender)
	return true
}

// InFlight 实现 Controller
func (n *NoCongestionControl) InFlight() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.inflight.len()
}

// Snapshot 实现 Controller
func (n *NoCongestionControl) Snapshot() Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	window := float64(n.cfg.NoCCCap)
	left := window - float64(n.used)
	if left < 0 {
		left = 0
	}
	return Snapshot{
		Algorithm: config.AlgorithmNone,
		Cwnd:      window,
		Capacity:  left,
		Ssthresh:  window,
		InFlight:  n.inflight.len(),
		Sent:      n.sent,
		Resent:    n.resent,
		Acked:     n.acked,
		Lost:      n.lost,
	}
}

// Close 实现 Controller
func (n *NoCongestionControl) Close() {
	if !n.closed.CompareAndSwap(false, true) {
		return
	}
	n.mu.Lock()
	n.inflight.clear()
	n.mu.Unlock()
}
