package congestion

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/internal/core/gene"
	"github.com/dep2p/go-genet/pkg/interfaces"
)

// 确保实现接口
var _ Controller = (*Cubic)(nil)

// ============================================================================
//                              Cubic
// ============================================================================

// Cubic CUBIC 拥塞控制
//
// 窗口以基因为单位。慢启动期间按确认数线性增长并由 Hystart 提前退出；
// 之后沿三次曲线逼近上一次刹车前的最大窗口，并与 TCP 友好线性项取较大者。
// 失败率超过阈值时刹车。发送容量按 cwnd/srtt 的速率再生，
// 空闲后的一段时间内以 BoostFactor 加速。
type Cubic struct {
	cfg   config.CongestionConfig
	conn  interfaces.Connection
	clock clock.Clock

	hystart *hystart
	closed  atomic.Bool

	mu       sync.Mutex
	inflight *inFlight

	cwnd      float64
	capacity  float64
	ssthresh  float64
	slowStart bool

	// 三次曲线
	lastMax    float64
	epochStart time.Time
	origin     float64
	k          uint64
	tcpCwnd    float64

	// 本更新周期内的确认数与节拍
	acked           float64
	ticks           int
	capacityLimited bool
	brakedInterval  bool

	// 失败率
	positive      float64
	negative      float64
	lastBrake     time.Time
	suppressUntil time.Time

	boostUntil time.Time

	sent, resent, ackedTotal, lost, brakes uint64
}

// NewCubic 创建 CUBIC 拥塞控制
func NewCubic(cfg config.CongestionConfig, conn interfaces.Connection, clk clock.Clock) *Cubic {
	if clk == nil {
		clk = clock.New()
	}
	return &Cubic{
		cfg:       cfg,
		conn:      conn,
		clock:     clk,
		hystart:   newHystart(cfg.HystartMinSamples, cfg.HystartEtaMin.Duration(), cfg.HystartEtaMax.Duration()),
		inflight:  newInFlight(),
		cwnd:      cfg.InitialCwnd,
		capacity:  cfg.InitialCwnd,
		ssthresh:  cfg.MaxCwnd,
		slowStart: true,
	}
}

// AddInFlight 实现 Controller
func (c *Cubic) AddInFlight(g *gene.Gene) {
	now := c.clock.Now()

	c.mu.Lock()
	c.inflight.add(g, now)
	c.capacity--
	if c.capacity < 0 {
		c.capacity = 0
	}
	c.sent++
	g.Retain()
	c.mu.Unlock()
}

// RemoveInFlight 实现 Controller
func (c *Cubic) RemoveInFlight(g *gene.Gene) (time.Duration, bool) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.inflight.remove(g) {
		return 0, false
	}
	rtt, _ := g.RttSample(now)
	c.acked++
	c.ackedTotal++
	c.positive++
	return rtt, true
}

// LossDetected 实现 Controller
func (c *Cubic) LossDetected(g *gene.Gene) {
	if g.Acked() || !g.MarkLossDetected() {
		return
	}
	c.inflight.lossQ.Push(g)

	c.mu.Lock()
	c.lost++
	c.mu.Unlock()
}

// AddRtt 实现 Controller
func (c *Cubic) AddRtt(mics int64) {
	c.hystart.addRtt(mics)
}

// Budget 实现 Controller
//
// 新发送需要至少一个容量令牌，且在途数小于窗口。
func (c *Cubic) Budget() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity < 1 {
		return 0
	}
	room := int(c.cwnd) - c.inflight.len()
	if room <= 0 {
		return 0
	}
	if tokens := int(c.capacity); tokens < room {
		return tokens
	}
	return room
}

// OnCapacityLimited 实现 Controller
func (c *Cubic) OnCapacityLimited() {
	c.mu.Lock()
	c.capacityLimited = true
	c.mu.Unlock()
}

// Resend 实现 Controller
//
// 重传同样消耗容量令牌。
func (c *Cubic) Resend(sender interfaces.NetSender) int {
	if c.closed.Load() || !sender.CanSend() {
		return 0
	}
	t := readTiming(&c.cfg, c.conn)
	now := c.clock.Now()

	c.mu.Lock()
	due := c.inflight.collect(now, t.rto, int(c.capacity), func(prev time.Time) {
		c.capacity--
		c.resent++
		if prev.After(c.lastBrake) {
			c.negative++
		}
	})
	if c.capacity < 0 {
		c.capacity = 0
	}
	c.mu.Unlock()

	sendAll(sender, due)
	return len(due)
}

// Process 实现 Controller
func (c *Cubic) Process(sender interfaces.NetSender, elapsed time.Duration) bool {
	if c.closed.Load() || !c.conn.IsActive() {
		return false
	}
	t := readTiming(&c.cfg, c.conn)
	now := c.clock.Now()

	c.mu.Lock()
	c.regenerate(now, elapsed, t.srtt)
	if c.maybeBrake(now, t.srtt) {
		c.brakedInterval = true
	}
	c.ticks++
	if c.ticks >= c.cfg.CubicThreshold {
		c.ticks = 0
		c.decay(t.minRtt)
		// 本周期内刹过车则不再增长
		if c.capacityLimited && !c.brakedInterval {
			c.updateCubic(now, t)
		}
		c.brakedInterval = false
		c.capacityLimited = false
		c.acked = 0
	}
	c.mu.Unlock()

	c.Resend(sender)
	return true
}

// InFlight 实现 Controller
func (c *Cubic) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight.len()
}

// Snapshot 实现 Controller
func (c *Cubic) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Algorithm:    config.AlgorithmCubic,
		Cwnd:         c.cwnd,
		Capacity:     c.capacity,
		Ssthresh:     c.ssthresh,
		LastMax:      c.lastMax,
		SlowStart:    c.slowStart,
		InFlight:     c.inflight.len(),
		FailureRatio: c.failureRatio(),
		Sent:         c.sent,
		Resent:       c.resent,
		Acked:        c.ackedTotal,
		Lost:         c.lost,
		Brakes:       c.brakes,
	}
}

// Close 实现 Controller
func (c *Cubic) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.mu.Lock()
	c.inflight.clear()
	c.mu.Unlock()
}

// ============================================================================
//                              内部（锁内）
// ============================================================================

// regenerate 按 cwnd/srtt 每毫秒的速率恢复容量，夹到 cwnd
func (c *Cubic) regenerate(now time.Time, elapsed, srtt time.Duration) {
	if c.inflight.len() == 0 {
		c.boostUntil = now.Add(time.Duration(float64(srtt) / c.cfg.BoostFactor))
	}
	if elapsed <= 0 {
		return
	}

	srttMs := float64(srtt) / float64(time.Millisecond)
	if srttMs <= 0 {
		return
	}
	regen := c.cwnd / srttMs
	if now.Before(c.boostUntil) {
		regen *= c.cfg.BoostFactor
	}

	c.capacity += regen * float64(elapsed) / float64(time.Millisecond)
	if c.capacity > c.cwnd {
		c.capacity = c.cwnd
	}
}

// decay 失败率计数器按 0.5^(1000/minRtt微秒) 衰减
func (c *Cubic) decay(minRtt time.Duration) {
	mics := minRtt.Microseconds()
	if mics <= 0 {
		return
	}
	f := math.Pow(0.5, 1000/float64(mics))
	c.positive *= f
	c.negative *= f
}

func (c *Cubic) failureRatio() float64 {
	total := c.positive + c.negative
	if total <= 0 {
		return 0
	}
	return c.negative / total
}

// maybeBrake 失败率超过阈值且不在抑制期内时刹车
func (c *Cubic) maybeBrake(now time.Time, srtt time.Duration) bool {
	if now.Before(c.suppressUntil) {
		return false
	}
	if c.failureRatio() <= c.cfg.BrakeThreshold {
		return false
	}
	c.brake(now, srtt)
	return true
}

// brake 快速收敛后按 (1-Beta) 缩小窗口
func (c *Cubic) brake(now time.Time, srtt time.Duration) {
	before := c.cwnd
	if c.cwnd < c.lastMax {
		c.lastMax = c.cwnd * (2 - c.cfg.Beta) / 2
	} else {
		c.lastMax = c.cwnd
	}

	c.cwnd *= 1 - c.cfg.Beta
	c.clampCwnd()
	c.ssthresh = c.cwnd
	c.slowStart = false
	c.epochStart = time.Time{}
	if c.capacity > c.cwnd {
		c.capacity = c.cwnd
	}

	c.lastBrake = now
	c.suppressUntil = now.Add(time.Duration(float64(srtt) * c.cfg.BrakeSuppression))
	c.negative = 0
	c.brakes++

	logger.Debug("拥塞刹车",
		"conn", c.conn.ID(),
		"cwnd_before", before,
		"cwnd", c.cwnd,
		"last_max", c.lastMax)
}

// updateCubic 慢启动或三次曲线增长
func (c *Cubic) updateCubic(now time.Time, t timing) {
	if c.slowStart {
		if c.hystart.update(now, t.srtt) {
			c.slowStart = false
			c.ssthresh = c.cwnd
			c.epochStart = time.Time{}
			logger.Debug("Hystart 退出慢启动", "conn", c.conn.ID(), "cwnd", c.cwnd)
			return
		}
		c.cwnd += c.acked
		if c.cwnd >= c.ssthresh {
			c.cwnd = c.ssthresh
			c.slowStart = false
		}
		c.clampCwnd()
		return
	}

	if c.acked <= 0 {
		return
	}

	if c.epochStart.IsZero() {
		c.epochStart = now
		if c.cwnd < c.lastMax {
			c.k = cubicK(c.lastMax - c.cwnd)
			c.origin = c.lastMax
		} else {
			c.k = 0
			c.origin = c.cwnd
		}
		c.tcpCwnd = c.cwnd
	}

	target := cubicTarget(c.origin, c.k, now.Sub(c.epochStart)+t.minRtt)

	var inc float64
	if target > c.cwnd {
		inc = (target - c.cwnd) / c.cwnd
	}
	if c.lastMax == 0 && inc < 0.05 {
		inc = 0.05
	}

	// TCP 友好项
	c.tcpCwnd += 3 * c.cfg.Beta / (2 - c.cfg.Beta) * c.acked / c.cwnd
	if c.tcpCwnd > c.cwnd {
		if tcpInc := (c.tcpCwnd - c.cwnd) / c.cwnd; tcpInc > inc {
			inc = tcpInc
		}
	}
	if inc > 0.5 {
		inc = 0.5
	}

	c.cwnd += inc * c.acked
	c.clampCwnd()
}

func (c *Cubic) clampCwnd() {
	if c.cwnd < c.cfg.MinCwnd {
		c.cwnd = c.cfg.MinCwnd
	}
	if c.cwnd > c.cfg.MaxCwnd {
		c.cwnd = c.cfg.MaxCwnd
	}
}
