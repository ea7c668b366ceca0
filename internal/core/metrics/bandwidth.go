package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// connCounter 单个连接的计数与速率
type connCounter struct {
	in      atomic.Int64
	out     atomic.Int64
	inRate  *RateMeter
	outRate *RateMeter
}

func (c *connCounter) stats() Stats {
	return Stats{
		TotalIn:  c.in.Load(),
		TotalOut: c.out.Load(),
		RateIn:   c.inRate.Rate(),
		RateOut:  c.outRate.Rate(),
	}
}

// lastActive 两个方向中较晚的活动时间
func (c *connCounter) lastActive() time.Time {
	in, out := c.inRate.LastUpdate(), c.outRate.LastUpdate()
	if in.After(out) {
		return in
	}
	return out
}

// BandwidthCounter 带宽计数器
//
// 跟踪每个连接收发的数据报字节数。使用原子操作实现并发安全的计数器。
type BandwidthCounter struct {
	clock clock.Clock

	totalIn      atomic.Int64
	totalOut     atomic.Int64
	totalInRate  *RateMeter
	totalOutRate *RateMeter

	mu    sync.RWMutex
	conns map[string]*connCounter
}

// NewBandwidthCounter 创建新的 BandwidthCounter，clk 为 nil 时使用真实时钟
func NewBandwidthCounter(clk clock.Clock) *BandwidthCounter {
	if clk == nil {
		clk = clock.New()
	}
	return &BandwidthCounter{
		clock:        clk,
		totalInRate:  NewRateMeter(clk),
		totalOutRate: NewRateMeter(clk),
		conns:        make(map[string]*connCounter),
	}
}

// counter 获取或创建连接计数器
func (bwc *BandwidthCounter) counter(conn string) *connCounter {
	bwc.mu.RLock()
	c := bwc.conns[conn]
	bwc.mu.RUnlock()
	if c != nil {
		return c
	}

	bwc.mu.Lock()
	defer bwc.mu.Unlock()
	if c = bwc.conns[conn]; c == nil {
		c = &connCounter{
			inRate:  NewRateMeter(bwc.clock),
			outRate: NewRateMeter(bwc.clock),
		}
		bwc.conns[conn] = c
	}
	return c
}

// LogSent 记录连接发出的数据报
func (bwc *BandwidthCounter) LogSent(conn string, size int64) {
	bwc.totalOut.Add(size)
	bwc.totalOutRate.Add(size)

	c := bwc.counter(conn)
	c.out.Add(size)
	c.outRate.Add(size)
}

// LogRecv 记录连接收到的数据报
func (bwc *BandwidthCounter) LogRecv(conn string, size int64) {
	bwc.totalIn.Add(size)
	bwc.totalInRate.Add(size)

	c := bwc.counter(conn)
	c.in.Add(size)
	c.inRate.Add(size)
}

// GetBandwidthForConn 返回连接带宽统计
func (bwc *BandwidthCounter) GetBandwidthForConn(conn string) Stats {
	bwc.mu.RLock()
	c := bwc.conns[conn]
	bwc.mu.RUnlock()

	if c == nil {
		return Stats{}
	}
	return c.stats()
}

// GetBandwidthTotals 返回总带宽统计
func (bwc *BandwidthCounter) GetBandwidthTotals() Stats {
	return Stats{
		TotalIn:  bwc.totalIn.Load(),
		TotalOut: bwc.totalOut.Load(),
		RateIn:   bwc.totalInRate.Rate(),
		RateOut:  bwc.totalOutRate.Rate(),
	}
}

// GetBandwidthByConn 返回所有连接带宽统计
func (bwc *BandwidthCounter) GetBandwidthByConn() map[string]Stats {
	bwc.mu.RLock()
	defer bwc.mu.RUnlock()

	result := make(map[string]Stats, len(bwc.conns))
	for id, c := range bwc.conns {
		result[id] = c.stats()
	}
	return result
}

// Reset 清除所有统计
func (bwc *BandwidthCounter) Reset() {
	bwc.totalIn.Store(0)
	bwc.totalOut.Store(0)
	bwc.totalInRate.Reset()
	bwc.totalOutRate.Reset()

	bwc.mu.Lock()
	bwc.conns = make(map[string]*connCounter)
	bwc.mu.Unlock()
}

// TrimIdle 清理 since 之后没有活动的连接统计
func (bwc *BandwidthCounter) TrimIdle(since time.Time) {
	bwc.mu.Lock()
	defer bwc.mu.Unlock()

	for id, c := range bwc.conns {
		if c.lastActive().Before(since) {
			delete(bwc.conns, id)
		}
	}
}
