package flowcontrol

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/internal/core/congestion"
	"github.com/dep2p/go-genet/internal/core/gene"
	"github.com/dep2p/go-genet/pkg/interfaces"
)

// 确保实现接口
var _ Scheduler = (*RamaControl)(nil)

// ============================================================================
//                              截止时间堆
// ============================================================================

type deadlineEntry struct {
	deadline time.Time
	serial   uint64
	gene     *gene.Gene
}

// deadlineHeap 按截止时间排序，相同时间按序号
type deadlineHeap []deadlineEntry

func (h deadlineHeap) Len() int { return len(h) }

func (h deadlineHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].serial < h[j].serial
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h deadlineHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *deadlineHeap) Push(x any) { *h = append(*h, x.(deadlineEntry)) }

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = deadlineEntry{}
	*h = old[:n-1]
	return e
}

// ============================================================================
//                              RamaControl
// ============================================================================

// RamaControl Rama 传输的发送调度
//
// Rama 基因绕过拥塞控制以降低时延，每轮最多发送 RamaCap 个（新发送与重传合计）。
// 在途基因记录当前序号，堆中序号过期或已移除的条目在弹出时跳过。
type RamaControl struct {
	cc       config.CongestionConfig
	roundCap int
	conn     interfaces.Connection
	clock    clock.Clock
	queue    *gene.Queue

	consumer sync.Mutex
	closed   atomic.Bool

	mu       sync.Mutex
	deadline deadlineHeap
	inflight map[*gene.Gene]uint64
	serial   uint64
	used     int

	sent, resent atomic.Uint64
}

// NewRamaControl 创建 RamaControl
func NewRamaControl(cc config.CongestionConfig, ramaCap int, conn interfaces.Connection, clk clock.Clock) *RamaControl {
	if clk == nil {
		clk = clock.New()
	}
	return &RamaControl{
		cc:       cc,
		roundCap: ramaCap,
		conn:     conn,
		clock:    clk,
		queue:    gene.NewQueue(),
		inflight: make(map[*gene.Gene]uint64),
	}
}

// Enqueue 实现 Scheduler
func (r *RamaControl) Enqueue(g *gene.Gene) {
	if r.closed.Load() {
		g.Release()
		return
	}
	r.queue.Push(g)
}

// ProcessSend 实现 Scheduler
func (r *RamaControl) ProcessSend(sender interfaces.NetSender) int {
	if r.closed.Load() || !r.consumer.TryLock() {
		return 0
	}
	defer r.consumer.Unlock()

	if !sender.CanSend() {
		return 0
	}
	rto := congestion.RetransmissionTimeout(&r.cc, r.conn)
	now := r.clock.Now()

	r.mu.Lock()
	due := r.collectDue(now, rto)
	due = r.collectNew(now, rto, due)
	r.mu.Unlock()

	for _, g := range due {
		if err := g.Send(sender); err != nil {
			logger.Debug("Rama 发送失败，等待超时重传", "gene", g.ID(), "error", err)
		}
		g.Release()
	}
	return len(due)
}

// collectDue 弹出到期条目并重新入堆（锁内）
func (r *RamaControl) collectDue(now time.Time, rto time.Duration) []*gene.Gene {
	var due []*gene.Gene
	for r.used < r.roundCap && len(r.deadline) > 0 {
		top := r.deadline[0]
		if top.deadline.After(now) {
			break
		}
		heap.Pop(&r.deadline)

		serial, ok := r.inflight[top.gene]
		if !ok || serial != top.serial {
			continue
		}
		g := top.gene
		if !g.Needed() {
			delete(r.inflight, g)
			g.Release()
			continue
		}

		r.push(g, now, rto)
		g.ClearLossDetected()
		g.Retain()
		due = append(due, g)
		r.used++
		r.resent.Add(1)
	}
	return due
}

// collectNew 在剩余预算内取出新基因（锁内）
func (r *RamaControl) collectNew(now time.Time, rto time.Duration, due []*gene.Gene) []*gene.Gene {
	for r.used < r.roundCap {
		g := r.queue.Pop()
		if g == nil {
			break
		}
		if !g.Needed() {
			g.Release()
			continue
		}
		r.push(g, now, rto)
		g.Retain()
		due = append(due, g)
		r.used++
		r.sent.Add(1)
	}
	return due
}

// push 记录一次发送并以新序号入堆（锁内）
func (r *RamaControl) push(g *gene.Gene, now time.Time, rto time.Duration) {
	r.serial++
	g.Stamp(now, r.serial)
	r.inflight[g] = r.serial
	heap.Push(&r.deadline, deadlineEntry{
		deadline: now.Add(rto),
		serial:   r.serial,
		gene:     g,
	})
}

// Process 实现 Scheduler，开始新一轮
func (r *RamaControl) Process(sender interfaces.NetSender, _ time.Duration) bool {
	if r.closed.Load() || !r.conn.IsActive() {
		return false
	}
	r.mu.Lock()
	r.used = 0
	r.mu.Unlock()

	r.ProcessSend(sender)
	return true
}

// Acked 实现 Scheduler
func (r *RamaControl) Acked(g *gene.Gene) (time.Duration, bool) {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.inflight[g]; !ok {
		return 0, false
	}
	delete(r.inflight, g)
	rtt, _ := g.RttSample(now)
	return rtt, true
}

// LossDetected 实现 Scheduler，基因在下一次扫描时立即重传
func (r *RamaControl) LossDetected(g *gene.Gene) {
	if g.Acked() || !g.MarkLossDetected() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.inflight[g]; !ok {
		g.ClearLossDetected()
		return
	}
	r.serial++
	r.inflight[g] = r.serial
	heap.Push(&r.deadline, deadlineEntry{serial: r.serial, gene: g})
}

// Pending 实现 Scheduler
func (r *RamaControl) Pending() int {
	return r.queue.Len()
}

// InFlight 在途基因数
func (r *RamaControl) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// Stats 发送与重传计数
func (r *RamaControl) Stats() (sent, resent uint64) {
	return r.sent.Load(), r.resent.Load()
}

// Close 实现 Scheduler
func (r *RamaControl) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	r.consumer.Lock()
	r.queue.Drain(func(g *gene.Gene) { g.Release() })
	r.consumer.Unlock()

	r.mu.Lock()
	for g := range r.inflight {
		g.Release()
	}
	r.inflight = make(map[*gene.Gene]uint64)
	r.deadline = nil
	r.mu.Unlock()
}
