// Package flowcontrol 实现每连接的发送调度
//
// 调度器维护两个集合：等待发送的无锁队列（应用协程并发入队），
// 以及已发送等待确认的集合。每个 I/O 轮次先重传到期基因，
// 再在预算内发送新基因。
//
//   - FlowControl: Block/Stream 基因，预算来自拥塞控制 Controller
//   - RamaControl: Rama 基因，独立的在途跟踪（按截止时间排序的堆），每轮固定上限
package flowcontrol

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-genet/internal/core/congestion"
	"github.com/dep2p/go-genet/internal/core/gene"
	"github.com/dep2p/go-genet/pkg/interfaces"
	"github.com/dep2p/go-genet/pkg/lib/log"
)

var logger = log.Logger("core/flowcontrol")

// Scheduler 发送调度器
type Scheduler interface {
	// Enqueue 基因进入等待发送队列，可从任意协程调用
	Enqueue(g *gene.Gene)

	// ProcessSend 重传到期基因后在预算内发送新基因，返回发送数量
	ProcessSend(sender interfaces.NetSender) int

	// Process 每个 I/O 轮次的节拍，返回 false 表示停止调度该连接
	Process(sender interfaces.NetSender, elapsed time.Duration) bool

	// Acked 基因被确认，返回 Karn 样本与是否从在途移除
	Acked(g *gene.Gene) (rtt time.Duration, removed bool)

	// LossDetected 外部检测到丢包
	LossDetected(g *gene.Gene)

	// Pending 等待发送的基因数
	Pending() int

	// Close 释放全部基因
	Close()
}

// 确保实现接口
var _ Scheduler = (*FlowControl)(nil)

// ============================================================================
//                              FlowControl
// ============================================================================

// FlowControl 拥塞控制下的发送调度
type FlowControl struct {
	ctrl  congestion.Controller
	queue *gene.Queue

	// consumer 串行化出队；被占用时本轮直接返回
	consumer sync.Mutex
	closed   atomic.Bool

	dropped atomic.Uint64
}

// New 创建 FlowControl
func New(ctrl congestion.Controller) *FlowControl {
	return &FlowControl{
		ctrl:  ctrl,
		queue: gene.NewQueue(),
	}
}

// Controller 返回拥塞控制策略
func (f *FlowControl) Controller() congestion.Controller {
	return f.ctrl
}

// Enqueue 实现 Scheduler
func (f *FlowControl) Enqueue(g *gene.Gene) {
	if f.closed.Load() {
		g.Release()
		return
	}
	f.queue.Push(g)
}

// ProcessSend 实现 Scheduler
//
// 重传与 Process 中的重传扫描共用同一例程：重传后的基因获得新的截止时间，
// 同一轮内不会被发送两次。发送器返回错误时基因留在在途集合中，由超时重传。
func (f *FlowControl) ProcessSend(sender interfaces.NetSender) int {
	if f.closed.Load() || !f.consumer.TryLock() {
		return 0
	}
	defer f.consumer.Unlock()

	sent := f.ctrl.Resend(sender)

	limited := false
	for {
		if f.ctrl.Budget() <= 0 {
			limited = true
			break
		}
		if !sender.CanSend() {
			break
		}
		g := f.queue.Pop()
		if g == nil {
			break
		}
		if !g.Needed() {
			g.Release()
			f.dropped.Add(1)
			continue
		}

		f.ctrl.AddInFlight(g)
		if err := g.Send(sender); err != nil {
			logger.Debug("发送失败，等待超时重传", "gene", g.ID(), "error", err)
		}
		g.Release()
		sent++
	}

	if limited && !f.queue.Empty() {
		f.ctrl.OnCapacityLimited()
	}
	return sent
}

// Process 实现 Scheduler
func (f *FlowControl) Process(sender interfaces.NetSender, elapsed time.Duration) bool {
	if f.closed.Load() {
		return false
	}
	return f.ctrl.Process(sender, elapsed)
}

// Acked 实现 Scheduler
func (f *FlowControl) Acked(g *gene.Gene) (time.Duration, bool) {
	return f.ctrl.RemoveInFlight(g)
}

// LossDetected 实现 Scheduler
func (f *FlowControl) LossDetected(g *gene.Gene) {
	f.ctrl.LossDetected(g)
}

// Pending 实现 Scheduler
func (f *FlowControl) Pending() int {
	return f.queue.Len()
}

// Dropped 出队时已不再需要而被丢弃的基因数
func (f *FlowControl) Dropped() uint64 {
	return f.dropped.Load()
}

// Close 实现 Scheduler
func (f *FlowControl) Close() {
	if !f.closed.CompareAndSwap(false, true) {
		return
	}
	f.consumer.Lock()
	f.queue.Drain(func(g *gene.Gene) { g.Release() })
	f.consumer.Unlock()
	f.ctrl.Close()
}
