// Package acker 实现确认批量发送
//
// 单基因 Rama 完成时的确认立即发送；其余确认进入批量队列，
// 由 I/O 泵在每轮结束时打包成确认帧刷新。
package acker

import (
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-genet/internal/core/gene"
	"github.com/dep2p/go-genet/pkg/interfaces"
	"github.com/dep2p/go-genet/pkg/lib/log"
	"github.com/dep2p/go-genet/pkg/types"
)

var logger = log.Logger("core/acker")

// 确保实现接口
var _ interfaces.AckSink = (*Acker)(nil)

// Acker 确认批量器
type Acker struct {
	sender   interfaces.NetSender
	perFrame int

	mu      sync.Mutex
	pending []types.GeneID
	frame   []byte

	instant atomic.Uint64
	batched atomic.Uint64
	frames  atomic.Uint64
	failed  atomic.Uint64
}

// New 创建确认批量器，mtu 为单个数据报的字节上限
func New(sender interfaces.NetSender, mtu int) *Acker {
	return &Acker{
		sender:   sender,
		perFrame: gene.MaxAcksPerFrame(mtu),
	}
}

// Instant 实现 AckSink，立即发送单条确认
//
// 发送失败时退回批量队列。
func (a *Acker) Instant(id types.GeneID) {
	frame := gene.AppendAckFrame(make([]byte, 0, gene.AckFrameOverhead+8), []types.GeneID{id})
	if a.sender.CanSend() {
		if err := a.sender.Send(frame); err == nil {
			a.instant.Add(1)
			a.frames.Add(1)
			return
		}
		a.failed.Add(1)
	}
	a.Defer(id)
}

// Defer 实现 AckSink
func (a *Acker) Defer(id types.GeneID) {
	a.mu.Lock()
	a.pending = append(a.pending, id)
	a.mu.Unlock()
}

// Pending 待刷新的确认数
func (a *Acker) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Flush 打包并发送全部待确认条目，返回发送的帧数
//
// 发送器繁忙或发送失败时剩余条目保留到下一轮。
func (a *Acker) Flush() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	sent := 0
	for len(a.pending) > 0 {
		if !a.sender.CanSend() {
			break
		}
		n := len(a.pending)
		if n > a.perFrame {
			n = a.perFrame
		}
		a.frame = gene.AppendAckFrame(a.frame[:0], a.pending[:n])
		if err := a.sender.Send(a.frame); err != nil {
			a.failed.Add(1)
			logger.Debug("确认帧发送失败", "entries", n, "error", err)
			break
		}
		a.pending = a.pending[n:]
		a.batched.Add(uint64(n))
		a.frames.Add(1)
		sent++
	}
	if len(a.pending) == 0 {
		a.pending = a.pending[:0:0]
	}
	return sent
}

// Stats 确认统计
type Stats struct {
	Instant uint64
	Batched uint64
	Frames  uint64
	Failed  uint64
}

// Stats 返回确认统计
func (a *Acker) Stats() Stats {
	return Stats{
		Instant: a.instant.Load(),
		Batched: a.batched.Load(),
		Frames:  a.frames.Load(),
		Failed:  a.failed.Load(),
	}
}
