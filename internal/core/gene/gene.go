package gene

import (
	"container/list"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-genet/internal/core/bufpool"
	"github.com/dep2p/go-genet/pkg/interfaces"
	"github.com/dep2p/go-genet/pkg/types"
)

// Owner 基因所属的发送传输
type Owner interface {
	// IsActive 传输是否仍需要它的基因（未取消、未关闭）
	IsActive() bool

	// OnGeneAcked 基因被确认，每个基因最多调用一次
	OnGeneAcked(g *Gene)
}

// ============================================================================
//                              Gene
// ============================================================================

// Gene 发送端基因
//
// 编码好的数据帧保存在引用计数缓冲中，发送与重传直接复用。
// 时间戳、发送次数和序号只在所属调度器的锁内读写；
// 确认与丢包标记是原子的，可以从任意协程设置。
type Gene struct {
	id    types.GeneID
	mode  types.TransmissionMode
	total int
	size  int
	frame *bufpool.Buffer
	owner Owner

	firstSent time.Time
	lastSent  time.Time
	sendCount int
	serial    uint64
	elem      *list.Element

	acked        atomic.Bool
	lossDetected atomic.Bool
}

// New 创建基因并编码数据帧
//
// hdr 非空时（第 0 个基因）在负载前写入数据头。
// total 为 -1 表示总数未知（Stream）。
func New(pool *bufpool.Pool, owner Owner, id types.GeneID, mode types.TransmissionMode,
	total int, hdr *Header, chunk []byte) (*Gene, error) {
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}

	need := DataFrameOverhead + len(chunk)
	if hdr != nil {
		need += HeaderSize
	}
	if need > pool.Size() {
		return nil, ErrGeneTooLarge
	}

	buf := pool.Acquire()
	space := buf.Space()
	n := PutDataFrameHeader(space, id, mode, total)
	if hdr != nil {
		PutHeader(space[n:], *hdr)
		n += HeaderSize
	}
	n += copy(space[n:], chunk)
	buf.SetLen(n)

	return &Gene{
		id:    id,
		mode:  mode,
		total: total,
		size:  n - DataFrameOverhead,
		frame: buf,
		owner: owner,
	}, nil
}

// ID 基因标识
func (g *Gene) ID() types.GeneID {
	return g.id
}

// Mode 传输模式
func (g *Gene) Mode() types.TransmissionMode {
	return g.mode
}

// Total 传输总基因数，-1 表示未知
func (g *Gene) Total() int {
	return g.total
}

// Size 负载长度（第 0 个基因包含数据头）
func (g *Gene) Size() int {
	return g.size
}

// Terminal 是否为流的终止基因
func (g *Gene) Terminal() bool {
	return g.mode == types.ModeStream && g.id.Position > 0 && g.size == 0
}

// Frame 编码后的数据帧
func (g *Gene) Frame() []byte {
	return g.frame.Bytes()
}

// Owner 所属传输
func (g *Gene) Owner() Owner {
	return g.owner
}

// Needed 基因是否仍需发送
func (g *Gene) Needed() bool {
	if g.acked.Load() {
		return false
	}
	return g.owner == nil || g.owner.IsActive()
}

// Acked 是否已确认
func (g *Gene) Acked() bool {
	return g.acked.Load()
}

// MarkAcked 标记已确认，只有第一次调用返回 true
func (g *Gene) MarkAcked() bool {
	return g.acked.CompareAndSwap(false, true)
}

// MarkLossDetected 标记检测到丢包，已标记时返回 false
func (g *Gene) MarkLossDetected() bool {
	return g.lossDetected.CompareAndSwap(false, true)
}

// ClearLossDetected 重传后清除丢包标记
func (g *Gene) ClearLossDetected() {
	g.lossDetected.Store(false)
}

// LossDetected 是否处于已检测丢包状态
func (g *Gene) LossDetected() bool {
	return g.lossDetected.Load()
}

// ============================================================================
//                              调度状态（调度器锁内）
// ============================================================================

// Stamp 记录一次发送，返回上一次发送时间（首次发送为零值）
func (g *Gene) Stamp(now time.Time, serial uint64) time.Time {
	prev := g.lastSent
	if g.sendCount == 0 {
		g.firstSent = now
	}
	g.lastSent = now
	g.sendCount++
	g.serial = serial
	return prev
}

// FirstSent 首次发送时间
func (g *Gene) FirstSent() time.Time {
	return g.firstSent
}

// LastSent 最近一次发送时间
func (g *Gene) LastSent() time.Time {
	return g.lastSent
}

// SendCount 发送次数
func (g *Gene) SendCount() int {
	return g.sendCount
}

// Serial 最近一次发送的序号
func (g *Gene) Serial() uint64 {
	return g.serial
}

// RttSample 按 Karn 规则返回 RTT 样本：只对仅发送过一次的基因有效
func (g *Gene) RttSample(now time.Time) (time.Duration, bool) {
	if g.sendCount != 1 {
		return 0, false
	}
	rtt := now.Sub(g.firstSent)
	if rtt <= 0 {
		return 0, false
	}
	return rtt, true
}

// Element 在途链表中的位置
func (g *Gene) Element() *list.Element {
	return g.elem
}

// SetElement 设置在途链表中的位置
func (g *Gene) SetElement(e *list.Element) {
	g.elem = e
}

// ============================================================================
//                              发送与释放
// ============================================================================

// Send 把数据帧交给发送器，不在任何锁内调用
func (g *Gene) Send(sender interfaces.NetSender) error {
	return sender.Send(g.frame.Bytes())
}

// Retain 为锁外发送持有一份数据帧引用，发送后调用 Release
func (g *Gene) Retain() {
	g.frame.Retain()
}

// Release 释放一份数据帧引用
func (g *Gene) Release() {
	g.frame.Release()
}
