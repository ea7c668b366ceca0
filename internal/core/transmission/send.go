package transmission

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-genet/internal/core/gene"
	"github.com/dep2p/go-genet/pkg/types"
)

// 确保实现接口
var _ gene.Owner = (*SendTransmission)(nil)

// ============================================================================
//                              SendTransmission
// ============================================================================

// SendTransmission 发送传输
//
// 所有基因被确认后以 OK 结束；Cancel 以 Canceled 结束；
// 管理器关闭时以 Closed 结束。结束后剩余基因由调度器在出队或扫描时丢弃。
type SendTransmission struct {
	id       types.TransmissionID
	mode     types.TransmissionMode
	onFinish func(st *SendTransmission)
	done     chan struct{}
	finished atomic.Bool

	mu      sync.Mutex
	genes   map[int]*gene.Gene
	total   int
	unacked int
	sealed  bool
	outcome types.Outcome
}

func newSendTransmission(id types.TransmissionID, mode types.TransmissionMode,
	onFinish func(st *SendTransmission)) *SendTransmission {
	return &SendTransmission{
		id:       id,
		mode:     mode,
		onFinish: onFinish,
		done:     make(chan struct{}),
		genes:    make(map[int]*gene.Gene),
		total:    -1,
	}
}

// ID 传输标识
func (st *SendTransmission) ID() types.TransmissionID {
	return st.id
}

// Mode 传输模式
func (st *SendTransmission) Mode() types.TransmissionMode {
	return st.mode
}

// Total 基因总数，流未关闭前为 -1
func (st *SendTransmission) Total() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.total
}

// Unacked 未确认的基因数
func (st *SendTransmission) Unacked() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.unacked
}

// IsActive 实现 gene.Owner
func (st *SendTransmission) IsActive() bool {
	return !st.finished.Load()
}

// OnGeneAcked 实现 gene.Owner
func (st *SendTransmission) OnGeneAcked(g *gene.Gene) {
	st.mu.Lock()
	if _, ok := st.genes[g.ID().Position]; !ok {
		st.mu.Unlock()
		return
	}
	delete(st.genes, g.ID().Position)
	st.unacked--
	done := st.sealed && st.unacked == 0
	st.mu.Unlock()

	if done {
		st.finish(types.OutcomeOK)
	}
}

// add 登记新基因
func (st *SendTransmission) add(g *gene.Gene) {
	st.mu.Lock()
	st.genes[g.ID().Position] = g
	st.unacked++
	st.mu.Unlock()
}

// seal 不再有新基因，total 为最终基因数
func (st *SendTransmission) seal(total int) {
	st.mu.Lock()
	st.sealed = true
	st.total = total
	done := st.unacked == 0
	st.mu.Unlock()

	if done {
		st.finish(types.OutcomeOK)
	}
}

// gene 按位置查找未确认基因
func (st *SendTransmission) gene(pos int) *gene.Gene {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.genes[pos]
}

// finish 只有第一次调用生效
func (st *SendTransmission) finish(o types.Outcome) bool {
	if !st.finished.CompareAndSwap(false, true) {
		return false
	}
	st.mu.Lock()
	st.outcome = o
	st.genes = make(map[int]*gene.Gene)
	st.mu.Unlock()

	close(st.done)
	if st.onFinish != nil {
		st.onFinish(st)
	}
	return true
}

// Done 结束时关闭
func (st *SendTransmission) Done() <-chan struct{} {
	return st.done
}

// Outcome 当前结果，未结束时为 Pending
func (st *SendTransmission) Outcome() types.Outcome {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.outcome
}

// Wait 等待传输结束，ctx 取消时返回 Canceled 但不取消传输
func (st *SendTransmission) Wait(ctx context.Context) types.Outcome {
	select {
	case <-st.done:
		return st.Outcome()
	case <-ctx.Done():
		return types.OutcomeCanceled
	}
}

// Cancel 取消传输，未发送与未确认的基因不再发送
func (st *SendTransmission) Cancel() {
	if st.finish(types.OutcomeCanceled) {
		logger.Debug("发送传输已取消", "transmission", st.id)
	}
}
