package reassembly

import (
	"github.com/dep2p/go-genet/internal/core/bufpool"
	"github.com/dep2p/go-genet/pkg/types"
)

// ReceiveGene 接收端基因
//
// payload 引用共享数据报缓冲，持有一份引用直到被消费或传输释放。
type ReceiveGene struct {
	position int
	state    types.GeneState
	buf      *bufpool.Buffer
	payload  []byte
}

func newReceiveGene(pos int, payload []byte, buf *bufpool.Buffer) *ReceiveGene {
	if buf != nil {
		buf.Retain()
	}
	return &ReceiveGene{
		position: pos,
		state:    types.GeneValid,
		buf:      buf,
		payload:  payload,
	}
}

// Position 基因位置
func (g *ReceiveGene) Position() int {
	return g.position
}

// State 基因状态
func (g *ReceiveGene) State() types.GeneState {
	return g.state
}

// Payload 基因负载
func (g *ReceiveGene) Payload() []byte {
	return g.payload
}

// complete 基因已被消费
func (g *ReceiveGene) complete() {
	g.release(types.GeneComplete)
}

// cancel 传输释放时丢弃
func (g *ReceiveGene) cancel() {
	g.release(types.GeneCancel)
}

func (g *ReceiveGene) release(state types.GeneState) {
	if g.state != types.GeneValid {
		return
	}
	g.state = state
	g.payload = nil
	if g.buf != nil {
		g.buf.Release()
		g.buf = nil
	}
}
