package transmission

import (
	"github.com/dep2p/go-genet/internal/core/reassembly"
	"github.com/dep2p/go-genet/pkg/types"
)

// 确保实现接口
var _ reassembly.Host = (*recvHost)(nil)

// recvHost 接收传输回调到管理器
type recvHost struct {
	m *Manager
}

func (h *recvHost) Touch() {
	h.m.conn.Touch()
}

func (h *recvHost) IsActive() bool {
	return !h.m.closed.Load() && h.m.conn.IsActive()
}

func (h *recvHost) Ack(id types.GeneID, instant bool) {
	if instant {
		h.m.acks.Instant(id)
		return
	}
	h.m.acks.Defer(id)
}

func (h *recvHost) Deliver(_ *reassembly.ReceiveTransmission, msg *types.Message) {
	h.m.mu.Lock()
	handler := h.m.handler
	h.m.mu.Unlock()

	if handler != nil {
		go handler(msg)
		return
	}
	h.m.conn.Deliver(msg)
}

func (h *recvHost) Announce(rt *reassembly.ReceiveTransmission) {
	h.m.mu.Lock()
	handler := h.m.streamHandler
	h.m.mu.Unlock()

	if handler == nil {
		logger.Debug("新流等待读者", "transmission", rt.ID())
		return
	}
	s := rt.OpenStream(0)
	go handler(s)
}

func (h *recvHost) Detach(rt *reassembly.ReceiveTransmission) {
	h.m.detach(rt)
}
