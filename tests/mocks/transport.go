package mocks

import (
	"sync"

	"github.com/dep2p/go-genet/pkg/interfaces"
)

// 确保实现接口
var _ interfaces.NetSender = (*MockSender)(nil)

// MockSender 模拟 NetSender 接口实现
//
// 默认总是可发送，并把发送的数据报拷贝记录下来。
type MockSender struct {
	// 可覆盖的方法
	CanSendFunc func() bool
	SendFunc    func(datagram []byte) error

	mu    sync.Mutex
	sent  [][]byte
	calls int
}

// NewMockSender 创建 MockSender
func NewMockSender() *MockSender {
	return &MockSender{}
}

// CanSend 是否可以发送
func (m *MockSender) CanSend() bool {
	if m.CanSendFunc != nil {
		return m.CanSendFunc()
	}
	return true
}

// Send 发送数据报
func (m *MockSender) Send(datagram []byte) error {
	m.mu.Lock()
	m.calls++
	m.sent = append(m.sent, append([]byte(nil), datagram...))
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(datagram)
	}
	return nil
}

// Sent 返回已发送的数据报
func (m *MockSender) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// SendCalls 返回 Send 调用次数
func (m *MockSender) SendCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Reset 清空记录
func (m *MockSender) Reset() {
	m.mu.Lock()
	m.sent = nil
	m.calls = 0
	m.mu.Unlock()
}
