package mocks

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-genet/pkg/interfaces"
	"github.com/dep2p/go-genet/pkg/types"
)

// 确保实现接口
var _ interfaces.Connection = (*MockConnection)(nil)

// MockConnection 模拟 Connection 接口实现
type MockConnection struct {
	// 基本属性
	IDValue     string
	Srtt        time.Duration
	Min         time.Duration
	Rto         time.Duration
	Active      atomic.Bool
	TouchCount  atomic.Int64
	RttObserved []time.Duration

	// 可覆盖的方法
	SmoothedRttFunc func() time.Duration
	IsActiveFunc    func() bool
	DeliverFunc     func(msg *types.Message)

	mu        sync.Mutex
	delivered []*types.Message
}

// NewMockConnection 创建带有默认值的 MockConnection
//
// 默认 srtt 与 min RTT 为 10ms，RTO 为 30ms，连接活跃。
func NewMockConnection(id string) *MockConnection {
	m := &MockConnection{
		IDValue: id,
		Srtt:    10 * time.Millisecond,
		Min:     10 * time.Millisecond,
		Rto:     30 * time.Millisecond,
	}
	m.Active.Store(true)
	return m
}

// ID 返回连接 ID
func (m *MockConnection) ID() string {
	return m.IDValue
}

// SmoothedRtt 返回平滑 RTT
func (m *MockConnection) SmoothedRtt() time.Duration {
	if m.SmoothedRttFunc != nil {
		return m.SmoothedRttFunc()
	}
	return m.Srtt
}

// MinRtt 返回最小 RTT
func (m *MockConnection) MinRtt() time.Duration {
	return m.Min
}

// RetransmissionTimeout 返回重传超时
func (m *MockConnection) RetransmissionTimeout() time.Duration {
	return m.Rto
}

// IsActive 检查连接是否活跃
func (m *MockConnection) IsActive() bool {
	if m.IsActiveFunc != nil {
		return m.IsActiveFunc()
	}
	return m.Active.Load()
}

// Touch 记录活动
func (m *MockConnection) Touch() {
	m.TouchCount.Add(1)
}

// ObserveRtt 记录 RTT 样本
func (m *MockConnection) ObserveRtt(sample time.Duration) {
	m.mu.Lock()
	m.RttObserved = append(m.RttObserved, sample)
	m.mu.Unlock()
}

// Deliver 投递完成的消息
func (m *MockConnection) Deliver(msg *types.Message) {
	if m.DeliverFunc != nil {
		m.DeliverFunc(msg)
		return
	}
	m.mu.Lock()
	m.delivered = append(m.delivered, msg)
	m.mu.Unlock()
}

// Delivered 返回已投递的消息
func (m *MockConnection) Delivered() []*types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Message, len(m.delivered))
	copy(out, m.delivered)
	return out
}
