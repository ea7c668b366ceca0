package interfaces

import (
	"time"

	"github.com/dep2p/go-genet/pkg/types"
)

// ============================================================================
//                              NetSender - 数据报发送
// ============================================================================

// NetSender 原始数据报发送端
//
// 由连接层实现（加密、分帧在其内部完成）。核心只询问"现在能否发送"
// 并交付待发送的字节。Send 返回后 datagram 可能被复用，实现方如需保留必须复制。
type NetSender interface {
	// CanSend 当前是否可以接受更多数据报
	CanSend() bool

	// Send 发送一个数据报
	Send(datagram []byte) error
}

// ============================================================================
//                              Connection - 连接抽象
// ============================================================================

// Connection 核心所需的最小连接抽象
type Connection interface {
	// ID 连接标识（日志、指标标签）
	ID() string

	// SmoothedRtt 平滑往返时间，0 表示尚无样本
	SmoothedRtt() time.Duration

	// MinRtt 观测到的最小往返时间，0 表示尚无样本
	MinRtt() time.Duration

	// RetransmissionTimeout 当前重传超时
	RetransmissionTimeout() time.Duration

	// IsActive 连接是否仍然活跃
	IsActive() bool

	// Touch 更新最后活动时间
	Touch()

	// Deliver 投递没有等待方也没有处理器认领的完整消息
	Deliver(msg *types.Message)
}

// RttObserver 可接收 RTT 样本的连接（可选实现）
type RttObserver interface {
	ObserveRtt(sample time.Duration)
}

// ============================================================================
//                              AckSink - 确认发送
// ============================================================================

// AckSink 确认子系统
//
// Instant 立即发送单个确认；Defer 进入批量队列，由 I/O 泵按轮次刷新。
type AckSink interface {
	Instant(id types.GeneID)
	Defer(id types.GeneID)
}
