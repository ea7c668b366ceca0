package genet

import (
	"github.com/dep2p/go-genet/internal/core/eventbus"
	"github.com/dep2p/go-genet/internal/core/transmission"
	"github.com/dep2p/go-genet/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              引擎状态
// ════════════════════════════════════════════════════════════════════════════

// EngineState 引擎状态
type EngineState int

const (
	// StateIdle 已创建，未启动
	StateIdle EngineState = iota

	// StateRunning 运行中
	StateRunning

	// StateStopped 已停止，不可重新启动
	StateStopped

	// StateClosed 已关闭
	StateClosed
)

// String 返回状态的字符串表示
func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              类型别名
// ════════════════════════════════════════════════════════════════════════════

type (
	// Role 连接角色
	Role = transmission.Role

	// Message 完整消息
	Message = types.Message

	// Outcome 传输结果
	Outcome = types.Outcome

	// SendTransmission 发送传输
	SendTransmission = transmission.SendTransmission

	// SendStream 流式发送端
	SendStream = transmission.SendStream

	// StreamHandle 流式接收端
	StreamHandle = transmission.StreamHandle

	// EvtSessionOpened 会话已打开事件
	EvtSessionOpened = eventbus.EvtSessionOpened

	// EvtSessionClosed 会话已关闭事件
	EvtSessionClosed = eventbus.EvtSessionClosed

	// EvtTransmissionFinished 发送传输结束事件
	EvtTransmissionFinished = eventbus.EvtTransmissionFinished
)

const (
	// RoleDialer 主动拨号方
	RoleDialer = transmission.RoleDialer

	// RoleListener 被动接受方
	RoleListener = transmission.RoleListener
)
