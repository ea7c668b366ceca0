package eventbus

import (
	"github.com/dep2p/go-genet/pkg/types"
)

// ============================================================================
// 引擎事件
// ============================================================================

// EvtSessionOpened 会话已打开
type EvtSessionOpened struct {
	Conn string
	Role string
}

// EvtSessionClosed 会话已关闭（连接失活被泵注销，或引擎关闭）
type EvtSessionClosed struct {
	Conn   string
	Reason string
}

// EvtTransmissionFinished 发送传输结束
type EvtTransmissionFinished struct {
	Conn         string
	Transmission types.TransmissionID
	Mode         types.TransmissionMode
	Outcome      types.Outcome
}
