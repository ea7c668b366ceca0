package types

// ============================================================================
//                              Outcome - 结果
// ============================================================================

// Outcome 交付给等待方的显式结果
//
// 丢包、重传、关闭、取消都通过 Outcome 表达，不使用 error。
type Outcome uint8

const (
	// OutcomePending 尚未有结果
	OutcomePending Outcome = iota
	// OutcomeOK 成功（接收完成 / 全部确认 / 读到数据）
	OutcomeOK
	// OutcomeComplete 流已结束（读到最大长度或终止基因），没有更多数据
	OutcomeComplete
	// OutcomeClosed 连接失活或传输在完成前被释放
	OutcomeClosed
	// OutcomeCanceled 调用方取消
	OutcomeCanceled
)

// String 返回结果的字符串表示
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeOK:
		return "ok"
	case OutcomeComplete:
		return "complete"
	case OutcomeClosed:
		return "closed"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Terminal 是否为终止性结果
func (o Outcome) Terminal() bool {
	return o == OutcomeComplete || o == OutcomeClosed || o == OutcomeCanceled
}

// ============================================================================
//                              Message - 重组后的消息
// ============================================================================

// Message 重组完成的 Rama/Block 传输
type Message struct {
	// Transmission 来源传输
	Transmission TransmissionID

	// Mode 传输模式
	Mode TransmissionMode

	// Kind 数据类型标签
	Kind DataKind

	// ID 数据标识
	ID DataID

	// Payload 去掉 12 字节头部后的原始负载
	Payload []byte
}
