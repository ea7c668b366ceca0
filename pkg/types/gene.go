package types

import "fmt"

// ============================================================================
//                              TransmissionID - 传输标识
// ============================================================================

// TransmissionID 连接内唯一的传输标识
//
// 主动拨号方分配奇数 ID，被动接受方分配偶数 ID，
// 双方可以在同一连接上并发提交而不会冲突。
// 同一 ID 不会在请求/响应之间复用。
type TransmissionID uint32

// String 返回传输标识的字符串表示
func (id TransmissionID) String() string {
	return fmt.Sprintf("t%d", uint32(id))
}

// ============================================================================
//                              GeneID - 基因标识
// ============================================================================

// GeneID 唯一定位一个基因：所属传输 + 序列位置
type GeneID struct {
	Transmission TransmissionID
	Position     int
}

// String 返回基因标识的字符串表示
func (id GeneID) String() string {
	return fmt.Sprintf("%s/%d", id.Transmission, id.Position)
}

// ============================================================================
//                              TransmissionMode - 传输模式
// ============================================================================

// TransmissionMode 传输模式
//
// 模式由首个基因携带的元数据决定，整个生命周期内不变。
type TransmissionMode uint8

const (
	// ModeUnknown 尚未确定模式（未收到任何基因）
	ModeUnknown TransmissionMode = iota
	// ModeRama 不超过 3 个基因的快速路径，使用固定槽位
	ModeRama
	// ModeBlock 已知总数（大于 3）的块传输
	ModeBlock
	// ModeStream 总数未知的开放流，以零长度基因结束
	ModeStream
)

// RamaMaxGenes Rama 模式最多容纳的基因数
const RamaMaxGenes = 3

// String 返回模式的字符串表示
func (m TransmissionMode) String() string {
	switch m {
	case ModeRama:
		return "rama"
	case ModeBlock:
		return "block"
	case ModeStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Valid 模式是否为已知的三种之一
func (m TransmissionMode) Valid() bool {
	return m == ModeRama || m == ModeBlock || m == ModeStream
}

// ============================================================================
//                              GeneState - 基因状态
// ============================================================================

// GeneState 基因的投递状态
type GeneState uint8

const (
	// GeneInitial 刚创建，尚未写入/发送
	GeneInitial GeneState = iota
	// GeneValid 已写入有效负载（接收侧）或已发出（发送侧）
	GeneValid
	// GeneComplete 已确认（发送侧）或已被消费（接收侧）
	GeneComplete
	// GeneCancel 所属传输已取消或释放
	GeneCancel
)

// String 返回状态的字符串表示
func (s GeneState) String() string {
	switch s {
	case GeneInitial:
		return "initial"
	case GeneValid:
		return "valid"
	case GeneComplete:
		return "complete"
	case GeneCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              数据标签
// ============================================================================

// DataKind 数据类型标签（首个基因头部 4 字节）
type DataKind uint32

// DataID 数据标识（首个基因头部 8 字节）
type DataID uint64
