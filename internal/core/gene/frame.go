package gene

import (
	"encoding/binary"
	"fmt"

	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/pkg/types"
)

// 帧类型
const (
	FrameData byte = 1
	FrameAck  byte = 2
)

const (
	// HeaderSize 第 0 个基因的数据头长度
	HeaderSize = config.HeaderSize

	// DataFrameOverhead 数据帧固定头长度
	DataFrameOverhead = 1 + 4 + 4 + 1 + 4

	// AckFrameOverhead 确认帧固定头长度
	AckFrameOverhead = 1 + 2

	ackEntrySize = 8
	maxAckCount  = 1<<16 - 1
)

// ============================================================================
//                              数据头
// ============================================================================

// Header 第 0 个基因携带的数据头
type Header struct {
	Kind types.DataKind
	ID   types.DataID
}

// PutHeader 将数据头写入 dst，dst 至少 HeaderSize 字节
func PutHeader(dst []byte, h Header) {
	binary.BigEndian.PutUint32(dst[0:4], uint32(h.Kind))
	binary.BigEndian.PutUint64(dst[4:12], uint64(h.ID))
}

// ParseHeader 解析第 0 个基因负载开头的数据头
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	return Header{
		Kind: types.DataKind(binary.BigEndian.Uint32(b[0:4])),
		ID:   types.DataID(binary.BigEndian.Uint64(b[4:12])),
	}, nil
}

// ============================================================================
//                              数据帧
// ============================================================================

// DataFrame 解码后的数据帧
//
// Payload 引用原始数据报，不做拷贝。
type DataFrame struct {
	Transmission types.TransmissionID
	Position     int
	Mode         types.TransmissionMode
	Total        int
	Payload      []byte
}

// ID 返回基因标识
func (f DataFrame) ID() types.GeneID {
	return types.GeneID{Transmission: f.Transmission, Position: f.Position}
}

// PutDataFrameHeader 写入数据帧头，返回写入的字节数
func PutDataFrameHeader(dst []byte, id types.GeneID, mode types.TransmissionMode, total int) int {
	dst[0] = FrameData
	binary.BigEndian.PutUint32(dst[1:5], uint32(id.Transmission))
	binary.BigEndian.PutUint32(dst[5:9], uint32(id.Position))
	dst[9] = byte(mode)
	binary.BigEndian.PutUint32(dst[10:14], uint32(int32(total)))
	return DataFrameOverhead
}

// ParseDataFrame 解析数据帧
func ParseDataFrame(b []byte) (DataFrame, error) {
	if len(b) < DataFrameOverhead {
		return DataFrame{}, ErrShortFrame
	}
	if b[0] != FrameData {
		return DataFrame{}, fmt.Errorf("%w: %d", ErrUnknownFrame, b[0])
	}
	return DataFrame{
		Transmission: types.TransmissionID(binary.BigEndian.Uint32(b[1:5])),
		Position:     int(binary.BigEndian.Uint32(b[5:9])),
		Mode:         types.TransmissionMode(b[9]),
		Total:        int(int32(binary.BigEndian.Uint32(b[10:14]))),
		Payload:      b[DataFrameOverhead:],
	}, nil
}

// ============================================================================
//                              确认帧
// ============================================================================

// MaxAcksPerFrame 返回给定数据报上限内最多能放下的确认条目
func MaxAcksPerFrame(mtu int) int {
	n := (mtu - AckFrameOverhead) / ackEntrySize
	if n > maxAckCount {
		n = maxAckCount
	}
	if n < 1 {
		n = 1
	}
	return n
}

// AppendAckFrame 将确认帧追加到 dst
//
// 条目超过 u16 上限的部分被忽略，调用方应按 MaxAcksPerFrame 分批。
func AppendAckFrame(dst []byte, ids []types.GeneID) []byte {
	if len(ids) > maxAckCount {
		ids = ids[:maxAckCount]
	}
	dst = append(dst, FrameAck)
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(ids)))
	for _, id := range ids {
		dst = binary.BigEndian.AppendUint32(dst, uint32(id.Transmission))
		dst = binary.BigEndian.AppendUint32(dst, uint32(id.Position))
	}
	return dst
}

// ParseAckFrame 解析确认帧，条目追加到 dst
func ParseAckFrame(dst []types.GeneID, b []byte) ([]types.GeneID, error) {
	if len(b) < AckFrameOverhead {
		return dst, ErrShortFrame
	}
	if b[0] != FrameAck {
		return dst, fmt.Errorf("%w: %d", ErrUnknownFrame, b[0])
	}
	count := int(binary.BigEndian.Uint16(b[1:3]))
	body := b[AckFrameOverhead:]
	if len(body) < count*ackEntrySize {
		return dst, ErrShortFrame
	}
	for i := 0; i < count; i++ {
		e := body[i*ackEntrySize:]
		dst = append(dst, types.GeneID{
			Transmission: types.TransmissionID(binary.BigEndian.Uint32(e[0:4])),
			Position:     int(binary.BigEndian.Uint32(e[4:8])),
		})
	}
	return dst, nil
}

// Kind 返回数据报的帧类型
func Kind(b []byte) (byte, error) {
	if len(b) == 0 {
		return 0, ErrShortFrame
	}
	switch b[0] {
	case FrameData, FrameAck:
		return b[0], nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownFrame, b[0])
	}
}
