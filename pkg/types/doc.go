// Package types 定义 genet 的公共数据结构
//
// 这是最底层包，不依赖任何其他内部包。所有类型都是值类型，
// 用于在传输核心各模块之间以及与调用方之间传递数据。
//
// # 文件组织
//
//   - gene.go         - TransmissionID, GeneID, TransmissionMode, GeneState
//   - transmission.go - DataKind, DataID, Outcome, Message
//
// # 标识
//
// TransmissionID 在一条连接内唯一，奇偶性由角色决定（拨号方奇数，接受方偶数），
// 因此双方可以各自分配而不冲突。GeneID 由传输 ID 与基因序号组成。
//
// # 使用示例
//
//	import "github.com/dep2p/go-genet/pkg/types"
//
//	id := types.GeneID{Transmission: 4, Position: 0}
//	if outcome.Terminal() {
//	    // 传输已结束
//	}
package types
