package gene

import (
	"github.com/dep2p/go-genet/internal/core/bufpool"
	"github.com/dep2p/go-genet/pkg/types"
)

// GeneCount 返回长度为 n 的消息需要的基因数
//
// 第 0 个基因的容量要扣除数据头。
func GeneCount(n, geneSize int) int {
	first := geneSize - HeaderSize
	if n <= first {
		return 1
	}
	rest := n - first
	return 1 + (rest+geneSize-1)/geneSize
}

// ModeFor 根据基因数选择传输模式
func ModeFor(count int) types.TransmissionMode {
	if count <= types.RamaMaxGenes {
		return types.ModeRama
	}
	return types.ModeBlock
}

// Chunk 返回第 pos 个基因在 payload 中的切片
func Chunk(payload []byte, pos, geneSize int) []byte {
	first := geneSize - HeaderSize
	if pos == 0 {
		if len(payload) < first {
			return payload
		}
		return payload[:first]
	}
	start := first + (pos-1)*geneSize
	if start >= len(payload) {
		return nil
	}
	end := start + geneSize
	if end > len(payload) {
		end = len(payload)
	}
	return payload[start:end]
}

// Split 将消息切分为基因
//
// 缓冲从 pool 获取，pool 的容量至少为 geneSize + DataFrameOverhead。
// 出错时已创建的基因会被释放。
func Split(pool *bufpool.Pool, owner Owner, tid types.TransmissionID, hdr Header,
	payload []byte, geneSize int) ([]*Gene, error) {
	count := GeneCount(len(payload), geneSize)
	mode := ModeFor(count)

	genes := make([]*Gene, 0, count)
	for pos := 0; pos < count; pos++ {
		var h *Header
		if pos == 0 {
			h = &hdr
		}
		id := types.GeneID{Transmission: tid, Position: pos}
		g, err := New(pool, owner, id, mode, count, h, Chunk(payload, pos, geneSize))
		if err != nil {
			for _, made := range genes {
				made.Release()
			}
			return nil, err
		}
		genes = append(genes, g)
	}
	return genes, nil
}
