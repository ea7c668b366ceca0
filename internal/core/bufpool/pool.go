// Package bufpool 提供引用计数的基因缓冲池
//
// 缓冲池作为显式依赖注入到每个需要分配/归还缓冲的组件中，
// 不存在包级全局池。
//
// # 所有权
//
//	buf := pool.Acquire()   // refs = 1
//	buf.Retain()            // refs = 2，例如交给重传队列
//	buf.Release()           // refs = 1
//	buf.Release()           // refs = 0，归还池中
//	buf.Release()           // 已归零，忽略
//
// 归零之后的 Release 是幂等的，不会重复归还。
// 池的健康状况由 Outstanding() 观测（尚未归还的缓冲数）。
package bufpool

import (
	"sync"
	"sync/atomic"
)

// ============================================================================
//                              Pool
// ============================================================================

// Pool 固定容量缓冲池
type Pool struct {
	size        int
	pool        sync.Pool
	outstanding atomic.Int64
}

// New 创建缓冲池，每个缓冲容量为 size 字节
func New(size int) *Pool {
	p := &Pool{size: size}
	p.pool.New = func() any {
		return &Buffer{data: make([]byte, size)}
	}
	return p
}

// Size 返回缓冲容量
func (p *Pool) Size() int {
	return p.size
}

// Acquire 取出一个缓冲，引用计数为 1，长度为 0
func (p *Pool) Acquire() *Buffer {
	b := p.pool.Get().(*Buffer)
	b.pool = p
	b.n = 0
	b.refs.Store(1)
	p.outstanding.Add(1)
	return b
}

// Copy 取出缓冲并复制 data（超出容量的部分被截断）
func (p *Pool) Copy(data []byte) *Buffer {
	b := p.Acquire()
	b.n = copy(b.data, data)
	return b
}

// Outstanding 尚未归还的缓冲数
func (p *Pool) Outstanding() int64 {
	return p.outstanding.Load()
}

func (p *Pool) put(b *Buffer) {
	p.outstanding.Add(-1)
	p.pool.Put(b)
}

// ============================================================================
//                              Buffer
// ============================================================================

// Buffer 引用计数缓冲
type Buffer struct {
	pool *Pool
	data []byte
	n    int
	refs atomic.Int32
}

// Wrap 包装外部字节切片，不属于任何池
//
// Release 归零后只是断开引用。
func Wrap(data []byte) *Buffer {
	b := &Buffer{data: data, n: len(data)}
	b.refs.Store(1)
	return b
}

// Bytes 返回有效数据
func (b *Buffer) Bytes() []byte {
	return b.data[:b.n]
}

// Len 返回有效数据长度
func (b *Buffer) Len() int {
	return b.n
}

// Cap 返回缓冲容量
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Space 返回完整容量的可写切片
func (b *Buffer) Space() []byte {
	return b.data
}

// SetLen 设置有效数据长度
func (b *Buffer) SetLen(n int) {
	if n < 0 {
		n = 0
	}
	if n > len(b.data) {
		n = len(b.data)
	}
	b.n = n
}

// Refs 返回当前引用计数
func (b *Buffer) Refs() int32 {
	return b.refs.Load()
}

// Retain 增加引用计数
func (b *Buffer) Retain() *Buffer {
	b.refs.Add(1)
	return b
}

// Release 减少引用计数，归零时归还池中
//
// 计数已经为零时调用是安全的空操作。
func (b *Buffer) Release() {
	for {
		refs := b.refs.Load()
		if refs <= 0 {
			return
		}
		if b.refs.CompareAndSwap(refs, refs-1) {
			if refs == 1 && b.pool != nil {
				b.pool.put(b)
			}
			return
		}
	}
}
