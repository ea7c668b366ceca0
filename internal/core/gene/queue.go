package gene

import "sync/atomic"

// ============================================================================
//                              MPSC 队列
// ============================================================================

type queueNode struct {
	next atomic.Pointer[queueNode]
	gene *Gene
}

// Queue 多生产者单消费者无锁队列
//
// Push 可以从任意协程并发调用；Pop/Drain 只能由单一消费者调用
// （调度器在连接锁内）。生产者交换 head 与链接 next 之间存在短暂窗口，
// 此时 Pop 可能暂时看不到刚入队的元素，下一轮即可取到。
type Queue struct {
	head atomic.Pointer[queueNode]
	tail *queueNode
	size atomic.Int64
}

// NewQueue 创建队列
func NewQueue() *Queue {
	stub := &queueNode{}
	q := &Queue{tail: stub}
	q.head.Store(stub)
	return q
}

// Push 入队
func (q *Queue) Push(g *Gene) {
	n := &queueNode{gene: g}
	prev := q.head.Swap(n)
	prev.next.Store(n)
	q.size.Add(1)
}

// Pop 出队，队列为空时返回 nil
func (q *Queue) Pop() *Gene {
	next := q.tail.next.Load()
	if next == nil {
		return nil
	}
	q.tail = next
	g := next.gene
	next.gene = nil
	q.size.Add(-1)
	return g
}

// Empty 消费者视角下队列是否为空
func (q *Queue) Empty() bool {
	return q.tail.next.Load() == nil
}

// Len 近似长度
func (q *Queue) Len() int {
	return int(q.size.Load())
}

// Drain 弹出所有元素
func (q *Queue) Drain(fn func(g *Gene)) {
	for g := q.Pop(); g != nil; g = q.Pop() {
		fn(g)
	}
}
