package congestion

import (
	"container/list"
	"time"

	"github.com/dep2p/go-genet/internal/core/gene"
)

// inFlight 已发送未确认的基因，按最近发送时间排序
//
// 所有方法都在 Controller 锁内调用。
type inFlight struct {
	genes  *list.List
	lossQ  *gene.Queue
	serial uint64
}

func newInFlight() *inFlight {
	return &inFlight{
		genes: list.New(),
		lossQ: gene.NewQueue(),
	}
}

func (f *inFlight) len() int {
	return f.genes.Len()
}

// add 记录首次发送并放入链表尾部
func (f *inFlight) add(g *gene.Gene, now time.Time) {
	f.serial++
	g.Stamp(now, f.serial)
	g.SetElement(f.genes.PushBack(g))
}

// remove 从链表移除，不在链表中时返回 false
func (f *inFlight) remove(g *gene.Gene) bool {
	e := g.Element()
	if e == nil {
		return false
	}
	f.genes.Remove(e)
	g.SetElement(nil)
	return true
}

// drop 移除不再需要的基因并释放
func (f *inFlight) drop(g *gene.Gene) {
	if f.remove(g) {
		g.Release()
	}
}

// resend 重新记录发送并移到尾部，返回上一次发送时间
func (f *inFlight) resend(g *gene.Gene, now time.Time) time.Time {
	f.serial++
	prev := g.Stamp(now, f.serial)
	f.genes.MoveToBack(g.Element())
	g.ClearLossDetected()
	return prev
}

// collect 收集需要重传的基因，最多 budget 个
//
// 先处理丢包队列，再从头部扫描超时基因，遇到第一个未到期的即停止。
// 返回的基因已被 Retain，调用方发送后 Release。
// onResend 在每次重传时以上一次发送时间调用。
func (f *inFlight) collect(now time.Time, rto time.Duration, budget int,
	onResend func(prev time.Time)) []*gene.Gene {
	var due []*gene.Gene

	for budget > 0 {
		g := f.lossQ.Pop()
		if g == nil {
			break
		}
		if g.Element() == nil {
			g.ClearLossDetected()
			continue
		}
		if !g.Needed() {
			f.drop(g)
			continue
		}
		onResend(f.resend(g, now))
		g.Retain()
		due = append(due, g)
		budget--
	}

	for e := f.genes.Front(); e != nil && budget > 0; {
		g := e.Value.(*gene.Gene)
		if now.Sub(g.LastSent()) < rto {
			break
		}
		next := e.Next()
		if !g.Needed() {
			f.drop(g)
			e = next
			continue
		}
		onResend(f.resend(g, now))
		g.Retain()
		due = append(due, g)
		budget--
		e = next
	}
	return due
}

// clear 释放全部在途基因
func (f *inFlight) clear() {
	for e := f.genes.Front(); e != nil; {
		next := e.Next()
		g := e.Value.(*gene.Gene)
		f.genes.Remove(e)
		g.SetElement(nil)
		g.Release()
		e = next
	}
	f.lossQ.Drain(func(g *gene.Gene) { g.ClearLossDetected() })
}
