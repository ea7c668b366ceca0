package congestion

import (
	"sync/atomic"
	"time"
)

// hystart 基于最小 RTT 上升的慢启动退出检测
//
// 每一轮为一个 srtt。AddRtt 可以从任意协程调用，
// 用 CAS 循环维护本轮最小值；update 在 Controller 锁内调用。
type hystart struct {
	minSamples int
	etaMin     int64
	etaMax     int64

	currentMin atomic.Int64 // 微秒，0 表示本轮暂无样本
	samples    atomic.Int32

	prevMin    int64
	roundStart time.Time
}

func newHystart(minSamples int, etaMin, etaMax time.Duration) *hystart {
	return &hystart{
		minSamples: minSamples,
		etaMin:     etaMin.Microseconds(),
		etaMax:     etaMax.Microseconds(),
	}
}

// addRtt 记录一个 RTT 样本
func (h *hystart) addRtt(mics int64) {
	if mics <= 0 {
		return
	}
	h.samples.Add(1)
	for {
		cur := h.currentMin.Load()
		if cur != 0 && cur <= mics {
			return
		}
		if h.currentMin.CompareAndSwap(cur, mics) {
			return
		}
	}
}

// eta 延迟上升阈值：currentMin/8 夹到 [etaMin, etaMax]
func (h *hystart) eta(currentMin int64) int64 {
	eta := currentMin / 8
	if eta < h.etaMin {
		eta = h.etaMin
	}
	if eta > h.etaMax {
		eta = h.etaMax
	}
	return eta
}

// update 返回是否应退出慢启动
func (h *hystart) update(now time.Time, srtt time.Duration) bool {
	if h.roundStart.IsZero() {
		h.roundStart = now
	}

	cur := h.currentMin.Load()
	if int(h.samples.Load()) >= h.minSamples && cur > 0 && h.prevMin > 0 {
		if cur-h.prevMin > h.eta(cur) {
			return true
		}
	}

	if now.Sub(h.roundStart) >= srtt {
		if cur > 0 {
			h.prevMin = cur
		}
		h.currentMin.Store(0)
		h.samples.Store(0)
		h.roundStart = now
	}
	return false
}
