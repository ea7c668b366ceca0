// Package rtt 实现往返时间估计
//
// 平滑 RTT 与偏差按 RFC 6298 更新（alpha=1/8，beta=1/4），
// 重传超时为 srtt + 4*rttvar，限制在 [MinRto, MaxRto]。
// 只有发送过一次的基因才产生样本（Karn 规则），由调用方保证。
package rtt

import (
	"sync"
	"time"
)

// Estimator RTT 估计器
type Estimator struct {
	minRto time.Duration
	maxRto time.Duration

	mu      sync.RWMutex
	srtt    time.Duration
	rttvar  time.Duration
	min     time.Duration
	latest  time.Duration
	samples uint64
}

// NewEstimator 创建 RTT 估计器
func NewEstimator(minRto, maxRto time.Duration) *Estimator {
	return &Estimator{minRto: minRto, maxRto: maxRto}
}

// Update 加入一个样本，非正值忽略
func (e *Estimator) Update(sample time.Duration) {
	if sample <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.latest = sample
	e.samples++
	if e.min == 0 || sample < e.min {
		e.min = sample
	}
	if e.samples == 1 {
		e.srtt = sample
		e.rttvar = sample / 2
		return
	}

	diff := e.srtt - sample
	if diff < 0 {
		diff = -diff
	}
	e.rttvar = (3*e.rttvar + diff) / 4
	e.srtt = (7*e.srtt + sample) / 8
}

// Smoothed 平滑 RTT，无样本时为 0
func (e *Estimator) Smoothed() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.srtt
}

// Min 最小 RTT，无样本时为 0
func (e *Estimator) Min() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.min
}

// Latest 最近一次样本
func (e *Estimator) Latest() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latest
}

// Samples 样本数
func (e *Estimator) Samples() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.samples
}

// RTO 当前重传超时，无样本时为 0
func (e *Estimator) RTO() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.samples == 0 {
		return 0
	}
	rto := e.srtt + 4*e.rttvar
	if rto < e.minRto {
		rto = e.minRto
	}
	if e.maxRto > 0 && rto > e.maxRto {
		rto = e.maxRto
	}
	return rto
}

// Reset 清空所有样本
func (e *Estimator) Reset() {
	e.mu.Lock()
	e.srtt, e.rttvar, e.min, e.latest, e.samples = 0, 0, 0, 0, 0
	e.mu.Unlock()
}
