package reassembly

import (
	"context"

	"github.com/dep2p/go-genet/internal/core/gene"
	"github.com/dep2p/go-genet/pkg/types"
)

// ============================================================================
//                              StreamHandle
// ============================================================================

// StreamHandle 流式接收的读取端
type StreamHandle struct {
	rt *ReceiveTransmission
}

// OpenStream 以读者身份打开流，maxLength 大于 0 时读到该长度即结束
func (rt *ReceiveTransmission) OpenStream(maxLength int64) *StreamHandle {
	rt.mu.Lock()
	rt.awaited = true
	rt.announced = true
	rt.maxLength = maxLength
	rt.mu.Unlock()
	return &StreamHandle{rt: rt}
}

// Transmission 所属传输
func (s *StreamHandle) Transmission() *ReceiveTransmission {
	return s.rt
}

// ID 传输标识
func (s *StreamHandle) ID() types.TransmissionID {
	return s.rt.id
}

// Header 流的数据头，第 0 个基因到达前不可用
func (s *StreamHandle) Header() (gene.Header, bool) {
	return s.rt.Header()
}

// BytesRead 已读取的字节数
func (s *StreamHandle) BytesRead() int64 {
	s.rt.mu.Lock()
	defer s.rt.mu.Unlock()
	return s.rt.readBytes
}

// TryRead 非阻塞读取
//
// 返回 OK 与读取字节数；暂无数据返回 Pending；流已结束返回 Complete；
// 传输被释放返回 Closed。
func (s *StreamHandle) TryRead(buf []byte) (types.Outcome, int) {
	o, n, finished := s.rt.read(buf)
	if finished {
		s.rt.host.Detach(s.rt)
	}
	return o, n
}

// Read 阻塞读取，数据未到达时以指数退避轮询
func (s *StreamHandle) Read(ctx context.Context, buf []byte) (types.Outcome, int) {
	if len(buf) == 0 {
		return types.OutcomeOK, 0
	}

	opts := s.rt.opts
	delay := opts.InitialDelay
	for {
		o, n := s.TryRead(buf)
		if o != types.OutcomePending {
			return o, n
		}
		if !s.rt.host.IsActive() {
			s.rt.Dispose()
			s.rt.host.Detach(s.rt)
			return types.OutcomeClosed, 0
		}

		timer := opts.Clock.Timer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return types.OutcomeCanceled, 0
		case <-s.rt.done:
			timer.Stop()
		case <-timer.C:
		}

		delay *= 2
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}
}

// Complete 读者提前结束，释放窗口内剩余基因
func (s *StreamHandle) Complete() {
	rt := s.rt
	rt.mu.Lock()
	first := !rt.complete && !rt.disposed
	if first {
		rt.finishLocked()
	}
	rt.mu.Unlock()

	if first {
		rt.host.Detach(rt)
	}
}

// ============================================================================
//                              窗口消费
// ============================================================================

// read 从窗口起点按序拷贝，消费完的基因释放槽位并推进窗口
func (rt *ReceiveTransmission) read(buf []byte) (types.Outcome, int, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.complete {
		return types.OutcomeComplete, 0, false
	}
	if rt.disposed {
		return types.OutcomeClosed, 0, false
	}
	if rt.mode != types.ModeUnknown && rt.mode != types.ModeStream {
		return types.OutcomeClosed, 0, false
	}

	n := 0
	for n < len(buf) && rt.mode == types.ModeStream && !rt.streamEnded() {
		idx := rt.base % len(rt.window)
		g := rt.window[idx]
		if g == nil || g.position != rt.base {
			break
		}
		data := g.payload
		if rt.base == 0 {
			data = data[gene.HeaderSize:]
		}

		chunk := data[rt.readOffset:]
		if rt.maxLength > 0 {
			if rem := rt.maxLength - rt.readBytes; int64(len(chunk)) > rem {
				chunk = chunk[:rem]
			}
		}
		c := copy(buf[n:], chunk)
		n += c
		rt.readOffset += c
		rt.readBytes += int64(c)

		if rt.readOffset >= len(data) {
			g.complete()
			rt.window[idx] = nil
			rt.base++
			rt.readOffset = 0
		}
	}

	finished := rt.mode == types.ModeStream && rt.streamEnded()
	if finished {
		rt.finishLocked()
	}

	switch {
	case n > 0:
		return types.OutcomeOK, n, finished
	case finished:
		return types.OutcomeComplete, 0, true
	default:
		return types.OutcomePending, 0, false
	}
}

// streamEnded 读到最大长度或到达终止基因（锁内）
func (rt *ReceiveTransmission) streamEnded() bool {
	if rt.maxLength > 0 && rt.readBytes >= rt.maxLength {
		return true
	}
	return rt.terminal >= 0 && rt.base >= rt.terminal
}

// finishLocked 流结束（锁内）
func (rt *ReceiveTransmission) finishLocked() {
	rt.complete = true
	rt.outcome = types.OutcomeComplete
	rt.releaseAll()
	close(rt.done)
}
