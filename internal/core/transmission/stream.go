package transmission

import (
	"context"
	"fmt"
	"sync"

	"github.com/dep2p/go-genet/internal/core/gene"
	"github.com/dep2p/go-genet/internal/core/reassembly"
	"github.com/dep2p/go-genet/pkg/types"
)

// StreamHandle 流式接收端
type StreamHandle = reassembly.StreamHandle

// ============================================================================
//                              SendStream
// ============================================================================

// SendStream 流式发送端
//
// 写入的数据按基因容量切分，满一个基因即入队；未确认的流基因达到
// 发送窗口时 Write 以指数退避等待。Close 发送剩余数据与零长度终止基因。
type SendStream struct {
	m   *Manager
	st  *SendTransmission
	hdr gene.Header

	mu      sync.Mutex
	buf     []byte
	pos     int
	closed  bool
	written int64
}

// ID 传输标识
func (s *SendStream) ID() types.TransmissionID {
	return s.st.id
}

// Transmission 底层发送传输
func (s *SendStream) Transmission() *SendTransmission {
	return s.st
}

// Written 已写入的字节数
func (s *SendStream) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// capacity 当前基因可容纳的应用数据（锁内）
func (s *SendStream) capacity() int {
	if s.pos == 0 {
		return s.m.cfg.Transmission.FirstDataCapacity()
	}
	return s.m.cfg.Transmission.GeneSize
}

// Write 写入数据，返回已接受的字节数
func (s *SendStream) Write(ctx context.Context, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.st.IsActive() {
		return 0, ErrStreamClosed
	}

	n := 0
	for len(p) > 0 {
		take := s.capacity() - len(s.buf)
		if take > len(p) {
			take = len(p)
		}
		s.buf = append(s.buf, p[:take]...)
		p = p[take:]
		n += take
		s.written += int64(take)

		if len(s.buf) == s.capacity() {
			if err := s.emit(ctx); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// Flush 把不足一个基因的缓冲数据立即入队
func (s *SendStream) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	if len(s.buf) == 0 {
		return nil
	}
	return s.emit(ctx)
}

// Close 发送剩余数据与终止基因
//
// 返回后传输在所有基因确认时结束，用 Transmission().Wait 等待。
func (s *SendStream) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if len(s.buf) > 0 || s.pos == 0 {
		if err := s.emit(ctx); err != nil {
			return err
		}
	}
	if err := s.emit(ctx); err != nil {
		return err
	}
	s.st.seal(s.pos)
	return nil
}

// emit 缓冲数据作为下一个基因入队（锁内）
func (s *SendStream) emit(ctx context.Context) error {
	if err := s.waitWindow(ctx); err != nil {
		return err
	}

	var hdr *gene.Header
	if s.pos == 0 {
		hdr = &s.hdr
	}
	id := types.GeneID{Transmission: s.st.id, Position: s.pos}
	g, err := gene.New(s.m.pool, s.st, id, types.ModeStream, -1, hdr, s.buf)
	if err != nil {
		return fmt.Errorf("build stream gene %s: %w", id, err)
	}
	s.st.add(g)
	s.m.flow.Enqueue(g)
	s.pos++
	s.buf = s.buf[:0]
	return nil
}

// waitWindow 等待未确认基因数低于发送窗口
func (s *SendStream) waitWindow(ctx context.Context) error {
	cfg := s.m.cfg.Stream
	delay := cfg.InitialReceiveStreamDelay.Duration()
	for s.st.Unacked() >= cfg.SendWindow {
		if !s.st.IsActive() {
			if s.m.Closed() {
				return ErrManagerClosed
			}
			return ErrStreamClosed
		}

		timer := s.m.clock.Timer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.st.done:
			timer.Stop()
		case <-timer.C:
		}

		delay *= 2
		if ceiling := cfg.MaxReceiveStreamDelay.Duration(); delay > ceiling {
			delay = ceiling
		}
	}
	if !s.st.IsActive() {
		return ErrStreamClosed
	}
	return nil
}
