package reassembly

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/internal/core/bufpool"
	"github.com/dep2p/go-genet/internal/core/gene"
	"github.com/dep2p/go-genet/pkg/lib/log"
	"github.com/dep2p/go-genet/pkg/types"
)

var logger = log.Logger("core/reassembly")

// Host 接收传输所属的连接侧
type Host interface {
	// Touch 更新连接最近活动时间
	Touch()

	// IsActive 连接是否活跃
	IsActive() bool

	// Ack 确认基因，instant 为 true 时立即发送，否则进入批量确认
	Ack(id types.GeneID, instant bool)

	// Deliver 完成的消息没有等待者时交给连接分发
	Deliver(rt *ReceiveTransmission, msg *types.Message)

	// Announce 新的流传输建立且尚无读者
	Announce(rt *ReceiveTransmission)

	// Detach 传输完成或释放，从连接的传输集合中移除
	Detach(rt *ReceiveTransmission)
}

// Options 接收参数
type Options struct {
	Window             int
	InstantAckMaxGenes int
	MaxBlockGenes      int
	InitialDelay       time.Duration
	MaxDelay           time.Duration
	Clock              clock.Clock
}

// OptionsFrom 从配置构造接收参数
func OptionsFrom(cfg *config.Config, clk clock.Clock) Options {
	if clk == nil {
		clk = clock.New()
	}
	return Options{
		Window:             cfg.Stream.Window,
		InstantAckMaxGenes: cfg.Transmission.InstantAckMaxGenes,
		MaxBlockGenes:      cfg.Transmission.MaxBlockGenes,
		InitialDelay:       cfg.Stream.InitialReceiveStreamDelay.Duration(),
		MaxDelay:           cfg.Stream.MaxReceiveStreamDelay.Duration(),
		Clock:              clk,
	}
}

// Verdict 基因处理结果
type Verdict uint8

const (
	// Accepted 新基因已接受并确认
	Accepted Verdict = iota
	// Duplicate 重复基因，重新确认
	Duplicate
	// Stale 已消费或传输已结束，重新确认后丢弃
	Stale
	// Dropped 丢弃且不确认
	Dropped
)

// String 返回结果名称
func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case Duplicate:
		return "duplicate"
	case Stale:
		return "stale"
	default:
		return "dropped"
	}
}

// ============================================================================
//                              ReceiveTransmission
// ============================================================================

// ReceiveTransmission 接收传输
type ReceiveTransmission struct {
	id   types.TransmissionID
	host Host
	opts Options
	done chan struct{}

	mu        sync.Mutex
	mode      types.TransmissionMode
	total     int
	header    gene.Header
	hasHeader bool

	rama       [types.RamaMaxGenes]*ReceiveGene
	window     []*ReceiveGene
	base       int // Stream: 下一个待消费位置
	successive int // 连续已接收前缀长度
	terminal   int // Stream: 终止基因位置，-1 表示未知
	received   int

	awaited   bool
	announced bool
	claimed   bool // 完成时消息已交给处理器
	complete  bool
	disposed  bool
	outcome   types.Outcome
	msg       *types.Message

	readOffset int
	readBytes  int64
	maxLength  int64
}

// New 创建接收传输
func New(id types.TransmissionID, host Host, opts Options) *ReceiveTransmission {
	return &ReceiveTransmission{
		id:       id,
		host:     host,
		opts:     opts,
		done:     make(chan struct{}),
		total:    -1,
		terminal: -1,
	}
}

// ID 传输标识
func (rt *ReceiveTransmission) ID() types.TransmissionID {
	return rt.id
}

// Mode 传输模式，第一个基因到达前为 ModeUnknown
func (rt *ReceiveTransmission) Mode() types.TransmissionMode {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.mode
}

// Total 总基因数，未知时为 -1
func (rt *ReceiveTransmission) Total() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.total
}

// Successive 连续已接收前缀长度
func (rt *ReceiveTransmission) Successive() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.successive
}

// Header 第 0 个基因携带的数据头
func (rt *ReceiveTransmission) Header() (gene.Header, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.header, rt.hasHeader
}

// Done 完成或释放时关闭
func (rt *ReceiveTransmission) Done() <-chan struct{} {
	return rt.done
}

// Outcome 当前结果
func (rt *ReceiveTransmission) Outcome() types.Outcome {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.outcome
}

// Receive 处理一个基因
//
// buf 为承载数据帧的共享缓冲，接受的基因会额外持有一份引用。
func (rt *ReceiveTransmission) Receive(f gene.DataFrame, buf *bufpool.Buffer) Verdict {
	id := f.ID()

	rt.mu.Lock()
	wasUnknown := rt.mode == types.ModeUnknown
	v := rt.receiveLocked(f, buf)
	completed := v == Accepted && rt.complete
	msg := rt.msg
	awaited := rt.awaited
	if completed && !awaited {
		rt.claimed = true
	}
	instant := completed && rt.mode == types.ModeRama && rt.total <= rt.opts.InstantAckMaxGenes
	announce := false
	if wasUnknown && rt.mode == types.ModeStream && !rt.awaited && !rt.announced {
		rt.announced = true
		announce = true
	}
	rt.mu.Unlock()

	switch v {
	case Accepted:
		rt.host.Touch()
		rt.host.Ack(id, instant)
	case Duplicate, Stale:
		rt.host.Ack(id, false)
	default:
		logger.Debug("丢弃基因", "gene", id, "mode", f.Mode, "total", f.Total)
	}

	if announce {
		rt.host.Announce(rt)
	}
	if completed {
		if !awaited {
			rt.host.Deliver(rt, msg)
		}
		rt.host.Detach(rt)
	}
	return v
}

func (rt *ReceiveTransmission) receiveLocked(f gene.DataFrame, buf *bufpool.Buffer) Verdict {
	if rt.disposed || rt.complete {
		return Stale
	}
	if !f.Mode.Valid() {
		return Dropped
	}
	if rt.mode == types.ModeUnknown {
		if !rt.init(f.Mode, f.Total) {
			return Dropped
		}
	} else if f.Mode != rt.mode {
		return Dropped
	} else if f.Mode != types.ModeStream && f.Total != rt.total {
		return Dropped
	}

	var hdr gene.Header
	if f.Position == 0 {
		h, err := gene.ParseHeader(f.Payload)
		if err != nil {
			return Dropped
		}
		hdr = h
	}

	var v Verdict
	switch rt.mode {
	case types.ModeRama:
		v = rt.receiveRama(f, buf)
	case types.ModeBlock:
		v = rt.receiveBlock(f, buf)
	default:
		v = rt.receiveStream(f, buf)
	}

	if v == Accepted {
		rt.received++
		if f.Position == 0 {
			rt.header = hdr
			rt.hasHeader = true
		}
		if rt.mode != types.ModeStream && rt.successive == rt.total {
			rt.assemble()
		}
	}
	return v
}

// init 第一个基因确定模式与窗口
func (rt *ReceiveTransmission) init(mode types.TransmissionMode, total int) bool {
	switch mode {
	case types.ModeRama:
		if total < 1 || total > types.RamaMaxGenes {
			return false
		}
	case types.ModeBlock:
		if total <= types.RamaMaxGenes || total > rt.opts.MaxBlockGenes {
			return false
		}
		rt.window = make([]*ReceiveGene, total)
	case types.ModeStream:
		if total != -1 || rt.opts.Window <= 0 {
			return false
		}
		rt.window = make([]*ReceiveGene, rt.opts.Window)
	default:
		return false
	}
	rt.mode = mode
	rt.total = total
	return true
}

func (rt *ReceiveTransmission) receiveRama(f gene.DataFrame, buf *bufpool.Buffer) Verdict {
	if f.Position >= rt.total {
		return Dropped
	}
	if rt.rama[f.Position] != nil {
		return Duplicate
	}
	rt.rama[f.Position] = newReceiveGene(f.Position, f.Payload, buf)

	// 只有总数范围内的槽位计入完成判断
	rt.successive = 0
	for rt.successive < rt.total && rt.rama[rt.successive] != nil {
		rt.successive++
	}
	return Accepted
}

func (rt *ReceiveTransmission) receiveBlock(f gene.DataFrame, buf *bufpool.Buffer) Verdict {
	if f.Position >= rt.total {
		return Dropped
	}
	if rt.window[f.Position] != nil {
		return Duplicate
	}
	rt.window[f.Position] = newReceiveGene(f.Position, f.Payload, buf)
	for rt.successive < rt.total && rt.window[rt.successive] != nil {
		rt.successive++
	}
	return Accepted
}

func (rt *ReceiveTransmission) receiveStream(f gene.DataFrame, buf *bufpool.Buffer) Verdict {
	w := len(rt.window)
	pos := f.Position
	if pos < rt.base {
		return Stale
	}
	if pos >= rt.base+w {
		return Dropped
	}
	if rt.terminal >= 0 && pos > rt.terminal {
		return Dropped
	}

	idx := pos % w
	if rt.window[idx] != nil {
		return Duplicate
	}
	if pos > 0 && len(f.Payload) == 0 {
		if pos < rt.successive {
			return Dropped
		}
		rt.terminal = pos
		rt.total = pos + 1
	}
	rt.window[idx] = newReceiveGene(pos, f.Payload, buf)

	for rt.successive < rt.base+w {
		g := rt.window[rt.successive%w]
		if g == nil || g.position != rt.successive {
			break
		}
		rt.successive++
	}
	return Accepted
}

// slot 返回 Rama/Block 第 pos 个基因（锁内）
func (rt *ReceiveTransmission) slot(pos int) *ReceiveGene {
	if rt.mode == types.ModeRama {
		return rt.rama[pos]
	}
	return rt.window[pos]
}

// assemble 按位置拼接负载并完成（锁内）
func (rt *ReceiveTransmission) assemble() {
	size := 0
	for pos := 0; pos < rt.total; pos++ {
		size += len(rt.slot(pos).payload)
	}
	payload := make([]byte, 0, size-gene.HeaderSize)
	for pos := 0; pos < rt.total; pos++ {
		g := rt.slot(pos)
		data := g.payload
		if pos == 0 {
			data = data[gene.HeaderSize:]
		}
		payload = append(payload, data...)
		g.complete()
	}

	rt.msg = &types.Message{
		Transmission: rt.id,
		Mode:         rt.mode,
		Kind:         rt.header.Kind,
		ID:           rt.header.ID,
		Payload:      payload,
	}
	rt.complete = true
	rt.outcome = types.OutcomeOK
	close(rt.done)
}

// Expect 登记本端等待方，此后完成的消息不再交给处理器
//
// stream 为 true 时传输必须是流模式或模式未知，否则不登记并返回 false。
func (rt *ReceiveTransmission) Expect(stream bool) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if stream && rt.mode != types.ModeUnknown && rt.mode != types.ModeStream {
		return false
	}
	rt.awaited = true
	if stream {
		rt.announced = true
	}
	return true
}

// Await 等待 Rama/Block 传输完成
//
// 完成返回 OK 与消息；连接关闭前未完成，或消息已交给处理器，返回 Closed；
// ctx 取消返回 Canceled。
func (rt *ReceiveTransmission) Await(ctx context.Context) (types.Outcome, *types.Message) {
	rt.mu.Lock()
	rt.awaited = true
	rt.mu.Unlock()

	select {
	case <-rt.done:
		rt.mu.Lock()
		defer rt.mu.Unlock()
		if rt.claimed {
			return types.OutcomeClosed, nil
		}
		return rt.outcome, rt.msg
	case <-ctx.Done():
		return types.OutcomeCanceled, nil
	}
}

// Dispose 释放全部基因缓冲，未完成的传输以 Closed 结束
func (rt *ReceiveTransmission) Dispose() {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.disposed {
		return
	}
	rt.disposed = true
	rt.releaseAll()
	if !rt.complete {
		rt.outcome = types.OutcomeClosed
		close(rt.done)
	}
}

// Disposed 是否已释放
func (rt *ReceiveTransmission) Disposed() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.disposed
}

// releaseAll 释放所有持有的基因（锁内）
func (rt *ReceiveTransmission) releaseAll() {
	for i, g := range rt.rama {
		if g != nil {
			g.cancel()
			rt.rama[i] = nil
		}
	}
	for i, g := range rt.window {
		if g != nil {
			g.cancel()
			rt.window[i] = nil
		}
	}
}
