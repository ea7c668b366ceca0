package transmission

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/internal/core/acker"
	"github.com/dep2p/go-genet/internal/core/bufpool"
	"github.com/dep2p/go-genet/internal/core/congestion"
	"github.com/dep2p/go-genet/internal/core/flowcontrol"
	"github.com/dep2p/go-genet/internal/core/gene"
	"github.com/dep2p/go-genet/internal/core/reassembly"
	"github.com/dep2p/go-genet/pkg/interfaces"
	"github.com/dep2p/go-genet/pkg/lib/log"
	"github.com/dep2p/go-genet/pkg/types"
)

var logger = log.Logger("core/transmission")

// Role 连接角色，决定本端分配的传输 ID 奇偶
type Role uint8

const (
	// RoleDialer 主动拨号方，分配奇数 ID
	RoleDialer Role = iota
	// RoleListener 被动接受方，分配偶数 ID
	RoleListener
)

// String 返回角色名称
func (r Role) String() string {
	if r == RoleListener {
		return "listener"
	}
	return "dialer"
}

// Handler 处理没有等待方的完整消息，在独立协程中调用
type Handler func(msg *types.Message)

// StreamHandler 处理对端新开的流，在独立协程中调用
type StreamHandler func(s *StreamHandle)

// FinishHook 发送传输结束时调用，调用方不持有任何管理器锁
type FinishHook func(st *SendTransmission)

// Params 管理器参数
type Params struct {
	Config *config.Config
	Conn   interfaces.Connection
	Sender interfaces.NetSender
	Role   Role

	// Clock 可选，默认真实时钟
	Clock clock.Clock

	// Pool 可选，缓冲容量至少为 GeneSize + DataFrameOverhead
	Pool *bufpool.Pool
}

// ============================================================================
//                              Manager
// ============================================================================

// Manager 每连接传输管理器
type Manager struct {
	cfg    *config.Config
	conn   interfaces.Connection
	sender interfaces.NetSender
	role   Role
	clock  clock.Clock
	pool   *bufpool.Pool

	flow     *flowcontrol.FlowControl
	rama     *flowcontrol.RamaControl
	acks     *acker.Acker
	recvOpts reassembly.Options
	host     *recvHost

	nextID atomic.Uint32
	closed atomic.Bool

	mu            sync.Mutex
	sends         map[types.TransmissionID]*SendTransmission
	recvs         map[types.TransmissionID]*reassembly.ReceiveTransmission
	disposed      *lru.Cache[types.TransmissionID, struct{}]
	handler       Handler
	streamHandler StreamHandler
	finishHook    FinishHook

	datagrams   atomic.Uint64
	malformed   atomic.Uint64
	unknownAcks atomic.Uint64
	rejected    atomic.Uint64
}

// NewManager 创建传输管理器
func NewManager(p Params) (*Manager, error) {
	if p.Config == nil {
		p.Config = config.NewConfig()
	}
	if err := p.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if p.Clock == nil {
		p.Clock = clock.New()
	}
	cfg := p.Config
	frameSize := cfg.Transmission.GeneSize + gene.DataFrameOverhead
	if p.Pool == nil {
		p.Pool = bufpool.New(frameSize)
	} else if p.Pool.Size() < frameSize {
		return nil, fmt.Errorf("buffer pool size %d below frame size %d", p.Pool.Size(), frameSize)
	}

	disposed, err := lru.New[types.TransmissionID, struct{}](cfg.Transmission.DisposedHistory)
	if err != nil {
		return nil, fmt.Errorf("create disposed history: %w", err)
	}

	m := &Manager{
		cfg:      cfg,
		conn:     p.Conn,
		sender:   p.Sender,
		role:     p.Role,
		clock:    p.Clock,
		pool:     p.Pool,
		flow:     flowcontrol.New(congestion.New(cfg.Congestion, p.Conn, p.Clock)),
		rama:     flowcontrol.NewRamaControl(cfg.Congestion, cfg.Transmission.RamaCap, p.Conn, p.Clock),
		acks:     acker.New(p.Sender, frameSize),
		recvOpts: reassembly.OptionsFrom(cfg, p.Clock),
		sends:    make(map[types.TransmissionID]*SendTransmission),
		recvs:    make(map[types.TransmissionID]*reassembly.ReceiveTransmission),
		disposed: disposed,
	}
	m.host = &recvHost{m: m}
	if p.Role == RoleListener {
		m.nextID.Store(2)
	} else {
		m.nextID.Store(1)
	}

	logger.Debug("创建传输管理器", "conn", p.Conn.ID(), "role", p.Role,
		"algorithm", cfg.Congestion.Algorithm)
	return m, nil
}

// Conn 所属连接
func (m *Manager) Conn() interfaces.Connection {
	return m.conn
}

// Sender 数据报发送端
func (m *Manager) Sender() interfaces.NetSender {
	return m.sender
}

// Pool 缓冲池
func (m *Manager) Pool() *bufpool.Pool {
	return m.pool
}

// Closed 是否已关闭
func (m *Manager) Closed() bool {
	return m.closed.Load()
}

// SetHandler 设置完整消息处理器，nil 表示投递给连接
func (m *Manager) SetHandler(h Handler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

// SetStreamHandler 设置新流处理器，nil 表示等待 OpenStreamReceive
func (m *Manager) SetStreamHandler(h StreamHandler) {
	m.mu.Lock()
	m.streamHandler = h
	m.mu.Unlock()
}

// SetFinishHook 设置发送传输结束回调
func (m *Manager) SetFinishHook(h FinishHook) {
	m.mu.Lock()
	m.finishHook = h
	m.mu.Unlock()
}

// allocID 分配本端传输 ID，跳过 0
func (m *Manager) allocID() types.TransmissionID {
	for {
		id := m.nextID.Add(2) - 2
		if id != 0 {
			return types.TransmissionID(id)
		}
	}
}

// ============================================================================
//                              发送
// ============================================================================

// Submit 切分消息并入队发送
func (m *Manager) Submit(payload []byte, kind types.DataKind, id types.DataID) (*SendTransmission, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	geneSize := m.cfg.Transmission.GeneSize
	count := gene.GeneCount(len(payload), geneSize)
	if count > m.cfg.Transmission.MaxBlockGenes {
		return nil, fmt.Errorf("%w: %d genes", ErrPayloadTooLarge, count)
	}

	tid := m.allocID()
	st := newSendTransmission(tid, gene.ModeFor(count), m.removeSend)
	if err := m.registerSend(st); err != nil {
		return nil, err
	}

	genes, err := gene.Split(m.pool, st, tid, gene.Header{Kind: kind, ID: id}, payload, geneSize)
	if err != nil {
		st.finish(types.OutcomeClosed)
		return nil, fmt.Errorf("split payload: %w", err)
	}
	for _, g := range genes {
		st.add(g)
	}
	st.seal(len(genes))

	for _, g := range genes {
		if g.Mode() == types.ModeRama {
			m.rama.Enqueue(g)
		} else {
			m.flow.Enqueue(g)
		}
	}
	logger.Debug("提交传输", "transmission", tid, "mode", st.mode, "genes", len(genes), "bytes", len(payload))
	return st, nil
}

// OpenStreamSend 打开发送流
func (m *Manager) OpenStreamSend(kind types.DataKind, id types.DataID) (*SendStream, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	st := newSendTransmission(m.allocID(), types.ModeStream, m.removeSend)
	if err := m.registerSend(st); err != nil {
		return nil, err
	}
	return &SendStream{
		m:   m,
		st:  st,
		hdr: gene.Header{Kind: kind, ID: id},
	}, nil
}

func (m *Manager) registerSend(st *SendTransmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return ErrManagerClosed
	}
	if len(m.sends) >= m.cfg.Transmission.MaxTransmissions {
		return ErrTooManyTransmissions
	}
	m.sends[st.id] = st
	return nil
}

// removeSend 发送传输结束时移除
func (m *Manager) removeSend(st *SendTransmission) {
	m.mu.Lock()
	if m.sends[st.id] == st {
		delete(m.sends, st.id)
	}
	hook := m.finishHook
	m.mu.Unlock()

	if hook != nil {
		hook(st)
	}
}

func (m *Manager) lookupSend(id types.TransmissionID) *SendTransmission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sends[id]
}

// ============================================================================
//                              接收
// ============================================================================

// AwaitReceive 等待指定传输接收完成
//
// 传输已结束返回 Closed；ctx 取消返回 Canceled，之后仍可再次等待。
func (m *Manager) AwaitReceive(ctx context.Context, id types.TransmissionID) (types.Outcome, *types.Message) {
	rt, err := m.receiveTransmission(id, false)
	if err != nil {
		return types.OutcomeClosed, nil
	}
	return rt.Await(ctx)
}

// OpenStreamReceive 打开接收流，maxLength 大于 0 时读到该长度即结束
func (m *Manager) OpenStreamReceive(id types.TransmissionID, maxLength int64) (*StreamHandle, error) {
	rt, err := m.receiveTransmission(id, true)
	if err != nil {
		return nil, err
	}
	return rt.OpenStream(maxLength), nil
}

// receiveTransmission 查找或创建接收传输，并在连接锁内登记等待方
//
// 登记与查找在同一把锁内完成，接收路径不会把同一条消息再交给处理器。
func (m *Manager) receiveTransmission(id types.TransmissionID, stream bool) (*reassembly.ReceiveTransmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	if rt, ok := m.recvs[id]; ok {
		if !rt.Expect(stream) {
			return nil, fmt.Errorf("%w: %s is %s", ErrTransmissionExists, id, rt.Mode())
		}
		return rt, nil
	}
	if m.disposed.Contains(id) {
		return nil, ErrTransmissionDisposed
	}
	if len(m.recvs) >= m.cfg.Transmission.MaxTransmissions {
		return nil, ErrTooManyTransmissions
	}
	rt := reassembly.New(id, m.host, m.recvOpts)
	rt.Expect(stream)
	m.recvs[id] = rt
	return rt, nil
}

// HandleDatagram 处理一个已解密的数据报
//
// 数据报被复制进缓冲池，调用返回后可复用。
func (m *Manager) HandleDatagram(b []byte) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	m.datagrams.Add(1)

	kind, err := gene.Kind(b)
	if err != nil {
		m.malformed.Add(1)
		return fmt.Errorf("decode datagram: %w", err)
	}

	switch kind {
	case gene.FrameAck:
		ids, err := gene.ParseAckFrame(nil, b)
		if err != nil {
			m.malformed.Add(1)
			return fmt.Errorf("decode ack frame: %w", err)
		}
		for _, id := range ids {
			m.OnAckReceived(id)
		}
		return nil

	default:
		if len(b) > m.pool.Size() {
			m.malformed.Add(1)
			return fmt.Errorf("%w: %d bytes", ErrDatagramTooLarge, len(b))
		}
		buf := m.pool.Copy(b)
		defer buf.Release()

		f, err := gene.ParseDataFrame(buf.Bytes())
		if err != nil {
			m.malformed.Add(1)
			return fmt.Errorf("decode data frame: %w", err)
		}
		m.receive(f, buf)
		return nil
	}
}

func (m *Manager) receive(f gene.DataFrame, buf *bufpool.Buffer) {
	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		return
	}
	rt, ok := m.recvs[f.Transmission]
	if !ok {
		if m.disposed.Contains(f.Transmission) {
			m.mu.Unlock()
			m.acks.Defer(f.ID())
			return
		}
		if len(m.recvs) >= m.cfg.Transmission.MaxTransmissions {
			m.mu.Unlock()
			m.rejected.Add(1)
			logger.Debug("接收传输数已达上限，丢弃基因", "gene", f.ID())
			return
		}
		rt = reassembly.New(f.Transmission, m.host, m.recvOpts)
		m.recvs[f.Transmission] = rt
	}
	m.mu.Unlock()

	rt.Receive(f, buf)
}

// detach 接收传输结束，记录到已释放历史
func (m *Manager) detach(rt *reassembly.ReceiveTransmission) {
	m.mu.Lock()
	if m.recvs[rt.ID()] == rt {
		delete(m.recvs, rt.ID())
	}
	m.disposed.Add(rt.ID(), struct{}{})
	m.mu.Unlock()
}

// ============================================================================
//                              反馈
// ============================================================================

// OnAckReceived 对端确认了一个基因
func (m *Manager) OnAckReceived(id types.GeneID) {
	st := m.lookupSend(id.Transmission)
	if st == nil {
		m.unknownAcks.Add(1)
		return
	}
	g := st.gene(id.Position)
	if g == nil || !g.MarkAcked() {
		return
	}

	var (
		rtt     time.Duration
		removed bool
	)
	if g.Mode() == types.ModeRama {
		rtt, removed = m.rama.Acked(g)
	} else {
		rtt, removed = m.flow.Acked(g)
	}
	if removed {
		g.Release()
	}
	if rtt > 0 {
		if obs, ok := m.conn.(interfaces.RttObserver); ok {
			obs.ObserveRtt(rtt)
		}
		m.OnRttSample(rtt.Microseconds())
	}
	st.OnGeneAcked(g)
}

// OnLossDetected 外部检测到基因丢失，下一轮立即重传
func (m *Manager) OnLossDetected(id types.GeneID) {
	st := m.lookupSend(id.Transmission)
	if st == nil {
		return
	}
	g := st.gene(id.Position)
	if g == nil {
		return
	}
	if g.Mode() == types.ModeRama {
		m.rama.LossDetected(g)
	} else {
		m.flow.LossDetected(g)
	}
}

// OnRttSample 慢启动 RTT 样本（微秒）
func (m *Manager) OnRttSample(mics int64) {
	m.flow.Controller().AddRtt(mics)
}

// ============================================================================
//                              I/O 泵入口
// ============================================================================

// ProcessSend 重传到期基因后在预算内发送新基因，返回发送数量
func (m *Manager) ProcessSend(sender interfaces.NetSender) int {
	if m.closed.Load() {
		return 0
	}
	return m.rama.ProcessSend(sender) + m.flow.ProcessSend(sender)
}

// Process 每轮节拍，返回 false 表示连接已失活，管理器随之关闭
func (m *Manager) Process(sender interfaces.NetSender, elapsed time.Duration) bool {
	if m.closed.Load() {
		return false
	}
	if !m.conn.IsActive() {
		logger.Debug("连接失活，关闭传输管理器", "conn", m.conn.ID())
		_ = m.Close()
		return false
	}
	ramaOK := m.rama.Process(sender, elapsed)
	flowOK := m.flow.Process(sender, elapsed)
	return ramaOK && flowOK
}

// FlushAcks 发送批量确认，返回发送的帧数
func (m *Manager) FlushAcks() int {
	if m.closed.Load() {
		return 0
	}
	return m.acks.Flush()
}

// Round 完整一轮：节拍、发送、确认刷新
func (m *Manager) Round(elapsed time.Duration) bool {
	if !m.Process(m.sender, elapsed) {
		return false
	}
	m.ProcessSend(m.sender)
	m.FlushAcks()
	return true
}

// ============================================================================
//                              关闭与统计
// ============================================================================

// Close 关闭管理器
//
// 发送传输以 Closed 结束，接收传输释放，等待方得到 Closed，全部缓冲归还。
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	m.mu.Lock()
	sends := m.sends
	recvs := m.recvs
	m.sends = make(map[types.TransmissionID]*SendTransmission)
	m.recvs = make(map[types.TransmissionID]*reassembly.ReceiveTransmission)
	m.mu.Unlock()

	for _, st := range sends {
		st.finish(types.OutcomeClosed)
	}
	m.rama.Close()
	m.flow.Close()
	for _, rt := range recvs {
		rt.Dispose()
	}

	logger.Debug("传输管理器关闭", "conn", m.conn.ID(),
		"sends", len(sends), "recvs", len(recvs))
	return nil
}

// Stats 管理器统计
type Stats struct {
	Conn       string
	Congestion congestion.Snapshot
	Acks       acker.Stats

	RamaSent     uint64
	RamaResent   uint64
	RamaInFlight int
	Pending      int
	Dropped      uint64

	Sends       int
	Receives    int
	Datagrams   uint64
	Malformed   uint64
	UnknownAcks uint64
	Rejected    uint64
}

// Stats 返回统计快照
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	sends, recvs := len(m.sends), len(m.recvs)
	m.mu.Unlock()

	ramaSent, ramaResent := m.rama.Stats()
	return Stats{
		Conn:         m.conn.ID(),
		Congestion:   m.flow.Controller().Snapshot(),
		Acks:         m.acks.Stats(),
		RamaSent:     ramaSent,
		RamaResent:   ramaResent,
		RamaInFlight: m.rama.InFlight(),
		Pending:      m.flow.Pending() + m.rama.Pending(),
		Dropped:      m.flow.Dropped(),
		Sends:        sends,
		Receives:     recvs,
		Datagrams:    m.datagrams.Load(),
		Malformed:    m.malformed.Load(),
		UnknownAcks:  m.unknownAcks.Load(),
		Rejected:     m.rejected.Load(),
	}
}
