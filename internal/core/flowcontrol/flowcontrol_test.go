package flowcontrol

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/internal/core/bufpool"
	"github.com/dep2p/go-genet/internal/core/congestion"
	"github.com/dep2p/go-genet/internal/core/gene"
	"github.com/dep2p/go-genet/pkg/types"
	"github.com/dep2p/go-genet/tests/mocks"
)

type owner struct {
	mu     sync.Mutex
	active bool
}

func (o *owner) IsActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

func (o *owner) OnGeneAcked(*gene.Gene) {}

func (o *owner) cancel() {
	o.mu.Lock()
	o.active = false
	o.mu.Unlock()
}

type env struct {
	cfg    *config.Config
	clock  *clock.Mock
	conn   *mocks.MockConnection
	sender *mocks.MockSender
	pool   *bufpool.Pool
	owner  *owner
}

func newEnv() *env {
	return &env{
		cfg:    config.NewConfig(),
		clock:  clock.NewMock(),
		conn:   mocks.NewMockConnection("c1"),
		sender: mocks.NewMockSender(),
		pool:   bufpool.New(64),
		owner:  &owner{active: true},
	}
}

func (e *env) genes(t *testing.T, mode types.TransmissionMode, n int) []*gene.Gene {
	t.Helper()
	out := make([]*gene.Gene, 0, n)
	for i := 0; i < n; i++ {
		id := types.GeneID{Transmission: 1, Position: i}
		g, err := gene.New(e.pool, e.owner, id, mode, n, nil, []byte{byte(i)})
		require.NoError(t, err)
		out = append(out, g)
	}
	return out
}

func positions(t *testing.T, sent [][]byte) []int {
	t.Helper()
	out := make([]int, 0, len(sent))
	for _, b := range sent {
		f, err := gene.ParseDataFrame(b)
		require.NoError(t, err)
		out = append(out, f.Position)
	}
	return out
}

// ============================================================================
//                              FlowControl
// ============================================================================

func TestFlowControl_SendsWithinBudget(t *testing.T) {
	e := newEnv()
	fc := New(congestion.NewCubic(e.cfg.Congestion, e.conn, e.clock))

	for _, g := range e.genes(t, types.ModeBlock, 15) {
		fc.Enqueue(g)
	}
	assert.Equal(t, 15, fc.Pending())

	// 初始窗口 10
	assert.Equal(t, 10, fc.ProcessSend(e.sender))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, positions(t, e.sender.Sent()))
	assert.Equal(t, 5, fc.Pending())
	assert.Equal(t, 10, fc.Controller().InFlight())

	// 队列非空而预算耗尽，记为容量受限
	assert.Equal(t, 0, fc.ProcessSend(e.sender))

	fc.Close()
	assert.Equal(t, int64(0), e.pool.Outstanding())
}

func TestFlowControl_DropsUnneeded(t *testing.T) {
	e := newEnv()
	fc := New(congestion.NewCubic(e.cfg.Congestion, e.conn, e.clock))

	for _, g := range e.genes(t, types.ModeBlock, 4) {
		fc.Enqueue(g)
	}
	e.owner.cancel()

	assert.Equal(t, 0, fc.ProcessSend(e.sender))
	assert.Equal(t, uint64(4), fc.Dropped())
	assert.Equal(t, int64(0), e.pool.Outstanding())
}

func TestFlowControl_SenderBusy(t *testing.T) {
	e := newEnv()
	fc := New(congestion.NewCubic(e.cfg.Congestion, e.conn, e.clock))
	for _, g := range e.genes(t, types.ModeBlock, 4) {
		fc.Enqueue(g)
	}

	e.sender.CanSendFunc = func() bool { return false }
	assert.Equal(t, 0, fc.ProcessSend(e.sender))
	assert.Equal(t, 4, fc.Pending())

	e.sender.CanSendFunc = nil
	assert.Equal(t, 4, fc.ProcessSend(e.sender))
	fc.Close()
}

func TestFlowControl_SendErrorResentOnTimeout(t *testing.T) {
	e := newEnv()
	fc := New(congestion.NewCubic(e.cfg.Congestion, e.conn, e.clock))
	genes := e.genes(t, types.ModeBlock, 1)
	fc.Enqueue(genes[0])

	e.sender.SendFunc = func([]byte) error { return errors.New("buffer full") }
	assert.Equal(t, 1, fc.ProcessSend(e.sender))
	assert.Equal(t, 1, fc.Controller().InFlight())

	e.sender.SendFunc = nil
	e.sender.Reset()
	e.clock.Add(e.cfg.Congestion.MinRto.Duration())
	assert.True(t, fc.Process(e.sender, time.Millisecond))
	assert.Equal(t, []int{0}, positions(t, e.sender.Sent()))

	rtt, removed := fc.Acked(genes[0])
	assert.True(t, removed)
	assert.Zero(t, rtt, "resent gene yields no rtt sample")
	genes[0].Release()
	fc.Close()
	assert.Equal(t, int64(0), e.pool.Outstanding())
}

func TestFlowControl_NoDoubleResendInOneRound(t *testing.T) {
	e := newEnv()
	fc := New(congestion.NewCubic(e.cfg.Congestion, e.conn, e.clock))
	for _, g := range e.genes(t, types.ModeBlock, 3) {
		fc.Enqueue(g)
	}
	fc.ProcessSend(e.sender)
	e.sender.Reset()

	e.clock.Add(e.cfg.Congestion.MinRto.Duration())
	fc.Process(e.sender, time.Millisecond)
	fc.ProcessSend(e.sender)
	assert.Equal(t, 3, e.sender.SendCalls())
	fc.Close()
}

func TestFlowControl_ConcurrentEnqueue(t *testing.T) {
	e := newEnv()
	e.cfg.Congestion.Algorithm = config.AlgorithmNone
	e.cfg.Congestion.NoCCCap = 1000
	fc := New(congestion.New(e.cfg.Congestion, e.conn, e.clock))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		genes := e.genes(t, types.ModeBlock, 50)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, g := range genes {
				fc.Enqueue(g)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, fc.ProcessSend(e.sender))
	fc.Close()
	assert.Equal(t, int64(0), e.pool.Outstanding())
}

// ============================================================================
//                              RamaControl
// ============================================================================

func TestRamaControl_RoundCapAndDeadlineOrder(t *testing.T) {
	e := newEnv()
	rc := NewRamaControl(e.cfg.Congestion, 2, e.conn, e.clock)

	genes := e.genes(t, types.ModeRama, 3)
	for _, g := range genes {
		rc.Enqueue(g)
	}

	assert.True(t, rc.Process(e.sender, time.Millisecond))
	assert.Equal(t, []int{0, 1}, positions(t, e.sender.Sent()))

	// 同一轮预算耗尽
	assert.Equal(t, 0, rc.ProcessSend(e.sender))

	e.clock.Add(time.Millisecond)
	rc.Process(e.sender, time.Millisecond)
	assert.Equal(t, []int{0, 1, 2}, positions(t, e.sender.Sent()))
	assert.Equal(t, 3, rc.InFlight())

	// 超时后按截止时间顺序重传
	e.sender.Reset()
	e.clock.Add(e.cfg.Congestion.MinRto.Duration())
	rc.Process(e.sender, time.Millisecond)
	assert.Equal(t, []int{0, 1}, positions(t, e.sender.Sent()))

	rc.Process(e.sender, time.Millisecond)
	assert.Equal(t, []int{0, 1, 2}, positions(t, e.sender.Sent()))

	sent, resent := rc.Stats()
	assert.Equal(t, uint64(3), sent)
	assert.Equal(t, uint64(3), resent)

	rc.Close()
	assert.Equal(t, int64(0), e.pool.Outstanding())
}

func TestRamaControl_AckAndLazyRemoval(t *testing.T) {
	e := newEnv()
	rc := NewRamaControl(e.cfg.Congestion, 8, e.conn, e.clock)
	genes := e.genes(t, types.ModeRama, 2)
	for _, g := range genes {
		rc.Enqueue(g)
	}
	rc.Process(e.sender, time.Millisecond)

	e.clock.Add(5 * time.Millisecond)
	genes[0].MarkAcked()
	rtt, removed := rc.Acked(genes[0])
	require.True(t, removed)
	assert.Equal(t, 5*time.Millisecond, rtt)
	genes[0].Release()

	_, removed = rc.Acked(genes[0])
	assert.False(t, removed)

	e.sender.Reset()
	e.clock.Add(e.cfg.Congestion.MinRto.Duration())
	rc.Process(e.sender, time.Millisecond)
	assert.Equal(t, []int{1}, positions(t, e.sender.Sent()))

	rc.Close()
	assert.Equal(t, int64(0), e.pool.Outstanding())
}

func TestRamaControl_LossDetectedResendsImmediately(t *testing.T) {
	e := newEnv()
	rc := NewRamaControl(e.cfg.Congestion, 8, e.conn, e.clock)
	genes := e.genes(t, types.ModeRama, 1)
	rc.Enqueue(genes[0])
	rc.Process(e.sender, time.Millisecond)

	e.sender.Reset()
	rc.LossDetected(genes[0])
	rc.LossDetected(genes[0])
	rc.Process(e.sender, time.Millisecond)
	assert.Equal(t, 1, e.sender.SendCalls())

	// 原截止时间的条目已过期被跳过，同一时刻只重传一次
	e.clock.Add(e.cfg.Congestion.MinRto.Duration())
	rc.Process(e.sender, time.Millisecond)
	assert.Equal(t, 2, e.sender.SendCalls())
	rc.Close()
}

func TestRamaControl_InactiveConnection(t *testing.T) {
	e := newEnv()
	rc := NewRamaControl(e.cfg.Congestion, 8, e.conn, e.clock)
	e.conn.Active.Store(false)
	assert.False(t, rc.Process(e.sender, time.Millisecond))

	e.conn.Active.Store(true)
	rc.Close()
	assert.False(t, rc.Process(e.sender, time.Millisecond))

	g := e.genes(t, types.ModeRama, 1)[0]
	rc.Enqueue(g)
	assert.Equal(t, int64(0), e.pool.Outstanding())
}
