package pump

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/internal/core/netsim"
	"github.com/dep2p/go-genet/internal/core/peerconn"
	"github.com/dep2p/go-genet/internal/core/transmission"
	"github.com/dep2p/go-genet/pkg/interfaces"
	"github.com/dep2p/go-genet/tests/mocks"
)

// fakeProcessor 记录调用顺序的处理器
type fakeProcessor struct {
	sender *mocks.MockSender
	alive  atomic.Bool

	mu      sync.Mutex
	calls   []string
	elapsed []time.Duration
}

func newFake() *fakeProcessor {
	f := &fakeProcessor{sender: &mocks.MockSender{}}
	f.alive.Store(true)
	return f
}

func (f *fakeProcessor) Sender() interfaces.NetSender { return f.sender }

func (f *fakeProcessor) Process(_ interfaces.NetSender, elapsed time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "process")
	f.elapsed = append(f.elapsed, elapsed)
	return f.alive.Load()
}

func (f *fakeProcessor) ProcessSend(interfaces.NetSender) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "send")
	return 2
}

func (f *fakeProcessor) FlushAcks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "acks")
	return 1
}

func (f *fakeProcessor) snapshot() ([]string, []time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...), append([]time.Duration(nil), f.elapsed...)
}

// ============================================================================
//                              注册与节拍
// ============================================================================

func TestPump_RegisterTwice(t *testing.T) {
	p := New(config.DefaultPumpConfig(), clock.NewMock())
	f := newFake()
	require.NoError(t, p.Register(f))
	assert.ErrorIs(t, p.Register(f), ErrAlreadyRegistered)
	assert.Equal(t, 1, p.Len())

	p.Unregister(f)
	assert.Zero(t, p.Len())
}

func TestPump_TickOrderAndElapsed(t *testing.T) {
	clk := clock.NewMock()
	p := New(config.DefaultPumpConfig(), clk)
	f := newFake()
	require.NoError(t, p.Register(f))

	p.Tick()
	clk.Add(3 * time.Millisecond)
	p.Tick()

	calls, elapsed := f.snapshot()
	assert.Equal(t, []string{"process", "send", "acks", "process", "send", "acks"}, calls)
	assert.Equal(t, 3*time.Millisecond, elapsed[1])

	stats := p.Stats()
	assert.Equal(t, uint64(2), stats.Ticks)
	assert.Equal(t, uint64(4), stats.Sent)
	assert.Equal(t, uint64(2), stats.AckFrames)
}

func TestPump_EvictsInactive(t *testing.T) {
	p := New(config.DefaultPumpConfig(), clock.NewMock())
	dead := newFake()
	dead.alive.Store(false)
	live := newFake()
	require.NoError(t, p.Register(dead))
	require.NoError(t, p.Register(live))

	var evicted []Processor
	p.OnEvict(func(m Processor) { evicted = append(evicted, m) })

	p.Tick()
	assert.Equal(t, 1, p.Len())
	assert.Equal(t, uint64(1), p.Stats().Evicted)
	require.Len(t, evicted, 1)
	assert.Same(t, dead, evicted[0])

	calls, _ := dead.snapshot()
	assert.Equal(t, []string{"process"}, calls, "no sending after Process fails")
}

func TestPump_ParallelWorkers(t *testing.T) {
	cfg := config.DefaultPumpConfig()
	cfg.Workers = 4
	p := New(cfg, clock.NewMock())

	fakes := make([]*fakeProcessor, 10)
	for i := range fakes {
		fakes[i] = newFake()
		require.NoError(t, p.Register(fakes[i]))
	}
	p.Tick()
	for _, f := range fakes {
		calls, _ := f.snapshot()
		assert.Equal(t, []string{"process", "send", "acks"}, calls)
	}
}

// ============================================================================
//                              生命周期
// ============================================================================

func TestPump_StartStopWithMockClock(t *testing.T) {
	clk := clock.NewMock()
	p := New(config.DefaultPumpConfig(), clk)
	f := newFake()
	require.NoError(t, p.Register(f))

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool {
		clk.Add(time.Millisecond)
		calls, _ := f.snapshot()
		return len(calls) >= 3
	}, time.Second, time.Millisecond)

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())
	assert.Zero(t, p.Len())
	assert.ErrorIs(t, p.Register(newFake()), ErrPumpClosed)
	assert.ErrorIs(t, p.Start(context.Background()), ErrPumpClosed)
}

func TestPump_DrivesManagers(t *testing.T) {
	cfg := config.NewConfig()
	link := netsim.NewLink(cfg.Link)
	ca := peerconn.New(cfg.Congestion)
	cb := peerconn.New(cfg.Congestion)

	a, err := transmission.NewManager(transmission.Params{Config: cfg, Conn: ca, Sender: link.A(), Role: transmission.RoleDialer})
	require.NoError(t, err)
	b, err := transmission.NewManager(transmission.Params{Config: cfg, Conn: cb, Sender: link.B(), Role: transmission.RoleListener})
	require.NoError(t, err)
	link.A().SetReceiver(a.HandleDatagram)
	link.B().SetReceiver(b.HandleDatagram)

	p := New(cfg.Pump, nil)
	require.NoError(t, p.Register(a))
	require.NoError(t, p.Register(b))
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	payload := make([]byte, 50_000)
	for i := range payload {
		payload[i] = byte(i)
	}
	st, err := a.Submit(payload, 1, 2)
	require.NoError(t, err)

	select {
	case msg := <-cb.Inbox():
		assert.Equal(t, payload, msg.Payload)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Equal(t, "ok", st.Wait(ctx).String())

	// 连接失活后泵自动注销管理器
	require.NoError(t, ca.Close())
	require.Eventually(t, func() bool { return p.Len() == 1 }, 5*time.Second, time.Millisecond)
	assert.True(t, a.Closed())
	require.NoError(t, b.Close())
}

func TestModule_Lifecycle(t *testing.T) {
	var p *Pump
	app := fxtest.New(t,
		fx.Supply(config.NewConfig()),
		Module(),
		fx.Populate(&p),
	)
	app.RequireStart()
	assert.True(t, p.running.Load())
	app.RequireStop()
	assert.True(t, p.closed.Load())
}
