package genet

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/internal/core/netsim"
	"github.com/dep2p/go-genet/internal/core/peerconn"
	"github.com/dep2p/go-genet/pkg/types"
)

// sessionPair 通过同一引擎打开、经模拟链路相连的两个会话
func sessionPair(t *testing.T, e *Engine) (*Session, *Session, *peerconn.Conn) {
	t.Helper()
	cfg := e.Config()
	link := netsim.NewLink(cfg.Link)
	ca := peerconn.New(cfg.Congestion, peerconn.WithID("client"))
	cb := peerconn.New(cfg.Congestion, peerconn.WithID("server"))

	a, err := e.Open(ca, link.A(), RoleDialer)
	require.NoError(t, err)
	b, err := e.Open(cb, link.B(), RoleListener)
	require.NoError(t, err)

	link.A().SetReceiver(a.HandleDatagram)
	link.B().SetReceiver(b.HandleDatagram)
	return a, b, cb
}

func TestEngine_Lifecycle(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	assert.Equal(t, StateIdle, e.State())

	_, err = e.Open(peerconn.New(e.Config().Congestion), nil, RoleDialer)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, e.Stop(context.Background()), ErrNotStarted)

	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	assert.Equal(t, StateRunning, e.State())
	assert.ErrorIs(t, e.Start(ctx), ErrAlreadyStarted)

	require.NoError(t, e.Stop(ctx))
	assert.Equal(t, StateStopped, e.State())
	assert.ErrorIs(t, e.Start(ctx), ErrEngineClosed)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.Equal(t, StateClosed, e.State())
}

func TestEngine_CloseWithoutStart(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	require.NoError(t, e.Close())
	assert.ErrorIs(t, e.Start(context.Background()), ErrEngineClosed)
}

func TestEngine_InvalidOptions(t *testing.T) {
	_, err := New(WithPreset("moon"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(WithCongestion("reno"))
	assert.Error(t, err)

	_, err = New(WithConfig(nil))
	assert.Error(t, err)

	cfg := config.NewConfig()
	cfg.Stream.Window = 0
	_, err = New(WithConfig(cfg))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(WithPumpInterval(0))
	assert.Error(t, err)
}

func TestEngine_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genet.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"congestion":{"algorithm":"none"}}`), 0o600))

	e, err := New(WithConfigFile(path))
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, config.AlgorithmNone, e.Config().Congestion.Algorithm)

	_, err = New(WithConfigFile(filepath.Join(t.TempDir(), "missing.json")))
	assert.Error(t, err)
}

func TestEngine_MessageRoundTrip(t *testing.T) {
	reg := prometheus.NewRegistry()
	e, err := Start(context.Background(), WithRegisterer(reg))
	require.NoError(t, err)
	defer e.Close()

	a, _, cb := sessionPair(t, e)

	payload := bytes.Repeat([]byte("genet"), 40_000)
	st, err := a.Submit(payload, 7, 8)
	require.NoError(t, err)

	select {
	case msg := <-cb.Inbox():
		assert.Equal(t, payload, msg.Payload)
		assert.Equal(t, types.DataKind(7), msg.Kind)
	case <-time.After(10 * time.Second):
		t.Fatal("message not delivered")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	assert.Equal(t, types.OutcomeOK, st.Wait(ctx))

	stats := e.Stats()
	assert.Len(t, stats.Sessions, 2)
	assert.Equal(t, 2, stats.Pump.Members)
	assert.Greater(t, stats.Bandwidth.TotalOut, int64(len(payload)))
	assert.Greater(t, e.Bandwidth().GetBandwidthForConn("server").TotalIn, int64(len(payload)))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestEngine_StreamRoundTrip(t *testing.T) {
	e, err := Start(context.Background(), WithPreset("lan"))
	require.NoError(t, err)
	defer e.Close()

	a, b, _ := sessionPair(t, e)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	out, err := a.OpenStreamSend(1, 2)
	require.NoError(t, err)
	in, err := b.OpenStreamReceive(out.ID(), 0)
	require.NoError(t, err)

	data := bytes.Repeat([]byte{0xAB, 0xCD, 0xEF}, 100_000)
	errCh := make(chan error, 1)
	go func() {
		if _, err := out.Write(ctx, data); err != nil {
			errCh <- err
			return
		}
		errCh <- out.Close(ctx)
	}()

	var got bytes.Buffer
	buf := make([]byte, 8192)
	for {
		o, n := in.Read(ctx, buf)
		got.Write(buf[:n])
		if o != types.OutcomeOK {
			require.Equal(t, types.OutcomeComplete, o)
			break
		}
	}
	require.NoError(t, <-errCh)
	assert.True(t, bytes.Equal(data, got.Bytes()))
	assert.Equal(t, types.OutcomeOK, out.Transmission().Wait(ctx))
}

func TestEngine_CloseClosesSessions(t *testing.T) {
	e, err := Start(context.Background(), WithMetrics(false))
	require.NoError(t, err)

	a, b, _ := sessionPair(t, e)
	require.NoError(t, e.Close())
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())

	_, err = a.Submit([]byte("late"), 0, 0)
	assert.Error(t, err)
}

func TestEngine_Events(t *testing.T) {
	e, err := Start(context.Background(), WithMetrics(false))
	require.NoError(t, err)
	defer e.Close()

	opened, err := e.Subscribe(new(EvtSessionOpened))
	require.NoError(t, err)
	finished, err := e.Subscribe(new(EvtTransmissionFinished))
	require.NoError(t, err)
	closed, err := e.Subscribe(new(EvtSessionClosed))
	require.NoError(t, err)

	a, _, cb := sessionPair(t, e)

	roles := map[string]string{}
	for i := 0; i < 2; i++ {
		select {
		case evt := <-opened.Out():
			o := evt.(EvtSessionOpened)
			roles[o.Conn] = o.Role
		case <-time.After(time.Second):
			t.Fatal("session opened event missing")
		}
	}
	assert.Equal(t, map[string]string{"client": "dialer", "server": "listener"}, roles)

	st, err := a.Submit([]byte("ping"), 1, 1)
	require.NoError(t, err)
	select {
	case evt := <-finished.Out():
		f := evt.(EvtTransmissionFinished)
		assert.Equal(t, "client", f.Conn)
		assert.Equal(t, st.ID(), f.Transmission)
		assert.Equal(t, types.ModeRama, f.Mode)
		assert.Equal(t, types.OutcomeOK, f.Outcome)
	case <-time.After(10 * time.Second):
		t.Fatal("transmission finished event missing")
	}

	// 连接失活后泵注销会话并发出关闭事件
	require.NoError(t, cb.Close())
	select {
	case evt := <-closed.Out():
		c := evt.(EvtSessionClosed)
		assert.Equal(t, "server", c.Conn)
		assert.Equal(t, "inactive", c.Reason)
	case <-time.After(10 * time.Second):
		t.Fatal("session closed event missing")
	}

	_, err = e.Subscribe(EvtSessionOpened{})
	assert.Error(t, err)
}

func TestEngine_StopEmitsSessionClosed(t *testing.T) {
	e, err := Start(context.Background(), WithMetrics(false))
	require.NoError(t, err)
	defer e.Close()

	closed, err := e.Subscribe(new(EvtSessionClosed))
	require.NoError(t, err)
	sessionPair(t, e)

	require.NoError(t, e.Stop(context.Background()))

	// 总线在停止时关闭，已缓冲的事件仍可读出
	reasons := map[string]string{}
	for evt := range closed.Out() {
		c := evt.(EvtSessionClosed)
		reasons[c.Conn] = c.Reason
	}
	assert.Equal(t, map[string]string{"client": "engine closed", "server": "engine closed"}, reasons)
}
