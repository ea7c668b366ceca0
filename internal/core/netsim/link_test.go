package netsim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-genet/config"
)

type collector struct {
	mu  sync.Mutex
	got [][]byte
}

func (c *collector) receive(b []byte) error {
	c.mu.Lock()
	c.got = append(c.got, b)
	c.mu.Unlock()
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func TestLink_SynchronousDelivery(t *testing.T) {
	l := NewLink(config.DefaultLinkConfig())
	var atB, atA collector
	l.B().SetReceiver(atB.receive)
	l.A().SetReceiver(atA.receive)

	buf := []byte("hello")
	require.True(t, l.A().CanSend())
	require.NoError(t, l.A().Send(buf))
	buf[0] = 'j'
	require.NoError(t, l.B().Send([]byte("back")))

	require.Equal(t, 1, atB.count())
	assert.Equal(t, []byte("hello"), atB.got[0], "datagram is copied")
	assert.Equal(t, []byte("back"), atA.got[0])
	assert.Equal(t, uint64(1), l.A().Stats().Sent)
	assert.Equal(t, uint64(1), l.B().Stats().Delivered)
}

func TestLink_DropHook(t *testing.T) {
	l := NewLink(config.DefaultLinkConfig())
	var atB collector
	l.B().SetReceiver(atB.receive)

	dropped := false
	l.A().SetDropHook(func(b []byte) bool {
		if !dropped && b[0] == 2 {
			dropped = true
			return true
		}
		return false
	})

	for i := byte(0); i < 4; i++ {
		require.NoError(t, l.A().Send([]byte{i}))
	}
	require.NoError(t, l.A().Send([]byte{2}))
	assert.Equal(t, 4, atB.count())
	assert.Equal(t, uint64(1), l.A().Stats().Dropped)
}

func TestLink_RandomLossDeterministic(t *testing.T) {
	cfg := config.DefaultLinkConfig()
	cfg.LossRate = 0.5

	run := func() int {
		l := NewLink(cfg, WithSeed(7))
		var atB collector
		l.B().SetReceiver(atB.receive)
		for i := 0; i < 200; i++ {
			require.NoError(t, l.A().Send([]byte{1}))
		}
		return atB.count()
	}
	first := run()
	assert.Equal(t, first, run())
	assert.Greater(t, first, 50)
	assert.Less(t, first, 150)
}

func TestLink_RateLimit(t *testing.T) {
	clk := clock.NewMock()
	cfg := config.DefaultLinkConfig()
	cfg.Rate = 100
	cfg.Burst = 2
	l := NewLink(cfg, WithClock(clk))
	var atB collector
	l.B().SetReceiver(atB.receive)

	require.NoError(t, l.A().Send([]byte{1}))
	require.NoError(t, l.A().Send([]byte{2}))
	assert.False(t, l.A().CanSend())
	assert.ErrorIs(t, l.A().Send([]byte{3}), ErrBackpressure)

	clk.Add(10 * time.Millisecond)
	assert.True(t, l.A().CanSend())
	require.NoError(t, l.A().Send([]byte{4}))
	assert.Equal(t, 3, atB.count())
	assert.Equal(t, uint64(1), l.A().Stats().Rejected)
}

func TestLink_DelayedDelivery(t *testing.T) {
	cfg := config.DefaultLinkConfig()
	cfg.Delay = config.Duration(5 * time.Millisecond)
	l := NewLink(cfg)
	var atB collector
	l.B().SetReceiver(atB.receive)
	l.Start(context.Background())

	require.NoError(t, l.A().Send([]byte{1}))
	assert.Zero(t, atB.count())
	assert.Eventually(t, func() bool { return atB.count() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.False(t, l.A().CanSend())
	assert.ErrorIs(t, l.A().Send([]byte{2}), ErrLinkClosed)
}
