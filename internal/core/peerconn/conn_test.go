package peerconn

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-genet/config"
	"github.com/dep2p/go-genet/pkg/types"
)

func TestConn_DefaultID(t *testing.T) {
	c := New(config.DefaultCongestionConfig())
	_, err := uuid.Parse(c.ID())
	require.NoError(t, err)
	assert.True(t, c.IsActive())

	named := New(config.DefaultCongestionConfig(), WithID("peer-a"))
	assert.Equal(t, "peer-a", named.ID())
}

func TestConn_RttAndTimeout(t *testing.T) {
	c := New(config.DefaultCongestionConfig())
	assert.Zero(t, c.SmoothedRtt())
	assert.Zero(t, c.RetransmissionTimeout())

	c.ObserveRtt(20 * time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, c.SmoothedRtt())
	assert.Equal(t, 20*time.Millisecond, c.MinRtt())
	// 低于下限取 MinRto
	assert.Equal(t, 200*time.Millisecond, c.RetransmissionTimeout())
}

func TestConn_Touch(t *testing.T) {
	clk := clock.NewMock()
	c := New(config.DefaultCongestionConfig(), WithClock(clk))
	clk.Add(3 * time.Second)
	assert.Equal(t, 3*time.Second, c.Idle())

	c.Touch()
	assert.Zero(t, c.Idle())
}

func TestConn_DeliverAndClose(t *testing.T) {
	c := New(config.DefaultCongestionConfig(), WithInboxSize(1))
	c.Deliver(&types.Message{Transmission: 1})
	c.Deliver(&types.Message{Transmission: 2})
	assert.Equal(t, uint64(1), c.DroppedDeliveries())

	msg := <-c.Inbox()
	assert.Equal(t, types.TransmissionID(1), msg.Transmission)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.False(t, c.IsActive())

	c.Deliver(&types.Message{Transmission: 3})
	assert.Equal(t, uint64(2), c.DroppedDeliveries())
	_, ok := <-c.Inbox()
	assert.False(t, ok)
}

func TestConn_DeliverFunc(t *testing.T) {
	var got []*types.Message
	c := New(config.DefaultCongestionConfig(), WithDeliverFunc(func(m *types.Message) {
		got = append(got, m)
	}))
	c.Deliver(&types.Message{Transmission: 4})
	assert.Len(t, got, 1)
}
