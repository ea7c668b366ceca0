package acker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-genet/internal/core/gene"
	"github.com/dep2p/go-genet/pkg/types"
	"github.com/dep2p/go-genet/tests/mocks"
)

func gid(tid, pos int) types.GeneID {
	return types.GeneID{Transmission: types.TransmissionID(tid), Position: pos}
}

func parse(t *testing.T, frames [][]byte) [][]types.GeneID {
	t.Helper()
	out := make([][]types.GeneID, 0, len(frames))
	for _, f := range frames {
		ids, err := gene.ParseAckFrame(nil, f)
		require.NoError(t, err)
		out = append(out, ids)
	}
	return out
}

func TestInstant_SendsImmediately(t *testing.T) {
	sender := mocks.NewMockSender()
	a := New(sender, 1200)

	a.Instant(gid(1, 0))
	assert.Equal(t, [][]types.GeneID{{gid(1, 0)}}, parse(t, sender.Sent()))
	assert.Zero(t, a.Pending())
	assert.Equal(t, uint64(1), a.Stats().Instant)
}

func TestInstant_FallsBackToBatch(t *testing.T) {
	sender := mocks.NewMockSender()
	sender.CanSendFunc = func() bool { return false }
	a := New(sender, 1200)

	a.Instant(gid(1, 0))
	assert.Equal(t, 1, a.Pending())

	sender.CanSendFunc = nil
	sender.SendFunc = func([]byte) error { return errors.New("full") }
	a.Instant(gid(1, 1))
	assert.Equal(t, 2, a.Pending())
	assert.Equal(t, uint64(1), a.Stats().Failed)
}

func TestFlush_BatchesByFrameCapacity(t *testing.T) {
	sender := mocks.NewMockSender()
	// 每帧最多 (35-3)/8 = 4 条
	a := New(sender, 35)

	for i := 0; i < 10; i++ {
		a.Defer(gid(3, i))
	}
	assert.Equal(t, 3, a.Flush())

	frames := parse(t, sender.Sent())
	require.Len(t, frames, 3)
	assert.Len(t, frames[0], 4)
	assert.Len(t, frames[1], 4)
	assert.Equal(t, []types.GeneID{gid(3, 8), gid(3, 9)}, frames[2])
	assert.Zero(t, a.Pending())
	assert.Zero(t, a.Flush())

	stats := a.Stats()
	assert.Equal(t, uint64(10), stats.Batched)
	assert.Equal(t, uint64(3), stats.Frames)
}

func TestFlush_KeepsPendingWhenBusy(t *testing.T) {
	sender := mocks.NewMockSender()
	a := New(sender, 35)
	for i := 0; i < 6; i++ {
		a.Defer(gid(5, i))
	}

	calls := 0
	sender.SendFunc = func([]byte) error {
		calls++
		if calls > 1 {
			return errors.New("full")
		}
		return nil
	}
	assert.Equal(t, 1, a.Flush())
	assert.Equal(t, 2, a.Pending())

	sender.SendFunc = nil
	sender.Reset()
	assert.Equal(t, 1, a.Flush())
	assert.Equal(t, [][]types.GeneID{{gid(5, 4), gid(5, 5)}}, parse(t, sender.Sent()))
}
