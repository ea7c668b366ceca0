package gene

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-genet/internal/core/bufpool"
	"github.com/dep2p/go-genet/pkg/types"
)

const testGeneSize = 100

func testPool() *bufpool.Pool {
	return bufpool.New(testGeneSize + DataFrameOverhead)
}

type ownerStub struct {
	active bool
	acked  []types.GeneID
}

func (o *ownerStub) IsActive() bool      { return o.active }
func (o *ownerStub) OnGeneAcked(g *Gene) { o.acked = append(o.acked, g.ID()) }

func TestGeneCount(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{0, 1},
		{88, 1},
		{89, 2},
		{188, 2},
		{189, 3},
		{288, 3},
		{289, 4},
		{988, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GeneCount(tt.n, testGeneSize), "n=%d", tt.n)
	}
	assert.Equal(t, types.ModeRama, ModeFor(3))
	assert.Equal(t, types.ModeBlock, ModeFor(4))
}

func TestSplit_ReassemblesInOrder(t *testing.T) {
	pool := testPool()
	payload := bytes.Repeat([]byte("0123456789"), 95)
	hdr := Header{Kind: 7, ID: 99}

	genes, err := Split(pool, nil, 3, hdr, payload, testGeneSize)
	require.NoError(t, err)
	require.Len(t, genes, GeneCount(len(payload), testGeneSize))

	var out []byte
	for i, g := range genes {
		f, err := ParseDataFrame(g.Frame())
		require.NoError(t, err)
		assert.Equal(t, types.TransmissionID(3), f.Transmission)
		assert.Equal(t, i, f.Position)
		assert.Equal(t, types.ModeBlock, f.Mode)
		assert.Equal(t, len(genes), f.Total)

		body := f.Payload
		if i == 0 {
			h, err := ParseHeader(body)
			require.NoError(t, err)
			assert.Equal(t, hdr, h)
			body = body[HeaderSize:]
		}
		out = append(out, body...)
	}
	assert.Equal(t, payload, out)

	for _, g := range genes {
		g.Release()
	}
	assert.Equal(t, int64(0), pool.Outstanding())
}

func TestNew_TooLarge(t *testing.T) {
	pool := testPool()
	id := types.GeneID{Transmission: 1}
	_, err := New(pool, nil, id, types.ModeRama, 1, &Header{}, make([]byte, testGeneSize))
	assert.True(t, errors.Is(err, ErrGeneTooLarge))

	_, err = New(pool, nil, id, types.ModeUnknown, 1, nil, nil)
	assert.True(t, errors.Is(err, ErrInvalidMode))
	assert.Equal(t, int64(0), pool.Outstanding())
}

func TestGene_Flags(t *testing.T) {
	owner := &ownerStub{active: true}
	g, err := New(testPool(), owner, types.GeneID{Transmission: 1, Position: 1},
		types.ModeStream, -1, nil, nil)
	require.NoError(t, err)
	assert.True(t, g.Terminal())
	assert.True(t, g.Needed())

	assert.True(t, g.MarkLossDetected())
	assert.False(t, g.MarkLossDetected())
	g.ClearLossDetected()
	assert.True(t, g.MarkLossDetected())

	assert.True(t, g.MarkAcked())
	assert.False(t, g.MarkAcked())
	assert.False(t, g.Needed())

	g2, err := New(testPool(), owner, types.GeneID{Transmission: 1}, types.ModeRama, 1, &Header{}, nil)
	require.NoError(t, err)
	owner.active = false
	assert.False(t, g2.Needed())
}

func TestGene_KarnSample(t *testing.T) {
	g, err := New(testPool(), nil, types.GeneID{}, types.ModeRama, 1, &Header{}, []byte("x"))
	require.NoError(t, err)

	start := time.Unix(100, 0)
	assert.True(t, g.Stamp(start, 1).IsZero())
	rtt, ok := g.RttSample(start.Add(30 * time.Millisecond))
	assert.True(t, ok)
	assert.Equal(t, 30*time.Millisecond, rtt)

	prev := g.Stamp(start.Add(time.Second), 2)
	assert.Equal(t, start, prev)
	_, ok = g.RttSample(start.Add(2 * time.Second))
	assert.False(t, ok, "resent gene yields no sample")
	assert.Equal(t, uint64(2), g.Serial())
	assert.Equal(t, start, g.FirstSent())
}

func TestAckFrame(t *testing.T) {
	ids := []types.GeneID{{Transmission: 1, Position: 0}, {Transmission: 2, Position: 7}}
	b := AppendAckFrame(nil, ids)
	assert.Len(t, b, AckFrameOverhead+2*ackEntrySize)

	kind, err := Kind(b)
	require.NoError(t, err)
	assert.Equal(t, FrameAck, kind)

	got, err := ParseAckFrame(nil, b)
	require.NoError(t, err)
	assert.Equal(t, ids, got)

	_, err = ParseAckFrame(nil, b[:len(b)-1])
	assert.ErrorIs(t, err, ErrShortFrame)

	_, err = Kind([]byte{9})
	assert.ErrorIs(t, err, ErrUnknownFrame)
	_, err = ParseDataFrame(b[:5])
	assert.ErrorIs(t, err, ErrShortFrame)

	assert.Equal(t, (1200-AckFrameOverhead)/ackEntrySize, MaxAcksPerFrame(1200))
}

func TestParseDataFrame_NegativeTotal(t *testing.T) {
	buf := make([]byte, DataFrameOverhead)
	PutDataFrameHeader(buf, types.GeneID{Transmission: 5, Position: 3}, types.ModeStream, -1)
	f, err := ParseDataFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, -1, f.Total)
	assert.Empty(t, f.Payload)
	assert.Equal(t, types.GeneID{Transmission: 5, Position: 3}, f.ID())
}

func TestQueue_MultiProducer(t *testing.T) {
	q := NewQueue()
	assert.True(t, q.Empty())
	assert.Nil(t, q.Pop())

	const producers, per = 8, 200
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				q.Push(&Gene{id: types.GeneID{Transmission: types.TransmissionID(p), Position: i}})
			}
		}(p)
	}
	wg.Wait()

	last := make(map[types.TransmissionID]int)
	count := 0
	q.Drain(func(g *Gene) {
		prev, seen := last[g.id.Transmission]
		if seen {
			assert.Greater(t, g.id.Position, prev, "per-producer FIFO")
		}
		last[g.id.Transmission] = g.id.Position
		count++
	})
	assert.Equal(t, producers*per, count)
	assert.Equal(t, 0, q.Len())
}
