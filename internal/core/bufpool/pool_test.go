package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_AcquireRelease(t *testing.T) {
	p := New(64)

	b := p.Acquire()
	require.NotNil(t, b)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 64, b.Cap())
	assert.Equal(t, int64(1), p.Outstanding())

	b.Release()
	assert.Equal(t, int64(0), p.Outstanding())
}

func TestBuffer_ReleaseIdempotentPastZero(t *testing.T) {
	p := New(16)
	b := p.Acquire()
	b.Retain()
	assert.Equal(t, int32(2), b.Refs())

	b.Release()
	assert.Equal(t, int64(1), p.Outstanding())
	b.Release()
	assert.Equal(t, int64(0), p.Outstanding())

	// 归零后再次 Release 不会重复归还
	b.Release()
	b.Release()
	assert.Equal(t, int64(0), p.Outstanding())
	assert.Equal(t, int32(0), b.Refs())
}

func TestPool_Copy(t *testing.T) {
	p := New(4)
	b := p.Copy([]byte("abcdef"))
	assert.Equal(t, []byte("abcd"), b.Bytes())
	b.SetLen(2)
	assert.Equal(t, []byte("ab"), b.Bytes())
	b.SetLen(100)
	assert.Equal(t, 4, b.Len())
	b.Release()
}

func TestWrap(t *testing.T) {
	b := Wrap([]byte("xyz"))
	assert.Equal(t, 3, b.Len())
	b.Release()
	b.Release()
	assert.Equal(t, int32(0), b.Refs())
}

func TestBuffer_ConcurrentRelease(t *testing.T) {
	p := New(8)
	b := p.Acquire()
	const holders = 32
	for i := 0; i < holders-1; i++ {
		b.Retain()
	}

	var wg sync.WaitGroup
	for i := 0; i < holders*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(0), p.Outstanding())
}
