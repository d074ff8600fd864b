package transport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendChFull(t *testing.T) {
	ch := NewSendCh[int]("test", 2)
	require.NoError(t, ch.TrySend(1))
	require.NoError(t, ch.TrySend(2))
	assert.ErrorIs(t, ch.TrySend(3), ErrChannelFull)
	assert.Equal(t, 2, ch.Len())

	assert.Equal(t, 1, <-ch.Receiver())
	require.NoError(t, ch.TrySend(3))
	assert.Equal(t, 2, <-ch.Receiver())
	assert.Equal(t, 3, <-ch.Receiver())
}

func TestSendChClosed(t *testing.T) {
	ch := NewSendCh[string]("test", 4)
	require.NoError(t, ch.TrySend("a"))
	ch.Close()
	ch.Close()

	assert.ErrorIs(t, ch.TrySend("b"), ErrChannelClosed)

	v, ok := <-ch.Receiver()
	require.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = <-ch.Receiver()
	assert.False(t, ok)
}

func TestSendChConcurrentSendersAndClose(t *testing.T) {
	ch := NewSendCh[int]("test", 16)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = ch.TrySend(i*100 + j)
			}
		}(i)
	}
	ch.Close()
	wg.Wait()

	n := 0
	for range ch.Receiver() {
		n++
	}
	assert.LessOrEqual(t, n, 16)
}

func TestSendChMinimumCapacity(t *testing.T) {
	ch := NewSendCh[int]("test", 0)
	assert.Equal(t, 1, ch.Cap())
	assert.Equal(t, "test", ch.Name())
}
