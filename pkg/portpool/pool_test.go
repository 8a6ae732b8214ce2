package portpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocate_FirstFitLowest(t *testing.T) {
	p, err := New(5000, 10)
	require.NoError(t, err)

	a, err := p.Allocate()
	require.NoError(t, err)
	b, err := p.Allocate()
	require.NoError(t, err)

	assert.Equal(t, 5000, a)
	assert.Equal(t, 5001, b)

	p.Release(a)
	c, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 5000, c, "released port should be reused first")
}

func TestAllocate_Exhausted(t *testing.T) {
	p, err := New(5000, 3)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := p.Allocate()
		require.NoError(t, err)
	}

	_, err = p.Allocate()
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 0, p.Free())
}

func TestAllocate_SkipsReservedRange(t *testing.T) {
	p, err := New(5000, 10, Range{From: 5000, To: 5003})
	require.NoError(t, err)

	a, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 5003, a)
	assert.Equal(t, 6, p.Free())
}

func TestRelease_UnheldPortIsNoop(t *testing.T) {
	p, err := New(5000, 5)
	require.NoError(t, err)

	a, err := p.Allocate()
	require.NoError(t, err)

	p.Release(a)
	p.Release(a) // double release
	p.Release(9999)

	assert.Equal(t, 0, p.InUse())
	assert.Equal(t, 5, p.Free())
}

func TestAllocate_NoDuplicatesUnderConcurrency(t *testing.T) {
	p, err := New(5000, 128)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := make(map[int]int)

	var wg sync.WaitGroup
	for i := 0; i < 128; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			port, err := p.Allocate()
			if err != nil {
				return
			}
			mu.Lock()
			seen[port]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 128)
	for port, n := range seen {
		assert.Equalf(t, 1, n, "port %d allocated %d times", port, n)
	}
}

func TestNew_RejectsInvalidRange(t *testing.T) {
	_, err := New(0, 10)
	assert.Error(t, err)

	_, err = New(65000, 10000)
	assert.Error(t, err)
}
