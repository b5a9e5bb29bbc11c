package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapCache_CopySemantics(t *testing.T) {
	c := NewMapCache()
	s := Scores{Start: [][]float64{{1, 2}}, End: [][]float64{{3, 4}}}
	c.Put(7, s)

	// mutating the stored value does not reach the cache
	s.Start[0][0] = 100

	got, ok := c.Get(7)
	require.True(t, ok)
	assert.Equal(t, 1.0, got.Start[0][0])

	// mutating a returned value does not reach the cache
	got.End[0][1] = -1
	again, _ := c.Get(7)
	assert.Equal(t, 4.0, again.End[0][1])

	_, ok = c.Get(8)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Size())
}

func TestMapCache_Concurrent(t *testing.T) {
	c := NewMapCache()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(k uint64) {
			defer wg.Done()
			c.Put(k, Scores{Start: [][]float64{{float64(k)}}})
			_, _ = c.Get(k)
		}(uint64(i))
	}
	wg.Wait()
	assert.Equal(t, 16, c.Size())
}
