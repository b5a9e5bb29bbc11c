package cache

import (
	"sync"
)

// Scores is the cached result of one forward call: start and end logits,
// one row per batch entry.
type Scores struct {
	Start [][]float64
	End   [][]float64
}

// ScoreCache defines a generic interface for caching model scores.
type ScoreCache interface {
	// Get retrieves scores from the cache.
	Get(key uint64) (Scores, bool)
	// Put stores scores in the cache.
	Put(key uint64, s Scores)
	// Size returns the number of items in the cache.
	Size() int
}

// MapCache is a simple in-memory implementation of ScoreCache.
type MapCache struct {
	data map[uint64]Scores
	mu   sync.RWMutex
}

func NewMapCache() *MapCache {
	return &MapCache{
		data: make(map[uint64]Scores),
	}
}

func (c *MapCache) Get(key uint64) (Scores, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Return copy to avoid modification of cached value
	if v, ok := c.data[key]; ok {
		return v.clone(), true
	}
	return Scores{}, false
}

func (c *MapCache) Put(key uint64, s Scores) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = s.clone()
}

func (c *MapCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func (s Scores) clone() Scores {
	return Scores{Start: cloneRows(s.Start), End: cloneRows(s.End)}
}

func cloneRows(rows [][]float64) [][]float64 {
	if rows == nil {
		return nil
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = append([]float64(nil), r...)
	}
	return out
}
