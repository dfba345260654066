package ewf

import lru "github.com/hashicorp/golang-lru/v2"

// DefaultCacheSize is the default chunk-cache capacity: 100 entries, about
// 3.2 MiB at the default 32 KiB chunk size.
const DefaultCacheSize = 100

// chunkCache is a bounded chunk-id -> decompressed-bytes cache with LRU
// eviction, private to a single EWFReader. Built on hashicorp/golang-lru/v2
// rather than a hand-rolled list+map, per DESIGN.md's grounding on
// dolthub-dolt's use of the same package for a bounded recency-ordered
// cache.
type chunkCache struct {
	lru *lru.Cache[uint64, []byte]
}

// newChunkCache creates a cache with the given capacity. Capacity 0 is
// permitted and degenerates to "cache nothing", exercised by the
// cache-transparency property (spec §8.3).
func newChunkCache(capacity int) *chunkCache {
	if capacity <= 0 {
		return &chunkCache{}
	}
	c, _ := lru.New[uint64, []byte](capacity)
	return &chunkCache{lru: c}
}

func (c *chunkCache) Get(chunkID uint64) ([]byte, bool) {
	if c.lru == nil {
		return nil, false
	}
	return c.lru.Get(chunkID)
}

func (c *chunkCache) Put(chunkID uint64, data []byte) {
	if c.lru == nil {
		return
	}
	c.lru.Add(chunkID, data)
}
