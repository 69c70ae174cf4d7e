// Package extkeycache implements upscaledb.ExtendedKeyCache: a
// read-through LRU in front of a BlobStore, keyed by blob id (§4.F). It
// exists purely to avoid a blob-store round trip on every comparison
// against a hot extended key during a binary search.
package extkeycache

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"
)

// hashID hashes a blob id for freelru's hash table buckets.
func hashID(id uint64) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], id)
	return uint32(xxhash.Sum64(b[:]))
}

// Cache wraps a fixed-capacity freelru.LRU. A capacity of 0 means the
// cache is disabled: every Get misses and Put is a no-op, so resolvers
// fall straight through to the BlobStore.
type Cache struct {
	mu  sync.Mutex
	lru *freelru.LRU[uint64, []byte]
}

// New builds a Cache holding up to capacity entries.
func New(capacity uint32) (*Cache, error) {
	if capacity == 0 {
		return &Cache{}, nil
	}
	lru, err := freelru.New[uint64, []byte](capacity, hashID)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: lru}, nil
}

func (c *Cache) Get(id uint64) ([]byte, bool) {
	if c.lru == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(id)
}

func (c *Cache) Put(id uint64, data []byte) {
	if c.lru == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(id, data)
}

func (c *Cache) Remove(id uint64) {
	if c.lru == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(id)
}
