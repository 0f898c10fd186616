// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package storage

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/qianbin/directcache"

	"github.com/evmbridge/evmstate/cache"
)

// nodeCache caches trie node blobs by hash.
type nodeCache struct {
	queried   *directcache.Cache // caches recently queried node blobs.
	committed *directcache.Cache // caches newly committed node blobs.

	// gen counts evictions. A blob read from the store before an eviction
	// may be of a node deleted since, so it's only cached if gen is unchanged.
	mu  sync.Mutex
	gen uint64

	stats       cache.Stats
	lastLogTime atomic.Int64
}

// newNodeCache creates a node cache of the given size.
// Returns nil if sizeMB is not positive, and the nil cache is always empty.
func newNodeCache(sizeMB int) *nodeCache {
	if sizeMB <= 0 {
		return nil
	}
	sizeBytes := sizeMB * 1024 * 1024
	c := &nodeCache{
		queried:   directcache.New(sizeBytes / 4),
		committed: directcache.New(sizeBytes - sizeBytes/4),
	}
	c.lastLogTime.Store(time.Now().UnixNano())
	return c
}

func (c *nodeCache) get(hash common.Hash) []byte {
	if c == nil {
		return nil
	}
	var blob []byte
	fn := func(val []byte) { blob = slices.Clone(val) }
	if c.committed.AdvGet(hash[:], fn, false) || c.queried.AdvGet(hash[:], fn, false) {
		if c.stats.Hit()%2000 == 0 {
			c.log()
		}
		return blob
	}
	c.stats.Miss()
	return nil
}

// generation returns the eviction generation, to be taken before reading
// the blobs passed to addQueried or addCommitted.
func (c *nodeCache) generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *nodeCache) addQueried(hash common.Hash, blob []byte, gen uint64) {
	c.add(false, hash, blob, gen)
}

func (c *nodeCache) addCommitted(hash common.Hash, blob []byte, gen uint64) {
	c.add(true, hash, blob, gen)
}

func (c *nodeCache) add(committed bool, hash common.Hash, blob []byte, gen uint64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	if committed {
		c.committed.Set(hash[:], blob)
	} else {
		c.queried.Set(hash[:], blob)
	}
}

func (c *nodeCache) del(hash common.Hash) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.committed.Del(hash[:])
	c.queried.Del(hash[:])
}

func (c *nodeCache) log() {
	if c == nil {
		return
	}
	now := time.Now().UnixNano()
	last := c.lastLogTime.Swap(now)

	if now-last > int64(time.Second*20) {
		c.stats.Log(logger, "node")

		hit, miss, _ := c.stats.HitRate()
		metricNodeCacheHit().Set(hit)
		metricNodeCacheMiss().Set(miss)
	} else {
		c.lastLogTime.CompareAndSwap(now, last)
	}
}
