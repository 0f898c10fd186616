// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cache

import (
	"fmt"
	"sync/atomic"

	"github.com/evmbridge/evmstate/log"
)

// Stats collects cache hits and misses.
type Stats struct {
	hit, miss atomic.Int64
	flag      atomic.Int32
}

// Hit records a hit.
func (cs *Stats) Hit() int64 { return cs.hit.Add(1) }

// Miss records a miss.
func (cs *Stats) Miss() int64 { return cs.miss.Add(1) }

// HitRate returns hits, misses and the hit rate in percent.
func (cs *Stats) HitRate() (int64, int64, float64) {
	hit, miss := cs.hit.Load(), cs.miss.Load()
	if lookups := hit + miss; lookups > 0 {
		return hit, miss, float64(hit) * 100 / float64(lookups)
	}
	return hit, miss, 0
}

// Changed reports whether the hit rate moved by at least 0.1% since the last call.
func (cs *Stats) Changed() bool {
	_, _, rate := cs.HitRate()
	flag := int32(rate * 10)
	return cs.flag.Swap(flag) != flag
}

// Log writes the stats to logger when the hit rate changed.
func (cs *Stats) Log(logger log.Logger, name string) {
	if !cs.Changed() {
		return
	}
	hit, miss, rate := cs.HitRate()
	logger.Debug(fmt.Sprintf("%s cache stats", name), "hit", hit, "miss", miss, "rate", fmt.Sprintf("%.3f%%", rate))
}
