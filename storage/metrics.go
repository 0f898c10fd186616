// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package storage

import "github.com/evmbridge/evmstate/metrics"

var (
	metricNodeCacheHit  = metrics.LazyLoadGauge("node_cache_hit")
	metricNodeCacheMiss = metrics.LazyLoadGauge("node_cache_miss")
	metricPatchNodes    = metrics.LazyLoadCounterVec("patch_nodes_count", []string{"type"})
	metricGCRemoved     = metrics.LazyLoadCounter("gc_removed_nodes_count")
	metricGCConflicts   = metrics.LazyLoadCounterVec("gc_conflicts_count", []string{"op"})
)
