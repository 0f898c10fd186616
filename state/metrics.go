// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import "github.com/evmbridge/evmstate/metrics"

var (
	metricFlushDuration  = metrics.LazyLoadHistogram("state_flush_duration_ms", metrics.BucketMillis)
	metricAccountCounter = metrics.LazyLoadCounterVec("account_change_count", []string{"type"})
)
