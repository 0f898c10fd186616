// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package cleaner reclaims the trie nodes and codes unreachable from the live
// state roots by a full mark and sweep.
package cleaner

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/evmbridge/evmstate/kv"
	"github.com/evmbridge/evmstate/log"
	"github.com/evmbridge/evmstate/metrics"
	"github.com/evmbridge/evmstate/schema"
	"github.com/evmbridge/evmstate/storage"
)

var (
	logger = log.WithContext("pkg", "cleaner")

	metricSwept = metrics.LazyLoadCounterVec("cleaner_swept_count", []string{"table"})
)

// ErrCleanerGCEnabled is returned when sweeping a storage with reference counters,
// which would be left dangling.
var ErrCleanerGCEnabled = errors.New("cleaner requires gc disabled")

// Result is the outcome of a cleanup.
type Result struct {
	Nodes int // deleted trie nodes
	Codes int // deleted codes
}

// Cleaner sweeps a storage against a live set.
type Cleaner struct {
	st   *storage.Storage
	live *LiveSet
}

// New creates a cleaner. live must include everything reachable from every
// root still in use, it's usually built by Collect.
func New(st *storage.Storage, live *LiveSet) *Cleaner {
	return &Cleaner{st, live}
}

// Cleanup deletes the nodes and codes not in the live set.
// Commits are blocked during the sweep only. Nodes committed after the live
// set was collected are swept too, so writers must be stopped since Collect,
// or use CollectAndCleanup.
func (c *Cleaner) Cleanup(ctx context.Context) (Result, error) {
	if c.st.IsGCEnabled() {
		return Result{}, ErrCleanerGCEnabled
	}
	unlock := c.st.LockExclusive()
	defer unlock()

	return c.cleanup(ctx)
}

// CollectAndCleanup collects the live set of roots and sweeps everything else,
// with commits blocked over both steps.
func CollectAndCleanup(ctx context.Context, st *storage.Storage, roots []common.Hash) (Result, error) {
	if st.IsGCEnabled() {
		return Result{}, ErrCleanerGCEnabled
	}
	unlock := st.LockExclusive()
	defer unlock()

	live, err := Collect(ctx, st, roots)
	if err != nil {
		return Result{}, errors.Wrap(err, "collect")
	}
	return New(st, live).cleanup(ctx)
}

// cleanup sweeps both stores, the caller holds the exclusive lock.
func (c *Cleaner) cleanup(ctx context.Context) (Result, error) {
	var (
		res       Result
		err       error
		startTime = time.Now()
	)
	res.Nodes, err = sweep(ctx, c.st.NodeStore(), func(key []byte) (bool, error) {
		if len(key) != common.HashLength {
			return false, errors.Errorf("invalid node key %x", key)
		}
		h := common.BytesToHash(key)
		if c.live.HasNode(h) {
			return true, nil
		}
		c.st.EvictNode(h)
		return false, nil
	})
	if err != nil {
		return res, errors.Wrap(err, "sweep nodes")
	}
	logger.Info("trie nodes swept", "removed", res.Nodes)

	res.Codes, err = sweep(ctx, c.st.CodeStore(), func(key []byte) (bool, error) {
		h, err := schema.Codes.DecodeKey(key)
		if err != nil {
			return false, err
		}
		if c.live.HasCode(h) {
			return true, nil
		}
		c.st.EvictCode(h)
		return false, nil
	})
	if err != nil {
		return res, errors.Wrap(err, "sweep codes")
	}
	logger.Info("codes swept", "removed", res.Codes, "et", time.Since(startTime))

	metricSwept().AddWithLabel(int64(res.Nodes), map[string]string{"table": "nodes"})
	metricSwept().AddWithLabel(int64(res.Codes), map[string]string{"table": "codes"})
	return res, nil
}

// sweep deletes every key of the store that keep rejects.
func sweep(ctx context.Context, store kv.Store, keep func(key []byte) (bool, error)) (int, error) {
	bulk := store.Bulk()
	bulk.EnableAutoFlush()

	it := store.Iterate(kv.Range{})
	defer it.Release()

	removed, visited := 0, 0
	for it.Next() {
		ok, err := keep(it.Key())
		if err != nil {
			return removed, err
		}
		if !ok {
			if err := bulk.Delete(it.Key()); err != nil {
				return removed, err
			}
			removed++
		}

		visited++
		if visited%checkInterval == 0 {
			select {
			case <-ctx.Done():
				return removed, ctx.Err()
			default:
			}
		}
	}
	if err := it.Error(); err != nil {
		return removed, err
	}
	return removed, bulk.Write()
}
