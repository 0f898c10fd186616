// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cleaner

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/pkg/errors"

	"github.com/evmbridge/evmstate/storage"
)

const checkInterval = 4096

// LiveSet is the set of trie nodes and codes reachable from the live roots.
type LiveSet struct {
	nodes map[common.Hash]struct{}
	codes map[common.Hash]struct{}
}

// NewLiveSet creates an empty live set.
func NewLiveSet() *LiveSet {
	return &LiveSet{
		nodes: make(map[common.Hash]struct{}),
		codes: make(map[common.Hash]struct{}),
	}
}

// AddNode marks the trie node as live.
func (l *LiveSet) AddNode(h common.Hash) { l.nodes[h] = struct{}{} }

// AddCode marks the code as live.
func (l *LiveSet) AddCode(h common.Hash) { l.codes[h] = struct{}{} }

// HasNode reports whether the trie node is live.
func (l *LiveSet) HasNode(h common.Hash) bool {
	_, ok := l.nodes[h]
	return ok
}

// HasCode reports whether the code is live.
func (l *LiveSet) HasCode(h common.Hash) bool {
	_, ok := l.codes[h]
	return ok
}

// Len returns the count of nodes and codes.
func (l *LiveSet) Len() (nodes int, codes int) {
	return len(l.nodes), len(l.codes)
}

// Collect walks the state tries at roots and the storage tries of their
// accounts, and returns every node and code they reach. Sub-tries already
// collected through another root are not walked again.
// It takes no lock, see CollectAndCleanup for sweeping while commits run.
func Collect(ctx context.Context, st *storage.Storage, roots []common.Hash) (*LiveSet, error) {
	var (
		live      = NewLiveSet()
		startTime = time.Now()
		c         = collector{ctx: ctx, live: live}
	)
	for _, root := range roots {
		if root == types.EmptyRootHash || live.HasNode(root) {
			continue
		}
		tr, err := st.OpenAccountTrie(root)
		if err != nil {
			return nil, err
		}
		it, err := tr.NodeIterator(nil)
		if err != nil {
			return nil, err
		}
		if err := c.walk(it, func(blob []byte) error {
			var acc types.StateAccount
			if err := rlp.DecodeBytes(blob, &acc); err != nil {
				return errors.Wrap(err, "decode account")
			}
			if codeHash := common.BytesToHash(acc.CodeHash); codeHash != types.EmptyCodeHash {
				live.AddCode(codeHash)
			}
			if acc.Root == types.EmptyRootHash || live.HasNode(acc.Root) {
				return nil
			}
			str, err := st.OpenStorageTrie(acc.Root)
			if err != nil {
				return err
			}
			sit, err := str.NodeIterator(nil)
			if err != nil {
				return err
			}
			return c.walk(sit, nil)
		}); err != nil {
			return nil, errors.Wrapf(err, "collect root %v", root)
		}
	}

	nodes, codes := live.Len()
	logger.Info("live set collected", "roots", len(roots), "nodes", nodes, "codes", codes, "et", time.Since(startTime))
	return live, nil
}

type collector struct {
	ctx     context.Context
	live    *LiveSet
	visited int
}

// walk records the hashed nodes of the iterator, skipping collected sub-tries.
// onLeaf is called with every leaf value if not nil.
func (c *collector) walk(it trie.NodeIterator, onLeaf func(blob []byte) error) error {
	descend := true
	for it.Next(descend) {
		descend = true
		if h := it.Hash(); h != (common.Hash{}) {
			if c.live.HasNode(h) {
				descend = false
				continue
			}
			c.live.AddNode(h)
		}
		if it.Leaf() && onLeaf != nil {
			if err := onLeaf(it.LeafBlob()); err != nil {
				return err
			}
		}

		c.visited++
		if c.visited%checkInterval == 0 {
			select {
			case <-c.ctx.Done():
				return c.ctx.Err()
			default:
			}
		}
	}
	return it.Error()
}
