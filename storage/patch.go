// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package storage

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/pkg/errors"

	"github.com/evmbridge/evmstate/schema"
)

// Patch accumulates committed trie nodes and contract codes to be
// persisted together.
type Patch struct {
	nodes map[common.Hash][]byte
	codes map[common.Hash][]byte
}

// NewPatch creates an empty patch.
func NewPatch() *Patch {
	return &Patch{
		nodes: make(map[common.Hash][]byte),
		codes: make(map[common.Hash][]byte),
	}
}

// AddNodes merges the node set produced by a trie commit.
// Deleted nodes are skipped, they are reclaimed by gc or the cleaner.
func (p *Patch) AddNodes(set *trienode.NodeSet) {
	if set == nil {
		return
	}
	for _, n := range set.Nodes {
		if n.IsDeleted() {
			continue
		}
		p.nodes[n.Hash] = n.Blob
	}
}

// AddCode adds the code and returns its hash.
func (p *Patch) AddCode(code []byte) common.Hash {
	hash := crypto.Keccak256Hash(code)
	p.codes[hash] = code
	return hash
}

// Merge moves all entries of other into p.
func (p *Patch) Merge(other *Patch) {
	for h, blob := range other.nodes {
		p.nodes[h] = blob
	}
	for h, code := range other.codes {
		p.codes[h] = code
	}
}

// HasNode returns whether the node is in the patch.
func (p *Patch) HasNode(hash common.Hash) bool {
	_, ok := p.nodes[hash]
	return ok
}

// Len returns the count of nodes and codes.
func (p *Patch) Len() (nodes int, codes int) {
	return len(p.nodes), len(p.codes)
}

// ApplyPatch writes the patch in one atomic batch.
//
// With gc enabled, each node not yet stored adds one reference to every
// hash it points at. Nodes already stored are left untouched.
func (s *Storage) ApplyPatch(p *Patch) (err error) {
	s.sweepLock.RLock()
	defer s.sweepLock.RUnlock()

	startTime := time.Now()
	defer func() {
		if err == nil {
			metricPatchNodes().AddWithLabel(int64(len(p.nodes)), map[string]string{"type": "node"})
			metricPatchNodes().AddWithLabel(int64(len(p.codes)), map[string]string{"type": "code"})
			logger.Debug("patch applied",
				"nodes", len(p.nodes),
				"codes", len(p.codes),
				"et", time.Since(startTime))
		}
	}()

	gen := s.nodeCache.generation()
	if s.IsGCEnabled() {
		err = s.retryGC("apply_patch", func() error { return s.applyCounted(p) })
	} else {
		err = s.applyPlain(p)
	}
	if err != nil {
		return err
	}
	for h, blob := range p.nodes {
		s.nodeCache.addCommitted(h, blob, gen)
	}
	return nil
}

func (s *Storage) applyPlain(p *Patch) error {
	bulk := s.engine.Bulk()
	nodes := spaceBucket(schema.NodeSpace).NewPutter(bulk)
	for h, blob := range p.nodes {
		if err := nodes.Put(h[:], blob); err != nil {
			return err
		}
	}
	codes := spaceBucket(schema.Codes.Space()).NewPutter(bulk)
	for h, code := range p.codes {
		if err := codes.Put(schema.Codes.EncodeKey(h), schema.Codes.EncodeValue(code)); err != nil {
			return err
		}
	}
	return errors.Wrap(bulk.Write(), "write patch")
}

func (s *Storage) applyCounted(p *Patch) error {
	tx := s.newTxn()

	fresh := make([]common.Hash, 0, len(p.nodes))
	for h := range p.nodes {
		has, err := tx.hasNode(h)
		if err != nil {
			return err
		}
		if !has {
			fresh = append(fresh, h)
		}
	}

	for _, h := range fresh {
		blob := p.nodes[h]
		refs, err := childRefs(blob)
		if err != nil {
			return errors.Wrapf(err, "node %v", h)
		}
		for _, ref := range refs {
			if _, ok := p.nodes[ref]; !ok {
				has, err := tx.hasNode(ref)
				if err != nil {
					return err
				}
				if !has {
					return errors.Errorf("missing node %v referenced by %v", ref, h)
				}
			}
			if err := tx.incr(ref); err != nil {
				return err
			}
		}
		tx.putNode(h, blob)
	}

	for h, code := range p.codes {
		tx.putCode(h, code)
	}
	return tx.commit()
}
