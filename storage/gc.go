// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package storage

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/evmbridge/evmstate/schema"
)

var (
	// ErrGCConflict is returned when a reference counter transaction observed
	// data modified concurrently. Nothing was written and the call can be retried.
	ErrGCConflict = errors.New("gc conflict")
	// ErrSlotRegistered is returned when registering a slot twice.
	ErrSlotRegistered = errors.New("slot already registered")
)

// The reference count of a node is the number of stored nodes pointing at it
// (account leaves count for storage roots) plus the number of slots
// registered with it as state root. A node with zero count is unreachable
// unless a new parent or slot adopts it.

// retryGC runs fn until it does not conflict, at most MaxGCRetries times more.
func (s *Storage) retryGC(op string, fn func() error) error {
	for i := 0; ; i++ {
		err := fn()
		if !errors.Is(err, ErrGCConflict) {
			return err
		}
		metricGCConflicts().AddWithLabel(1, map[string]string{"op": op})
		if i >= s.opts.MaxGCRetries {
			return err
		}
		logger.Warn("gc conflict, retry", "op", op, "attempt", i+1, "err", err)
	}
}

// RegisterSlot records root as the state root of slot and adds a reference to it.
// It's a no-op if gc disabled.
func (s *Storage) RegisterSlot(slot uint64, root common.Hash) error {
	if !s.IsGCEnabled() {
		return nil
	}
	s.sweepLock.RLock()
	defer s.sweepLock.RUnlock()

	return s.retryGC("register_slot", func() error {
		tx := s.newTxn()
		if _, ok, err := tx.slotRoot(slot); err != nil {
			return err
		} else if ok {
			return errors.Wrapf(ErrSlotRegistered, "slot %d", slot)
		}
		if root != types.EmptyRootHash {
			has, err := tx.hasNode(root)
			if err != nil {
				return err
			}
			if !has {
				return errors.Errorf("missing state root %v", root)
			}
		}
		if err := tx.incr(root); err != nil {
			return err
		}
		tx.setSlotRoot(slot, root)
		return tx.commit()
	})
}

// PurgeSlot removes the slot and drops its reference to the state root.
// The root is returned with true if no reference is left on it, and should be
// passed to GCRemoveReferences. Unknown slots are ignored.
// It's a no-op if gc disabled.
func (s *Storage) PurgeSlot(slot uint64) (common.Hash, bool, error) {
	if !s.IsGCEnabled() {
		return common.Hash{}, false, nil
	}
	s.sweepLock.RLock()
	defer s.sweepLock.RUnlock()

	var (
		root     common.Hash
		released bool
	)
	err := s.retryGC("purge_slot", func() error {
		root, released = common.Hash{}, false

		tx := s.newTxn()
		r, ok, err := tx.slotRoot(slot)
		if err != nil || !ok {
			return err
		}
		n, err := tx.count(r)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.Errorf("reference counter of slot %d root %v underflow", slot, r)
		}
		tx.deleteSlotRoot(slot)
		tx.setCount(r, n-1)
		if err := tx.commit(); err != nil {
			return err
		}
		root, released = r, n == 1
		return nil
	})
	if err != nil {
		return common.Hash{}, false, err
	}
	return root, released, nil
}

// SlotRoot returns the state root registered for slot.
func (s *Storage) SlotRoot(slot uint64) (common.Hash, bool, error) {
	if !s.IsGCEnabled() {
		return common.Hash{}, false, nil
	}
	return Get(s, schema.SlotRoots, slot)
}

// GCCount returns the reference count of hash. Always 0 if gc disabled.
func (s *Storage) GCCount(hash common.Hash) (uint64, error) {
	if !s.IsGCEnabled() {
		return 0, nil
	}
	n, _, err := Get(s, schema.ReferenceCounter, hash)
	return n, err
}

// GCRemoveReferences reclaims the given nodes, which are expected to have no
// reference left, e.g. a root released by PurgeSlot. Nodes that regained a
// reference or are already gone are skipped. Each reclaimed node drops one
// reference from each of its children, and the children left with none are
// returned, so the caller drives the cascade by calling again with them.
//
// All changes are made in one transaction. ErrGCConflict is returned
// without retry if the involved counters or nodes were concurrently modified.
// It's a no-op if gc disabled.
func (s *Storage) GCRemoveReferences(refs []common.Hash) ([]common.Hash, error) {
	if !s.IsGCEnabled() || len(refs) == 0 {
		return nil, nil
	}
	s.sweepLock.RLock()
	defer s.sweepLock.RUnlock()

	var (
		tx      = s.newTxn()
		removed = make(map[common.Hash]struct{})
		pending []common.Hash
	)
	for _, ref := range refs {
		if _, ok := removed[ref]; ok {
			continue
		}
		n, err := tx.count(ref)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			continue
		}
		blob, err := tx.node(ref)
		if err != nil {
			return nil, err
		}
		if blob == nil {
			continue
		}
		children, err := childRefs(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "node %v", ref)
		}
		for _, child := range children {
			n, err := tx.count(child)
			if err != nil {
				return nil, err
			}
			if n == 0 {
				// not counted, left for the cleaner
				continue
			}
			tx.setCount(child, n-1)
			if n == 1 {
				pending = append(pending, child)
			}
		}
		tx.deleteNode(ref)
		removed[ref] = struct{}{}
	}

	if len(removed) == 0 {
		return nil, nil
	}
	if err := tx.commit(); err != nil {
		if errors.Is(err, ErrGCConflict) {
			metricGCConflicts().AddWithLabel(1, map[string]string{"op": "remove_references"})
		}
		return nil, err
	}

	for h := range removed {
		s.nodeCache.del(h)
	}
	metricGCRemoved().Add(int64(len(removed)))

	released := make([]common.Hash, 0, len(pending))
	seen := make(map[common.Hash]struct{}, len(pending))
	for _, h := range pending {
		if _, ok := removed[h]; ok {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		released = append(released, h)
	}
	logger.Debug("references removed", "nodes", len(removed), "released", len(released))
	return released, nil
}
