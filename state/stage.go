// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"runtime"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/evmbridge/evmstate/log"
	"github.com/evmbridge/evmstate/storage"
)

var logger = log.WithContext("pkg", "state")

// Stage is a batch of changes applied on a state root in memory, ready to
// be committed.
type Stage struct {
	st    *storage.Storage
	root  common.Hash
	patch *storage.Patch
}

// Hash returns the new state root.
func (s *Stage) Hash() common.Hash { return s.root }

// Patch returns the nodes and codes to be written.
func (s *Stage) Patch() *storage.Patch { return s.patch }

// Commit writes the stage into the storage and returns the new state root.
func (s *Stage) Commit() (common.Hash, error) {
	if err := s.st.ApplyPatch(s.patch); err != nil {
		return common.Hash{}, errors.Wrap(err, "commit stage")
	}
	return s.root, nil
}

// FlushChanges applies changes on the state at root, writes the result and
// returns the new state root. Either the whole batch is written or nothing.
func FlushChanges(st *storage.Storage, root common.Hash, changes ChangedState) (common.Hash, error) {
	startTime := time.Now()
	stage, err := NewStage(st, root, changes)
	if err != nil {
		return common.Hash{}, err
	}
	newRoot, err := stage.Commit()
	if err != nil {
		return common.Hash{}, err
	}
	metricFlushDuration().Observe(time.Since(startTime).Milliseconds())
	logger.Debug("changes flushed", "root", root, "newRoot", newRoot, "accounts", len(changes), "et", time.Since(startTime))
	return newRoot, nil
}

// staged is an account in progress.
type staged struct {
	addr    common.Address
	change  AccountChange
	account *types.StateAccount

	storageRoot  common.Hash
	storageNodes *trienode.NodeSet
}

// NewStage applies changes on the state at root without writing anything.
func NewStage(st *storage.Storage, root common.Hash, changes ChangedState) (*Stage, error) {
	accounts, err := st.OpenAccountTrie(root)
	if err != nil {
		return nil, err
	}

	items := make([]*staged, 0, len(changes))
	for addr, change := range changes {
		item := &staged{addr: addr, change: change}
		if !change.IsRemoval() {
			acc, err := accounts.Account(addr)
			if err != nil {
				return nil, errors.Wrapf(err, "load account %v", addr)
			}
			if acc == nil {
				acc = emptyAccount()
			}
			item.account = acc
		}
		items = append(items, item)
	}

	// storage tries of distinct accounts are independent
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for _, item := range items {
		if item.change.IsRemoval() || len(item.change.Storage) == 0 {
			continue
		}
		g.Go(func() error {
			return item.stageStorage(st)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	patch := storage.NewPatch()
	for _, item := range items {
		if item.change.IsRemoval() {
			if err := accounts.DeleteAccount(item.addr); err != nil {
				return nil, errors.Wrapf(err, "delete account %v", item.addr)
			}
			metricAccountCounter().AddWithLabel(1, map[string]string{"type": "removed"})
			continue
		}

		acc := item.account
		state := item.change.State
		acc.Nonce = state.Nonce
		if state.Balance != nil {
			acc.Balance = new(uint256.Int).Set(state.Balance)
		} else {
			acc.Balance = new(uint256.Int)
		}
		if len(state.Code) > 0 {
			acc.CodeHash = patch.AddCode(state.Code).Bytes()
		}
		if len(item.change.Storage) > 0 {
			acc.Root = item.storageRoot
			patch.AddNodes(item.storageNodes)
		}
		if err := accounts.UpdateAccount(item.addr, acc); err != nil {
			return nil, errors.Wrapf(err, "update account %v", item.addr)
		}
		metricAccountCounter().AddWithLabel(1, map[string]string{"type": "updated"})
	}

	newRoot, nodes := accounts.Commit()
	patch.AddNodes(nodes)
	return &Stage{st: st, root: newRoot, patch: patch}, nil
}

// stageStorage applies the storage changes on the account's current storage trie.
func (s *staged) stageStorage(st *storage.Storage) error {
	tr, err := st.OpenStorageTrie(s.account.Root)
	if err != nil {
		return errors.Wrapf(err, "account %v", s.addr)
	}
	for index, word := range s.change.Storage {
		if err := tr.Set(index, word); err != nil {
			return errors.Wrapf(err, "set storage of %v", s.addr)
		}
	}
	s.storageRoot, s.storageNodes = tr.Commit()
	return nil
}

func emptyAccount() *types.StateAccount {
	return &types.StateAccount{
		Balance:  new(uint256.Int),
		Root:     types.EmptyRootHash,
		CodeHash: types.EmptyCodeHash.Bytes(),
	}
}
