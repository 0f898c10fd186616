// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/evmbridge/evmstate/storage"
)

// GetAccount returns the account of addr in the state at root.
// Absent accounts are returned as nil.
func GetAccount(st *storage.Storage, root common.Hash, addr common.Address) (*types.StateAccount, error) {
	tr, err := st.OpenAccountTrie(root)
	if err != nil {
		return nil, err
	}
	return tr.Account(addr)
}

// GetStorage returns the storage word of addr at index in the state at root.
func GetStorage(st *storage.Storage, root common.Hash, addr common.Address, index common.Hash) (common.Hash, error) {
	acc, err := GetAccount(st, root, addr)
	if err != nil || acc == nil || acc.Root == types.EmptyRootHash {
		return common.Hash{}, err
	}
	tr, err := st.OpenStorageTrie(acc.Root)
	if err != nil {
		return common.Hash{}, err
	}
	return tr.Get(index)
}

// GetCode returns the code of addr in the state at root.
func GetCode(st *storage.Storage, root common.Hash, addr common.Address) ([]byte, error) {
	acc, err := GetAccount(st, root, addr)
	if err != nil || acc == nil {
		return nil, err
	}
	return st.Code(common.BytesToHash(acc.CodeHash))
}
