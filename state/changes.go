// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AccountState is the new basic state of an account.
type AccountState struct {
	Nonce   uint64
	Balance *uint256.Int
	// Code replaces the account code if not empty.
	Code []byte
}

// AccountChange is the change of one account in a batch.
type AccountChange struct {
	// State is nil if the account is removed.
	State *AccountState
	// Storage maps storage index to the new word. A zero word clears the index.
	Storage map[common.Hash]common.Hash
}

// IsRemoval returns whether the account ceases to exist.
func (c *AccountChange) IsRemoval() bool {
	return c.State == nil
}

// ChangedState is a batch of account changes. Accounts are independent
// and applied in no particular order.
type ChangedState map[common.Address]AccountChange

// Removed returns the change that removes an account.
func Removed() AccountChange {
	return AccountChange{}
}

// Updated returns the change that sets an account.
func Updated(nonce uint64, balance *uint256.Int, code []byte, storage map[common.Hash]common.Hash) AccountChange {
	return AccountChange{
		State:   &AccountState{Nonce: nonce, Balance: balance, Code: code},
		Storage: storage,
	}
}
