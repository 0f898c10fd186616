// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package storage

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb/database"
	"github.com/pkg/errors"
)

// nodeDB serves trie nodes from the node space. Nodes are addressed by hash
// only, so owner and path are ignored and all tries share one namespace.
type nodeDB struct {
	st *Storage
}

func (db nodeDB) NodeReader(common.Hash) (database.NodeReader, error) {
	return db, nil
}

func (db nodeDB) Node(_ common.Hash, _ []byte, hash common.Hash) ([]byte, error) {
	return db.st.nodeBlob(hash)
}

// nodeBlob returns the encoded node, or nil if absent.
func (s *Storage) nodeBlob(hash common.Hash) ([]byte, error) {
	if blob := s.nodeCache.get(hash); len(blob) > 0 {
		return blob, nil
	}
	gen := s.nodeCache.generation()
	blob, err := s.nodes.Get(hash[:])
	if err != nil {
		if s.nodes.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get node")
	}
	s.nodeCache.addQueried(hash, blob, gen)
	return blob, nil
}

func (s *Storage) openTrie(root common.Hash) (*trie.Trie, error) {
	return trie.New(trie.TrieID(root), nodeDB{s})
}

// AccountTrie is the secure trie of accounts keyed by address hash.
type AccountTrie struct {
	tr *trie.Trie
}

// OpenAccountTrie opens the account trie at root.
func (s *Storage) OpenAccountTrie(root common.Hash) (*AccountTrie, error) {
	tr, err := s.openTrie(root)
	if err != nil {
		return nil, errors.Wrapf(err, "open account trie %v", root)
	}
	return &AccountTrie{tr}, nil
}

// Account returns the account of addr, or nil if absent.
func (t *AccountTrie) Account(addr common.Address) (*types.StateAccount, error) {
	data, err := t.tr.Get(crypto.Keccak256(addr[:]))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var acc types.StateAccount
	if err := rlp.DecodeBytes(data, &acc); err != nil {
		return nil, errors.Wrapf(err, "decode account %v", addr)
	}
	return &acc, nil
}

// UpdateAccount writes the account of addr.
func (t *AccountTrie) UpdateAccount(addr common.Address, acc *types.StateAccount) error {
	data, err := rlp.EncodeToBytes(acc)
	if err != nil {
		return err
	}
	return t.tr.Update(crypto.Keccak256(addr[:]), data)
}

// DeleteAccount removes addr from the trie.
func (t *AccountTrie) DeleteAccount(addr common.Address) error {
	return t.tr.Delete(crypto.Keccak256(addr[:]))
}

// Hash returns the current root hash.
func (t *AccountTrie) Hash() common.Hash {
	return t.tr.Hash()
}

// Commit collects the dirty nodes and returns the new root.
// The trie is not usable after commit. The node set is nil if nothing changed.
func (t *AccountTrie) Commit() (common.Hash, *trienode.NodeSet) {
	return t.tr.Commit(false)
}

// NodeIterator returns an iterator over the nodes of the trie.
func (t *AccountTrie) NodeIterator(start []byte) (trie.NodeIterator, error) {
	return t.tr.NodeIterator(start)
}

// StorageTrie is the secure trie of an account's storage words keyed by index hash.
type StorageTrie struct {
	tr *trie.Trie
}

// OpenStorageTrie opens the storage trie at root.
func (s *Storage) OpenStorageTrie(root common.Hash) (*StorageTrie, error) {
	tr, err := s.openTrie(root)
	if err != nil {
		return nil, errors.Wrapf(err, "open storage trie %v", root)
	}
	return &StorageTrie{tr}, nil
}

// Get returns the word at index. Absent words are zero.
func (t *StorageTrie) Get(index common.Hash) (common.Hash, error) {
	enc, err := t.tr.Get(crypto.Keccak256(index[:]))
	if err != nil || len(enc) == 0 {
		return common.Hash{}, err
	}
	_, content, _, err := rlp.Split(enc)
	if err != nil {
		return common.Hash{}, errors.Wrapf(err, "decode storage word %v", index)
	}
	return common.BytesToHash(content), nil
}

// Set writes the word at index. Writing zero removes the index.
func (t *StorageTrie) Set(index, word common.Hash) error {
	key := crypto.Keccak256(index[:])
	if word == (common.Hash{}) {
		return t.tr.Delete(key)
	}
	enc, err := rlp.EncodeToBytes(common.TrimLeftZeroes(word[:]))
	if err != nil {
		return err
	}
	return t.tr.Update(key, enc)
}

// Hash returns the current root hash.
func (t *StorageTrie) Hash() common.Hash {
	return t.tr.Hash()
}

// Commit collects the dirty nodes and returns the new root.
// The trie is not usable after commit. The node set is nil if nothing changed.
func (t *StorageTrie) Commit() (common.Hash, *trienode.NodeSet) {
	return t.tr.Commit(false)
}

// NodeIterator returns an iterator over the nodes of the trie.
func (t *StorageTrie) NodeIterator(start []byte) (trie.NodeIterator, error) {
	return t.tr.NodeIterator(start)
}
