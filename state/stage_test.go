// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/evmbridge/evmstate/kv"
	"github.com/evmbridge/evmstate/schema"
	"github.com/evmbridge/evmstate/storage"
)

func newStorage(t *testing.T, gc bool) *storage.Storage {
	opts := storage.DefaultOptions()
	opts.GCEnabled = gc
	st, err := storage.NewTemporary(opts)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func flush(t *testing.T, st *storage.Storage, root common.Hash, changes ChangedState) common.Hash {
	newRoot, err := FlushChanges(st, root, changes)
	require.NoError(t, err)
	return newRoot
}

func count(t *testing.T, store kv.Store) int {
	it := store.Iterate(kv.Range{})
	defer it.Release()
	n := 0
	for it.Next() {
		n++
	}
	require.NoError(t, it.Error())
	return n
}

var (
	addrA = common.HexToAddress("0xaa")
	addrB = common.HexToAddress("0xbb")
)

func TestEndToEnd(t *testing.T) {
	st := newStorage(t, false)

	r1 := flush(t, st, types.EmptyRootHash, ChangedState{
		addrA: Updated(1, uint256.NewInt(100), nil, nil),
	})
	acc, err := GetAccount(st, r1, addrA)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, uint64(1), acc.Nonce)
	assert.Equal(t, uint256.NewInt(100), acc.Balance)
	assert.Equal(t, types.EmptyRootHash, acc.Root)
	assert.Equal(t, types.EmptyCodeHash.Bytes(), acc.CodeHash)

	r2 := flush(t, st, r1, ChangedState{addrA: Removed()})
	acc, err = GetAccount(st, r2, addrA)
	assert.Nil(t, err)
	assert.Nil(t, acc)
	assert.Equal(t, types.EmptyRootHash, r2, "same as a trie never containing A")

	ok, err := st.CheckRootExist(r2)
	assert.Nil(t, err)
	assert.True(t, ok)
}

func TestRemovalKeepsOthers(t *testing.T) {
	st := newStorage(t, false)

	r1 := flush(t, st, types.EmptyRootHash, ChangedState{
		addrA: Updated(1, uint256.NewInt(100), nil, nil),
		addrB: Updated(2, uint256.NewInt(200), []byte{0x60}, map[common.Hash]common.Hash{{1}: {31: 1}}),
	})
	r2 := flush(t, st, r1, ChangedState{addrA: Removed()})

	onlyB := flush(t, newStorage(t, false), types.EmptyRootHash, ChangedState{
		addrB: Updated(2, uint256.NewInt(200), []byte{0x60}, map[common.Hash]common.Hash{{1}: {31: 1}}),
	})
	assert.Equal(t, onlyB, r2)
}

func TestZeroWordNotStored(t *testing.T) {
	st := newStorage(t, false)

	plain := flush(t, st, types.EmptyRootHash, ChangedState{
		addrA: Updated(1, uint256.NewInt(1), nil, nil),
	})
	zero := flush(t, st, types.EmptyRootHash, ChangedState{
		addrA: Updated(1, uint256.NewInt(1), nil, map[common.Hash]common.Hash{{1}: {}}),
	})
	assert.Equal(t, plain, zero)

	acc, err := GetAccount(st, zero, addrA)
	require.NoError(t, err)
	assert.Equal(t, types.EmptyRootHash, acc.Root)

	// write then clear
	base := flush(t, st, types.EmptyRootHash, ChangedState{
		addrA: Updated(1, uint256.NewInt(1), nil, map[common.Hash]common.Hash{{2}: {31: 2}}),
	})
	written := flush(t, st, base, ChangedState{
		addrA: Updated(1, uint256.NewInt(1), nil, map[common.Hash]common.Hash{{1}: {31: 5}}),
	})
	assert.NotEqual(t, base, written)

	word, err := GetStorage(st, written, addrA, common.Hash{1})
	assert.Nil(t, err)
	assert.Equal(t, common.Hash{31: 5}, word)

	cleared := flush(t, st, written, ChangedState{
		addrA: Updated(1, uint256.NewInt(1), nil, map[common.Hash]common.Hash{{1}: {}}),
	})
	assert.Equal(t, base, cleared)

	word, err = GetStorage(st, cleared, addrA, common.Hash{1})
	assert.Nil(t, err)
	assert.Equal(t, common.Hash{}, word)
}

func TestStructuralSharing(t *testing.T) {
	st := newStorage(t, false)

	storageB := make(map[common.Hash]common.Hash)
	for i := range 50 {
		storageB[common.Hash{byte(i + 1)}] = common.Hash{31: byte(i + 1)}
	}
	r1 := flush(t, st, types.EmptyRootHash, ChangedState{
		addrA: Updated(1, uint256.NewInt(1), nil, nil),
		addrB: Updated(1, uint256.NewInt(1), nil, storageB),
	})
	nodesAfterR1 := count(t, st.NodeStore())

	stage, err := NewStage(st, r1, ChangedState{
		addrA: Updated(2, uint256.NewInt(2), nil, map[common.Hash]common.Hash{{1}: {31: 1}}),
	})
	require.NoError(t, err)

	accB, err := GetAccount(st, r1, addrB)
	require.NoError(t, err)
	assert.False(t, stage.Patch().HasNode(accB.Root), "untouched storage trie not rewritten")
	nodes, _ := stage.Patch().Len()

	r2, err := stage.Commit()
	require.NoError(t, err)

	accB2, err := GetAccount(st, r2, addrB)
	require.NoError(t, err)
	assert.Equal(t, accB.Root, accB2.Root)
	assert.Equal(t, nodesAfterR1+nodes, count(t, st.NodeStore()), "only new nodes added")

	for index, want := range storageB {
		word, err := GetStorage(st, r2, addrB, index)
		require.NoError(t, err)
		assert.Equal(t, want, word)
	}
}

func TestCodeStoredOnce(t *testing.T) {
	st := newStorage(t, false)
	code := []byte{0x60, 0x80, 0x60, 0x40}
	hash := crypto.Keccak256Hash(code)

	r1 := flush(t, st, types.EmptyRootHash, ChangedState{
		addrA: Updated(0, nil, code, nil),
		addrB: Updated(0, nil, code, nil),
	})
	r2 := flush(t, st, r1, ChangedState{
		addrA: Updated(1, nil, code, nil),
	})
	assert.Equal(t, 1, count(t, st.CodeStore()))

	stored, ok, err := storage.Get(st, schema.Codes, hash)
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, code, stored)

	got, err := GetCode(st, r2, addrB)
	assert.Nil(t, err)
	assert.Equal(t, code, got)

	acc, err := GetAccount(st, r2, addrA)
	require.NoError(t, err)
	assert.Equal(t, hash.Bytes(), acc.CodeHash)
	assert.True(t, acc.Balance.IsZero())
}

func TestEmptyCodeKeepsCodeHash(t *testing.T) {
	st := newStorage(t, false)
	code := []byte{0x01}

	r1 := flush(t, st, types.EmptyRootHash, ChangedState{addrA: Updated(0, nil, code, nil)})
	r2 := flush(t, st, r1, ChangedState{addrA: Updated(1, nil, nil, nil)})

	got, err := GetCode(st, r2, addrA)
	assert.Nil(t, err)
	assert.Equal(t, code, got)
}

func TestFlushMissingRoot(t *testing.T) {
	st := newStorage(t, false)

	_, err := FlushChanges(st, common.Hash{1}, ChangedState{addrA: Removed()})
	assert.Error(t, err)
	assert.Zero(t, count(t, st.NodeStore()))
}

func TestGCLinksStorageRoots(t *testing.T) {
	st := newStorage(t, true)

	words := map[common.Hash]common.Hash{{1}: {31: 1}, {2}: {31: 2}}
	r1 := flush(t, st, types.EmptyRootHash, ChangedState{
		addrA: Updated(1, nil, nil, words),
		addrB: Updated(1, nil, nil, words),
	})
	acc, err := GetAccount(st, r1, addrA)
	require.NoError(t, err)

	// referenced by both account leaves
	n, err := st.GCCount(acc.Root)
	assert.Nil(t, err)
	assert.Equal(t, uint64(2), n)

	require.NoError(t, st.RegisterSlot(1, r1))
	r2 := flush(t, st, r1, ChangedState{addrA: Updated(2, nil, nil, map[common.Hash]common.Hash{{1}: {}})})
	require.NoError(t, st.RegisterSlot(2, r2))

	// drop slot 1 and collect everything only it referenced
	root, released, err := st.PurgeSlot(1)
	require.NoError(t, err)
	require.True(t, released)
	refs := []common.Hash{root}
	for len(refs) > 0 {
		refs, err = st.GCRemoveReferences(refs)
		require.NoError(t, err)
	}

	n, err = st.GCCount(acc.Root)
	assert.Nil(t, err)
	assert.Equal(t, uint64(1), n, "still referenced by B")

	for _, addr := range []common.Address{addrA, addrB} {
		word, err := GetStorage(st, r2, addr, common.Hash{2})
		require.NoError(t, err)
		assert.Equal(t, common.Hash{31: 2}, word)
	}
	word, err := GetStorage(st, r2, addrA, common.Hash{1})
	assert.Nil(t, err)
	assert.Equal(t, common.Hash{}, word)
}

// slotChanges touches every account with storage writes, zero words, codes
// and removals varying by slot.
func slotChanges(slot int) ChangedState {
	changes := make(ChangedState)
	for i := range 12 {
		addr := common.Address{byte(i + 1)}
		if (slot+i)%7 == 0 {
			changes[addr] = Removed()
			continue
		}
		words := map[common.Hash]common.Hash{
			{byte(i)}:        {31: byte(slot)},
			{byte(i), 1}:     {31: byte(slot % 3)},
			{byte(slot % 5)}: {30: byte(i), 31: 1},
		}
		var code []byte
		if i%3 == 0 {
			code = []byte{0x60, byte(slot % 4)}
		}
		changes[addr] = Updated(uint64(slot), uint256.NewInt(uint64(slot*100+i)), code, words)
	}
	return changes
}

// reclaim purges the slot and drives the removal cascade, retrying conflicts.
func reclaim(st *storage.Storage, slot uint64) error {
	root, released, err := st.PurgeSlot(slot)
	if err != nil || !released {
		return err
	}
	refs := []common.Hash{root}
	for len(refs) > 0 {
		next, err := st.GCRemoveReferences(refs)
		if errors.Is(err, storage.ErrGCConflict) {
			continue
		}
		if err != nil {
			return err
		}
		refs = next
	}
	return nil
}

// walkState iterates every node of the state at root and of its storage tries.
func walkState(t *testing.T, st *storage.Storage, root common.Hash) {
	tr, err := st.OpenAccountTrie(root)
	require.NoError(t, err)
	it, err := tr.NodeIterator(nil)
	require.NoError(t, err)
	for it.Next(true) {
		if !it.Leaf() {
			continue
		}
		var acc types.StateAccount
		require.NoError(t, rlp.DecodeBytes(it.LeafBlob(), &acc))
		str, err := st.OpenStorageTrie(acc.Root)
		require.NoError(t, err)
		sit, err := str.NodeIterator(nil)
		require.NoError(t, err)
		for sit.Next(true) {
		}
		require.NoError(t, sit.Error())
	}
	require.NoError(t, it.Error())
}

func TestConcurrentCommitAndGC(t *testing.T) {
	opts := storage.DefaultOptions()
	opts.GCEnabled = true
	opts.MaxGCRetries = 64
	st, err := storage.NewTemporary(opts)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	const (
		slots = 40
		lag   = 2
	)
	var (
		g         errgroup.Group
		committed = make(chan uint64, slots)
		roots     = make([]common.Hash, slots+1)
	)
	g.Go(func() error {
		defer close(committed)
		root := types.EmptyRootHash
		for slot := 1; slot <= slots; slot++ {
			newRoot, err := FlushChanges(st, root, slotChanges(slot))
			if err != nil {
				return errors.Wrapf(err, "flush slot %d", slot)
			}
			if err := st.RegisterSlot(uint64(slot), newRoot); err != nil {
				return errors.Wrapf(err, "register slot %d", slot)
			}
			roots[slot] = newRoot
			root = newRoot
			committed <- uint64(slot)
		}
		return nil
	})
	g.Go(func() error {
		for slot := range committed {
			if slot <= lag {
				continue
			}
			if err := reclaim(st, slot-lag); err != nil {
				return errors.Wrapf(err, "reclaim slot %d", slot-lag)
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	for slot := slots - lag + 1; slot <= slots; slot++ {
		walkState(t, st, roots[slot])
		acc, err := GetAccount(st, roots[slot], common.Address{2})
		require.NoError(t, err)
		if acc != nil {
			assert.Equal(t, uint64(slot), acc.Nonce)
		}
	}
	for slot := 1; slot <= slots-lag; slot++ {
		exist, err := st.CheckRootExist(roots[slot])
		require.NoError(t, err)
		assert.False(t, exist, "slot %d reclaimed", slot)
	}

	for slot := slots - lag + 1; slot <= slots; slot++ {
		require.NoError(t, reclaim(st, uint64(slot)))
	}
	assert.Zero(t, count(t, st.NodeStore()))
}
