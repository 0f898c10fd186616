// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cleaner

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evmbridge/evmstate/kv"
	"github.com/evmbridge/evmstate/state"
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

func words(n int, seed byte) map[common.Hash]common.Hash {
	m := make(map[common.Hash]common.Hash, n)
	for i := range n {
		m[common.Hash{seed, byte(i)}] = common.Hash{31: byte(i + 1)}
	}
	return m
}

// history commits three states and returns their roots.
func history(t *testing.T, st *storage.Storage) (r1, r2, r3 common.Hash) {
	flush := func(root common.Hash, changes state.ChangedState) common.Hash {
		newRoot, err := state.FlushChanges(st, root, changes)
		require.NoError(t, err)
		return newRoot
	}
	r1 = flush(types.EmptyRootHash, state.ChangedState{
		{1}: state.Updated(1, uint256.NewInt(1), []byte{0x01}, words(20, 1)),
		{2}: state.Updated(1, uint256.NewInt(1), []byte{0x02}, words(20, 2)),
		{3}: state.Updated(1, uint256.NewInt(1), nil, nil),
	})
	r2 = flush(r1, state.ChangedState{
		{1}: state.Removed(),
		{4}: state.Updated(1, uint256.NewInt(1), []byte{0x04}, words(5, 4)),
	})
	r3 = flush(r2, state.ChangedState{
		{2}: state.Updated(2, uint256.NewInt(2), nil, map[common.Hash]common.Hash{{2, 0}: {}}),
	})
	return
}

func TestCollect(t *testing.T) {
	st := newStorage(t, false)
	r1, r2, r3 := history(t, st)
	total := count(t, st.NodeStore())

	live, err := Collect(context.Background(), st, []common.Hash{r1})
	require.NoError(t, err)
	nodes, codes := live.Len()
	assert.Less(t, nodes, total, "later states not collected")
	assert.Equal(t, 2, codes)
	assert.True(t, live.HasNode(r1))
	assert.False(t, live.HasNode(r3))
	assert.True(t, live.HasCode(crypto.Keccak256Hash([]byte{0x01})))

	// every stored node belongs to one of the states
	all, err := Collect(context.Background(), st, []common.Hash{r1, r2, r1, r3, types.EmptyRootHash})
	require.NoError(t, err)
	nodes, codes = all.Len()
	assert.Equal(t, total, nodes)
	assert.Equal(t, 3, codes)
}

func TestCleanupKeepsLiveState(t *testing.T) {
	st := newStorage(t, false)
	r1, r2, r3 := history(t, st)
	total := count(t, st.NodeStore())

	live, err := Collect(context.Background(), st, []common.Hash{r3})
	require.NoError(t, err)
	liveNodes, _ := live.Len()

	res, err := New(st, live).Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, total-liveNodes, res.Nodes)
	assert.Equal(t, 1, res.Codes, "code of the removed account")
	assert.Equal(t, liveNodes, count(t, st.NodeStore()))
	assert.Equal(t, 2, count(t, st.CodeStore()))

	for _, root := range []common.Hash{r1, r2} {
		ok, err := st.CheckRootExist(root)
		assert.Nil(t, err)
		assert.False(t, ok)
	}

	// the live state is intact
	for _, addr := range []common.Address{{2}, {3}, {4}} {
		acc, err := state.GetAccount(st, r3, addr)
		require.NoError(t, err)
		require.NotNil(t, acc)
	}
	word, err := state.GetStorage(st, r3, common.Address{2}, common.Hash{2, 1})
	assert.Nil(t, err)
	assert.Equal(t, common.Hash{31: 2}, word)
	code, err := state.GetCode(st, r3, common.Address{4})
	assert.Nil(t, err)
	assert.Equal(t, []byte{0x04}, code)

	// sweeping again removes nothing
	res, err = New(st, live).Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestCleanupRequiresArchive(t *testing.T) {
	st := newStorage(t, true)
	_, err := New(st, NewLiveSet()).Cleanup(context.Background())
	assert.True(t, errors.Is(err, ErrCleanerGCEnabled))
}

func TestCleanupEmptyLiveSet(t *testing.T) {
	st := newStorage(t, false)
	_, _, r3 := history(t, st)

	res, err := New(st, NewLiveSet()).Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Codes)
	assert.Zero(t, count(t, st.NodeStore()))
	assert.Zero(t, count(t, st.CodeStore()))

	ok, err := st.CheckRootExist(r3)
	assert.Nil(t, err)
	assert.False(t, ok)
}

func TestCollectAndCleanup(t *testing.T) {
	st := newStorage(t, false)
	r1, r2, r3 := history(t, st)
	total := count(t, st.NodeStore())

	live, err := Collect(context.Background(), st, []common.Hash{r3})
	require.NoError(t, err)
	liveNodes, _ := live.Len()

	res, err := CollectAndCleanup(context.Background(), st, []common.Hash{r3})
	require.NoError(t, err)
	assert.Equal(t, Result{Nodes: total - liveNodes, Codes: 1}, res)
	assert.Equal(t, liveNodes, count(t, st.NodeStore()))

	for _, root := range []common.Hash{r1, r2} {
		ok, err := st.CheckRootExist(root)
		assert.Nil(t, err)
		assert.False(t, ok)
	}
	ok, err := st.CheckRootExist(r3)
	assert.Nil(t, err)
	assert.True(t, ok)

	gc := newStorage(t, true)
	_, err = CollectAndCleanup(context.Background(), gc, nil)
	assert.True(t, errors.Is(err, ErrCleanerGCEnabled))
}

func TestCollectAndCleanupWithCommits(t *testing.T) {
	st := newStorage(t, false)
	_, _, r3 := history(t, st)

	// recreates the dead account 1 of the first state on top of the live one
	revive := func() (common.Hash, error) {
		return state.FlushChanges(st, r3, state.ChangedState{
			{1}: state.Updated(1, uint256.NewInt(1), []byte{0x01}, words(20, 1)),
		})
	}

	var (
		done  = make(chan struct{})
		roots []common.Hash
		errc  = make(chan error, 1)
	)
	go func() {
		for {
			select {
			case <-done:
				root, err := revive()
				roots = append(roots, root)
				errc <- err
				return
			default:
			}
			root, err := revive()
			if err != nil {
				errc <- err
				return
			}
			roots = append(roots, root)
		}
	}()

	_, err := CollectAndCleanup(context.Background(), st, []common.Hash{r3})
	require.NoError(t, err)
	close(done)
	require.NoError(t, <-errc)

	// the live state survives, so does everything committed after the sweep
	acc, err := state.GetAccount(st, r3, common.Address{2})
	require.NoError(t, err)
	require.NotNil(t, acc)

	last := roots[len(roots)-1]
	for i := range 20 {
		word, err := state.GetStorage(st, last, common.Address{1}, common.Hash{1, byte(i)})
		require.NoError(t, err)
		assert.Equal(t, common.Hash{31: byte(i + 1)}, word)
	}
	code, err := state.GetCode(st, last, common.Address{1})
	assert.Nil(t, err)
	assert.Equal(t, []byte{0x01}, code)
}
