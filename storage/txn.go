// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package storage

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/evmbridge/evmstate/schema"
)

// gcTxn is an optimistic transaction over the reference counters and
// the data they guard. Reads go straight to the db and are recorded. At commit
// every recorded read is checked against the db and all writes are applied in
// one batch, or nothing is written if any of them changed.
type gcTxn struct {
	st     *Storage
	reads  map[string][]byte // observed values, nil if absent
	probes map[string]bool   // observed existence of nodes
	writes map[string][]byte // pending values, nil to delete
}

func (s *Storage) newTxn() *gcTxn {
	return &gcTxn{
		st:     s,
		reads:  make(map[string][]byte),
		probes: make(map[string]bool),
		writes: make(map[string][]byte),
	}
}

func tableKey(space byte, key []byte) string {
	return string(append([]byte{space}, key...))
}

func counterKey(h common.Hash) string {
	return tableKey(schema.ReferenceCounter.Space(), schema.ReferenceCounter.EncodeKey(h))
}

func slotKey(slot uint64) string {
	return tableKey(schema.SlotRoots.Space(), schema.SlotRoots.EncodeKey(slot))
}

func nodeKey(h common.Hash) string {
	return tableKey(schema.NodeSpace, h[:])
}

// read returns the current value of key, nil if absent.
func (s *Storage) read(key string) ([]byte, error) {
	val, err := s.engine.Get([]byte(key))
	if err != nil {
		if s.engine.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read")
	}
	return val, nil
}

func (tx *gcTxn) get(key string) ([]byte, error) {
	if val, ok := tx.writes[key]; ok {
		return val, nil
	}
	if val, ok := tx.reads[key]; ok {
		return val, nil
	}
	val, err := tx.st.read(key)
	if err != nil {
		return nil, err
	}
	tx.reads[key] = val
	return val, nil
}

func (tx *gcTxn) count(h common.Hash) (uint64, error) {
	data, err := tx.get(counterKey(h))
	if err != nil || data == nil {
		return 0, err
	}
	n, err := schema.ReferenceCounter.DecodeValue(data)
	if err != nil {
		panic(err)
	}
	return n, nil
}

// setCount stages the counter. A zero counter is stored as no row.
func (tx *gcTxn) setCount(h common.Hash, n uint64) {
	if n == 0 {
		tx.writes[counterKey(h)] = nil
	} else {
		tx.writes[counterKey(h)] = schema.ReferenceCounter.EncodeValue(n)
	}
}

func (tx *gcTxn) incr(h common.Hash) error {
	n, err := tx.count(h)
	if err != nil {
		return err
	}
	tx.setCount(h, n+1)
	return nil
}

func (tx *gcTxn) slotRoot(slot uint64) (common.Hash, bool, error) {
	data, err := tx.get(slotKey(slot))
	if err != nil || data == nil {
		return common.Hash{}, false, err
	}
	root, err := schema.SlotRoots.DecodeValue(data)
	if err != nil {
		panic(err)
	}
	return root, true, nil
}

func (tx *gcTxn) setSlotRoot(slot uint64, root common.Hash) {
	tx.writes[slotKey(slot)] = schema.SlotRoots.EncodeValue(root)
}

func (tx *gcTxn) deleteSlotRoot(slot uint64) {
	tx.writes[slotKey(slot)] = nil
}

func (tx *gcTxn) hasNode(h common.Hash) (bool, error) {
	key := nodeKey(h)
	if val, ok := tx.writes[key]; ok {
		return val != nil, nil
	}
	if has, ok := tx.probes[key]; ok {
		return has, nil
	}
	has, err := tx.st.engine.Has([]byte(key))
	if err != nil {
		return false, errors.Wrap(err, "probe node")
	}
	tx.probes[key] = has
	return has, nil
}

// node returns the node blob, nil if absent.
func (tx *gcTxn) node(h common.Hash) ([]byte, error) {
	return tx.get(nodeKey(h))
}

func (tx *gcTxn) putNode(h common.Hash, blob []byte) {
	tx.writes[nodeKey(h)] = blob
}

func (tx *gcTxn) deleteNode(h common.Hash) {
	tx.writes[nodeKey(h)] = nil
}

func (tx *gcTxn) putCode(h common.Hash, code []byte) {
	tx.writes[tableKey(schema.Codes.Space(), schema.Codes.EncodeKey(h))] = schema.Codes.EncodeValue(code)
}

// commit validates the recorded reads and writes everything in one batch.
// It returns ErrGCConflict if any recorded read is stale.
func (tx *gcTxn) commit() error {
	tx.st.commitLock.Lock()
	defer tx.st.commitLock.Unlock()

	for key, val := range tx.reads {
		cur, err := tx.st.read(key)
		if err != nil {
			return err
		}
		if !bytes.Equal(cur, val) {
			return errors.Wrapf(ErrGCConflict, "key %x changed", key)
		}
	}
	for key, has := range tx.probes {
		cur, err := tx.st.engine.Has([]byte(key))
		if err != nil {
			return errors.Wrap(err, "probe node")
		}
		if cur != has {
			return errors.Wrapf(ErrGCConflict, "existence of node %x changed", key[1:])
		}
	}

	bulk := tx.st.engine.Bulk()
	for key, val := range tx.writes {
		var err error
		if val == nil {
			err = bulk.Delete([]byte(key))
		} else {
			err = bulk.Put([]byte(key), val)
		}
		if err != nil {
			return err
		}
	}
	return errors.Wrap(bulk.Write(), "commit gc txn")
}
