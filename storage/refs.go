// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package storage

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

// childRefs returns the hashes an encoded trie node points at: its hashed
// children, including those under embedded nodes, and the storage root of an
// account leaf. Embedded children are not stored separately and so not counted.
func childRefs(blob []byte) ([]common.Hash, error) {
	var refs []common.Hash
	if err := collectRefs(blob, &refs); err != nil {
		return nil, errors.Wrap(err, "decode node")
	}
	return refs, nil
}

func collectRefs(enc []byte, refs *[]common.Hash) error {
	elems, _, err := rlp.SplitList(enc)
	if err != nil {
		return err
	}
	n, err := rlp.CountValues(elems)
	if err != nil {
		return err
	}
	switch n {
	case 2: // short node
		key, rest, err := rlp.SplitString(elems)
		if err != nil {
			return err
		}
		if len(key) > 0 && key[0]>>4 >= 2 {
			// leaf, the flag nibble of the compact key has the terminator bit.
			val, _, err := rlp.SplitString(rest)
			if err != nil {
				return err
			}
			var acc types.StateAccount
			if rlp.DecodeBytes(val, &acc) == nil && acc.Root != types.EmptyRootHash {
				*refs = append(*refs, acc.Root)
			}
			return nil
		}
		return collectRef(rest, refs)
	case 17: // full node, the 17th value is always empty in secure tries
		rest := elems
		for range 16 {
			kind, _, next, err := rlp.Split(rest)
			if err != nil {
				return err
			}
			if kind != rlp.Byte {
				if err := collectRef(rest[:len(rest)-len(next)], refs); err != nil {
					return err
				}
			}
			rest = next
		}
		return nil
	default:
		return errors.Errorf("invalid number of list elements: %v", n)
	}
}

// collectRef handles a child slot, which is a hash, an embedded node or empty.
func collectRef(item []byte, refs *[]common.Hash) error {
	kind, content, rest, err := rlp.Split(item)
	if err != nil {
		return err
	}
	switch {
	case kind == rlp.List:
		return collectRefs(item[:len(item)-len(rest)], refs)
	case kind == rlp.String && len(content) == common.HashLength:
		*refs = append(*refs, common.BytesToHash(content))
	}
	return nil
}
