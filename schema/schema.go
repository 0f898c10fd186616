// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package schema defines the typed tables of the state storage and the two
// mutually exclusive sets of tables a storage can be opened with.
package schema

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key spaces. Each table owns one prefix byte of the flat store.
const (
	NodeSpace                 = byte(0) // the default space holding trie nodes, keyed by node hash.
	codesSpace                = byte(1)
	referenceCounterSpace     = byte(2)
	slotRootsSpace            = byte(3)
	transactionsSpace         = byte(4)
	receiptsSpace             = byte(5)
	transactionsPerBlockSpace = byte(6)
	MetaSpace                 = byte(0xff) // storage properties.
)

// Descriptor is the type-erased view of a table.
type Descriptor interface {
	Name() string
	Space() byte
}

// Table describes a logical table with typed keys and values.
type Table[K, V any] struct {
	name  string
	space byte
	key   Codec[K]
	value Codec[V]
}

func newTable[K, V any](name string, space byte, key Codec[K], value Codec[V]) *Table[K, V] {
	return &Table[K, V]{name, space, key, value}
}

// Name returns the table name.
func (t *Table[K, V]) Name() string { return t.name }

// Space returns the key prefix of the table.
func (t *Table[K, V]) Space() byte { return t.space }

// EncodeKey encodes the key.
func (t *Table[K, V]) EncodeKey(k K) []byte { return t.key.Encode(k) }

// DecodeKey decodes the key.
func (t *Table[K, V]) DecodeKey(data []byte) (K, error) {
	k, err := t.key.Decode(data)
	if err != nil {
		return k, &DecodeError{t.name, "key", err}
	}
	return k, nil
}

// EncodeValue encodes the value.
func (t *Table[K, V]) EncodeValue(v V) []byte { return t.value.Encode(v) }

// DecodeValue decodes the value.
func (t *Table[K, V]) DecodeValue(data []byte) (V, error) {
	v, err := t.value.Decode(data)
	if err != nil {
		return v, &DecodeError{t.name, "value", err}
	}
	return v, nil
}

// DecodeError indicates stored bytes which do not match the table's codec.
// It means corruption or a schema mismatch, and is never expected at runtime.
type DecodeError struct {
	Table string
	Part  string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("schema: decode %s of table %s: %v", e.Part, e.Table, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// The tables.
var (
	Codes                = newTable[common.Hash, []byte]("codes", codesSpace, rlpCodec[common.Hash]{}, blobCodec{})
	ReferenceCounter     = newTable[common.Hash, uint64]("reference_counter", referenceCounterSpace, rlpCodec[common.Hash]{}, uint64Codec{})
	SlotRoots            = newTable[uint64, common.Hash]("slot_roots", slotRootsSpace, rlpCodec[uint64]{}, hashCodec{})
	Transactions         = newTable[common.Hash, []byte]("transactions", transactionsSpace, rlpCodec[common.Hash]{}, blobCodec{})
	Receipts             = newTable[common.Hash, []byte]("receipts", receiptsSpace, rlpCodec[common.Hash]{}, blobCodec{})
	TransactionsPerBlock = newTable[uint64, []common.Hash]("transactions_per_block", transactionsPerBlockSpace, rlpCodec[uint64]{}, hashListCodec{})
)

// Schema is a named set of tables.
type Schema struct {
	name   string
	tables []Descriptor
}

// The two schema variants. A storage is opened with exactly one of them.
var (
	// GC keeps reference counters for online garbage collection.
	GC = &Schema{"gc", []Descriptor{Codes, ReferenceCounter, SlotRoots}}
	// Archive keeps the full transaction and receipt history.
	Archive = &Schema{"archive", []Descriptor{Codes, Transactions, Receipts, TransactionsPerBlock}}
)

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Tables returns the tables of the schema.
func (s *Schema) Tables() []Descriptor { return s.tables }

// Has returns whether the table belongs to the schema.
func (s *Schema) Has(d Descriptor) bool {
	for _, t := range s.tables {
		if t.Name() == d.Name() && t.Space() == d.Space() {
			return true
		}
	}
	return false
}

// ByName returns the schema with the given name.
func ByName(name string) (*Schema, bool) {
	switch name {
	case GC.name:
		return GC, true
	case Archive.name:
		return Archive, true
	}
	return nil, false
}
