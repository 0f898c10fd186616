// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package schema

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

// Codec converts values of T to and from bytes.
type Codec[T any] interface {
	Encode(v T) []byte
	Decode(data []byte) (T, error)
}

// rlpCodec encodes keys in their canonical RLP form.
type rlpCodec[T any] struct{}

func (rlpCodec[T]) Encode(v T) []byte {
	data, err := rlp.EncodeToBytes(v)
	if err != nil {
		// key types are fixed-size hashes and integers
		panic(errors.Wrap(err, "rlp encode key"))
	}
	return data
}

func (rlpCodec[T]) Decode(data []byte) (T, error) {
	var v T
	if err := rlp.DecodeBytes(data, &v); err != nil {
		return v, err
	}
	return v, nil
}

// uint64Codec is the 8-byte big-endian form.
type uint64Codec struct{}

func (uint64Codec) Encode(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func (uint64Codec) Decode(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid uint64 length %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// hashCodec is the raw 32 bytes.
type hashCodec struct{}

func (hashCodec) Encode(v common.Hash) []byte {
	return v.Bytes()
}

func (hashCodec) Decode(data []byte) (common.Hash, error) {
	if len(data) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid hash length %d", len(data))
	}
	return common.BytesToHash(data), nil
}

// blobCodec prefixes the bytes with their big-endian uint64 length.
type blobCodec struct{}

func (blobCodec) Encode(v []byte) []byte {
	buf := make([]byte, 0, 8+len(v))
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(v)))
	return append(buf, v...)
}

func (blobCodec) Decode(data []byte) ([]byte, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("short blob header %d", len(data))
	}
	n := binary.BigEndian.Uint64(data)
	if n != uint64(len(data)-8) {
		return nil, fmt.Errorf("blob length mismatch: header %d, actual %d", n, len(data)-8)
	}
	return append([]byte(nil), data[8:]...), nil
}

// hashListCodec prefixes the hashes with their big-endian uint64 count.
type hashListCodec struct{}

func (hashListCodec) Encode(v []common.Hash) []byte {
	buf := make([]byte, 0, 8+len(v)*common.HashLength)
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(v)))
	for _, h := range v {
		buf = append(buf, h[:]...)
	}
	return buf
}

func (hashListCodec) Decode(data []byte) ([]common.Hash, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("short list header %d", len(data))
	}
	n := binary.BigEndian.Uint64(data)
	body := data[8:]
	if n != uint64(len(body)/common.HashLength) || len(body)%common.HashLength != 0 {
		return nil, fmt.Errorf("hash list length mismatch: header %d, body %d bytes", n, len(body))
	}
	list := make([]common.Hash, 0, n)
	for i := 0; i < len(body); i += common.HashLength {
		list = append(list, common.BytesToHash(body[i:i+common.HashLength]))
	}
	return list, nil
}
