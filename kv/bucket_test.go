// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errNotFound = errors.New("not found")

type mem map[string]string

func (m mem) Get(k []byte) ([]byte, error) {
	if v, ok := m[string(k)]; ok {
		return []byte(v), nil
	}
	return nil, errNotFound
}

func (m mem) Has(k []byte) (bool, error) {
	_, ok := m[string(k)]
	return ok, nil
}

func (m mem) Put(k, v []byte) error {
	m[string(k)] = string(v)
	return nil
}

func (m mem) Delete(k []byte) error {
	delete(m, string(k))
	return nil
}

func (m mem) IsNotFound(err error) bool {
	return err == errNotFound
}

func TestBucketGetter(t *testing.T) {
	m := mem{"\x01k1": "v1", "\x02k1": "v2"}

	tests := []struct {
		b    Bucket
		key  string
		want string
		has  bool
	}{
		{Bucket("\x01"), "k1", "v1", true},
		{Bucket("\x02"), "k1", "v2", true},
		{Bucket("\x03"), "k1", "", false},
		{Bucket(""), "\x01k1", "v1", true},
		{Bucket("\x01k"), "1", "v1", true},
	}
	for _, tt := range tests {
		g := tt.b.NewGetter(m)
		got, err := g.Get([]byte(tt.key))
		if tt.has {
			assert.Nil(t, err)
		} else {
			assert.True(t, g.IsNotFound(err))
		}
		assert.Equal(t, tt.want, string(got))

		has, err := g.Has([]byte(tt.key))
		assert.Nil(t, err)
		assert.Equal(t, tt.has, has)
	}
}

func TestBucketPutter(t *testing.T) {
	m := mem{}
	p := Bucket("\x05").NewPutter(m)

	assert.Nil(t, p.Put([]byte("a"), []byte("1")))
	assert.Equal(t, mem{"\x05a": "1"}, m)

	assert.Nil(t, p.Delete([]byte("a")))
	assert.Empty(t, m)
}

func TestBucketMakeRange(t *testing.T) {
	b := Bucket("\x07")

	r := b.MakeRange(Range{})
	assert.Equal(t, []byte{7}, r.Start)
	assert.Equal(t, []byte{8}, r.Limit)

	r = b.MakeRange(Range{Start: []byte{1}, Limit: []byte{9}})
	assert.Equal(t, []byte{7, 1}, r.Start)
	assert.Equal(t, []byte{7, 9}, r.Limit)
}
