// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import (
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Bucket is a key prefix which carves a logical table out of a flat store.
// It plays the role of a column family.
type Bucket string

func (b Bucket) makeKey(key []byte) []byte {
	k := make([]byte, 0, len(b)+len(key))
	return append(append(k, b...), key...)
}

// MakeRange converts a range relative to the bucket into an absolute one.
// An empty limit means the end of the bucket.
func (b Bucket) MakeRange(r Range) Range {
	start := b.makeKey(r.Start)
	var limit []byte
	if len(r.Limit) == 0 {
		limit = util.BytesPrefix([]byte(b)).Limit
	} else {
		limit = b.makeKey(r.Limit)
	}
	return Range{Start: start, Limit: limit}
}

// NewGetter creates a bucket getter from the source getter.
func (b Bucket) NewGetter(src Getter) Getter {
	return &struct {
		GetFunc
		HasFunc
		IsNotFoundFunc
	}{
		func(key []byte) ([]byte, error) { return src.Get(b.makeKey(key)) },
		func(key []byte) (bool, error) { return src.Has(b.makeKey(key)) },
		src.IsNotFound,
	}
}

// NewPutter creates a bucket putter from the source putter.
func (b Bucket) NewPutter(src Putter) Putter {
	return &struct {
		PutFunc
		DeleteFunc
	}{
		func(key, val []byte) error { return src.Put(b.makeKey(key), val) },
		func(key []byte) error { return src.Delete(b.makeKey(key)) },
	}
}

// NewBulk creates a bucket bulk from the source bulk.
func (b Bucket) NewBulk(src Bulk) Bulk {
	return &struct {
		Putter
		LenFunc
		EnableAutoFlushFunc
		WriteFunc
	}{
		b.NewPutter(src),
		src.Len,
		src.EnableAutoFlush,
		src.Write,
	}
}

// NewIterator wraps the source iterator and strips the bucket prefix from keys.
func (b Bucket) NewIterator(src Iterator) Iterator {
	return &bucketIter{src, len(b)}
}

// NewStore creates a bucket store from the source store.
func (b Bucket) NewStore(src Store) Store {
	return &struct {
		Getter
		Putter
		SnapshotFunc
		BulkFunc
		IterateFunc
	}{
		b.NewGetter(src),
		b.NewPutter(src),
		func() Snapshot { return b.NewSnapshot(src.Snapshot()) },
		func() Bulk { return b.NewBulk(src.Bulk()) },
		func(r Range) Iterator { return b.NewIterator(src.Iterate(b.MakeRange(r))) },
	}
}

// NewSnapshot creates a bucket snapshot from the source snapshot.
func (b Bucket) NewSnapshot(src Snapshot) Snapshot {
	return &struct {
		Getter
		IterateFunc
		ReleaseFunc
	}{
		b.NewGetter(src),
		func(r Range) Iterator { return b.NewIterator(src.Iterate(b.MakeRange(r))) },
		src.Release,
	}
}

type bucketIter struct {
	Iterator
	prefixLen int
}

func (i *bucketIter) Key() []byte {
	return i.Iterator.Key()[i.prefixLen:]
}
