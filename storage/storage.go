// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package storage implements the persistent backend of the EVM state.
// It owns the leveldb instance, the typed tables, the content-addressed
// trie node space and the reference counters used for garbage collection.
package storage

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	dberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/evmbridge/evmstate/cache"
	"github.com/evmbridge/evmstate/kv"
	"github.com/evmbridge/evmstate/log"
	"github.com/evmbridge/evmstate/schema"
	"github.com/evmbridge/evmstate/storage/internal/engine"
)

var logger = log.WithContext("pkg", "storage")

var (
	// ErrTableNotInSchema is returned when accessing a table of the other schema variant.
	ErrTableNotInSchema = errors.New("table not in schema")
	// ErrSchemaMismatch is returned when opening a storage with the other schema variant.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrMergeGCEnabled is returned when merging storages not both in archive mode.
	ErrMergeGCEnabled = errors.New("merge requires gc disabled on both storages")
	// ErrTargetNotEmpty is returned when restoring into a populated directory.
	ErrTargetNotEmpty = errors.New("restore target not empty")
)

const propsKey = "props"

// Options optional parameters for Storage.
type Options struct {
	// GCEnabled selects the gc schema which keeps reference counters.
	// Otherwise the archive schema is used.
	GCEnabled bool `yaml:"gc-enabled"`
	// ReadCacheMB is the size of read cache for underlying database.
	ReadCacheMB int `yaml:"read-cache-mb"`
	// WriteBufferMB is the size of write buffer for underlying database.
	WriteBufferMB int `yaml:"write-buffer-mb"`
	// OpenFilesCacheCapacity is the capacity of open files caching for underlying database.
	OpenFilesCacheCapacity int `yaml:"open-files-cache-capacity"`
	// NodeCacheSizeMB is the size of the cache for trie node blobs.
	NodeCacheSizeMB int `yaml:"node-cache-size-mb"`
	// CodeCacheSize is the count of contract codes to be cached.
	CodeCacheSize int `yaml:"code-cache-size"`
	// MaxGCRetries bounds the retries of reference counter transactions.
	MaxGCRetries int `yaml:"max-gc-retries"`
}

// DefaultOptions returns options for an archive storage.
func DefaultOptions() *Options {
	return &Options{
		ReadCacheMB:            64,
		WriteBufferMB:          16,
		OpenFilesCacheCapacity: 256,
		NodeCacheSizeMB:        64,
		CodeCacheSize:          1024,
		MaxGCRetries:           8,
	}
}

// Storage is the handle of an opened state storage.
type Storage struct {
	engine    engine.Engine
	loc       Location
	opts      Options
	schema    *schema.Schema
	nodes     kv.Store
	nodeCache *nodeCache
	codeCache *cache.LRU[common.Hash, []byte]

	commitLock sync.Mutex   // guards validation and write of gc transactions.
	sweepLock  sync.RWMutex // held exclusively by the cleaner.

	closeOnce sync.Once
	closeErr  error
}

// OpenPersistent opens or creates the storage at path.
func OpenPersistent(path string, opts *Options) (*Storage, error) {
	return Open(Persistent(path), opts)
}

// NewTemporary creates a storage in a new temp dir, which is removed on Close.
func NewTemporary(opts *Options) (*Storage, error) {
	loc, err := Temporary()
	if err != nil {
		return nil, err
	}
	st, err := Open(loc, opts)
	if err != nil {
		_ = loc.release()
		return nil, err
	}
	return st, nil
}

// Open opens or creates the storage at the given location.
// The schema variant selected by opts.GCEnabled is persisted on creation, and
// reopening with the other variant fails with ErrSchemaMismatch.
func Open(loc Location, opts *Options) (*Storage, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := os.MkdirAll(loc.Path(), 0o700); err != nil {
		return nil, errors.Wrap(err, "create storage dir")
	}

	ldbOpts := opt.Options{
		OpenFilesCacheCapacity: opts.OpenFilesCacheCapacity,
		BlockCacheCapacity:     opts.ReadCacheMB * opt.MiB,
		WriteBuffer:            opts.WriteBufferMB * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
		BlockSize:              1024 * 32, // balance performance of point reads and compression ratio.
		CompactionTableSize:    4 * opt.MiB,
	}

	ldb, err := leveldb.OpenFile(loc.Path(), &ldbOpts)
	if _, corrupted := err.(*dberrors.ErrCorrupted); corrupted {
		logger.Warn("storage corrupted, try to recover", "path", loc.Path(), "err", err)
		ldb, err = leveldb.RecoverFile(loc.Path(), &ldbOpts)
	}
	if err != nil {
		return nil, errors.Wrap(err, "open leveldb")
	}
	eng := engine.NewLevelEngine(ldb)

	sch := schema.Archive
	if opts.GCEnabled {
		sch = schema.GC
	}
	p := props{Schema: sch.Name()}
	if err := p.LoadOrSave(metaStore(eng)); err != nil {
		eng.Close()
		return nil, err
	}

	codeCacheSize := opts.CodeCacheSize
	if codeCacheSize <= 0 {
		codeCacheSize = 1
	}
	codeCache, err := cache.NewLRU[common.Hash, []byte](codeCacheSize)
	if err != nil {
		eng.Close()
		return nil, err
	}

	return &Storage{
		engine:    eng,
		loc:       loc,
		opts:      *opts,
		schema:    sch,
		nodes:     spaceBucket(schema.NodeSpace).NewStore(eng),
		nodeCache: newNodeCache(opts.NodeCacheSizeMB),
		codeCache: codeCache,
	}, nil
}

// Close flushes and closes the underlying db, then removes the directory
// of a temporary location. Only the first call takes effect.
func (s *Storage) Close() error {
	s.closeOnce.Do(func() {
		// wait for an in-progress sweep
		s.sweepLock.Lock()
		defer s.sweepLock.Unlock()

		if err := s.engine.Close(); err != nil {
			s.closeErr = errors.Wrap(err, "close leveldb")
		}
		if err := s.loc.release(); err != nil && s.closeErr == nil {
			s.closeErr = errors.Wrap(err, "remove temp dir")
		}
		s.nodeCache.log()
		s.codeCache.Stats().Log(logger, "code")
	})
	return s.closeErr
}

// Location returns the location of the storage.
func (s *Storage) Location() Location { return s.loc }

// InnerLocation returns a directory inside the storage location reserved for
// collaborators' scratch data.
func (s *Storage) InnerLocation() string { return s.loc.join(innerSpaceDir) }

// Options returns a copy of the options the storage was opened with.
func (s *Storage) Options() Options { return s.opts }

// IsGCEnabled returns whether the storage keeps reference counters.
func (s *Storage) IsGCEnabled() bool { return s.opts.GCEnabled }

// Schema returns the schema variant the storage was opened with.
func (s *Storage) Schema() *schema.Schema { return s.schema }

// CheckRootExist returns whether the trie rooted at root is stored.
// The empty trie always exists.
func (s *Storage) CheckRootExist(root common.Hash) (bool, error) {
	if root == types.EmptyRootHash {
		return true, nil
	}
	has, err := s.nodes.Has(root[:])
	if err != nil {
		return false, errors.Wrap(err, "check root")
	}
	return has, nil
}

// Code returns the contract code of the given hash, or nil if absent.
func (s *Storage) Code(hash common.Hash) ([]byte, error) {
	if hash == types.EmptyCodeHash {
		return nil, nil
	}
	code, err := s.codeCache.GetOrLoad(hash, func(h common.Hash) ([]byte, error) {
		code, ok, err := Get(s, schema.Codes, h)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errNotFound
		}
		return code, nil
	})
	if err == errNotFound {
		return nil, nil
	}
	return code, err
}

var errNotFound = errors.New("not found")

// NodeStore returns the raw store of trie nodes keyed by hash.
func (s *Storage) NodeStore() kv.Store { return s.nodes }

// CodeStore returns the raw store of the codes table.
func (s *Storage) CodeStore() kv.Store {
	return spaceBucket(schema.Codes.Space()).NewStore(s.engine)
}

// LockExclusive waits for in-flight commits and gc to finish and blocks new
// ones until the returned unlock is called.
func (s *Storage) LockExclusive() (unlock func()) {
	s.sweepLock.Lock()
	return s.sweepLock.Unlock
}

// EvictNode drops the node from the cache after it was deleted from the store.
func (s *Storage) EvictNode(hash common.Hash) { s.nodeCache.del(hash) }

// EvictCode drops the code from the cache after it was deleted from the store.
func (s *Storage) EvictCode(hash common.Hash) { s.codeCache.Remove(hash) }

func spaceBucket(space byte) kv.Bucket {
	return kv.Bucket([]byte{space})
}

func metaStore(src kv.Store) kv.Store {
	return spaceBucket(schema.MetaSpace).NewStore(src)
}

func (s *Storage) tableStore(d schema.Descriptor) (kv.Store, error) {
	if !s.schema.Has(d) {
		return nil, errors.Wrapf(ErrTableNotInSchema, "table %s in %s schema", d.Name(), s.schema.Name())
	}
	return spaceBucket(d.Space()).NewStore(s.engine), nil
}

// Get reads the value of key from the table.
// It panics if the stored bytes can not be decoded, which means the db is corrupted.
func Get[K, V any](s *Storage, table *schema.Table[K, V], key K) (V, bool, error) {
	var zero V
	store, err := s.tableStore(table)
	if err != nil {
		return zero, false, err
	}
	data, err := store.Get(table.EncodeKey(key))
	if err != nil {
		if store.IsNotFound(err) {
			return zero, false, nil
		}
		return zero, false, errors.Wrapf(err, "get from %s", table.Name())
	}
	val, err := table.DecodeValue(data)
	if err != nil {
		panic(err)
	}
	return val, true, nil
}

// Set writes the value of key into the table, overwriting any existing one.
func Set[K, V any](s *Storage, table *schema.Table[K, V], key K, val V) error {
	store, err := s.tableStore(table)
	if err != nil {
		return err
	}
	if err := store.Put(table.EncodeKey(key), table.EncodeValue(val)); err != nil {
		return errors.Wrapf(err, "put into %s", table.Name())
	}
	return nil
}

// Delete removes key from the table.
func Delete[K, V any](s *Storage, table *schema.Table[K, V], key K) error {
	store, err := s.tableStore(table)
	if err != nil {
		return err
	}
	if err := store.Delete(table.EncodeKey(key)); err != nil {
		return errors.Wrapf(err, "delete from %s", table.Name())
	}
	return nil
}

// props are the persisted properties of the storage.
type props struct {
	Schema string `json:"schema"`
}

// LoadOrSave loads the saved props and checks them against p, or saves p
// if there are none.
func (p *props) LoadOrSave(store kv.Store) error {
	data, err := store.Get([]byte(propsKey))
	if err == nil {
		var saved props
		if err := json.Unmarshal(data, &saved); err != nil {
			return errors.Wrap(err, "decode props")
		}
		if saved.Schema != p.Schema {
			return errors.Wrapf(ErrSchemaMismatch, "opened as %s, created as %s", p.Schema, saved.Schema)
		}
		return nil
	}
	if !store.IsNotFound(err) {
		return errors.Wrap(err, "load props")
	}

	data, err = json.Marshal(p)
	if err != nil {
		return err
	}
	return store.Put([]byte(propsKey), data)
}
