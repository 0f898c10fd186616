// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package storage

import (
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/evmbridge/evmstate/kv"
	"github.com/evmbridge/evmstate/storage/internal/engine"
)

const (
	backupDir = "backup"
	// maxBackups is the count of backups retained after a successful backup.
	maxBackups = 1
)

// Backup writes a consistent copy of the storage as a new numbered backup
// under dir, then purges older backups. An empty dir means the backup dir
// inside the storage location. Returns the path of the new backup.
// Close waits for an in-progress backup.
func (s *Storage) Backup(dir string) (string, error) {
	// keep the engine open while the snapshot is copied
	s.sweepLock.RLock()
	defer s.sweepLock.RUnlock()

	if dir == "" {
		dir = s.loc.join(backupDir)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", errors.Wrap(err, "create backup dir")
	}
	ids, err := listBackups(dir)
	if err != nil {
		return "", err
	}
	var next uint64 = 1
	if len(ids) > 0 {
		next = ids[len(ids)-1] + 1
	}
	path := filepath.Join(dir, strconv.FormatUint(next, 10))

	startTime := time.Now()
	snap := s.engine.Snapshot()
	defer snap.Release()

	n, err := copyTo(path, snap.Iterate(kv.Range{}))
	if err != nil {
		_ = os.RemoveAll(path)
		return "", errors.Wrap(err, "backup")
	}

	// keep the newest ones, including the one just made
	if keep := maxBackups - 1; len(ids) > keep {
		for _, id := range ids[:len(ids)-keep] {
			if err := os.RemoveAll(filepath.Join(dir, strconv.FormatUint(id, 10))); err != nil {
				logger.Warn("failed to purge backup", "id", id, "err", err)
			}
		}
	}
	logger.Info("backup created", "path", path, "entries", n, "et", time.Since(startTime))
	return path, nil
}

// RestoreFrom materializes the latest backup in backupDir into target,
// which must be absent or an empty dir.
func RestoreFrom(backupDir, target string) error {
	if entries, err := os.ReadDir(target); err == nil {
		if len(entries) > 0 {
			return errors.Wrapf(ErrTargetNotEmpty, "%s", target)
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, "read restore target")
	}

	ids, err := listBackups(backupDir)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return errors.Errorf("no backup found in %s", backupDir)
	}
	src := filepath.Join(backupDir, strconv.FormatUint(ids[len(ids)-1], 10))

	startTime := time.Now()
	ldb, err := leveldb.OpenFile(src, &opt.Options{ReadOnly: true, ErrorIfMissing: true})
	if err != nil {
		return errors.Wrap(err, "open backup")
	}
	eng := engine.NewLevelEngine(ldb)
	defer eng.Close()

	n, err := copyTo(target, eng.Iterate(kv.Range{}))
	if err != nil {
		return errors.Wrap(err, "restore")
	}
	logger.Info("backup restored", "from", src, "to", target, "entries", n, "et", time.Since(startTime))
	return nil
}

// listBackups returns the ids of the backups in dir in ascending order.
func listBackups(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "list backups")
	}
	// ReadDir sorts by name, which is not the numeric order
	var ids []uint64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if id, err := strconv.ParseUint(e.Name(), 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// copyTo creates a new leveldb at path and copies all pairs of it into it.
func copyTo(path string, it kv.Iterator) (int, error) {
	ldb, err := leveldb.OpenFile(path, &opt.Options{ErrorIfExist: true})
	if err != nil {
		it.Release()
		return 0, err
	}
	dst := engine.NewLevelEngine(ldb)
	n, err := copyAll(dst.Bulk(), it)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// copyAll writes every pair of the iterator through the bulk, and releases the iterator.
func copyAll(bulk kv.Bulk, it kv.Iterator) (int, error) {
	defer it.Release()

	bulk.EnableAutoFlush()
	n := 0
	for it.Next() {
		if err := bulk.Put(it.Key(), it.Value()); err != nil {
			return n, err
		}
		n++
	}
	if err := it.Error(); err != nil {
		return n, err
	}
	return n, bulk.Write()
}
