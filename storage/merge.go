// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package storage

import (
	"time"

	"github.com/pkg/errors"

	"github.com/evmbridge/evmstate/kv"
	"github.com/evmbridge/evmstate/schema"
)

// MergeFromDB copies all trie nodes and codes of other into s.
// Reference counters can not be merged by copy, so both storages must have
// gc disabled, which is checked before anything is written.
// Neither storage can be closed or swept until the copy is done.
func (s *Storage) MergeFromDB(other *Storage) error {
	if s.IsGCEnabled() || other.IsGCEnabled() {
		return ErrMergeGCEnabled
	}
	if other == s {
		return nil
	}
	s.sweepLock.RLock()
	defer s.sweepLock.RUnlock()
	other.sweepLock.RLock()
	defer other.sweepLock.RUnlock()

	startTime := time.Now()
	snap := other.engine.Snapshot()
	defer snap.Release()

	total := 0
	for _, space := range []byte{schema.NodeSpace, schema.Codes.Space()} {
		bucket := spaceBucket(space)
		n, err := copyAll(
			bucket.NewBulk(s.engine.Bulk()),
			bucket.NewSnapshot(snap).Iterate(kv.Range{}),
		)
		if err != nil {
			return errors.Wrapf(err, "merge space %d", space)
		}
		total += n
	}
	logger.Info("storage merged", "from", other.loc.Path(), "entries", total, "et", time.Since(startTime))
	return nil
}
