// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package storage

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const innerSpaceDir = "tmp_inner_space"

// Location is the directory a storage lives in.
// A temporary location is removed when the storage is closed.
type Location struct {
	path string
	temp bool
}

// Persistent returns a caller owned location.
func Persistent(path string) Location {
	return Location{path: path}
}

// Temporary creates a fresh directory under the system temp dir.
func Temporary() (Location, error) {
	dir, err := os.MkdirTemp("", "evm-state-")
	if err != nil {
		return Location{}, errors.Wrap(err, "create temp dir")
	}
	return Location{path: dir, temp: true}, nil
}

// Path returns the directory path.
func (l Location) Path() string { return l.path }

// IsTemporary returns whether the directory is owned by the storage.
func (l Location) IsTemporary() bool { return l.temp }

func (l Location) join(elem ...string) string {
	return filepath.Join(append([]string{l.path}, elem...)...)
}

// release removes the directory of a temporary location.
func (l Location) release() error {
	if !l.temp {
		return nil
	}
	return os.RemoveAll(l.path)
}
