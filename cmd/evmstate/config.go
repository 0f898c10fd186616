// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"os"

	"github.com/elastic/gosigar"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/evmbridge/evmstate/log"
	"github.com/evmbridge/evmstate/storage"
)

// loadOptions reads storage options from the yaml file at path, over the defaults.
// An empty path yields the defaults.
func loadOptions(path string) (*storage.Options, error) {
	opts := storage.DefaultOptions()
	if path == "" {
		return opts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, errors.Wrapf(err, "parse config [%v]", path)
	}
	if opts.MaxGCRetries < 0 {
		return nil, errors.New("max-gc-retries must not be negative")
	}
	return opts, nil
}

// normalizeCacheSizes limits the caches to half of the physical ram.
func normalizeCacheSizes(opts *storage.Options) {
	var mem gosigar.Mem
	if err := mem.Get(); err != nil {
		log.Warn("failed to get total mem", "err", err)
		return
	}
	limitMB := int(mem.Total / 1024 / 1024 / 2)
	if total := opts.ReadCacheMB + opts.NodeCacheSizeMB; total > limitMB {
		opts.ReadCacheMB = opts.ReadCacheMB * limitMB / total
		opts.NodeCacheSizeMB = opts.NodeCacheSizeMB * limitMB / total
		log.Warn("cache size(MB) limited", "limit", limitMB)
	}
}

func parseRoots(strs []string) ([]common.Hash, error) {
	roots := make([]common.Hash, 0, len(strs))
	for _, s := range strs {
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, errors.Wrapf(err, "root [%v]", s)
		}
		if len(b) != common.HashLength {
			return nil, errors.Errorf("root [%v]: want %d bytes, got %d", s, common.HashLength, len(b))
		}
		roots = append(roots, common.BytesToHash(b))
	}
	return roots, nil
}
