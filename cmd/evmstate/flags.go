// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	cli "gopkg.in/urfave/cli.v1"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "path to a yaml file of storage options",
	}
	gcFlag = cli.BoolFlag{
		Name:  "gc",
		Usage: "open storages with reference counting gc enabled",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Value: 3,
		Usage: "log verbosity (0-5)",
	}
	enableMetricsFlag = cli.BoolFlag{
		Name:  "enable-metrics",
		Usage: "enables metrics collection",
	}
	metricsAddrFlag = cli.StringFlag{
		Name:  "metrics-addr",
		Value: "localhost:2112",
		Usage: "metrics service listening address",
	}

	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "directory of the state storage",
	}
	backupDirFlag = cli.StringFlag{
		Name:  "backup-dir",
		Usage: "directory of backups, defaults to <datadir>/backup",
	}
	targetFlag = cli.StringFlag{
		Name:  "target",
		Usage: "empty or absent directory to restore into",
	}
	fromFlag = cli.StringFlag{
		Name:  "from",
		Usage: "directory of the storage to merge from",
	}
	rootFlag = cli.StringSliceFlag{
		Name:  "root",
		Usage: "state root in hex, can be repeated",
	}
	slotFlag = cli.Uint64Flag{
		Name:  "slot",
		Usage: "slot number",
	}
)
