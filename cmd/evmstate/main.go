// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// evmstate is the maintenance tool of EVM state storages.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ethlog "github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/evmbridge/evmstate/log"
	"github.com/evmbridge/evmstate/metrics"
	"github.com/evmbridge/evmstate/storage"
)

var (
	version   string
	gitCommit string

	stopMetrics = func() {}
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "evmstate"
	app.Usage = "maintain EVM state storages"
	app.Version = fmt.Sprintf("%s-%s", version, gitCommit)
	app.Flags = []cli.Flag{
		configFlag,
		gcFlag,
		verbosityFlag,
		enableMetricsFlag,
		metricsAddrFlag,
	}
	app.Before = before
	app.After = func(*cli.Context) error {
		stopMetrics()
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:   "backup",
			Usage:  "create a backup of a storage, keeping only the newest one",
			Flags:  []cli.Flag{dataDirFlag, backupDirFlag},
			Action: backupAction,
		},
		{
			Name:   "restore",
			Usage:  "restore the latest backup into an empty directory",
			Flags:  []cli.Flag{backupDirFlag, targetFlag},
			Action: restoreAction,
		},
		{
			Name:   "merge",
			Usage:  "copy trie nodes and codes of another archive storage",
			Flags:  []cli.Flag{dataDirFlag, fromFlag},
			Action: mergeAction,
		},
		{
			Name:   "sweep",
			Usage:  "delete everything unreachable from the given roots of an archive storage",
			Flags:  []cli.Flag{dataDirFlag, rootFlag},
			Action: sweepAction,
		},
		{
			Name:   "prune",
			Usage:  "unregister a slot and reclaim the nodes it no longer keeps alive",
			Flags:  []cli.Flag{dataDirFlag, slotFlag},
			Action: pruneAction,
		},
		{
			Name:   "inspect",
			Usage:  "show the presence and reference counts of roots",
			Flags:  []cli.Flag{dataDirFlag, rootFlag},
			Action: inspectAction,
		},
	}
	return app
}

func before(ctx *cli.Context) error {
	lvl := ctx.Int(verbosityFlag.Name)
	if lvl < 0 || lvl > 5 {
		return errors.Errorf("invalid verbosity %d", lvl)
	}
	initLogger(lvl)

	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
		url, closeFunc, err := startMetricsServer(ctx.String(metricsAddrFlag.Name))
		if err != nil {
			return fmt.Errorf("unable to start metrics server - %w", err)
		}
		log.Info("metrics server started", "url", url)
		stopMetrics = closeFunc
	}
	return nil
}

func initLogger(lvl int) {
	fd := os.Stderr.Fd()
	useColor := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	handler := ethlog.NewTerminalHandlerWithLevel(os.Stderr, ethlog.FromLegacyLevel(lvl), useColor)
	ethlog.SetDefault(ethlog.NewLogger(handler))
}

// openStorage opens the storage at dir with the options of the global flags.
func openStorage(ctx *cli.Context, dir string) (*storage.Storage, error) {
	if dir == "" {
		return nil, errors.New("missing data dir")
	}
	opts, err := loadOptions(ctx.GlobalString(configFlag.Name))
	if err != nil {
		return nil, err
	}
	if ctx.GlobalIsSet(gcFlag.Name) {
		opts.GCEnabled = ctx.GlobalBool(gcFlag.Name)
	}
	normalizeCacheSizes(opts)

	st, err := storage.OpenPersistent(dir, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open storage [%v]", dir)
	}
	return st, nil
}

func handleExitSignal() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
