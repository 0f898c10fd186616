// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/evmbridge/evmstate/cleaner"
	"github.com/evmbridge/evmstate/log"
	"github.com/evmbridge/evmstate/storage"
)

func backupAction(ctx *cli.Context) error {
	st, err := openStorage(ctx, ctx.String(dataDirFlag.Name))
	if err != nil {
		return err
	}
	defer st.Close()

	path, err := st.Backup(ctx.String(backupDirFlag.Name))
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func restoreAction(ctx *cli.Context) error {
	backupDir, target := ctx.String(backupDirFlag.Name), ctx.String(targetFlag.Name)
	if backupDir == "" || target == "" {
		return errors.New("both backup dir and target are required")
	}
	return storage.RestoreFrom(backupDir, target)
}

func mergeAction(ctx *cli.Context) error {
	st, err := openStorage(ctx, ctx.String(dataDirFlag.Name))
	if err != nil {
		return err
	}
	defer st.Close()

	other, err := openStorage(ctx, ctx.String(fromFlag.Name))
	if err != nil {
		return err
	}
	defer other.Close()

	return st.MergeFromDB(other)
}

func sweepAction(ctx *cli.Context) error {
	roots, err := parseRoots(ctx.StringSlice(rootFlag.Name))
	if err != nil {
		return err
	}
	if len(roots) == 0 {
		// an empty live set would wipe the storage
		return errors.New("at least one root is required")
	}
	st, err := openStorage(ctx, ctx.String(dataDirFlag.Name))
	if err != nil {
		return err
	}
	defer st.Close()

	exitCtx, cancel := handleExitSignal()
	defer cancel()

	res, err := cleaner.CollectAndCleanup(exitCtx, st, roots)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d nodes, %d codes\n", res.Nodes, res.Codes)
	return nil
}

func pruneAction(ctx *cli.Context) error {
	if !ctx.IsSet(slotFlag.Name) {
		return errors.New("missing slot")
	}
	st, err := openStorage(ctx, ctx.String(dataDirFlag.Name))
	if err != nil {
		return err
	}
	defer st.Close()
	if !st.IsGCEnabled() {
		return errors.New("prune requires gc enabled")
	}

	rounds, err := reclaimSlot(st, ctx.Uint64(slotFlag.Name), st.Options().MaxGCRetries)
	if err != nil {
		return err
	}
	fmt.Printf("reclaimed in %d rounds\n", rounds)
	return nil
}

func inspectAction(ctx *cli.Context) error {
	roots, err := parseRoots(ctx.StringSlice(rootFlag.Name))
	if err != nil {
		return err
	}
	st, err := openStorage(ctx, ctx.String(dataDirFlag.Name))
	if err != nil {
		return err
	}
	defer st.Close()

	for _, root := range roots {
		exist, err := st.CheckRootExist(root)
		if err != nil {
			return err
		}
		count, err := st.GCCount(root)
		if err != nil {
			return err
		}
		fmt.Printf("%v exist=%v refs=%d\n", root, exist, count)
	}
	return nil
}

// reclaimSlot unregisters the slot. If its root lost the last reference, the
// removal cascade is driven from the root until no more node is released.
// It returns the number of rounds.
// Conflicted rounds are retried with the same references, at most maxRetries times in a row.
func reclaimSlot(st *storage.Storage, slot uint64, maxRetries int) (int, error) {
	root, ok, err := st.PurgeSlot(slot)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	var (
		pending = []common.Hash{root}
		rounds  int
		retries int
	)
	for len(pending) > 0 {
		next, err := st.GCRemoveReferences(pending)
		if err != nil {
			if errors.Is(err, storage.ErrGCConflict) && retries < maxRetries {
				retries++
				log.Warn("reclaim conflict, retry", "slot", slot, "round", rounds, "attempt", retries)
				continue
			}
			return rounds, errors.Wrapf(err, "reclaim slot %d", slot)
		}
		retries = 0
		rounds++
		pending = next
	}
	return rounds, nil
}
