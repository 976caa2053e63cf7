// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package guard

import (
	"fmt"
	"os"
	"time"

	"github.com/warden-works/warden/ledger"
)

// RepairReport describes what Repair changed.
type RepairReport struct {
	// ProcessLockCleared is true when a stale process lock was
	// removed.
	ProcessLockCleared bool

	// StoreLockCleared is true when a stale store lock was removed.
	StoreLockCleared bool

	// ChainQuarantinedTo is the path the broken chain file was
	// renamed to. Empty when the chain was intact.
	ChainQuarantinedTo string
}

// Repair clears confirmed-stale locks and re-bases a broken decision
// chain. Stale means the lock names a pid that is not running; locks
// held by live processes are never touched and cause an error. A
// broken chain is renamed aside with a timestamp suffix, never
// deleted, so the next boot starts a fresh chain while the evidence
// stays on disk.
func (g *Guard) Repair() (RepairReport, error) {
	var report RepairReport

	cleared, err := g.clearStaleLock(g.cfg.LockPath)
	if err != nil {
		return report, err
	}
	report.ProcessLockCleared = cleared

	if g.cfg.StoreLockPath != "" {
		cleared, err := g.clearStaleLock(g.cfg.StoreLockPath)
		if err != nil {
			return report, err
		}
		report.StoreLockCleared = cleared
	}

	quarantined, err := g.rebaseChain()
	if err != nil {
		return report, err
	}
	report.ChainQuarantinedTo = quarantined

	g.logger.Info("repair complete",
		"process_lock_cleared", report.ProcessLockCleared,
		"store_lock_cleared", report.StoreLockCleared,
		"chain_quarantined_to", report.ChainQuarantinedTo,
	)
	return report, nil
}

// clearStaleLock removes the lock at path only when its owner is
// confirmed dead. Reports whether a lock was removed.
func (g *Guard) clearStaleLock(path string) (bool, error) {
	state, pid, err := classifyLock(path, g.cfg.SelfPID)
	if err != nil {
		// Unparseable lock files are themselves stale debris.
		g.logger.Warn("removing unreadable lock", "path", path, "error", err)
		if removeErr := os.Remove(path); removeErr != nil {
			return false, fmt.Errorf("guard: removing unreadable lock %s: %w", path, removeErr)
		}
		return true, nil
	}
	switch state {
	case lockFree, lockOurs:
		return false, nil
	case lockLive:
		return false, fmt.Errorf("guard: lock %s is held by live pid %d; refusing to clear it", path, pid)
	}
	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("guard: clearing stale lock %s: %w", path, err)
	}
	g.logger.Info("cleared stale lock", "path", path, "dead_pid", pid)
	return true, nil
}

// rebaseChain quarantines the chain file when verification fails.
// Returns the quarantine path, or empty when no re-base was needed.
func (g *Guard) rebaseChain() (string, error) {
	chain, err := ledger.OpenChain(g.cfg.ChainPath)
	if err != nil {
		return g.quarantineChain()
	}
	valid, _, err := chain.Verify()
	if err != nil {
		return g.quarantineChain()
	}
	if valid {
		return "", nil
	}
	return g.quarantineChain()
}

func (g *Guard) quarantineChain() (string, error) {
	quarantine := fmt.Sprintf("%s.broken.%s", g.cfg.ChainPath,
		time.Now().UTC().Format("20060102T150405Z"))
	if err := os.Rename(g.cfg.ChainPath, quarantine); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("guard: quarantining chain: %w", err)
	}
	return quarantine, nil
}
