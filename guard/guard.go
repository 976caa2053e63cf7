// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package guard

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/warden-works/warden/ledger"
)

// Config holds the guard's checked surfaces.
type Config struct {
	// DataDir is the persistence directory the checks exercise.
	DataDir string

	// LockPath is the process-exclusivity lock file. Defaults to
	// DataDir/warden.lock.
	LockPath string

	// StoreLockPath is the external store's lock file, if the
	// deployment uses one. Empty skips the store check.
	StoreLockPath string

	// ChainPath is the decision chain file to verify.
	ChainPath string

	// RequiredCredentials lists environment variable names that must
	// be non-empty before the process may start.
	RequiredCredentials []string

	// SelfPID overrides os.Getpid in tests. Zero means the real pid.
	SelfPID int

	// Logger receives check progress. Nil discards.
	Logger *slog.Logger
}

// Guard is the boot-time integrity gate. Construct with New, run
// Check before starting the router, and Release on shutdown.
type Guard struct {
	cfg    Config
	logger *slog.Logger
	held   bool
}

// New constructs a Guard. DataDir and ChainPath are required.
func New(cfg Config) (*Guard, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("guard: DataDir is required")
	}
	if cfg.ChainPath == "" {
		return nil, fmt.Errorf("guard: ChainPath is required")
	}
	if cfg.LockPath == "" {
		cfg.LockPath = filepath.Join(cfg.DataDir, "warden.lock")
	}
	if cfg.SelfPID == 0 {
		cfg.SelfPID = os.Getpid()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Guard{cfg: cfg, logger: logger}, nil
}

// Check runs every integrity check in order and acquires the process
// lock. Any failure is an *IntegrityError; the first failure aborts
// the sequence. On success the lock is held until Release.
func (g *Guard) Check() error {
	if err := g.checkCredentials(); err != nil {
		return err
	}
	if err := g.acquireLock(); err != nil {
		return err
	}
	if err := g.checkWritable(); err != nil {
		return err
	}
	if err := g.checkStoreLock(); err != nil {
		return err
	}
	if err := g.checkChain(); err != nil {
		return err
	}
	g.logger.Info("integrity checks passed", "data_dir", g.cfg.DataDir)
	return nil
}

// Release drops the process lock if this process holds it. Safe to
// call on a guard whose Check never ran or failed.
func (g *Guard) Release() {
	if !g.held {
		return
	}
	state, _, err := classifyLock(g.cfg.LockPath, g.cfg.SelfPID)
	if err != nil || state != lockOurs {
		return
	}
	if err := os.Remove(g.cfg.LockPath); err != nil {
		g.logger.Warn("releasing process lock", "error", err)
		return
	}
	g.held = false
}

func (g *Guard) checkCredentials() error {
	for _, name := range g.cfg.RequiredCredentials {
		if os.Getenv(name) == "" {
			return &IntegrityError{
				Kind:        KindCredentialMissing,
				Message:     fmt.Sprintf("required credential %s is not set", name),
				Remediation: fmt.Sprintf("export %s before starting warden", name),
			}
		}
	}
	return nil
}

// acquireLock takes the process lock, reclaiming a stale lock whose
// owner is no longer running. A lock held by another live process is
// fatal. A lock already naming our own pid is a re-entrant boot and
// succeeds. Classification and installation happen under one
// directory flock, so two booting processes cannot both see a free
// lock and both install their own.
func (g *Guard) acquireLock() error {
	state, pid, err := acquireLockFile(g.cfg.LockPath, g.cfg.SelfPID)
	if err != nil {
		return &IntegrityError{
			Kind:        KindLockHeld,
			Message:     err.Error(),
			Remediation: fmt.Sprintf("inspect %s and run 'warden repair' if it is corrupt", g.cfg.LockPath),
		}
	}
	switch state {
	case lockLive:
		return &IntegrityError{
			Kind: KindLockHeld,
			Message: fmt.Sprintf("process lock %s is held by live pid %d",
				g.cfg.LockPath, pid),
			Remediation: fmt.Sprintf("stop the other warden process (pid %d) before starting this one", pid),
		}
	case lockStale:
		g.logger.Warn("reclaimed stale process lock", "path", g.cfg.LockPath, "dead_pid", pid)
	case lockOurs:
		g.logger.Info("process lock already ours", "path", g.cfg.LockPath)
	}
	g.held = true
	return nil
}

// checkWritable proves the persistence directory accepts writes by
// creating and removing a probe file.
func (g *Guard) checkWritable() error {
	probe := filepath.Join(g.cfg.DataDir, ".write-probe")
	if err := os.WriteFile(probe, []byte("probe"), 0o600); err != nil {
		return &IntegrityError{
			Kind:        KindNotWritable,
			Message:     fmt.Sprintf("persistence directory %s is not writable: %v", g.cfg.DataDir, err),
			Remediation: fmt.Sprintf("fix ownership or permissions on %s", g.cfg.DataDir),
		}
	}
	os.Remove(probe)
	return nil
}

// checkStoreLock inspects the external store's lock file. A live
// foreign owner means another process is using the store; a dead
// owner means a crash left the store locked and repair must clear it.
// Either way the boot aborts: the store is a single-writer resource.
func (g *Guard) checkStoreLock() error {
	if g.cfg.StoreLockPath == "" {
		return nil
	}
	state, pid, err := classifyLock(g.cfg.StoreLockPath, g.cfg.SelfPID)
	if err != nil {
		return &IntegrityError{
			Kind:        KindStoreLocked,
			Message:     err.Error(),
			Remediation: fmt.Sprintf("inspect %s and run 'warden repair' if it is corrupt", g.cfg.StoreLockPath),
		}
	}
	switch state {
	case lockLive:
		return &IntegrityError{
			Kind: KindStoreLocked,
			Message: fmt.Sprintf("external store lock %s is held by live pid %d",
				g.cfg.StoreLockPath, pid),
			Remediation: fmt.Sprintf("stop the process (pid %d) using the store", pid),
		}
	case lockStale:
		return &IntegrityError{
			Kind: KindStoreLocked,
			Message: fmt.Sprintf("external store lock %s was left by dead pid %d",
				g.cfg.StoreLockPath, pid),
			Remediation: "run 'warden repair' to clear the stale store lock",
		}
	}
	return nil
}

func (g *Guard) checkChain() error {
	chain, err := ledger.OpenChain(g.cfg.ChainPath)
	if err != nil {
		return &IntegrityError{
			Kind:        KindChainBroken,
			Message:     err.Error(),
			Remediation: "run 'warden repair' to quarantine the unreadable chain",
		}
	}
	valid, brokenIndex, err := chain.Verify()
	if err != nil {
		return &IntegrityError{
			Kind:        KindChainBroken,
			Message:     err.Error(),
			Remediation: "run 'warden repair' to quarantine the unreadable chain",
		}
	}
	if !valid {
		return &IntegrityError{
			Kind: KindChainBroken,
			Message: fmt.Sprintf("decision chain %s fails verification at entry %d",
				g.cfg.ChainPath, brokenIndex),
			Remediation: "run 'warden repair' to quarantine the broken chain and re-base",
		}
	}
	return nil
}
