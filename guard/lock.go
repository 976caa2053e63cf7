// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package guard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/warden-works/warden/lib/process"
)

// lockFile is the on-disk shape of a process lock: a JSON object
// holding the owner's pid.
type lockFile struct {
	PID int `json:"pid"`
}

// readLock parses a lock file. Returns (0, nil) when the file does
// not exist.
func readLock(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("guard: reading lock %s: %w", path, err)
	}
	var lock lockFile
	if err := json.Unmarshal(raw, &lock); err != nil {
		return 0, fmt.Errorf("guard: parsing lock %s: %w", path, err)
	}
	return lock.PID, nil
}

// acquireLockFile classifies the lock at path and, unless it is held
// by another live process, installs a lock naming selfPID. Both steps
// run under one exclusive flock on the lock's directory: two booting
// processes cannot both observe a free lock and both install their
// own, because the loser's classify re-reads the file the winner
// already wrote. The returned state is the classification observed
// before the write; on lockLive nothing is written.
func acquireLockFile(path string, selfPID int) (lockState, int, error) {
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return lockFree, 0, fmt.Errorf("guard: opening lock directory: %w", err)
	}
	defer dir.Close()
	if err := unix.Flock(int(dir.Fd()), unix.LOCK_EX); err != nil {
		return lockFree, 0, fmt.Errorf("guard: locking directory for %s: %w", path, err)
	}
	defer unix.Flock(int(dir.Fd()), unix.LOCK_UN)

	state, pid, err := classifyLock(path, selfPID)
	if err != nil || state == lockLive {
		return state, pid, err
	}
	if err := writeLock(path, selfPID); err != nil {
		return state, pid, err
	}
	return state, pid, nil
}

// writeLock writes a lock file holding pid, fsyncing before rename so
// a crash cannot leave a half-written lock. Callers must already hold
// the directory flock; see acquireLockFile.
func writeLock(path string, pid int) error {
	raw, err := json.Marshal(lockFile{PID: pid})
	if err != nil {
		return fmt.Errorf("guard: encoding lock: %w", err)
	}
	tmp := path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("guard: writing lock %s: %w", path, err)
	}
	if _, err := file.Write(raw); err != nil {
		file.Close()
		return fmt.Errorf("guard: writing lock %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("guard: syncing lock %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("guard: closing lock %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("guard: installing lock %s: %w", path, err)
	}
	return nil
}

// LockOwner returns the pid recorded in the lock file at path, zero
// when no lock file exists. Used by operator tooling; the guard's own
// checks go through classifyLock.
func LockOwner(path string) (int, error) {
	return readLock(path)
}

// lockState classifies a lock file against the running process.
type lockState int

const (
	lockFree  lockState = iota // no lock file
	lockOurs                   // lock names our own pid (re-entrant boot)
	lockStale                  // lock names a pid that is not running
	lockLive                   // lock names another live process
)

// classifyLock reads the lock at path and reports who holds it.
func classifyLock(path string, selfPID int) (lockState, int, error) {
	pid, err := readLock(path)
	if err != nil {
		return lockFree, 0, err
	}
	switch {
	case pid == 0:
		return lockFree, 0, nil
	case pid == selfPID:
		return lockOurs, pid, nil
	case process.Alive(pid):
		return lockLive, pid, nil
	default:
		return lockStale, pid, nil
	}
}
