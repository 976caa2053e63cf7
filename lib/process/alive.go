// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Alive reports whether a process with the given pid exists. It sends
// signal 0, which performs the kernel's existence and permission
// checks without delivering anything. EPERM means the process exists
// but belongs to another user, so it counts as alive.
//
// Pids that cannot name a real process (zero or negative) report not
// alive rather than probing the kernel's special pid semantics.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}
