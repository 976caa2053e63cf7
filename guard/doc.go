// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package guard implements the runtime integrity guard: the boot-time
// gate that must pass before the router is allowed to run.
//
// Check verifies, in order: required credentials are present, the
// process lock is free (or stale and reclaimable, or already ours),
// the persistence directory is writable, the external store is not
// locked, and the decision chain verifies. Each failure is an
// *IntegrityError with a distinct Kind and a remediation the operator
// can act on. Any failure aborts startup: continuing past a broken
// audit chain or a live duplicate process would silently invalidate
// the governance guarantee.
//
// Repair clears confirmed-stale locks and quarantines a broken chain
// file by renaming it aside. It never silently discards data.
package guard
