// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides process-level helpers shared by warden
// binaries: the standard fatal-error exit path and pid liveness
// probing used by the integrity guard's lock handling.
package process
