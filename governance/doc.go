// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package governance provides the channel validation step: the
// approve/reject decision the router consults before a pending
// channel may activate.
//
// Validator is the interface the router consumes; deployments with an
// external approval system implement it against that system.
// GrantValidator is the built-in implementation: a declarative grant
// table mapping agent patterns to the policy ids and peers they may
// open channels under. No matching grant means rejection: the grant
// table is a whitelist.
package governance
