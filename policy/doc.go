// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy defines the declarative rule sets that govern agent
// channels: which actions a channel permits, under what resource
// limits, and which approvals its creation requires.
//
// Two kinds of rule set exist. A Policy is a concrete whitelist plus
// limits, immutable once referenced by a live channel. A Conditional
// is a policy selector: given a Context snapshot of live runtime
// metrics it resolves, deterministically and without I/O, to exactly
// one concrete Policy. Resolution happens once, at channel creation.
//
// Evaluation fails closed: a Conditional whose rules all miss resolves
// to the most restrictive policy registered in the Set.
package policy
