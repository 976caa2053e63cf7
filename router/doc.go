// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package router implements the governed channel router: the single
// authority through which agents open channels, send messages, and
// have channels terminated.
//
// The router owns two tables keyed by channel id. The active table
// holds channels that may still transition; the closed table holds
// terminated channels, kept forever so their message and violation
// histories stay inspectable. Channels move between tables, they are
// never deleted.
//
// Every attempt (creation, send, rejection, termination) is logged
// to the audit ledger before its outcome is surfaced to the caller.
// Governance approval decisions are additionally recorded on the
// ledger's tamper-evident hash chain.
package router
