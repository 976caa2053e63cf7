// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger implements the tamper-evident audit trail: an
// append-only SQLite event store for every governance-relevant event,
// and a hash-chained decision file for records that require tamper
// evidence.
//
// Events are immutable after write. The store answers the read-only,
// most-recent-first queries the router needs for conditional policy
// context, plus the aggregate counts (violations, success rates,
// channels created) that feed the same context.
//
// The chain file holds one entry per line in the form
//
//	hash,prev_hash,canonical_json(payload)
//
// where hash = blake3(prev_hash || canonical_json(payload)) and the
// first entry's prev_hash is the empty string. Verification replays
// the file in order and recomputes every hash; the first mismatch is
// reported by index. Chaining detects tampering; it does not provide
// non-repudiation, which is out of scope.
package ledger
