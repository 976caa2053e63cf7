// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel implements the governed communication path between
// two named agents: a small state machine carrying an ordered message
// history, a violation history, and the policy that bounds both.
//
// State transitions:
//
//	Pending  → Active          (governance approval)
//	Pending  → Closed          (governance rejection)
//	Active   → Paused → Active (pause / resume)
//	Active   → Closed          (normal close, timeout, limit reached)
//	Active   → Violated        (critical violation with auto-close)
//	Active   → EmergencyClosed (human emergency stop)
//
// Closed, Violated, and EmergencyClosed are terminal. Repeating a
// terminal transition is reported as already closed, never as an
// error, so termination is safe to call from any path at any time.
//
// Channels are created by the router and mutated only through the
// methods here. A channel is never deleted: the router moves it from
// its active table to its closed table so history stays inspectable.
package channel
