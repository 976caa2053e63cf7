// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package sentinel scans delivered channel messages for governance
// bypass attempts. Two tiers exist, both best-effort:
//
// The heuristic tier checks action and payload text against a fixed
// phrase list. It is a fast first-pass filter, trivially evadable by
// rephrasing, and must never be treated as a security boundary.
//
// The semantic tier asks an LLM for a structured verdict. Provider
// errors and timeouts surface as errors the router logs as warnings;
// they never block or terminate the channel.
//
// Scanning runs after a message is recorded and logged, so detection
// is after-the-fact rather than preventive. A critical verdict
// terminates the channel retroactively.
package sentinel
