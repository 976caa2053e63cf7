// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"time"

	"github.com/warden-works/warden/policy"
)

// Message is one unit of agent-to-agent communication. Immutable once
// created; appended to exactly one channel.
type Message struct {
	// ID uniquely identifies the message.
	ID string `json:"message_id"`

	// From and To are the sending and receiving agent names.
	From string `json:"from_agent"`
	To   string `json:"to_agent"`

	// Action is the enumerated kind of this message, checked against
	// the channel policy's whitelist.
	Action policy.Action `json:"action"`

	// Payload is the opaque message body. The router never interprets
	// it; the sentinel scans it.
	Payload map[string]any `json:"payload"`

	// Timestamp is when the router accepted the message.
	Timestamp time.Time `json:"timestamp"`

	// TraceID correlates the message with ledger events.
	TraceID string `json:"trace_id"`

	// ResponseTo names the message this one answers, if any.
	ResponseTo string `json:"response_to,omitempty"`

	// RequiresResponse signals that the sender expects an answer.
	RequiresResponse bool `json:"requires_response"`
}

// Severity classifies a violation or a sentinel verdict.
type Severity int

const (
	// SeverityInfo is recorded but carries no consequence.
	SeverityInfo Severity = iota

	// SeverityWarning is recorded and surfaced but does not close
	// the channel.
	SeverityWarning

	// SeverityCritical is the highest tier. Under a policy with
	// auto-close it flips the channel to Violated.
	SeverityCritical
)

// String returns "info", "warning", or "critical".
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// Violation records one policy breach on a channel.
type Violation struct {
	// Reason is the short machine-readable cause ("action_not_allowed",
	// "message_limit", "sentinel_heuristic", ...).
	Reason string `json:"reason"`

	// Severity is the violation tier.
	Severity Severity `json:"severity"`

	// Details is the human-readable explanation.
	Details string `json:"details"`

	// Timestamp is when the violation was recorded.
	Timestamp time.Time `json:"timestamp"`
}
