// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package router

import "fmt"

// PolicyViolation reports a disallowed or over-limit send. By the
// time the caller sees it, the violation has been recorded on the
// channel and logged to the ledger. Inspect with errors.As:
//
//	var violation *PolicyViolation
//	if errors.As(err, &violation) { ... }
type PolicyViolation struct {
	// ChannelID is the channel the send targeted.
	ChannelID string

	// Action is the attempted action.
	Action string

	// Reason is the machine-readable cause from CanSend or the
	// endpoint check.
	Reason string
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("policy violation on channel %s: %s (action %q)",
		e.ChannelID, e.Reason, e.Action)
}

// GovernanceRejection reports that channel creation was refused. The
// channel was created only to be immediately closed with this reason;
// it never entered the active state.
type GovernanceRejection struct {
	// ChannelID is the rejected (and now closed) channel.
	ChannelID string

	// Reason is the validator's explanation.
	Reason string
}

func (e *GovernanceRejection) Error() string {
	return fmt.Sprintf("channel %s rejected by governance: %s", e.ChannelID, e.Reason)
}

// NotFound reports that no channel, active or closed, has the given
// id.
type NotFound struct {
	ChannelID string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("channel %s not found", e.ChannelID)
}
