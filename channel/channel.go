// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warden-works/warden/policy"
)

// Status is the channel lifecycle state.
type Status string

const (
	// StatusPending is the initial state: created, awaiting the
	// governance decision.
	StatusPending Status = "pending"

	// StatusActive accepts messages.
	StatusActive Status = "active"

	// StatusPaused temporarily rejects messages; resumable.
	StatusPaused Status = "paused"

	// StatusClosed is the normal terminal state.
	StatusClosed Status = "closed"

	// StatusViolated is the terminal state reached by a critical
	// policy violation under an auto-close policy.
	StatusViolated Status = "violated"

	// StatusEmergencyClosed is the terminal state reached by a human
	// emergency stop.
	StatusEmergencyClosed Status = "emergency_closed"
)

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusViolated || s == StatusEmergencyClosed
}

// Direction describes which endpoints may send.
type Direction string

const (
	// Bidirectional channels accept messages from either endpoint.
	Bidirectional Direction = "bidirectional"

	// Unidirectional channels accept messages from the creating
	// (from) endpoint only.
	Unidirectional Direction = "unidirectional"
)

// Channel is a governed communication path between two agents. All
// mutation goes through the methods below; the embedded mutex
// serializes same-channel operations so concurrent sends on one
// channel cannot interleave mid-mutation. Cross-channel ordering is
// deliberately unspecified.
type Channel struct {
	mu sync.Mutex

	// Identity and endpoints. Immutable after construction.
	ID        string
	From      string
	To        string
	Direction Direction
	Policy    policy.Policy

	// Correlation keys. Immutable after construction.
	TraceID    string
	SessionID  string
	DecisionID string

	// Lifecycle.
	status      Status
	createdAt   time.Time
	activatedAt time.Time
	closedAt    time.Time
	closeReason string
	closedBy    string

	// History. Counts always equal the list lengths and never
	// decrease.
	messages   []Message
	violations []Violation
}

// New constructs a Pending channel. The caller (the router) supplies
// the resolved concrete policy and correlation keys.
func New(from, to string, direction Direction, pol policy.Policy, traceID, sessionID, decisionID string, now time.Time) *Channel {
	return &Channel{
		ID:         uuid.NewString(),
		From:       from,
		To:         to,
		Direction:  direction,
		Policy:     pol,
		TraceID:    traceID,
		SessionID:  sessionID,
		DecisionID: decisionID,
		status:     StatusPending,
		createdAt:  now,
	}
}

// Status returns the current lifecycle state.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// CreatedAt returns the construction time.
func (c *Channel) CreatedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createdAt
}

// ActivatedAt returns the activation time, zero if never activated.
func (c *Channel) ActivatedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activatedAt
}

// ClosedAt returns the terminal transition time, zero if still open.
func (c *Channel) ClosedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedAt
}

// CloseReason returns the recorded reason for the terminal transition.
func (c *Channel) CloseReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}

// ClosedBy returns the actor recorded on the terminal transition.
func (c *Channel) ClosedBy() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedBy
}

// MessageCount returns the number of recorded messages.
func (c *Channel) MessageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// ViolationCount returns the number of recorded violations.
func (c *Channel) ViolationCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.violations)
}

// Messages returns a copy of the ordered message history.
func (c *Channel) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Violations returns a copy of the violation history.
func (c *Channel) Violations() []Violation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Violation, len(c.violations))
	copy(out, c.violations)
	return out
}

// Endpoint reports whether agent is a declared endpoint permitted to
// send on this channel, honoring direction.
func (c *Channel) Endpoint(agent string) bool {
	if agent == c.From {
		return true
	}
	return agent == c.To && c.Direction == Bidirectional
}

// Approve activates a pending channel (governance approval). Returns
// an error if the channel is not pending.
func (c *Channel) Approve(now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusPending {
		return fmt.Errorf("channel %s: approve in state %q", c.ID, c.status)
	}
	c.status = StatusActive
	c.activatedAt = now
	return nil
}

// Reject closes a pending channel (governance rejection). Returns an
// error if the channel is not pending.
func (c *Channel) Reject(reason string, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusPending {
		return fmt.Errorf("channel %s: reject in state %q", c.ID, c.status)
	}
	c.status = StatusClosed
	c.closedAt = now
	c.closeReason = reason
	c.closedBy = "governance"
	return nil
}

// Pause suspends an active channel. Returns an error if the channel
// is not active.
func (c *Channel) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusActive {
		return fmt.Errorf("channel %s: pause in state %q", c.ID, c.status)
	}
	c.status = StatusPaused
	return nil
}

// Resume reactivates a paused channel. Returns an error if the
// channel is not paused.
func (c *Channel) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusPaused {
		return fmt.Errorf("channel %s: resume in state %q", c.ID, c.status)
	}
	c.status = StatusActive
	return nil
}

// CanSend reports whether a message with the given action may be sent
// now, with a machine-readable reason when it may not. Pure check: no
// mutation, no I/O. The answer can go stale the moment the lock is
// released; delivery paths must use TrySend, which re-checks and
// appends under one lock hold.
func (c *Channel) CanSend(action policy.Action, now time.Time) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSendLocked(action, now)
}

func (c *Channel) canSendLocked(action policy.Action, now time.Time) (bool, string) {
	if c.status != StatusActive {
		return false, fmt.Sprintf("channel is %s, not active", c.status)
	}
	if !c.Policy.Allows(action) {
		return false, fmt.Sprintf("action %q not allowed by policy %q", action, c.Policy.ID)
	}
	if len(c.messages) >= c.Policy.MaxMessages {
		return false, fmt.Sprintf("message limit %d reached", c.Policy.MaxMessages)
	}
	if c.Policy.MaxDuration > 0 && now.Sub(c.activatedAt) >= c.Policy.MaxDuration {
		return false, fmt.Sprintf("channel exceeded max duration %s", c.Policy.MaxDuration)
	}
	return true, ""
}

// Expired reports whether an active channel has outlived its policy's
// MaxDuration. Used by the router's expiry sweep.
func (c *Channel) Expired(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusActive || c.Policy.MaxDuration <= 0 {
		return false
	}
	return now.Sub(c.activatedAt) >= c.Policy.MaxDuration
}

// TrySend checks CanSend's conditions and appends msg in a single
// critical section. Concurrent sends on one channel therefore cannot
// each observe a count below the message limit and all append past
// it. Returns the same reason strings as CanSend when refused.
func (c *Channel) TrySend(msg Message, now time.Time) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok, reason := c.canSendLocked(msg.Action, now); !ok {
		return false, reason
	}
	c.messages = append(c.messages, msg)
	return true, ""
}

// RecordMessage appends msg to the history without re-checking the
// message limit. Delivery paths use TrySend; this exists for replay
// and import tooling that trusts its input.
func (c *Channel) RecordMessage(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

// RecordViolation appends a violation. A critical violation under a
// policy with AutoCloseOnViolation flips an open channel to the
// Violated terminal state; the return value reports whether that
// happened so the caller can log the transition.
func (c *Channel) RecordViolation(reason string, severity Severity, details string, now time.Time) (closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.violations = append(c.violations, Violation{
		Reason:    reason,
		Severity:  severity,
		Details:   details,
		Timestamp: now,
	})
	if severity == SeverityCritical && c.Policy.AutoCloseOnViolation && !c.status.Terminal() {
		c.status = StatusViolated
		c.closedAt = now
		c.closeReason = reason
		c.closedBy = "sentinel"
		return true
	}
	return false
}

// Close moves the channel to the Closed terminal state, recording the
// reason and closing actor. Calling any terminal transition on an
// already-terminal channel is a no-op reported as already closed.
func (c *Channel) Close(reason, closedBy string, now time.Time) (already bool) {
	return c.transition(StatusClosed, reason, closedBy, now)
}

// CloseViolated moves the channel to the Violated terminal state.
func (c *Channel) CloseViolated(reason, closedBy string, now time.Time) (already bool) {
	return c.transition(StatusViolated, reason, closedBy, now)
}

// EmergencyClose moves the channel to EmergencyClosed. Reserved for
// the human operator path.
func (c *Channel) EmergencyClose(reason string, now time.Time) (already bool) {
	return c.transition(StatusEmergencyClosed, reason, "human", now)
}

func (c *Channel) transition(target Status, reason, closedBy string, now time.Time) (already bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.Terminal() {
		return true
	}
	c.status = target
	c.closedAt = now
	c.closeReason = reason
	c.closedBy = closedBy
	return false
}
