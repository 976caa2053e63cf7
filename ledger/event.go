// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import "time"

// Event types recorded by the router and guard. The set is open:
// external collaborators may log their own types through the same
// ledger.
const (
	// EventChannelCreated records a channel creation attempt,
	// whatever its governance outcome.
	EventChannelCreated = "channel_created"

	// EventChannelMessage records one message send, accepted or
	// rejected.
	EventChannelMessage = "channel_message"

	// EventChannelClosed records any terminal transition.
	EventChannelClosed = "channel_closed"

	// EventSentinelAlert records an anomaly-scan verdict or scan
	// failure.
	EventSentinelAlert = "sentinel_alert"

	// EventGovernanceDecision records the approve/reject decision at
	// channel creation.
	EventGovernanceDecision = "governance_decision"

	// EventIntegrity records guard check and repair outcomes.
	EventIntegrity = "integrity"
)

// Event outcome statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusPending = "pending"
	StatusWarning = "warning"
)

// Event is one append-only audit record. Never mutated after write.
type Event struct {
	// ID uniquely identifies the event. Assigned by the ledger when
	// empty.
	ID string

	// Type is one of the Event* constants or a collaborator-defined
	// type.
	Type string

	// Timestamp is when the event occurred. Assigned by the ledger
	// when zero.
	Timestamp time.Time

	// TraceID, SpanID, and SessionID correlate events across
	// components.
	TraceID   string
	SpanID    string
	SessionID string

	// DecisionID links the event to a chained governance decision.
	DecisionID string

	// ActorType and ActorID identify who acted ("agent", "human",
	// "system", "sentinel" / the actor's name).
	ActorType string
	ActorID   string

	// Action is what the actor did; Target is what it was done to.
	Action string
	Target string

	// Payload is the opaque event body, stored as CBOR.
	Payload map[string]any

	// Status is one of the Status* constants.
	Status string

	// ErrorMessage carries failure detail when Status is failure or
	// warning.
	ErrorMessage string

	// Tags is a small string map used for filtered queries. The tag
	// "violation"="true" marks events counted by the router's
	// violation aggregates.
	Tags map[string]string
}

// Violation reports whether the event carries the violation tag.
func (e Event) Violation() bool {
	return e.Tags["violation"] == "true"
}
