// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warden-works/warden/channel"
	"github.com/warden-works/warden/governance"
	"github.com/warden-works/warden/ledger"
	"github.com/warden-works/warden/lib/clock"
	"github.com/warden-works/warden/policy"
	"github.com/warden-works/warden/sentinel"
)

// Config holds the router's collaborators. Policies, Ledger, and
// Validator are required.
type Config struct {
	// Policies is the registry of concrete and conditional policies.
	Policies *policy.Set

	// Ledger receives every audit event and the governance decision
	// chain entries.
	Ledger *ledger.Ledger

	// Validator makes the governance approve/reject decision at
	// channel creation.
	Validator governance.Validator

	// Scanner inspects delivered messages. Nil disables scanning.
	Scanner sentinel.Scanner

	// Clock provides the current time. Nil means wall clock.
	Clock clock.Clock

	// Logger receives operational messages. Nil discards.
	Logger *slog.Logger
}

// Router is the governed channel router. Construct once at process
// start with New and pass by reference to every consumer. Safe for
// concurrent use: the channel tables are guarded by an RWMutex, and
// ledger writes and anomaly scans run outside it.
type Router struct {
	policies  *policy.Set
	ledger    *ledger.Ledger
	validator governance.Validator
	scanner   sentinel.Scanner
	clock     clock.Clock
	logger    *slog.Logger

	mu     sync.RWMutex
	active map[string]*channel.Channel
	closed map[string]*channel.Channel
}

// New constructs a Router.
func New(cfg Config) (*Router, error) {
	if cfg.Policies == nil {
		return nil, fmt.Errorf("router: Policies is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("router: Ledger is required")
	}
	if cfg.Validator == nil {
		return nil, fmt.Errorf("router: Validator is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{
		policies:  cfg.Policies,
		ledger:    cfg.Ledger,
		validator: cfg.Validator,
		scanner:   cfg.Scanner,
		clock:     clk,
		logger:    logger,
		active:    make(map[string]*channel.Channel),
		closed:    make(map[string]*channel.Channel),
	}, nil
}

// CreateRequest holds the parameters for opening a channel. Exactly
// one of PolicyID or ConditionalName must be set.
type CreateRequest struct {
	From      string
	To        string
	Direction channel.Direction

	// PolicyID names a concrete policy directly.
	PolicyID string

	// ConditionalName names a conditional policy, resolved against a
	// fresh context snapshot at creation time.
	ConditionalName string

	// TraceID and SessionID correlate the channel with the caller's
	// wider operation.
	TraceID   string
	SessionID string

	// DecisionID links the channel to an upstream governance
	// decision, if one exists.
	DecisionID string

	// HumanApprovedBy names the operator who signed off on a channel
	// whose policy requires human approval. Empty means no sign-off.
	HumanApprovedBy string
}

// CreateChannel builds a context snapshot, resolves the policy,
// constructs a pending channel, logs the attempt, runs governance
// validation, and either activates the channel or closes it with a
// *GovernanceRejection. The returned channel is never in an
// indeterminate state: on success it is active, on rejection it is
// closed (and returned alongside the error so the caller can inspect
// it).
func (r *Router) CreateChannel(ctx context.Context, req CreateRequest) (*channel.Channel, error) {
	if req.From == "" || req.To == "" {
		return nil, fmt.Errorf("router: create channel: both endpoints are required")
	}
	direction := req.Direction
	if direction == "" {
		direction = channel.Bidirectional
	}

	pol, err := r.resolvePolicy(ctx, req)
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	ch := channel.New(req.From, req.To, direction, pol, req.TraceID, req.SessionID, req.DecisionID, now)

	r.mu.Lock()
	r.active[ch.ID] = ch
	r.mu.Unlock()

	r.ledger.Log(ctx, ledger.Event{
		Type:       ledger.EventChannelCreated,
		TraceID:    req.TraceID,
		SessionID:  req.SessionID,
		DecisionID: req.DecisionID,
		ActorType:  "agent",
		ActorID:    req.From,
		Action:     "create_channel",
		Target:     req.To,
		Payload: map[string]any{
			"channel_id": ch.ID,
			"policy_id":  pol.ID,
			"direction":  string(direction),
		},
		Status: ledger.StatusPending,
	})

	decision, err := r.validate(ctx, ch, req)
	if err != nil {
		// The validator could not decide. Fail closed.
		decision = governance.Decision{
			Approved: false,
			Reason:   fmt.Sprintf("validation error: %v", err),
		}
	}

	if !decision.Approved {
		return r.rejectChannel(ctx, ch, decision.Reason)
	}
	return r.approveChannel(ctx, ch)
}

// resolvePolicy turns the request's policy reference into a concrete
// policy, evaluating a conditional against a fresh ledger-backed
// context when needed.
func (r *Router) resolvePolicy(ctx context.Context, req CreateRequest) (policy.Policy, error) {
	switch {
	case req.PolicyID != "" && req.ConditionalName != "":
		return policy.Policy{}, fmt.Errorf("router: create channel: policy and conditional are mutually exclusive")
	case req.PolicyID != "":
		pol, ok := r.policies.Policy(req.PolicyID)
		if !ok {
			return policy.Policy{}, fmt.Errorf("router: unknown policy %q", req.PolicyID)
		}
		return pol, nil
	case req.ConditionalName != "":
		conditional, ok := r.policies.Conditional(req.ConditionalName)
		if !ok {
			return policy.Policy{}, fmt.Errorf("router: unknown conditional policy %q", req.ConditionalName)
		}
		snapshot, err := r.buildPolicyContext(ctx, req.From)
		if err != nil {
			return policy.Policy{}, err
		}
		return conditional.Evaluate(r.policies, snapshot), nil
	default:
		return policy.Policy{}, fmt.Errorf("router: create channel: a policy or conditional is required")
	}
}

// validate runs the human-approval gate and the governance validator.
func (r *Router) validate(ctx context.Context, ch *channel.Channel, req CreateRequest) (governance.Decision, error) {
	if ch.Policy.RequiresHumanApproval && req.HumanApprovedBy == "" {
		return governance.Decision{
			Approved: false,
			Reason:   fmt.Sprintf("policy %q requires human approval", ch.Policy.ID),
		}, nil
	}
	if !ch.Policy.RequiresGovernanceValidation {
		return governance.Decision{Approved: true}, nil
	}
	return r.validator.Validate(ctx, ch)
}

func (r *Router) approveChannel(ctx context.Context, ch *channel.Channel) (*channel.Channel, error) {
	now := r.clock.Now()
	if err := ch.Approve(now); err != nil {
		return nil, err
	}

	hash, err := r.ledger.RecordDecision(map[string]any{
		"kind":       "channel_approval",
		"channel_id": ch.ID,
		"policy_id":  ch.Policy.ID,
		"from":       ch.From,
		"to":         ch.To,
		"approved":   true,
		"ts":         now.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		// A decision that cannot be made tamper-evident must not
		// stand. Close the channel and surface the failure.
		r.moveToClosed(ch, "decision chain write failed", "system")
		return ch, fmt.Errorf("router: recording approval decision: %w", err)
	}

	r.ledger.Log(ctx, ledger.Event{
		Type:      ledger.EventGovernanceDecision,
		TraceID:   ch.TraceID,
		SessionID: ch.SessionID,
		ActorType: "system",
		ActorID:   "governance",
		Action:    "approve_channel",
		Target:    ch.ID,
		Payload:   map[string]any{"decision_hash": hash, "policy_id": ch.Policy.ID},
		Status:    ledger.StatusSuccess,
	})
	r.logger.Info("channel activated",
		"channel_id", ch.ID,
		"from", ch.From,
		"to", ch.To,
		"policy", ch.Policy.ID,
	)
	return ch, nil
}

func (r *Router) rejectChannel(ctx context.Context, ch *channel.Channel, reason string) (*channel.Channel, error) {
	now := r.clock.Now()
	if err := ch.Reject(reason, now); err != nil {
		return nil, err
	}
	r.moveToClosedTable(ch)

	r.ledger.Log(ctx, ledger.Event{
		Type:         ledger.EventGovernanceDecision,
		TraceID:      ch.TraceID,
		SessionID:    ch.SessionID,
		ActorType:    "system",
		ActorID:      "governance",
		Action:       "reject_channel",
		Target:       ch.ID,
		Payload:      map[string]any{"policy_id": ch.Policy.ID, "reason": reason},
		Status:       ledger.StatusFailure,
		ErrorMessage: reason,
	})
	r.ledger.Log(ctx, ledger.Event{
		Type:      ledger.EventChannelClosed,
		TraceID:   ch.TraceID,
		SessionID: ch.SessionID,
		ActorType: "system",
		ActorID:   "governance",
		Action:    "close_channel",
		Target:    ch.ID,
		Payload:   map[string]any{"reason": reason, "closed_by": "governance"},
		Status:    ledger.StatusSuccess,
	})
	r.logger.Warn("channel rejected", "channel_id", ch.ID, "reason", reason)
	return ch, &GovernanceRejection{ChannelID: ch.ID, Reason: reason}
}

// SendRequest holds the parameters for one message send.
type SendRequest struct {
	ChannelID string
	From      string
	Action    policy.Action
	Payload   map[string]any

	TraceID          string
	ResponseTo       string
	RequiresResponse bool
}

// Receipt confirms a delivered message.
type Receipt struct {
	MessageID string    `json:"message_id"`
	ChannelID string    `json:"channel_id"`
	Timestamp time.Time `json:"timestamp"`
}

// SendMessage verifies the sender and the channel policy, records and
// logs the message, then runs the anomaly scan. Scanning happens
// after delivery is logged, so detection is after the fact: a critical
// verdict terminates the channel retroactively rather than delaying
// every send behind a scan.
//
// Failures return *NotFound (unknown id) or *PolicyViolation (sender
// not an endpoint, action disallowed, limits exceeded, channel not
// active). Policy violations are recorded on the channel and in the
// ledger before they are returned.
func (r *Router) SendMessage(ctx context.Context, req SendRequest) (Receipt, error) {
	ch := r.lookup(req.ChannelID)
	if ch == nil {
		return Receipt{}, &NotFound{ChannelID: req.ChannelID}
	}

	now := r.clock.Now()
	if !ch.Endpoint(req.From) {
		return Receipt{}, r.sendViolation(ctx, ch, req,
			fmt.Sprintf("agent %q is not a sending endpoint", req.From))
	}
	to := ch.To
	if req.From == ch.To {
		to = ch.From
	}
	msg := channel.Message{
		ID:               uuid.NewString(),
		From:             req.From,
		To:               to,
		Action:           req.Action,
		Payload:          req.Payload,
		Timestamp:        now,
		TraceID:          req.TraceID,
		ResponseTo:       req.ResponseTo,
		RequiresResponse: req.RequiresResponse,
	}
	if ok, reason := ch.TrySend(msg, now); !ok {
		return Receipt{}, r.sendViolation(ctx, ch, req, reason)
	}

	r.ledger.Log(ctx, ledger.Event{
		Type:      ledger.EventChannelMessage,
		TraceID:   req.TraceID,
		SessionID: ch.SessionID,
		ActorType: "agent",
		ActorID:   req.From,
		Action:    string(req.Action),
		Target:    to,
		Payload: map[string]any{
			"channel_id": ch.ID,
			"message_id": msg.ID,
		},
		Status: ledger.StatusSuccess,
	})

	r.scan(ctx, ch, msg)

	return Receipt{MessageID: msg.ID, ChannelID: ch.ID, Timestamp: now}, nil
}

// sendViolation records a rejected send on the channel and in the
// ledger, then returns the *PolicyViolation for the caller.
func (r *Router) sendViolation(ctx context.Context, ch *channel.Channel, req SendRequest, reason string) error {
	now := r.clock.Now()
	ch.RecordViolation("send_rejected", channel.SeverityWarning, reason, now)

	r.ledger.Log(ctx, ledger.Event{
		Type:         ledger.EventChannelMessage,
		TraceID:      req.TraceID,
		SessionID:    ch.SessionID,
		ActorType:    "agent",
		ActorID:      req.From,
		Action:       string(req.Action),
		Target:       ch.ID,
		Payload:      map[string]any{"channel_id": ch.ID, "reason": reason},
		Status:       ledger.StatusFailure,
		ErrorMessage: reason,
		Tags:         map[string]string{"violation": "true"},
	})
	r.logger.Warn("send rejected",
		"channel_id", ch.ID,
		"from", req.From,
		"action", req.Action,
		"reason", reason,
	)
	return &PolicyViolation{ChannelID: ch.ID, Action: string(req.Action), Reason: reason}
}

// scan runs the anomaly scanner on a delivered message. Scanner
// errors are transient: logged as warnings, never surfaced, never
// terminal for the channel. A critical verdict terminates the channel
// as a violation.
func (r *Router) scan(ctx context.Context, ch *channel.Channel, msg channel.Message) {
	if r.scanner == nil {
		return
	}
	verdict, err := r.scanner.Scan(ctx, sentinel.Subject{
		ChannelID: ch.ID,
		From:      msg.From,
		To:        msg.To,
		Action:    msg.Action,
		Payload:   msg.Payload,
	})
	if err != nil {
		r.ledger.Log(ctx, ledger.Event{
			Type:         ledger.EventSentinelAlert,
			TraceID:      msg.TraceID,
			SessionID:    ch.SessionID,
			ActorType:    "sentinel",
			ActorID:      "scanner",
			Action:       "scan",
			Target:       ch.ID,
			Payload:      map[string]any{"message_id": msg.ID},
			Status:       ledger.StatusWarning,
			ErrorMessage: err.Error(),
		})
		r.logger.Warn("anomaly scan failed", "channel_id", ch.ID, "error", err)
		return
	}
	if !verdict.ViolationDetected {
		return
	}

	now := r.clock.Now()
	autoClosed := ch.RecordViolation("sentinel_"+verdict.Scanner, verdict.Severity, verdict.Rationale, now)
	r.ledger.Log(ctx, ledger.Event{
		Type:      ledger.EventSentinelAlert,
		TraceID:   msg.TraceID,
		SessionID: ch.SessionID,
		ActorType: "sentinel",
		ActorID:   verdict.Scanner,
		Action:    "scan",
		Target:    ch.ID,
		Payload: map[string]any{
			"message_id": msg.ID,
			"severity":   verdict.Severity.String(),
			"rationale":  verdict.Rationale,
		},
		Status: ledger.StatusFailure,
		Tags:   map[string]string{"violation": "true"},
	})

	switch {
	case autoClosed:
		// RecordViolation already made the terminal transition;
		// finish the move and log the closure.
		r.moveToClosedTable(ch)
		r.logClosed(ctx, ch, verdict.Rationale, "sentinel")
	case verdict.Severity == channel.SeverityCritical:
		r.terminate(ctx, ch, verdict.Rationale, "sentinel")
	}
}

// Termination reports the outcome of TerminateChannel.
type Termination struct {
	// Status is "terminated", "already_closed", or "not_found".
	Status string `json:"status"`

	ChannelID string    `json:"channel_id"`
	ClosedAt  time.Time `json:"closed_at,omitempty"`
}

// TerminateChannel moves a channel to its terminal state and out of
// the active table. terminatedBy selects the terminal status: "human"
// closes to EmergencyClosed, "sentinel" to Violated, anything else to
// Closed. Idempotent: a repeat call on a removed channel returns
// status "not_found" and never errors.
func (r *Router) TerminateChannel(ctx context.Context, channelID, reason, terminatedBy string) Termination {
	r.mu.RLock()
	ch, ok := r.active[channelID]
	r.mu.RUnlock()
	if !ok {
		return Termination{Status: "not_found", ChannelID: channelID}
	}
	already := r.terminate(ctx, ch, reason, terminatedBy)
	status := "terminated"
	if already {
		status = "already_closed"
	}
	return Termination{Status: status, ChannelID: channelID, ClosedAt: ch.ClosedAt()}
}

// terminate performs the terminal transition, moves the channel to
// the closed table, and logs the closure.
func (r *Router) terminate(ctx context.Context, ch *channel.Channel, reason, terminatedBy string) (already bool) {
	now := r.clock.Now()
	switch terminatedBy {
	case "human":
		already = ch.EmergencyClose(reason, now)
	case "sentinel":
		already = ch.CloseViolated(reason, terminatedBy, now)
	default:
		already = ch.Close(reason, terminatedBy, now)
	}
	r.moveToClosedTable(ch)

	if already {
		return true
	}
	r.logClosed(ctx, ch, reason, terminatedBy)
	return false
}

func (r *Router) logClosed(ctx context.Context, ch *channel.Channel, reason, terminatedBy string) {
	r.ledger.Log(ctx, ledger.Event{
		Type:      ledger.EventChannelClosed,
		TraceID:   ch.TraceID,
		SessionID: ch.SessionID,
		ActorType: actorType(terminatedBy),
		ActorID:   terminatedBy,
		Action:    "close_channel",
		Target:    ch.ID,
		Payload: map[string]any{
			"reason":    reason,
			"closed_by": terminatedBy,
			"status":    string(ch.Status()),
		},
		Status: ledger.StatusSuccess,
	})
	r.logger.Info("channel terminated",
		"channel_id", ch.ID,
		"status", ch.Status(),
		"reason", reason,
		"terminated_by", terminatedBy,
	)
}

func actorType(terminatedBy string) string {
	switch terminatedBy {
	case "human":
		return "human"
	case "sentinel":
		return "sentinel"
	default:
		return "system"
	}
}

// moveToClosed is terminate without the ledger logging, used when the
// closure itself is part of a larger failure being reported.
func (r *Router) moveToClosed(ch *channel.Channel, reason, closedBy string) {
	ch.Close(reason, closedBy, r.clock.Now())
	r.moveToClosedTable(ch)
}

func (r *Router) moveToClosedTable(ch *channel.Channel) {
	r.mu.Lock()
	delete(r.active, ch.ID)
	r.closed[ch.ID] = ch
	r.mu.Unlock()
}

// ExpireChannels terminates every active channel that has outlived
// its policy's MaxDuration, returning the ids it closed. The daemon
// loop calls this periodically.
func (r *Router) ExpireChannels(ctx context.Context) []string {
	now := r.clock.Now()

	r.mu.RLock()
	var expired []*channel.Channel
	for _, ch := range r.active {
		if ch.Expired(now) {
			expired = append(expired, ch)
		}
	}
	r.mu.RUnlock()

	ids := make([]string, 0, len(expired))
	for _, ch := range expired {
		r.terminate(ctx, ch, "timeout", "system")
		ids = append(ids, ch.ID)
	}
	return ids
}

// lookup finds a channel in either table.
func (r *Router) lookup(id string) *channel.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ch, ok := r.active[id]; ok {
		return ch
	}
	return r.closed[id]
}

// Channel returns the channel with the given id, active or closed.
func (r *Router) Channel(id string) (*channel.Channel, bool) {
	ch := r.lookup(id)
	return ch, ch != nil
}

// ActiveChannels returns the channels currently in the active table.
func (r *Router) ActiveChannels() []*channel.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*channel.Channel, 0, len(r.active))
	for _, ch := range r.active {
		out = append(out, ch)
	}
	return out
}

// Stats summarizes the router's tables.
type Stats struct {
	Active          int            `json:"active"`
	Closed          int            `json:"closed"`
	TotalMessages   int            `json:"total_messages"`
	TotalViolations int            `json:"total_violations"`
	ByStatus        map[string]int `json:"by_status"`
}

// Stats returns a snapshot of channel counts and histories.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Active:   len(r.active),
		Closed:   len(r.closed),
		ByStatus: make(map[string]int),
	}
	for _, table := range []map[string]*channel.Channel{r.active, r.closed} {
		for _, ch := range table {
			stats.TotalMessages += ch.MessageCount()
			stats.TotalViolations += ch.ViolationCount()
			stats.ByStatus[string(ch.Status())]++
		}
	}
	return stats
}
