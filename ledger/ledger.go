// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/warden-works/warden/lib/clock"
)

// Config holds the parameters for opening a Ledger.
type Config struct {
	// EventDBPath is the SQLite event store file.
	EventDBPath string

	// ChainPath is the hash-chained decision file.
	ChainPath string

	// Clock stamps events whose Timestamp is zero.
	Clock clock.Clock

	// Logger receives operational messages, including dropped-write
	// reports. Nil discards.
	Logger *slog.Logger
}

// Ledger is the audit service: the event store plus the decision
// chain, constructed once at process start and passed by reference to
// every consumer. Safe for concurrent use.
type Ledger struct {
	store  *store
	chain  *Chain
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens the event store and decision chain.
func Open(cfg Config) (*Ledger, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	st, err := openStore(cfg.EventDBPath, logger)
	if err != nil {
		return nil, err
	}
	chain, err := OpenChain(cfg.ChainPath)
	if err != nil {
		st.close()
		return nil, err
	}
	return &Ledger{store: st, chain: chain, clock: clk, logger: logger}, nil
}

// Close releases the event store.
func (l *Ledger) Close() error {
	return l.store.close()
}

// Log appends an AuditEvent. Missing IDs and timestamps are assigned.
// Log never fails the caller's operation: a write error is reported
// through the logger and the event is dropped. Losing one audit row
// is preferable to failing the governed operation it describes.
func (l *Ledger) Log(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.clock.Now()
	}
	if err := l.store.insert(ctx, event); err != nil {
		l.logger.Error("ledger write dropped",
			"event_type", event.Type,
			"actor_id", event.ActorID,
			"error", err,
		)
	}
}

// Events returns up to limit events, most recent first.
func (l *Ledger) Events(ctx context.Context, limit int) ([]Event, error) {
	return l.store.query(ctx, "", nil, limit)
}

// EventsByActor returns up to limit of the actor's events, most
// recent first.
func (l *Ledger) EventsByActor(ctx context.Context, actorID string, limit int) ([]Event, error) {
	return l.store.query(ctx, "actor_id = ?", []any{actorID}, limit)
}

// CountViolationsByActorSince counts the actor's violation-tagged
// events at or after since.
func (l *Ledger) CountViolationsByActorSince(ctx context.Context, actorID string, since time.Time) (int, error) {
	return l.store.countWhere(ctx, "actor_id = ? AND violation = 1 AND ts >= ?",
		[]any{actorID, since.UnixNano()})
}

// CountViolationsSince counts violation-tagged events across all
// actors at or after since.
func (l *Ledger) CountViolationsSince(ctx context.Context, since time.Time) (int, error) {
	return l.store.countWhere(ctx, "violation = 1 AND ts >= ?", []any{since.UnixNano()})
}

// ActorSuccessRate returns successes/total over the actor's events at
// or after since. Actors with no history report 1.0 so conditional
// policies do not punish new agents.
func (l *Ledger) ActorSuccessRate(ctx context.Context, actorID string, since time.Time) (float64, error) {
	rate, hasHistory, err := l.store.successRate(ctx, actorID, since)
	if err != nil {
		return 0, err
	}
	if !hasHistory {
		return 1.0, nil
	}
	return rate, nil
}

// CountChannelsCreated counts channel_created events where the actor
// was the requesting agent.
func (l *Ledger) CountChannelsCreated(ctx context.Context, actorID string) (int, error) {
	return l.store.countWhere(ctx, "type = ? AND actor_id = ?",
		[]any{EventChannelCreated, actorID})
}

// RecordDecision appends a tamper-evident chain entry and returns its
// hash. Unlike Log, chain failures propagate: a decision that cannot
// be made tamper-evident must not be treated as recorded.
func (l *Ledger) RecordDecision(payload map[string]any) (string, error) {
	return l.chain.RecordDecision(payload)
}

// VerifyChain replays the decision chain. See Chain.Verify.
func (l *Ledger) VerifyChain() (bool, int, error) {
	return l.chain.Verify()
}

// Chain exposes the underlying chain, mainly for the integrity guard.
func (l *Ledger) Chain() *Chain {
	return l.chain
}
