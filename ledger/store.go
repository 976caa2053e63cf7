// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/warden-works/warden/lib/sqlitepool"
)

const eventSchema = `
CREATE TABLE IF NOT EXISTS events (
	id            TEXT PRIMARY KEY,
	type          TEXT NOT NULL,
	ts            INTEGER NOT NULL,
	trace_id      TEXT NOT NULL DEFAULT '',
	span_id       TEXT NOT NULL DEFAULT '',
	session_id    TEXT NOT NULL DEFAULT '',
	decision_id   TEXT NOT NULL DEFAULT '',
	actor_type    TEXT NOT NULL DEFAULT '',
	actor_id      TEXT NOT NULL DEFAULT '',
	action        TEXT NOT NULL DEFAULT '',
	target        TEXT NOT NULL DEFAULT '',
	payload       BLOB,
	status        TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	tags          BLOB,
	violation     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS events_ts ON events (ts DESC);
CREATE INDEX IF NOT EXISTS events_actor_ts ON events (actor_id, ts DESC);
CREATE INDEX IF NOT EXISTS events_type_actor ON events (type, actor_id);
`

// store is the append-only SQLite event store. Rows are inserted and
// never updated or deleted; the violation column is denormalized from
// the tag map so aggregate queries stay in SQL.
type store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

func openStore(path string, logger *slog.Logger) (*store, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		Schema: eventSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	return &store{pool: pool, logger: logger}, nil
}

func (s *store) close() error {
	return s.pool.Close()
}

func (s *store) insert(ctx context.Context, event Event) error {
	payload, err := cbor.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("ledger: encoding payload: %w", err)
	}
	tags, err := cbor.Marshal(event.Tags)
	if err != nil {
		return fmt.Errorf("ledger: encoding tags: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	violation := 0
	if event.Violation() {
		violation = 1
	}
	err = sqlitex.Execute(conn, `
		INSERT INTO events (
			id, type, ts, trace_id, span_id, session_id, decision_id,
			actor_type, actor_id, action, target, payload, status,
			error_message, tags, violation
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			event.ID, event.Type, event.Timestamp.UnixNano(),
			event.TraceID, event.SpanID, event.SessionID, event.DecisionID,
			event.ActorType, event.ActorID, event.Action, event.Target,
			payload, event.Status, event.ErrorMessage, tags, violation,
		}},
	)
	if err != nil {
		return fmt.Errorf("ledger: inserting event %s: %w", event.ID, err)
	}
	return nil
}

func (s *store) query(ctx context.Context, where string, args []any, limit int) ([]Event, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	sql := `SELECT id, type, ts, trace_id, span_id, session_id, decision_id,
		actor_type, actor_id, action, target, payload, status,
		error_message, tags FROM events`
	if where != "" {
		sql += " WHERE " + where
	}
	sql += " ORDER BY ts DESC LIMIT ?"
	args = append(args, limit)

	var events []Event
	err = sqlitex.Execute(conn, sql, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			event, err := scanEvent(stmt)
			if err != nil {
				return err
			}
			events = append(events, event)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: querying events: %w", err)
	}
	return events, nil
}

func scanEvent(stmt *sqlite.Stmt) (Event, error) {
	event := Event{
		ID:           stmt.ColumnText(0),
		Type:         stmt.ColumnText(1),
		Timestamp:    time.Unix(0, stmt.ColumnInt64(2)).UTC(),
		TraceID:      stmt.ColumnText(3),
		SpanID:       stmt.ColumnText(4),
		SessionID:    stmt.ColumnText(5),
		DecisionID:   stmt.ColumnText(6),
		ActorType:    stmt.ColumnText(7),
		ActorID:      stmt.ColumnText(8),
		Action:       stmt.ColumnText(9),
		Target:       stmt.ColumnText(10),
		Status:       stmt.ColumnText(12),
		ErrorMessage: stmt.ColumnText(13),
	}
	if n := stmt.ColumnLen(11); n > 0 {
		blob := make([]byte, n)
		stmt.ColumnBytes(11, blob)
		if err := cbor.Unmarshal(blob, &event.Payload); err != nil {
			return Event{}, fmt.Errorf("ledger: decoding payload of %s: %w", event.ID, err)
		}
	}
	if n := stmt.ColumnLen(14); n > 0 {
		blob := make([]byte, n)
		stmt.ColumnBytes(14, blob)
		if err := cbor.Unmarshal(blob, &event.Tags); err != nil {
			return Event{}, fmt.Errorf("ledger: decoding tags of %s: %w", event.ID, err)
		}
	}
	return event, nil
}

// countWhere runs SELECT COUNT(*) with the given WHERE clause.
func (s *store) countWhere(ctx context.Context, where string, args []any) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	var count int
	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM events WHERE "+where,
		&sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("ledger: counting events: %w", err)
	}
	return count, nil
}

// successRate returns successes/total for an actor's events since the
// cutoff, and whether the actor has any history at all.
func (s *store) successRate(ctx context.Context, actorID string, since time.Time) (rate float64, hasHistory bool, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, false, err
	}
	defer s.pool.Put(conn)

	var total, successes int
	err = sqlitex.Execute(conn, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM events WHERE actor_id = ? AND ts >= ?`,
		&sqlitex.ExecOptions{
			Args: []any{StatusSuccess, actorID, since.UnixNano()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				total = stmt.ColumnInt(0)
				successes = stmt.ColumnInt(1)
				return nil
			},
		})
	if err != nil {
		return 0, false, fmt.Errorf("ledger: success rate for %s: %w", actorID, err)
	}
	if total == 0 {
		return 0, false, nil
	}
	return float64(successes) / float64(total), true, nil
}
