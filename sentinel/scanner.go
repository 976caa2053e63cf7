// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package sentinel

import (
	"context"

	"github.com/warden-works/warden/channel"
	"github.com/warden-works/warden/policy"
)

// Subject is the material a scanner inspects: one delivered message
// and the channel it traveled on.
type Subject struct {
	ChannelID string
	From      string
	To        string
	Action    policy.Action
	Payload   map[string]any
}

// Verdict is a scanner's structured finding.
type Verdict struct {
	// ViolationDetected is true when the scanner found a governance
	// bypass attempt.
	ViolationDetected bool

	// Severity classifies the finding. Critical verdicts terminate
	// the channel; lower tiers are logged only.
	Severity channel.Severity

	// Rationale explains the finding for the audit trail.
	Rationale string

	// Scanner names the tier that produced the verdict ("heuristic"
	// or "semantic").
	Scanner string
}

// Scanner inspects a delivered message. Implementations must honor
// ctx; an error return means the scan could not run, not that a
// violation was found.
type Scanner interface {
	Scan(ctx context.Context, subject Subject) (Verdict, error)
}

// Tiered runs the heuristic scan first and, when it finds nothing and
// a semantic scanner is configured, the semantic scan. The first
// verdict with a detected violation wins.
type Tiered struct {
	Heuristic Scanner
	Semantic  Scanner // optional
}

// Scan implements Scanner.
func (t Tiered) Scan(ctx context.Context, subject Subject) (Verdict, error) {
	verdict, err := t.Heuristic.Scan(ctx, subject)
	if err != nil {
		return Verdict{}, err
	}
	if verdict.ViolationDetected || t.Semantic == nil {
		return verdict, nil
	}
	return t.Semantic.Scan(ctx, subject)
}
