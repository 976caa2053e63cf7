// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"fmt"
	"time"

	"github.com/warden-works/warden/policy"
)

// Lookback windows for the conditional-policy context snapshot.
const (
	agentViolationWindow  = 24 * time.Hour
	systemViolationWindow = time.Hour
	successRateWindow     = 7 * 24 * time.Hour
)

// buildPolicyContext assembles the snapshot a conditional policy
// evaluates against: the requesting agent's recent violations, the
// system-wide violation rate, the agent's seven-day success ratio
// (1.0 when the agent has no history), the agent's lifetime channel
// count, and the router's current load. The snapshot is advisory
// input to policy selection only; it never gates message sends.
func (r *Router) buildPolicyContext(ctx context.Context, agent string) (policy.Context, error) {
	now := r.clock.Now()

	agentViolations, err := r.ledger.CountViolationsByActorSince(ctx, agent, now.Add(-agentViolationWindow))
	if err != nil {
		return policy.Context{}, fmt.Errorf("router: building policy context: %w", err)
	}
	systemViolations, err := r.ledger.CountViolationsSince(ctx, now.Add(-systemViolationWindow))
	if err != nil {
		return policy.Context{}, fmt.Errorf("router: building policy context: %w", err)
	}
	successRate, err := r.ledger.ActorSuccessRate(ctx, agent, now.Add(-successRateWindow))
	if err != nil {
		return policy.Context{}, fmt.Errorf("router: building policy context: %w", err)
	}
	channelsCreated, err := r.ledger.CountChannelsCreated(ctx, agent)
	if err != nil {
		return policy.Context{}, fmt.Errorf("router: building policy context: %w", err)
	}

	r.mu.RLock()
	activeCount := len(r.active)
	r.mu.RUnlock()

	return policy.Context{
		Hour:                 now.Hour(),
		Weekday:              now.Weekday(),
		AgentViolations24h:   agentViolations,
		SystemViolations1h:   systemViolations,
		AgentSuccessRate7d:   successRate,
		AgentChannelsCreated: channelsCreated,
		ActiveChannels:       activeCount,
	}, nil
}
