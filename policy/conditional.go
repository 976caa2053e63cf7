// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import "time"

// Context is the runtime snapshot a Conditional evaluates against.
// The router assembles it from ledger queries and its own live state
// at channel-creation time; evaluation itself performs no I/O.
//
// The snapshot is advisory input to policy selection only. It never
// gates individual message sends; those are checked against the
// resolved policy's own limits.
type Context struct {
	// Hour is the wall-clock hour (0-23) at evaluation time.
	Hour int

	// Weekday is the wall-clock weekday at evaluation time.
	Weekday time.Weekday

	// AgentViolations24h counts the requesting agent's ledger events
	// tagged as violations over the last 24 hours.
	AgentViolations24h int

	// SystemViolations1h counts violation events across all agents
	// over the last hour.
	SystemViolations1h int

	// AgentSuccessRate7d is successes/total over the agent's last
	// seven days of ledger events. Agents with no history report 1.0
	// so that new agents are not punished for being new.
	AgentSuccessRate7d float64

	// AgentChannelsCreated counts channels the agent has opened in
	// total.
	AgentChannelsCreated int

	// ActiveChannels is the router's current active-channel count,
	// a rough load proxy.
	ActiveChannels int
}

// Condition is one rule's match criteria. Zero-valued fields do not
// constrain; a Condition with no set fields matches every Context.
type Condition struct {
	// HourFrom/HourTo bound the wall-clock hour, inclusive on both
	// ends. Nil means unbounded on that end: a nil HourFrom defaults
	// to 0, a nil HourTo to 23. Ranges where from > to (e.g. 22..6)
	// wrap midnight. A range of 0..0 matches hour 0 only.
	HourFrom *int `json:"hour_from"`
	HourTo   *int `json:"hour_to"`

	// Weekdays restricts matching to the listed weekdays. Empty
	// means any day.
	Weekdays []time.Weekday `json:"weekdays"`

	// MaxAgentViolations24h matches only when the agent's 24-hour
	// violation count is at or below this bound. Nil means unbounded.
	MaxAgentViolations24h *int `json:"max_agent_violations_24h"`

	// MaxSystemViolations1h matches only when the system-wide
	// one-hour violation count is at or below this bound.
	MaxSystemViolations1h *int `json:"max_system_violations_1h"`

	// MinAgentSuccessRate7d matches only when the agent's seven-day
	// success rate is at or above this threshold.
	MinAgentSuccessRate7d *float64 `json:"min_agent_success_rate_7d"`

	// MaxAgentChannels matches only when the agent has created at
	// most this many channels in total.
	MaxAgentChannels *int `json:"max_agent_channels"`

	// MaxActiveChannels matches only when the router's active-channel
	// count is at or below this bound.
	MaxActiveChannels *int `json:"max_active_channels"`
}

// Matches reports whether every set constraint holds for ctx.
func (c Condition) Matches(ctx Context) bool {
	if c.HourFrom != nil || c.HourTo != nil {
		from, to := 0, 23
		if c.HourFrom != nil {
			from = *c.HourFrom
		}
		if c.HourTo != nil {
			to = *c.HourTo
		}
		if !hourInRange(ctx.Hour, from, to) {
			return false
		}
	}
	if len(c.Weekdays) > 0 {
		match := false
		for _, day := range c.Weekdays {
			if day == ctx.Weekday {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if c.MaxAgentViolations24h != nil && ctx.AgentViolations24h > *c.MaxAgentViolations24h {
		return false
	}
	if c.MaxSystemViolations1h != nil && ctx.SystemViolations1h > *c.MaxSystemViolations1h {
		return false
	}
	if c.MinAgentSuccessRate7d != nil && ctx.AgentSuccessRate7d < *c.MinAgentSuccessRate7d {
		return false
	}
	if c.MaxAgentChannels != nil && ctx.AgentChannelsCreated > *c.MaxAgentChannels {
		return false
	}
	if c.MaxActiveChannels != nil && ctx.ActiveChannels > *c.MaxActiveChannels {
		return false
	}
	return true
}

// hourInRange checks from <= hour <= to, treating ranges where
// from > to as wrapping midnight.
func hourInRange(hour, from, to int) bool {
	if from <= to {
		return hour >= from && hour <= to
	}
	return hour >= from || hour <= to
}

// Rule binds a Condition to the policy selected when it matches.
type Rule struct {
	Condition Condition `json:"condition"`
	PolicyID  string    `json:"policy_id"`
}

// Conditional is a named policy selector. Rules are evaluated in
// declaration order; the first match wins. When no rule matches, the
// named Fallback policy is selected. With no fallback declared, the
// set's most restrictive policy is used, so evaluation fails closed.
type Conditional struct {
	Name     string `json:"name"`
	Rules    []Rule `json:"rules"`
	Fallback string `json:"fallback"`
}

// Evaluate resolves the conditional to a concrete policy. It is
// deterministic: identical Context values always select the same
// policy. Rules referencing unknown policies were rejected at Set
// construction, so lookups here cannot miss.
func (c Conditional) Evaluate(set *Set, ctx Context) Policy {
	for _, rule := range c.Rules {
		if rule.Condition.Matches(ctx) {
			if p, ok := set.Policy(rule.PolicyID); ok {
				return p
			}
		}
	}
	if c.Fallback != "" {
		if p, ok := set.Policy(c.Fallback); ok {
			return p
		}
	}
	return set.MostRestrictive()
}
