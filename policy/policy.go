// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"
	"time"
)

// Action is an enumerated kind of message an agent may send over a
// channel. Policies whitelist actions; anything not listed is denied.
type Action string

const (
	// ActionQuery asks the peer for information without side effects.
	ActionQuery Action = "query"

	// ActionInform shares a result or status update.
	ActionInform Action = "inform"

	// ActionShareContext transfers working context (documents,
	// findings) to the peer.
	ActionShareContext Action = "share_context"

	// ActionRequestReview asks the peer to review a proposed change
	// or decision.
	ActionRequestReview Action = "request_review"

	// ActionDelegate hands a subtask to the peer.
	ActionDelegate Action = "delegate"

	// ActionProposeDecision submits a decision for governance
	// approval.
	ActionProposeDecision Action = "propose_decision"

	// ActionExecuteTask instructs the peer to carry out a task with
	// side effects. The most privileged action kind.
	ActionExecuteTask Action = "execute_task"
)

// KnownActions lists every valid action kind, used by the policy file
// linter to reject typos.
var KnownActions = []Action{
	ActionQuery,
	ActionInform,
	ActionShareContext,
	ActionRequestReview,
	ActionDelegate,
	ActionProposeDecision,
	ActionExecuteTask,
}

// KnownAction reports whether a is one of the enumerated action kinds.
func KnownAction(a Action) bool {
	for _, known := range KnownActions {
		if a == known {
			return true
		}
	}
	return false
}

// Policy is a concrete channel policy: a whitelist of permitted
// actions plus resource limits and approval requirements. Policies
// are value types and must be treated as immutable once a channel
// references them.
type Policy struct {
	// ID uniquely names the policy within a Set.
	ID string `json:"id"`

	// Name is the human-readable policy name.
	Name string `json:"name"`

	// AllowedActions is the whitelist. Empty means no action is
	// permitted (a channel under such a policy can never send).
	AllowedActions []Action `json:"allowed_actions"`

	// MaxMessages caps the total messages a channel may carry.
	MaxMessages int `json:"max_messages"`

	// MaxDuration caps the channel's lifetime, measured from
	// activation. Zero means no time limit.
	MaxDuration time.Duration `json:"max_duration"`

	// RequiresHumanApproval marks channels that must not activate
	// without an operator's sign-off.
	RequiresHumanApproval bool `json:"requires_human_approval"`

	// RequiresGovernanceValidation marks channels that must pass the
	// governance validation step before activating.
	RequiresGovernanceValidation bool `json:"requires_governance_validation"`

	// AutoCloseOnViolation flips the channel to the violated terminal
	// state when a critical violation is recorded.
	AutoCloseOnViolation bool `json:"auto_close_on_violation"`
}

// Allows reports whether the policy's whitelist contains action.
// Pure membership check: no limits, no state.
func (p Policy) Allows(action Action) bool {
	for _, allowed := range p.AllowedActions {
		if action == allowed {
			return true
		}
	}
	return false
}

// Restricted returns the built-in most-restrictive policy: query only,
// minimal limits, every approval gate on. Conditional evaluation falls
// back to it when no rule matches and the set has no tighter policy.
func Restricted() Policy {
	return Policy{
		ID:                           "restricted",
		Name:                         "Restricted (fail-closed fallback)",
		AllowedActions:               []Action{ActionQuery},
		MaxMessages:                  5,
		MaxDuration:                  10 * time.Minute,
		RequiresHumanApproval:        true,
		RequiresGovernanceValidation: true,
		AutoCloseOnViolation:         true,
	}
}

// Set is a registry of policies and conditionals, usually loaded from
// a policy file. The zero value is unusable; construct with NewSet or
// LoadSet.
type Set struct {
	policies     map[string]Policy
	conditionals map[string]Conditional
}

// NewSet builds a Set from explicit policies and conditionals,
// validating cross-references the same way LoadSet does.
func NewSet(policies []Policy, conditionals []Conditional) (*Set, error) {
	set := &Set{
		policies:     make(map[string]Policy, len(policies)),
		conditionals: make(map[string]Conditional, len(conditionals)),
	}
	for _, p := range policies {
		if err := validatePolicy(p); err != nil {
			return nil, err
		}
		if _, dup := set.policies[p.ID]; dup {
			return nil, fmt.Errorf("policy: duplicate policy id %q", p.ID)
		}
		set.policies[p.ID] = p
	}
	for _, c := range conditionals {
		if err := set.validateConditional(c); err != nil {
			return nil, err
		}
		if _, dup := set.conditionals[c.Name]; dup {
			return nil, fmt.Errorf("policy: duplicate conditional %q", c.Name)
		}
		set.conditionals[c.Name] = c
	}
	return set, nil
}

// Policy looks up a concrete policy by id.
func (s *Set) Policy(id string) (Policy, bool) {
	p, ok := s.policies[id]
	return p, ok
}

// Conditional looks up a conditional policy by name.
func (s *Set) Conditional(name string) (Conditional, bool) {
	c, ok := s.conditionals[name]
	return c, ok
}

// MostRestrictive returns the registered policy with the smallest
// whitelist, breaking ties by lower MaxMessages and then by id for
// determinism. Falls back to the built-in Restricted policy when the
// set is empty.
func (s *Set) MostRestrictive() Policy {
	var best Policy
	found := false
	for _, p := range s.policies {
		if !found {
			best, found = p, true
			continue
		}
		if tighter(p, best) {
			best = p
		}
	}
	if !found {
		return Restricted()
	}
	return best
}

func tighter(a, b Policy) bool {
	if len(a.AllowedActions) != len(b.AllowedActions) {
		return len(a.AllowedActions) < len(b.AllowedActions)
	}
	if a.MaxMessages != b.MaxMessages {
		return a.MaxMessages < b.MaxMessages
	}
	return a.ID < b.ID
}

func validatePolicy(p Policy) error {
	if p.ID == "" {
		return fmt.Errorf("policy: policy with empty id")
	}
	if p.MaxMessages <= 0 {
		return fmt.Errorf("policy %q: max_messages must be positive", p.ID)
	}
	if p.MaxDuration < 0 {
		return fmt.Errorf("policy %q: max_duration must not be negative", p.ID)
	}
	for _, action := range p.AllowedActions {
		if !KnownAction(action) {
			return fmt.Errorf("policy %q: unknown action %q", p.ID, action)
		}
	}
	return nil
}

func (s *Set) validateConditional(c Conditional) error {
	if c.Name == "" {
		return fmt.Errorf("policy: conditional with empty name")
	}
	for i, rule := range c.Rules {
		if _, ok := s.policies[rule.PolicyID]; !ok {
			return fmt.Errorf("conditional %q: rule %d references unknown policy %q",
				c.Name, i, rule.PolicyID)
		}
	}
	if c.Fallback != "" {
		if _, ok := s.policies[c.Fallback]; !ok {
			return fmt.Errorf("conditional %q: fallback references unknown policy %q",
				c.Name, c.Fallback)
		}
	}
	return nil
}
