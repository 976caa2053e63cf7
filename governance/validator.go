// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"fmt"
	"path"

	"github.com/warden-works/warden/channel"
)

// Decision is the outcome of channel validation.
type Decision struct {
	// Approved is true when the channel may activate.
	Approved bool

	// Reason explains a rejection for the audit trail. Empty on
	// approval.
	Reason string
}

// Validator decides whether a pending channel may activate. An error
// return means the decision could not be made; the router rejects in
// that case, so validation fails closed.
type Validator interface {
	Validate(ctx context.Context, ch *channel.Channel) (Decision, error)
}

// Grant permits agents matching FromPattern to open channels under
// the listed policy ids. Patterns use path.Match syntax ("agent/*").
// An empty ToPattern permits any peer.
type Grant struct {
	FromPattern string   `json:"from_pattern" yaml:"from_pattern"`
	ToPattern   string   `json:"to_pattern" yaml:"to_pattern"`
	PolicyIDs   []string `json:"policy_ids" yaml:"policy_ids"`
}

// GrantValidator validates channels against a static grant table.
// Evaluation is staged, first match wins: the creating agent must
// match a grant, the grant must cover the channel's policy, and the
// grant's peer pattern (when set) must cover the receiving agent.
type GrantValidator struct {
	grants []Grant
}

// NewGrantValidator builds a validator, rejecting malformed patterns
// up front so a bad grant table fails at startup rather than at the
// first channel creation.
func NewGrantValidator(grants []Grant) (*GrantValidator, error) {
	for i, grant := range grants {
		if grant.FromPattern == "" {
			return nil, fmt.Errorf("governance: grant %d: empty from_pattern", i)
		}
		if _, err := path.Match(grant.FromPattern, "probe"); err != nil {
			return nil, fmt.Errorf("governance: grant %d: from_pattern: %w", i, err)
		}
		if grant.ToPattern != "" {
			if _, err := path.Match(grant.ToPattern, "probe"); err != nil {
				return nil, fmt.Errorf("governance: grant %d: to_pattern: %w", i, err)
			}
		}
		if len(grant.PolicyIDs) == 0 {
			return nil, fmt.Errorf("governance: grant %d: no policy ids", i)
		}
	}
	return &GrantValidator{grants: grants}, nil
}

// Validate implements Validator.
func (v *GrantValidator) Validate(_ context.Context, ch *channel.Channel) (Decision, error) {
	for _, grant := range v.grants {
		if !matches(grant.FromPattern, ch.From) {
			continue
		}
		if grant.ToPattern != "" && !matches(grant.ToPattern, ch.To) {
			continue
		}
		for _, id := range grant.PolicyIDs {
			if id == ch.Policy.ID {
				return Decision{Approved: true}, nil
			}
		}
	}
	return Decision{
		Approved: false,
		Reason: fmt.Sprintf("no grant permits %s to open a %q channel to %s",
			ch.From, ch.Policy.ID, ch.To),
	}, nil
}

func matches(pattern, name string) bool {
	// Patterns were validated at construction; Match cannot error
	// here.
	ok, _ := path.Match(pattern, name)
	return ok
}

// ApproveAll is a Validator that approves every channel. Intended for
// tests and for deployments that gate creation elsewhere.
type ApproveAll struct{}

// Validate implements Validator.
func (ApproveAll) Validate(context.Context, *channel.Channel) (Decision, error) {
	return Decision{Approved: true}, nil
}
