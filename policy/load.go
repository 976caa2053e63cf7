// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
)

// filePolicy is the on-disk shape of a Policy. Durations are written
// as Go duration strings ("30m", "2h") rather than raw nanoseconds.
type filePolicy struct {
	ID                           string   `json:"id"`
	Name                         string   `json:"name"`
	AllowedActions               []string `json:"allowed_actions"`
	MaxMessages                  int      `json:"max_messages"`
	MaxDuration                  string   `json:"max_duration"`
	RequiresHumanApproval        bool     `json:"requires_human_approval"`
	RequiresGovernanceValidation bool     `json:"requires_governance_validation"`
	AutoCloseOnViolation         bool     `json:"auto_close_on_violation"`
}

type fileCondition struct {
	HourFrom              *int     `json:"hour_from"`
	HourTo                *int     `json:"hour_to"`
	Weekdays              []string `json:"weekdays"`
	MaxAgentViolations24h *int     `json:"max_agent_violations_24h"`
	MaxSystemViolations1h *int     `json:"max_system_violations_1h"`
	MinAgentSuccessRate7d *float64 `json:"min_agent_success_rate_7d"`
	MaxAgentChannels      *int     `json:"max_agent_channels"`
	MaxActiveChannels     *int     `json:"max_active_channels"`
}

type fileRule struct {
	Condition fileCondition `json:"condition"`
	PolicyID  string        `json:"policy_id"`
}

type fileConditional struct {
	Name     string     `json:"name"`
	Rules    []fileRule `json:"rules"`
	Fallback string     `json:"fallback"`
}

type policyFile struct {
	Policies     []filePolicy      `json:"policies"`
	Conditionals []fileConditional `json:"conditionals"`
}

// LoadSet parses a policy file into a validated Set. The file is JSON
// with comments and trailing commas permitted (JSONC), so operators
// can annotate why each policy exists.
func LoadSet(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: reading %s: %w", path, err)
	}
	return ParseSet(raw, path)
}

// ParseSet parses policy file content. The name is used in error
// messages only.
func ParseSet(raw []byte, name string) (*Set, error) {
	var file policyFile
	if err := json.Unmarshal(jsonc.ToJSON(raw), &file); err != nil {
		return nil, fmt.Errorf("policy: parsing %s: %w", name, err)
	}

	policies := make([]Policy, 0, len(file.Policies))
	for _, fp := range file.Policies {
		p, err := fp.toPolicy()
		if err != nil {
			return nil, fmt.Errorf("policy: %s: %w", name, err)
		}
		policies = append(policies, p)
	}

	conditionals := make([]Conditional, 0, len(file.Conditionals))
	for _, fc := range file.Conditionals {
		c, err := fc.toConditional()
		if err != nil {
			return nil, fmt.Errorf("policy: %s: %w", name, err)
		}
		conditionals = append(conditionals, c)
	}

	set, err := NewSet(policies, conditionals)
	if err != nil {
		return nil, fmt.Errorf("policy: %s: %w", name, err)
	}
	return set, nil
}

func (fp filePolicy) toPolicy() (Policy, error) {
	p := Policy{
		ID:                           fp.ID,
		Name:                         fp.Name,
		MaxMessages:                  fp.MaxMessages,
		RequiresHumanApproval:        fp.RequiresHumanApproval,
		RequiresGovernanceValidation: fp.RequiresGovernanceValidation,
		AutoCloseOnViolation:         fp.AutoCloseOnViolation,
	}
	for _, action := range fp.AllowedActions {
		p.AllowedActions = append(p.AllowedActions, Action(action))
	}
	if fp.MaxDuration != "" {
		d, err := time.ParseDuration(fp.MaxDuration)
		if err != nil {
			return Policy{}, fmt.Errorf("policy %q: max_duration: %w", fp.ID, err)
		}
		p.MaxDuration = d
	}
	return p, nil
}

func (fc fileConditional) toConditional() (Conditional, error) {
	c := Conditional{Name: fc.Name, Fallback: fc.Fallback}
	for i, fr := range fc.Rules {
		cond := Condition{
			HourFrom:              fr.Condition.HourFrom,
			HourTo:                fr.Condition.HourTo,
			MaxAgentViolations24h: fr.Condition.MaxAgentViolations24h,
			MaxSystemViolations1h: fr.Condition.MaxSystemViolations1h,
			MinAgentSuccessRate7d: fr.Condition.MinAgentSuccessRate7d,
			MaxAgentChannels:      fr.Condition.MaxAgentChannels,
			MaxActiveChannels:     fr.Condition.MaxActiveChannels,
		}
		for _, bound := range []*int{cond.HourFrom, cond.HourTo} {
			if bound != nil && (*bound < 0 || *bound > 23) {
				return Conditional{}, fmt.Errorf("conditional %q: rule %d: hour %d out of range 0..23", fc.Name, i, *bound)
			}
		}
		for _, name := range fr.Condition.Weekdays {
			day, err := parseWeekday(name)
			if err != nil {
				return Conditional{}, fmt.Errorf("conditional %q: rule %d: %w", fc.Name, i, err)
			}
			cond.Weekdays = append(cond.Weekdays, day)
		}
		c.Rules = append(c.Rules, Rule{Condition: cond, PolicyID: fr.PolicyID})
	}
	return c, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWeekday(name string) (time.Weekday, error) {
	day, ok := weekdays[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", name)
	}
	return day, nil
}
