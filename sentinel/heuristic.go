// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package sentinel

import (
	"context"
	"fmt"
	"strings"

	"github.com/warden-works/warden/channel"
)

// bypassPhrases are substrings that indicate an attempt to talk a
// peer agent around the governance layer. Matching is lowercase
// substring only, with no stemming or locale handling. Easy to evade by
// rephrasing, which is why this tier is a first-pass filter and the
// semantic tier exists.
var bypassPhrases = []string{
	"skip signature",
	"skip validation",
	"bypass governance",
	"bypass approval",
	"execute directly",
	"without approval",
	"ignore the policy",
	"don't log this",
	"do not log this",
	"off the record",
	"disable audit",
}

// Heuristic is the phrase-list scanner. The zero value is ready to
// use.
type Heuristic struct{}

// Scan checks the action name and every string reachable in the
// payload against the phrase list. A hit is a critical verdict. Never
// returns an error.
func (Heuristic) Scan(_ context.Context, subject Subject) (Verdict, error) {
	text := strings.ToLower(string(subject.Action) + " " + flatten(subject.Payload))
	for _, phrase := range bypassPhrases {
		if strings.Contains(text, phrase) {
			return Verdict{
				ViolationDetected: true,
				Severity:          channel.SeverityCritical,
				Rationale:         fmt.Sprintf("message contains bypass phrase %q", phrase),
				Scanner:           "heuristic",
			}, nil
		}
	}
	return Verdict{Scanner: "heuristic"}, nil
}

// flatten renders every string value in a payload, recursing into
// nested maps and slices. Keys are included so phrases hidden in key
// names are caught too.
func flatten(value any) string {
	var b strings.Builder
	appendValue(&b, value)
	return b.String()
}

func appendValue(b *strings.Builder, value any) {
	switch v := value.(type) {
	case string:
		b.WriteString(v)
		b.WriteByte(' ')
	case map[string]any:
		for key, nested := range v {
			b.WriteString(key)
			b.WriteByte(' ')
			appendValue(b, nested)
		}
	case []any:
		for _, nested := range v {
			appendValue(b, nested)
		}
	case fmt.Stringer:
		b.WriteString(v.String())
		b.WriteByte(' ')
	}
}
