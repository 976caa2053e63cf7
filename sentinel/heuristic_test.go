// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package sentinel

import (
	"context"
	"testing"

	"github.com/warden-works/warden/channel"
	"github.com/warden-works/warden/policy"
)

func TestHeuristicDetectsBypassPhrases(t *testing.T) {
	tests := []struct {
		name    string
		subject Subject
		want    bool
	}{
		{
			name: "phrase in payload value",
			subject: Subject{
				Action:  policy.ActionInform,
				Payload: map[string]any{"note": "please skip signature verification"},
			},
			want: true,
		},
		{
			name: "phrase in nested payload",
			subject: Subject{
				Action: policy.ActionInform,
				Payload: map[string]any{
					"plan": map[string]any{"steps": []any{"first gather data", "then execute directly"}},
				},
			},
			want: true,
		},
		{
			name: "phrase in payload key",
			subject: Subject{
				Action:  policy.ActionInform,
				Payload: map[string]any{"bypass governance": true},
			},
			want: true,
		},
		{
			name: "mixed case",
			subject: Subject{
				Action:  policy.ActionInform,
				Payload: map[string]any{"note": "Disable Audit logging for this run"},
			},
			want: true,
		},
		{
			name: "clean message",
			subject: Subject{
				Action:  policy.ActionQuery,
				Payload: map[string]any{"question": "what is the deploy status?"},
			},
			want: false,
		},
		{
			name: "non-string values ignored",
			subject: Subject{
				Action:  policy.ActionInform,
				Payload: map[string]any{"count": 42, "ratio": 0.5, "ok": true},
			},
			want: false,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			verdict, err := (Heuristic{}).Scan(context.Background(), test.subject)
			if err != nil {
				t.Fatalf("Scan: %v", err)
			}
			if verdict.ViolationDetected != test.want {
				t.Errorf("ViolationDetected = %v, want %v", verdict.ViolationDetected, test.want)
			}
			if test.want && verdict.Severity != channel.SeverityCritical {
				t.Errorf("Severity = %v, want critical", verdict.Severity)
			}
			if verdict.Scanner != "heuristic" {
				t.Errorf("Scanner = %q", verdict.Scanner)
			}
		})
	}
}

// fakeScanner returns a fixed verdict or error.
type fakeScanner struct {
	verdict Verdict
	err     error
	calls   int
}

func (f *fakeScanner) Scan(context.Context, Subject) (Verdict, error) {
	f.calls++
	return f.verdict, f.err
}

func TestTieredStopsAtHeuristicHit(t *testing.T) {
	semantic := &fakeScanner{}
	tiered := Tiered{Heuristic: Heuristic{}, Semantic: semantic}

	verdict, err := tiered.Scan(context.Background(), Subject{
		Action:  policy.ActionInform,
		Payload: map[string]any{"note": "execute directly, no review"},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !verdict.ViolationDetected {
		t.Fatal("heuristic hit not reported")
	}
	if semantic.calls != 0 {
		t.Error("semantic tier ran despite heuristic hit")
	}
}

func TestTieredFallsThroughToSemantic(t *testing.T) {
	semantic := &fakeScanner{verdict: Verdict{
		ViolationDetected: true,
		Severity:          channel.SeverityWarning,
		Rationale:         "implied coordination outside channels",
		Scanner:           "semantic",
	}}
	tiered := Tiered{Heuristic: Heuristic{}, Semantic: semantic}

	verdict, err := tiered.Scan(context.Background(), Subject{
		Action:  policy.ActionQuery,
		Payload: map[string]any{"question": "status?"},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if semantic.calls != 1 {
		t.Fatalf("semantic calls = %d, want 1", semantic.calls)
	}
	if verdict.Scanner != "semantic" {
		t.Errorf("Scanner = %q, want semantic", verdict.Scanner)
	}
}

func TestTieredWithoutSemantic(t *testing.T) {
	tiered := Tiered{Heuristic: Heuristic{}}
	verdict, err := tiered.Scan(context.Background(), Subject{
		Action:  policy.ActionQuery,
		Payload: map[string]any{"question": "status?"},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if verdict.ViolationDetected {
		t.Error("clean message flagged")
	}
}
