// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package sentinel

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/warden-works/warden/channel"
	"github.com/warden-works/warden/lib/llm"
	"github.com/warden-works/warden/policy"
)

// fakeProvider returns a canned completion and records the request.
type fakeProvider struct {
	text string
	err  error
	last llm.Request
}

func (f *fakeProvider) Complete(_ context.Context, request llm.Request) (*llm.Response, error) {
	f.last = request
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.text}, nil
}

func TestSemanticScan(t *testing.T) {
	provider := &fakeProvider{
		text: `{"violation_detected": true, "severity": "CRITICAL", "rationale": "asks the peer to act without approval"}`,
	}
	scanner := NewSemantic(provider, 0)

	verdict, err := scanner.Scan(context.Background(), Subject{
		ChannelID: "ch-1",
		From:      "agent-a",
		To:        "agent-b",
		Action:    policy.ActionDelegate,
		Payload:   map[string]any{"task": "rotate keys"},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !verdict.ViolationDetected {
		t.Error("violation not reported")
	}
	if verdict.Severity != channel.SeverityCritical {
		t.Errorf("Severity = %v, want critical", verdict.Severity)
	}
	if verdict.Scanner != "semantic" {
		t.Errorf("Scanner = %q, want semantic", verdict.Scanner)
	}
	if !strings.Contains(provider.last.Messages[0].Content, "rotate keys") {
		t.Errorf("payload missing from prompt: %q", provider.last.Messages[0].Content)
	}
}

func TestSemanticScanProviderError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("upstream 529")}
	scanner := NewSemantic(provider, 0)

	_, err := scanner.Scan(context.Background(), Subject{Action: policy.ActionQuery})
	if err == nil {
		t.Fatal("expected error from failing provider")
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		detected bool
		severity channel.Severity
		wantErr  bool
	}{
		{
			name:     "bare object",
			text:     `{"violation_detected": false, "severity": "INFO", "rationale": "routine query"}`,
			detected: false,
			severity: channel.SeverityInfo,
		},
		{
			name:     "code fence",
			text:     "```json\n{\"violation_detected\": true, \"severity\": \"WARNING\", \"rationale\": \"ambiguous\"}\n```",
			detected: true,
			severity: channel.SeverityWarning,
		},
		{
			name:     "surrounding prose",
			text:     `Here is my assessment: {"violation_detected": true, "severity": "critical", "rationale": "bypass"} Let me know.`,
			detected: true,
			severity: channel.SeverityCritical,
		},
		{
			name:     "unknown severity defaults to info",
			text:     `{"violation_detected": true, "severity": "SEVERE", "rationale": "x"}`,
			detected: true,
			severity: channel.SeverityInfo,
		},
		{
			name:    "no JSON at all",
			text:    "I cannot assess this message.",
			wantErr: true,
		},
		{
			name:    "malformed JSON",
			text:    `{"violation_detected": maybe}`,
			wantErr: true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			verdict, err := parseVerdict(test.text)
			if test.wantErr {
				if err == nil {
					t.Fatal("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseVerdict: %v", err)
			}
			if verdict.ViolationDetected != test.detected {
				t.Errorf("ViolationDetected = %v, want %v", verdict.ViolationDetected, test.detected)
			}
			if verdict.Severity != test.severity {
				t.Errorf("Severity = %v, want %v", verdict.Severity, test.severity)
			}
		})
	}
}
