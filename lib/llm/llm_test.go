// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAnthropicComplete(t *testing.T) {
	var got anthropicRequest
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotHeaders = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContent{
				{Type: "text", Text: "first "},
				{Type: "tool_use"},
				{Type: "text", Text: "second"},
			},
			StopReason: "end_turn",
		})
	}))
	defer server.Close()

	provider := NewAnthropic(nil, server.URL, "test-key", "test-model")
	response, err := provider.Complete(context.Background(), Request{
		System:   "be terse",
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// Text blocks concatenate; non-text blocks are skipped.
	if response.Text != "first second" {
		t.Errorf("Text = %q", response.Text)
	}
	if response.StopReason != "end_turn" {
		t.Errorf("StopReason = %q", response.StopReason)
	}

	if gotHeaders.Get("x-api-key") != "test-key" {
		t.Errorf("x-api-key = %q", gotHeaders.Get("x-api-key"))
	}
	if gotHeaders.Get("anthropic-version") == "" {
		t.Error("anthropic-version header missing")
	}
	if got.Model != "test-model" || got.System != "be terse" {
		t.Errorf("request = %+v", got)
	}
	if got.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d, want default 1024", got.MaxTokens)
	}
}

func TestAnthropicCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"type": "rate_limit_error", "message": "slow down"}}`))
	}))
	defer server.Close()

	provider := NewAnthropic(nil, server.URL, "k", "m")
	_, err := provider.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "rate_limit_error") {
		t.Errorf("error %q does not carry the API error type", err)
	}
}

func TestAnthropicCompleteContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := NewAnthropic(nil, server.URL, "k", "m")
	if _, err := provider.Complete(ctx, Request{Messages: []Message{{Role: "user", Content: "x"}}}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
