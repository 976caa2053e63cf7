// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm provides a minimal non-streaming client abstraction for
// LLM completion APIs. The sentinel's semantic scanner is the only
// consumer; it needs exactly one blocking completion per scan, so
// there is no streaming surface.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request is a provider-neutral completion request.
type Request struct {
	// System is the system prompt, if any.
	System string

	// Messages is the conversation so far.
	Messages []Message

	// MaxTokens caps the completion length. Required by the
	// Anthropic API; defaults to 1024 when zero.
	MaxTokens int
}

// Response is a provider-neutral completion result.
type Response struct {
	// Text is the concatenated text content of the completion.
	Text string

	// StopReason is the provider's stop reason, when reported.
	StopReason string
}

// Provider is the interface for completion backends.
type Provider interface {
	// Complete sends a request and blocks until the full response is
	// available. Implementations must honor ctx cancellation and
	// deadlines.
	Complete(ctx context.Context, request Request) (*Response, error)
}

// Anthropic implements Provider against the Anthropic Messages API.
type Anthropic struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
}

// NewAnthropic creates an Anthropic provider. endpoint is the API
// base URL (e.g. "https://api.anthropic.com"); apiKey is sent in the
// x-api-key header. A nil httpClient uses http.DefaultClient.
func NewAnthropic(httpClient *http.Client, endpoint, apiKey, model string) *Anthropic {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Anthropic{
		httpClient: httpClient,
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
	}
}

type anthropicRequest struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a non-streaming Messages API request.
func (p *Anthropic) Complete(ctx context.Context, request Request) (*Response, error) {
	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	body, err := json.Marshal(anthropicRequest{
		Model:     p.model,
		System:    request.System,
		Messages:  request.Messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: encoding request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: building request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("x-api-key", p.apiKey)
	httpRequest.Header.Set("anthropic-version", "2023-06-01")

	httpResponse, err := p.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("llm: request failed: %w", err)
	}
	defer httpResponse.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResponse.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("llm: reading response: %w", err)
	}

	var decoded anthropicResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("llm: decoding response (HTTP %d): %w",
			httpResponse.StatusCode, err)
	}
	if httpResponse.StatusCode != http.StatusOK {
		if decoded.Error != nil {
			return nil, fmt.Errorf("llm: %s: %s", decoded.Error.Type, decoded.Error.Message)
		}
		return nil, fmt.Errorf("llm: HTTP %d", httpResponse.StatusCode)
	}

	var text string
	for _, content := range decoded.Content {
		if content.Type == "text" {
			text += content.Text
		}
	}
	return &Response{Text: text, StopReason: decoded.StopReason}, nil
}
