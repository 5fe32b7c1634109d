// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// perMillionTokenUSD maps model prefixes to (input, output) pricing per
// million tokens. Unknown models cost zero; accounting stays
// best-effort.
var perMillionTokenUSD = map[string][2]float64{
	"gpt-4o":      {2.50, 10.00},
	"gpt-4o-mini": {0.15, 0.60},
}

// OpenAIInvoker runs task prompts against the OpenAI chat completion
// API.
type OpenAIInvoker struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	timeout time.Duration
}

// OpenAIOption configures an OpenAIInvoker.
type OpenAIOption func(*OpenAIInvoker)

// WithModel overrides the model name.
func WithModel(model string) OpenAIOption {
	return func(o *OpenAIInvoker) { o.model = model }
}

// WithRateLimit caps invocations per second with the given burst.
func WithRateLimit(perSecond float64, burst int) OpenAIOption {
	return func(o *OpenAIInvoker) { o.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithDefaultTimeout sets the timeout applied when a request carries
// none.
func WithDefaultTimeout(d time.Duration) OpenAIOption {
	return func(o *OpenAIInvoker) { o.timeout = d }
}

// NewOpenAIInvoker builds an invoker from the environment.
//
// # Description
//
//	The API key comes from OPENAI_API_KEY, falling back to the
//	container secret at /run/secrets/openai_api_key. The model comes
//	from OPENAI_MODEL, defaulting to gpt-4o-mini.
//
// # Outputs
//
//   - *OpenAIInvoker: ready to use.
//   - error: ErrNoAPIKey when no credential is available.
func NewOpenAIInvoker(opts ...OpenAIOption) (*OpenAIInvoker, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		raw, err := os.ReadFile(secretPath)
		if err != nil {
			slog.Error("OPENAI_API_KEY not set and secret not found", "path", secretPath)
			return nil, ErrNoAPIKey
		}
		apiKey = strings.TrimSpace(string(raw))
		slog.Info("Read the OpenAI API Key from container secrets")
	}

	inv := &OpenAIInvoker{
		client:  openai.NewClient(apiKey),
		model:   os.Getenv("OPENAI_MODEL"),
		limiter: rate.NewLimiter(rate.Limit(1), 2),
		timeout: 10 * time.Minute,
	}
	if inv.model == "" {
		inv.model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	for _, opt := range opts {
		opt(inv)
	}
	slog.Info("Initializing OpenAI invoker", "model", inv.model)
	return inv, nil
}

// Invoke implements the Invoker interface.
func (o *OpenAIInvoker) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = o.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	system := "You are an autonomous software engineer. Work only inside " +
		"the workspace directory you are given and report the outcome."
	user := req.Prompt
	if req.WorkingDirectory != "" {
		user = "Workspace: " + req.WorkingDirectory + "\n\n" + req.Prompt
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		slog.Warn("OpenAI returned no choices or empty content")
		return nil, ErrEmptyResponse
	}

	return &InvokeResult{
		Success: resp.Choices[0].FinishReason == openai.FinishReasonStop,
		Output:  resp.Choices[0].Message.Content,
		CostUSD: invocationCost(o.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}, nil
}

// invocationCost estimates the dollar cost of one completion from
// token usage.
func invocationCost(model string, promptTokens, completionTokens int) float64 {
	var best string
	for prefix := range perMillionTokenUSD {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return 0
	}
	price := perMillionTokenUSD[best]
	return (float64(promptTokens)*price[0] + float64(completionTokens)*price[1]) / 1e6
}
