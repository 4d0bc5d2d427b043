// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	genai "google.golang.org/genai"
)

// GeminiSDKTransport calls Gemini through the official genai client.
type GeminiSDKTransport struct {
	cli *genai.Client
}

// NewGeminiSDKTransport creates a genai client bound to apiKey.
func NewGeminiSDKTransport(ctx context.Context, apiKey string) (*GeminiSDKTransport, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	return &GeminiSDKTransport{cli: cli}, nil
}

// Name implements Transport.
func (g *GeminiSDKTransport) Name() string { return "gemini-sdk" }

// Generate implements Transport.
func (g *GeminiSDKTransport) Generate(ctx context.Context, req Request) (string, error) {
	temp := req.Params.Temperature
	topP := req.Params.TopP
	topK := float32(req.Params.TopK)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		TopP:            &topP,
		TopK:            &topK,
		MaxOutputTokens: int32(req.Params.MaxOutputTokens),
	}

	resp, err := g.cli.Models.GenerateContent(ctx, req.Model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: req.FullText()}}}},
		cfg,
	)
	if err != nil {
		return "", sdkError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}

// sdkError converts a genai error. Quota rejections become *QuotaError with
// the RetryInfo delay from the error details.
func sdkError(err error) error {
	wrapped := fmt.Errorf("gemini: %s", SafeLogString(err.Error()))

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var ptr *genai.APIError
		if !errors.As(err, &ptr) || ptr == nil {
			return wrapped
		}
		apiErr = *ptr
	}
	if apiErr.Code != http.StatusTooManyRequests &&
		!strings.Contains(strings.ToUpper(apiErr.Status), "RESOURCE_EXHAUSTED") {
		return wrapped
	}
	return &QuotaError{SuggestedDelay: retryInfoDelay(apiErr.Details), Cause: wrapped}
}

// retryInfoDelay returns the first parseable retryDelay in details, 0 if none.
func retryInfoDelay(details []map[string]any) time.Duration {
	for _, d := range details {
		raw, ok := d["retryDelay"].(string)
		if !ok {
			continue
		}
		if delay, err := time.ParseDuration(raw); err == nil && delay > 0 {
			return delay
		}
	}
	return 0
}
