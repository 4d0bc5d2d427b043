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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultGeminiBaseURL is the public Gemini REST endpoint.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiRESTTransport calls the Gemini generateContent REST endpoint.
//
// Description:
//
//	Sends the system and user prompt as one user turn and returns the text
//	of the first candidate. Non-200 responses are returned as errors that
//	carry the HTTP status and the (redacted) response body so quota
//	responses can be recognized by the caller.
//
// Thread Safety: GeminiRESTTransport is safe for concurrent use.
type GeminiRESTTransport struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// NewGeminiRESTTransport creates a REST transport.
//
// Inputs:
//   - apiKey: The Gemini API key.
//   - baseURL: API base URL; empty selects DefaultGeminiBaseURL.
//
// Outputs:
//   - *GeminiRESTTransport: The configured transport.
func NewGeminiRESTTransport(apiKey, baseURL string) *GeminiRESTTransport {
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	return &GeminiRESTTransport{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Name implements Transport.
func (g *GeminiRESTTransport) Name() string { return "gemini-rest" }

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	TopP            *float32 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
	Error         *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func buildGenConfig(p GenerationParams) *geminiGenerationConfig {
	temp := p.Temperature
	topP := p.TopP
	cfg := &geminiGenerationConfig{Temperature: &temp, TopP: &topP}
	if p.TopK > 0 {
		topK := p.TopK
		cfg.TopK = &topK
	}
	if p.MaxOutputTokens > 0 {
		maxTokens := p.MaxOutputTokens
		cfg.MaxOutputTokens = &maxTokens
	}
	return cfg
}

// Generate implements Transport.
func (g *GeminiRESTTransport) Generate(ctx context.Context, req Request) (string, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: req.FullText()}},
		}},
		GenerationConfig: buildGenConfig(req.Params),
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("gemini: marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("gemini: creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	slog.Debug("Sending request to Gemini",
		slog.String("model", req.Model),
		slog.Int("prompt_len", len(req.Prompt)),
	)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini: reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini: API returned status %d: %s", resp.StatusCode, SafeLogString(string(bodyBytes)))
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", fmt.Errorf("gemini: parsing response JSON: %w", err)
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("gemini: API error [%d] %s: %s",
			apiResp.Error.Code, apiResp.Error.Status, SafeLogString(apiResp.Error.Message))
	}

	if len(apiResp.Candidates) == 0 {
		return "", nil
	}

	var textParts []string
	for _, part := range apiResp.Candidates[0].Content.Parts {
		if part.Text != "" {
			textParts = append(textParts, part.Text)
		}
	}
	result := strings.Join(textParts, "")

	attrs := []any{
		slog.String("model", req.Model),
		slog.Int("response_len", len(result)),
		slog.String("finish_reason", apiResp.Candidates[0].FinishReason),
	}
	if apiResp.UsageMetadata != nil {
		attrs = append(attrs, slog.Int("total_tokens", apiResp.UsageMetadata.TotalTokenCount))
	}
	slog.Debug("Received Gemini response", attrs...)

	return result, nil
}
