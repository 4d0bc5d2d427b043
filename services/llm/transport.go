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
	"fmt"
	"strings"
)

// GenerationParams are the sampling settings sent with each request.
type GenerationParams struct {
	Temperature     float32
	TopK            int
	TopP            float32
	MaxOutputTokens int
}

// Request is one model call.
type Request struct {
	Model        string
	SystemPrompt string
	Prompt       string
	Params       GenerationParams
}

// FullText joins the system prompt and the user prompt the way they are
// sent as a single user turn.
func (r Request) FullText() string {
	if r.SystemPrompt == "" {
		return r.Prompt
	}
	return r.SystemPrompt + "\n\n" + r.Prompt
}

// Transport performs a single generation call against a model service.
//
// Implementations return the raw response text. An empty string with a nil
// error is a valid outcome that the Client treats as an empty response.
type Transport interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// TransportFactory builds a Transport bound to an API key.
type TransportFactory func(ctx context.Context, apiKey string) (Transport, error)

// Supported transport names.
const (
	TransportREST = "rest"
	TransportSDK  = "sdk"
)

// NewTransportFactory returns the factory registered under name.
//
// baseURL only applies to the REST transport; empty selects the public
// Gemini endpoint.
func NewTransportFactory(name, baseURL string) (TransportFactory, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", TransportSDK:
		return func(ctx context.Context, apiKey string) (Transport, error) {
			return NewGeminiSDKTransport(ctx, apiKey)
		}, nil
	case TransportREST:
		return func(_ context.Context, apiKey string) (Transport, error) {
			return NewGeminiRESTTransport(apiKey, baseURL), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q (want %s or %s)", name, TransportSDK, TransportREST)
	}
}
