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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiRESTTransport_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "user", req.Contents[0].Role)
		assert.Equal(t, "sys\n\nhello", req.Contents[0].Parts[0].Text)
		require.NotNil(t, req.GenerationConfig)
		assert.Equal(t, 40, *req.GenerationConfig.TopK)
		assert.Equal(t, 4096, *req.GenerationConfig.MaxOutputTokens)

		_ = json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{
				Content:      geminiContent{Role: "model", Parts: []geminiPart{{Text: "part one, "}, {Text: "part two"}}},
				FinishReason: "STOP",
			}},
			UsageMetadata: &geminiUsage{TotalTokenCount: 12},
		})
	}))
	defer server.Close()

	tr := NewGeminiRESTTransport("test-key", server.URL)
	out, err := tr.Generate(context.Background(), Request{
		Model:        "gemini-1.5-flash",
		SystemPrompt: "sys",
		Prompt:       "hello",
		Params:       DefaultProfile().Params,
	})
	require.NoError(t, err)
	assert.Equal(t, "part one, part two", out)
}

func TestGeminiRESTTransport_QuotaStatusIsClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"code": 429, "status": "RESOURCE_EXHAUSTED", "details": [{"retryDelay": "17s"}]}}`))
	}))
	defer server.Close()

	_, err := NewGeminiRESTTransport("k", server.URL).Generate(context.Background(), Request{Model: "m", Prompt: "p"})
	require.Error(t, err)

	kind, typed := Classify(err)
	assert.Equal(t, FailureQuota, kind)
	var q *QuotaError
	require.ErrorAs(t, typed, &q)
	assert.Equal(t, int64(17), int64(q.SuggestedDelay.Seconds()))
}

func TestGeminiRESTTransport_ErrorBodyRedacted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`API key not valid: AIzaSyAbcDefGhiJklMnoPqrStUvWxYz0123456789`))
	}))
	defer server.Close()

	_, err := NewGeminiRESTTransport("k", server.URL).Generate(context.Background(), Request{Model: "m", Prompt: "p"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "AIzaSy")
	assert.Contains(t, err.Error(), "status 400")
}

func TestGeminiRESTTransport_APIErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(geminiResponse{Error: &geminiError{Code: 500, Status: "INTERNAL", Message: "internal error"}})
	}))
	defer server.Close()

	_, err := NewGeminiRESTTransport("k", server.URL).Generate(context.Background(), Request{Model: "m", Prompt: "p"})
	assert.ErrorContains(t, err, "INTERNAL")
}

func TestGeminiRESTTransport_NoCandidatesIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": []}`))
	}))
	defer server.Close()

	out, err := NewGeminiRESTTransport("k", server.URL).Generate(context.Background(), Request{Model: "m", Prompt: "p"})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGeminiRESTTransport_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	_, err := NewGeminiRESTTransport("k", server.URL).Generate(context.Background(), Request{Model: "m", Prompt: "p"})
	assert.ErrorContains(t, err, "parsing response JSON")
}

func TestNewTransportFactory(t *testing.T) {
	rest, err := NewTransportFactory("REST", "http://localhost:1")
	require.NoError(t, err)
	tr, err := rest(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "gemini-rest", tr.Name())

	_, err = NewTransportFactory("grpc", "")
	assert.Error(t, err)

	assert.Equal(t, DefaultGeminiBaseURL, NewGeminiRESTTransport("k", "").baseURL)
}

func TestClassifyError_Labels(t *testing.T) {
	assert.Equal(t, "", classifyError(nil))
	assert.Equal(t, "empty_response", classifyError(&EmptyResponseError{}))
	assert.Equal(t, "quota", classifyError(&QuotaError{}))
	assert.Equal(t, "timeout", classifyError(context.DeadlineExceeded))
	assert.Equal(t, "auth", classifyError(errors.New("gemini: API returned status 403: denied")))
	assert.Equal(t, "unknown", classifyError(assert.AnError))
}
