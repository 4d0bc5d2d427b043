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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeLogString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		notWant string
	}{
		{
			name:    "gemini key",
			input:   "url has AIzaSyAbcDefGhiJklMnoPqrStUvWxYz0123456789extra in it",
			want:    "url has [REDACTED:gemini_key] in it",
			notWant: "AIzaSy",
		},
		{
			name:    "oauth token",
			input:   "token ya29.a0AfH6SMBxxxxxxxxxxxxxxxxxxxxxxx expired",
			want:    "token [REDACTED:oauth_token] expired",
			notWant: "ya29.",
		},
		{
			name:  "bearer token",
			input: "Authorization: Bearer abcdef0123456789",
			want:  "Authorization: [REDACTED:bearer_token]",
		},
		{
			name:    "json api key",
			input:   `{"apiKey": "super-secret-value"}`,
			want:    `{"apiKey": "[REDACTED]"}`,
			notWant: "super-secret",
		},
		{
			name:  "query key",
			input: "GET /models?key=abcdefghijk123 failed",
			want:  "GET /models?key=[REDACTED] failed",
		},
		{
			name:  "no secrets",
			input: "normal log message with no secrets",
			want:  "normal log message with no secrets",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SafeLogString(tt.input)
			assert.Equal(t, tt.want, got)
			if tt.notWant != "" {
				assert.NotContains(t, got, tt.notWant)
			}
		})
	}
}

func TestSafeLogString_LabeledKeyInsideQuery(t *testing.T) {
	got := SafeLogString("key=AIzaSyAbcDefGhiJklMnoPqrStUvWxYz01234567")
	assert.Equal(t, "key=[REDACTED:gemini_key]", got)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "****", MaskKey("abc"))
	assert.Equal(t, "****wxyz", MaskKey("abcdefwxyz"))
}
