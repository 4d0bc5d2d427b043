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
	"time"
)

// trimMarker replaces the middle of prompts shortened by the strict profile.
const trimMarker = "\n\n[Content trimmed to reduce token usage]\n\n"

// Profile bundles the retry, pacing and sampling settings of one mode.
type Profile struct {
	Name string

	// MaxRetries is the total number of attempts per Generate call.
	MaxRetries int

	// BaseDelay scales the exponential backoff for non-quota failures.
	BaseDelay time.Duration

	// PreWaitMin and PreWaitMax bound a random wait before every attempt.
	// Both zero disables the wait.
	PreWaitMin time.Duration
	PreWaitMax time.Duration

	// Prompts longer than TrimThreshold runes keep only TrimHead leading and
	// TrimTail trailing runes. Zero disables trimming.
	TrimThreshold int
	TrimHead      int
	TrimTail      int

	Params GenerationParams
}

// DefaultProfile favors throughput.
func DefaultProfile() Profile {
	return Profile{
		Name:       "default",
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		Params: GenerationParams{
			Temperature:     0.2,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 4096,
		},
	}
}

// StrictQuotaProfile trades latency for staying inside tight request quotas.
func StrictQuotaProfile() Profile {
	return Profile{
		Name:          "strict-quota",
		MaxRetries:    5,
		BaseDelay:     30 * time.Second,
		PreWaitMin:    30 * time.Second,
		PreWaitMax:    45 * time.Second,
		TrimThreshold: 2000,
		TrimHead:      600,
		TrimTail:      600,
		Params: GenerationParams{
			Temperature:     0.1,
			TopK:            20,
			TopP:            0.8,
			MaxOutputTokens: 1024,
		},
	}
}

// Trim shortens prompt per the profile's trimming settings.
func (p Profile) Trim(prompt string) string {
	if p.TrimThreshold <= 0 {
		return prompt
	}
	runes := []rune(prompt)
	if len(runes) <= p.TrimThreshold || p.TrimHead+p.TrimTail >= len(runes) {
		return prompt
	}
	return string(runes[:p.TrimHead]) + trimMarker + string(runes[len(runes)-p.TrimTail:])
}

// PreWait returns the wait before an attempt given a uniform sample r in [0,1).
func (p Profile) PreWait(r float64) time.Duration {
	if p.PreWaitMax <= 0 {
		return 0
	}
	span := p.PreWaitMax - p.PreWaitMin
	return p.PreWaitMin + time.Duration(r*float64(span))
}
