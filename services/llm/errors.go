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
	"fmt"
	"time"
)

// CredentialError reports that no usable API key is available.
//
// State tells the caller whether the condition is final: Fatal means no key
// can be obtained in this process (non-interactive, nothing configured);
// PendingInteractive means a later Generate call will prompt again.
type CredentialError struct {
	State   CredentialState
	Message string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential unavailable (%s): %s", e.State, e.Message)
}

// IsFatal reports whether the credential can never be resolved in this run.
func (e *CredentialError) IsFatal() bool {
	return e.State == CredentialFatal
}

// QuotaError is a rate-limit or quota rejection from the model service.
type QuotaError struct {
	// SuggestedDelay is the retry delay advertised by the service, 0 if none.
	SuggestedDelay time.Duration
	Cause          error
}

func (e *QuotaError) Error() string {
	if e.SuggestedDelay > 0 {
		return fmt.Sprintf("quota exceeded (retry in %s): %v", e.SuggestedDelay, e.Cause)
	}
	return fmt.Sprintf("quota exceeded: %v", e.Cause)
}

func (e *QuotaError) Unwrap() error { return e.Cause }

// TransientRequestError is any other failed request; it is retried.
type TransientRequestError struct {
	Cause error
}

func (e *TransientRequestError) Error() string {
	return fmt.Sprintf("request failed: %v", e.Cause)
}

func (e *TransientRequestError) Unwrap() error { return e.Cause }

// EmptyResponseError indicates a successful call that returned no text.
//
// Fields:
//   - Duration: How long the call took before returning empty.
//   - PromptLength: Length of the prompt that was sent.
//   - Model: Which model produced the empty response.
type EmptyResponseError struct {
	Duration     time.Duration
	PromptLength int
	Model        string
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("model %s returned an empty response after %s (prompt length %d)",
		e.Model, e.Duration, e.PromptLength)
}

// ExhaustedRetriesError is returned when every attempt failed.
type ExhaustedRetriesError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("generation failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.Last }
