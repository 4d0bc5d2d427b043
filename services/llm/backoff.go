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
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FailureKind groups failed attempts by how they are retried.
type FailureKind int

const (
	FailureTransient FailureKind = iota
	FailureQuota
	FailureEmpty
)

// String returns the metric label of the kind.
func (k FailureKind) String() string {
	switch k {
	case FailureQuota:
		return "quota"
	case FailureEmpty:
		return "empty"
	default:
		return "transient"
	}
}

// DefaultQuotaDelay is used when a quota error advertises no retry delay.
const DefaultQuotaDelay = 60 * time.Second

const (
	quotaPadding   = 15 * time.Second
	quotaJitterMax = 30 * time.Second
)

var (
	quotaMarkers  = []string{"quota", "429", "too many requests", "resource_exhausted"}
	retryDelayRex = regexp.MustCompile(`retryDelay"?\s*:\s*"?(\d+)s`)
)

// IsQuotaText reports whether an error message describes a quota rejection.
func IsQuotaText(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range quotaMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// SuggestedDelay extracts the retryDelay advertised in an error message.
// The second return is false when none is present.
func SuggestedDelay(msg string) (time.Duration, bool) {
	m := retryDelayRex.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	secs, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// Classify maps a raw transport error, or an empty result, to a typed error.
func Classify(err error) (FailureKind, error) {
	var empty *EmptyResponseError
	if errors.As(err, &empty) {
		return FailureEmpty, err
	}
	var quota *QuotaError
	if errors.As(err, &quota) {
		return FailureQuota, err
	}
	msg := err.Error()
	if IsQuotaText(msg) {
		d, _ := SuggestedDelay(msg)
		return FailureQuota, &QuotaError{SuggestedDelay: d, Cause: err}
	}
	return FailureTransient, &TransientRequestError{Cause: err}
}

// QuotaBackoff returns the wait after a quota error: the advertised delay
// (or DefaultQuotaDelay) plus 15s and up to 30s of jitter from r in [0,1).
func QuotaBackoff(err *QuotaError, r float64) time.Duration {
	base := DefaultQuotaDelay
	if err != nil && err.SuggestedDelay > 0 {
		base = err.SuggestedDelay
	}
	return base + quotaPadding + time.Duration(r*float64(quotaJitterMax))
}

// ExponentialBackoff returns base * 2^attempt, where attempt counts the
// failures so far starting at 1.
func ExponentialBackoff(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return base * time.Duration(1<<attempt)
}

// BackoffStrategy computes the wait after a failed attempt.
type BackoffStrategy interface {
	// Delay returns the wait after err, the failures-th failure (1-based).
	Delay(err error, failures int) time.Duration
}

type quotaStrategy struct {
	rand func() float64
}

func (s quotaStrategy) Delay(err error, _ int) time.Duration {
	var q *QuotaError
	errors.As(err, &q)
	return QuotaBackoff(q, s.rand())
}

type exponentialStrategy struct {
	base time.Duration
}

func (s exponentialStrategy) Delay(_ error, failures int) time.Duration {
	return ExponentialBackoff(s.base, failures)
}

// StrategyFor selects the backoff strategy for a failure kind.
func StrategyFor(kind FailureKind, profile Profile, rand func() float64) BackoffStrategy {
	if kind == FailureQuota {
		return quotaStrategy{rand: rand}
	}
	return exponentialStrategy{base: profile.BaseDelay}
}
