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
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const llmTracerName = "testgen.llm"

var tracer = otel.Tracer(llmTracerName)

// Package-level Prometheus metrics, auto-registered via promauto.
var (
	// llmCallDuration measures the duration of single transport calls.
	//
	// Labels:
	//   - provider: transport name ("gemini-rest", "gemini-sdk", "offline")
	//   - status: "success" or "error"
	llmCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "testgen",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Duration of model API calls in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "status"},
	)

	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "testgen",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total number of model API calls.",
		},
		[]string{"provider", "status"},
	)

	// llmErrorsTotal counts failed calls by type.
	//
	// Labels:
	//   - error_type: "timeout", "auth", "quota", "server", "empty_response", "unknown"
	llmErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "testgen",
			Subsystem: "llm",
			Name:      "errors_total",
			Help:      "Total model errors by type.",
		},
		[]string{"provider", "error_type"},
	)

	llmRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "testgen",
			Subsystem: "llm",
			Name:      "retries_total",
			Help:      "Total retry waits by failure kind.",
		},
		[]string{"reason"},
	)
)

// classifyError maps an error to a label-safe error type string.
// Returns "" for nil.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	var empty *EmptyResponseError
	if errors.As(err, &empty) {
		return "empty_response"
	}
	var quota *QuotaError
	if errors.As(err, &quota) {
		return "quota"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "context canceled") ||
		strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "status 401") ||
		strings.Contains(msg, "status 403") ||
		strings.Contains(msg, "api key not valid") ||
		strings.Contains(msg, "permission_denied") ||
		strings.Contains(msg, "unauthenticated"):
		return "auth"
	case IsQuotaText(msg):
		return "quota"
	case strings.Contains(msg, "status 500") ||
		strings.Contains(msg, "status 502") ||
		strings.Contains(msg, "status 503") ||
		strings.Contains(msg, "internal error") ||
		strings.Contains(msg, "unavailable"):
		return "server"
	default:
		return "unknown"
	}
}

// recordCallMetrics records one transport call. err nil means success.
func recordCallMetrics(provider string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		llmErrorsTotal.WithLabelValues(provider, classifyError(err)).Inc()
	}
	llmCallDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
	llmCallsTotal.WithLabelValues(provider, status).Inc()
}

func recordRetry(kind FailureKind) {
	llmRetriesTotal.WithLabelValues(kind.String()).Inc()
}

func startGenerateSpan(ctx context.Context, model string, strict, offline bool, promptLen int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Client.Generate",
		trace.WithAttributes(
			attribute.String("llm.model", model),
			attribute.Bool("llm.strict_quota", strict),
			attribute.Bool("llm.offline", offline),
			attribute.Int("llm.prompt_len", promptLen),
		),
	)
}

func endGenerateSpan(span trace.Span, attempts int, err error) {
	span.SetAttributes(attribute.Int("llm.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, SafeLogString(err.Error()))
	}
	span.End()
}
