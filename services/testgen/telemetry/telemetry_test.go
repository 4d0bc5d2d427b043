// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_StdoutTraceAndMetricsFile(t *testing.T) {
	dir := t.TempDir()
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "testgen_sample_total", Help: "sample"})
	reg.MustRegister(counter)
	counter.Inc()

	cfg := Config{
		TraceExporter: "stdout",
		TraceFile:     filepath.Join(dir, "trace.json"),
		MetricsFile:   filepath.Join(dir, "metrics.prom"),
		Registerer:    reg,
		Gatherer:      reg,
	}
	tel, err := Setup(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, tel.RunID, 36)

	_, span := otel.Tracer("test").Start(context.Background(), "unit")
	span.End()

	require.NoError(t, tel.Shutdown(context.Background()))

	metrics, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "testgen_sample_total 1")

	trace, err := os.ReadFile(cfg.TraceFile)
	require.NoError(t, err)
	assert.Contains(t, string(trace), `"Name":"unit"`)
}

func TestSetup_UnknownExporter(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := Setup(context.Background(), Config{TraceExporter: "zipkin", Registerer: reg, Gatherer: reg})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestSetup_NoneExporter(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel, err := Setup(context.Background(), Config{Registerer: reg, Gatherer: reg})
	require.NoError(t, err)
	assert.NoError(t, tel.Shutdown(context.Background()))
}
