// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry installs the OpenTelemetry providers for a testgen run.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ServiceName tags every exported span and metric.
const ServiceName = "testgen"

// ErrUnknownExporter is returned for an unsupported exporter name.
var ErrUnknownExporter = errors.New("unknown exporter")

// Config selects exporters.
type Config struct {
	// TraceExporter is "none", "stdout" or "otlp".
	TraceExporter string

	// TraceFile receives stdout spans; empty writes to stderr.
	TraceFile string

	OTLPEndpoint string
	OTLPInsecure bool

	// MetricsFile, when set, receives the prometheus text exposition at
	// shutdown.
	MetricsFile string

	// MetricsStdout also prints otel metrics periodically to stderr.
	MetricsStdout bool

	// Registerer and Gatherer default to the prometheus defaults.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	Version string
}

// Telemetry owns the installed providers.
type Telemetry struct {
	RunID string

	cfg       Config
	shutdowns []func(context.Context) error
	closers   []io.Closer
}

// Setup installs tracer and meter providers as the otel globals.
//
// Outputs:
//   - *Telemetry: Call Shutdown before exit to flush exporters.
//   - error: Non-nil if an exporter cannot be created.
func Setup(ctx context.Context, cfg Config) (*Telemetry, error) {
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.TraceExporter == "" {
		cfg.TraceExporter = "none"
	}

	t := &Telemetry{RunID: uuid.NewString(), cfg: cfg}
	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", cfg.Version),
		attribute.String("testgen.run_id", t.RunID),
	)

	if cfg.TraceExporter != "none" {
		tp, err := t.newTracerProvider(ctx, res)
		if err != nil {
			_ = t.Shutdown(ctx)
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		otel.SetTracerProvider(tp)
		t.shutdowns = append(t.shutdowns, tp.Shutdown)
	}

	mp, err := t.newMeterProvider(res)
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, fmt.Errorf("init meter: %w", err)
	}
	otel.SetMeterProvider(mp)
	t.shutdowns = append(t.shutdowns, mp.Shutdown)

	return t, nil
}

func (t *Telemetry) newTracerProvider(ctx context.Context, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	var err error

	switch t.cfg.TraceExporter {
	case "otlp":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(t.cfg.OTLPEndpoint)}
		if t.cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case "stdout":
		var w io.Writer = os.Stderr
		if t.cfg.TraceFile != "" {
			f, ferr := os.Create(t.cfg.TraceFile)
			if ferr != nil {
				return nil, fmt.Errorf("create trace file: %w", ferr)
			}
			t.closers = append(t.closers, f)
			w = f
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, t.cfg.TraceExporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

func (t *Telemetry) newMeterProvider(res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	bridge, err := otelprom.New(otelprom.WithRegisterer(t.cfg.Registerer))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(bridge),
	}
	if t.cfg.MetricsStdout {
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

// Shutdown flushes exporters, writes the metrics file and releases files.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.cfg.MetricsFile != "" && t.cfg.Gatherer != nil {
		if err := prometheus.WriteToTextfile(t.cfg.MetricsFile, t.cfg.Gatherer); err != nil {
			errs = append(errs, fmt.Errorf("write metrics file: %w", err))
		}
	}
	for i := len(t.shutdowns) - 1; i >= 0; i-- {
		if err := t.shutdowns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	t.shutdowns = nil
	for _, c := range t.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.closers = nil
	return errors.Join(errs...)
}
