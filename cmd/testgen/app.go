// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianTestGen/pkg/ux"
	"github.com/AleutianAI/AleutianTestGen/services/llm"
	"github.com/AleutianAI/AleutianTestGen/services/testgen/analyzer"
	"github.com/AleutianAI/AleutianTestGen/services/testgen/ast"
	"github.com/AleutianAI/AleutianTestGen/services/testgen/cache"
	"github.com/AleutianAI/AleutianTestGen/services/testgen/config"
	"github.com/AleutianAI/AleutianTestGen/services/testgen/pipeline"
	"github.com/AleutianAI/AleutianTestGen/services/testgen/prompt"
	"github.com/AleutianAI/AleutianTestGen/services/testgen/telemetry"
)

// shutdownTimeout bounds exporter flushing on exit.
const shutdownTimeout = 5 * time.Second

// Settings of --ultra-quota-friendly.
const (
	ultraQuotaRequestDelay = 45 * time.Second
	ultraQuotaModel        = "gemini-1.5-flash"
)

// app holds the components of one command invocation.
type app struct {
	cfg     *config.Config
	flags   *cliFlags
	root    string
	logger  *slog.Logger
	console *ux.Console

	telemetry  *telemetry.Telemetry
	registry   *ast.Registry
	discoverer *analyzer.FSDiscoverer
	analyzer   *analyzer.Analyzer

	// Set only by newGeneratingApp.
	builder  *prompt.Builder
	client   *llm.Client
	store    *cache.Store
	pipeline *pipeline.Pipeline
}

// loadConfig reads the configuration file and applies explicitly set flags.
func loadConfig(cmd *cobra.Command, f *cliFlags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("framework") {
		cfg.Generation.Framework = f.framework
	}
	if changed("output") {
		cfg.Generation.OutputDir = f.output
	}
	if changed("model") {
		cfg.LLM.Model = f.model
	}
	if changed("strict-quota") {
		cfg.LLM.StrictQuota = f.strictQuota
	}
	if changed("offline") {
		cfg.LLM.Offline = f.offline
	}
	if changed("request-delay") {
		cfg.LLM.RequestDelay = f.requestDelay
	}
	if changed("max-retries") {
		cfg.LLM.MaxRetries = f.maxRetries
	}
	if changed("timeout") {
		cfg.LLM.Timeout = f.timeout
	}
	if changed("transport") {
		cfg.LLM.Transport = f.transport
	}
	if changed("non-interactive") && f.nonInteractive {
		cfg.LLM.Interactive = false
	}
	if changed("cache-dir") {
		cfg.Cache.Dir = f.cacheDir
	}
	if changed("no-cache") && f.noCache {
		cfg.Cache.Enabled = false
	}
	if changed("metrics-file") {
		cfg.Telemetry.MetricsFile = f.metricsFile
	}
	if changed("trace-exporter") {
		cfg.Telemetry.TraceExporter = f.traceExporter
	}
	if changed("trace-file") {
		cfg.Telemetry.TraceFile = f.traceFile
	}
	if changed("otlp-endpoint") {
		cfg.Telemetry.OTLPEndpoint = f.otlpEndpoint
	}
	if changed("tolerate-syntax-errors") {
		cfg.Analysis.TolerateSyntaxErrors = f.tolerateSyntaxErrors
	}
	if changed("ultra-quota-friendly") && f.ultraQuota {
		applyUltraQuotaPreset(cfg, changed)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyUltraQuotaPreset enables strict quota mode, spaces requests 45s apart
// and switches to the flash model. Explicit --request-delay and --model win.
func applyUltraQuotaPreset(cfg *config.Config, changed func(string) bool) {
	cfg.LLM.StrictQuota = true
	if !changed("request-delay") {
		cfg.LLM.RequestDelay = ultraQuotaRequestDelay
	}
	if !changed("model") {
		cfg.LLM.Model = ultraQuotaModel
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// interruptContext is canceled on SIGINT or SIGTERM.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// newApp wires configuration, logging, telemetry and analysis.
func newApp(ctx context.Context, cmd *cobra.Command, f *cliFlags, std streams) (*app, error) {
	config.LoadDotEnv()

	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return nil, err
	}
	root, err := filepath.Abs(f.path)
	if err != nil {
		return nil, fmt.Errorf("resolve --path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("--path: %q is not a directory", f.path)
	}

	logger := newLogger(std.err, f.verbose)

	// The otel bridge registers into its own registry; llm metrics live on
	// the default one.
	reg := prometheus.NewRegistry()
	tel, err := telemetry.Setup(ctx, telemetry.Config{
		TraceExporter: cfg.Telemetry.TraceExporter,
		TraceFile:     cfg.Telemetry.TraceFile,
		OTLPEndpoint:  cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:  isLocalEndpoint(cfg.Telemetry.OTLPEndpoint),
		MetricsFile:   cfg.Telemetry.MetricsFile,
		MetricsStdout: cfg.Telemetry.MetricsStdout,
		Registerer:    reg,
		Gatherer:      prometheus.Gatherers{prometheus.DefaultGatherer, reg},
		Version:       version,
	})
	if err != nil {
		return nil, err
	}
	logger = logger.With(slog.String("run_id", tel.RunID))
	slog.SetDefault(logger)

	registry := ast.DefaultRegistry(
		ast.WithMaxFileSize(cfg.Analysis.MaxFileSize),
		ast.WithTolerateSyntaxErrors(cfg.Analysis.TolerateSyntaxErrors),
		ast.WithLogger(logger),
	)
	discoverer := analyzer.NewFSDiscoverer(cfg.Analysis.Include, cfg.Analysis.Exclude)

	return &app{
		cfg:        cfg,
		flags:      f,
		root:       root,
		logger:     logger,
		console:    ux.NewConsole(std.out),
		telemetry:  tel,
		registry:   registry,
		discoverer: discoverer,
		analyzer: analyzer.New(analyzer.Options{
			Discoverer: discoverer,
			Registry:   registry,
			Policy:     &cfg.Triage,
			Logger:     logger,
		}),
	}, nil
}

// newGeneratingApp adds the prompt builder, client, cache and pipeline.
func newGeneratingApp(ctx context.Context, cmd *cobra.Command, f *cliFlags, std streams) (*app, error) {
	a, err := newApp(ctx, cmd, f, std)
	if err != nil {
		return nil, err
	}
	if err := a.initGeneration(std); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) initGeneration(std streams) error {
	cfg := a.cfg

	builder, err := prompt.NewBuilder(prompt.Options{
		Framework:       prompt.Framework(cfg.Generation.Framework),
		Style:           prompt.Style(cfg.Generation.Style),
		Coverage:        cfg.Generation.Coverage,
		IncludeSnapshot: cfg.Generation.IncludeSnapshot,
		Logger:          a.logger,
	})
	if err != nil {
		return err
	}
	a.builder = builder

	factory, err := llm.NewTransportFactory(cfg.LLM.Transport, cfg.LLM.BaseURL)
	if err != nil {
		return err
	}
	opts := llm.DefaultOptions()
	opts.APIKey = a.flags.apiKey
	opts.Model = cfg.LLM.Model
	if cfg.LLM.Timeout > 0 {
		opts.Timeout = cfg.LLM.Timeout
	}
	opts.MaxRetries = cfg.LLM.MaxRetries
	opts.Interactive = cfg.LLM.Interactive && isTerminal(std.in)
	opts.StrictQuota = cfg.LLM.StrictQuota
	opts.Offline = cfg.LLM.Offline
	opts.RequestDelay = cfg.LLM.RequestDelay
	opts.Transport = factory
	opts.Logger = a.logger
	client, err := llm.NewClient(opts)
	if err != nil {
		return err
	}
	a.client = client

	pipeOpts := pipeline.Options{
		Root:      a.root,
		OutputDir: cfg.Generation.OutputDir,
		Framework: builder.Framework(),
		DryRun:    a.flags.dryRun,
		Generator: client,
		Builder:   builder,
		Reporter:  a.console,
		Model:     client.Model(),
		Logger:    a.logger,
	}
	if cfg.Cache.Enabled && !cfg.LLM.Offline {
		storeCfg := cache.DefaultStoreConfig(cfg.Cache.Dir)
		storeCfg.Logger = a.logger
		store, err := cache.OpenStore(storeCfg)
		if err != nil {
			a.logger.Warn("response cache disabled",
				slog.String("dir", cfg.Cache.Dir),
				slog.String("error", err.Error()))
		} else {
			a.store = store
			pipeOpts.Cache = cache.NewResponseCache(store, cfg.Cache.TTL, a.logger)
			pipeOpts.CacheKey = func(p string) string {
				return cache.Key(client.Model(), client.StrictQuota(), p)
			}
		}
	}

	p, err := pipeline.New(pipeOpts)
	if err != nil {
		return err
	}
	a.pipeline = p
	return nil
}

// matches selects files the watcher should hand to the pipeline.
func (a *app) matches(rel string) bool {
	if _, ok := a.registry.ForPath(rel); !ok {
		return false
	}
	return a.discoverer.Matches(rel)
}

func (a *app) printSummary(s *pipeline.Summary) {
	saved := ux.Field{Key: "Saved", Value: fmt.Sprint(s.Saved)}
	if a.flags.dryRun {
		saved = ux.Field{Key: "Previewed", Value: fmt.Sprint(s.Generated)}
	}
	a.console.Summary("Summary", []ux.Field{
		{Key: "Files", Value: fmt.Sprint(s.AnalyzedFiles)},
		{Key: "Failed files", Value: fmt.Sprint(s.FailedFiles)},
		{Key: "Candidates", Value: fmt.Sprint(s.Candidates)},
		{Key: "Generated", Value: fmt.Sprint(s.Generated)},
		saved,
		{Key: "Failed", Value: fmt.Sprint(s.Failed)},
		{Key: "Cache hits", Value: fmt.Sprint(s.CacheHits)},
		{Key: "Duration", Value: s.Duration.Round(time.Millisecond).String()},
	})
}

// close flushes telemetry and releases the cache.
func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close response cache", slog.String("error", err.Error()))
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
	}
}

func isLocalEndpoint(endpoint string) bool {
	host := endpoint
	if h, _, ok := strings.Cut(endpoint, ":"); ok {
		host = h
	}
	return host == "localhost" || host == "127.0.0.1" || host == ""
}
