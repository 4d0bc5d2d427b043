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
	"io"
	"time"

	"github.com/spf13/cobra"
)

// cliFlags holds every command-line option. Values only override the
// configuration file when the flag was set explicitly.
type cliFlags struct {
	path                 string
	file                 string
	framework            string
	output               string
	dryRun               bool
	apiKey               string
	model                string
	nonInteractive       bool
	strictQuota          bool
	ultraQuota           bool
	offline              bool
	requestDelay         time.Duration
	maxRetries           int
	timeout              time.Duration
	transport            string
	cacheDir             string
	noCache              bool
	configPath           string
	verbose              bool
	metricsFile          string
	traceExporter        string
	traceFile            string
	otlpEndpoint         string
	tolerateSyntaxErrors bool

	jsonOutput bool
}

// streams are the process's standard streams, swapped out in tests.
type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	flags := &cliFlags{}
	std := streams{in: stdin, out: stdout, err: stderr}

	rootCmd := &cobra.Command{
		Use:   "testgen",
		Short: "Generate unit tests for JavaScript and TypeScript code",
		Long: `testgen analyzes a JavaScript or TypeScript codebase, picks the
components that deserve tests and asks a Gemini model to write them.

Running testgen without a subcommand is the same as "testgen generate".`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, flags, std)
		},
	}
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Analyze the codebase and write generated tests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, flags, std)
		},
	}
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Print the analysis without generating tests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, flags, std)
		},
	}
	analyzeCmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "Print the analysis as JSON")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Regenerate tests whenever source files change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, flags, std)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.path, "path", "p", ".", "Root directory of the codebase")
	pf.StringVarP(&flags.file, "file", "f", "", "Generate tests for a single file only")
	pf.StringVar(&flags.framework, "framework", "", "Test framework: jest, mocha or vitest")
	pf.StringVarP(&flags.output, "output", "o", "", "Directory for generated tests, relative to --path")
	pf.BoolVar(&flags.dryRun, "dry-run", false, "Preview generated tests without writing files")
	pf.StringVar(&flags.apiKey, "api-key", "", "Gemini API key (otherwise GEMINI_API_KEY or a config file)")
	pf.StringVar(&flags.model, "model", "", "Gemini model name")
	pf.BoolVar(&flags.nonInteractive, "non-interactive", false, "Never prompt for an API key")
	pf.BoolVar(&flags.strictQuota, "strict-quota", false, "Slow down and shrink requests to stay inside tight quotas")
	pf.BoolVar(&flags.ultraQuota, "ultra-quota-friendly", false, "Strict quota mode with 45s request spacing and the smaller flash model")
	pf.BoolVar(&flags.offline, "offline", false, "Emit placeholder tests without calling the model")
	pf.DurationVar(&flags.requestDelay, "request-delay", 0, "Minimum spacing between model requests")
	pf.IntVar(&flags.maxRetries, "max-retries", 0, "Attempts per component (0 uses the mode's default)")
	pf.DurationVar(&flags.timeout, "timeout", 0, "Timeout of a single model request")
	pf.StringVar(&flags.transport, "transport", "", "Model transport: sdk or rest")
	pf.StringVar(&flags.cacheDir, "cache-dir", "", "Response cache directory")
	pf.BoolVar(&flags.noCache, "no-cache", false, "Disable the response cache")
	pf.StringVar(&flags.configPath, "config", "", "Run configuration file (default .testgen.yaml if present)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&flags.metricsFile, "metrics-file", "", "Write prometheus metrics to this file on exit")
	pf.StringVar(&flags.traceExporter, "trace-exporter", "", "Trace exporter: none, stdout or otlp")
	pf.StringVar(&flags.traceFile, "trace-file", "", "File receiving stdout trace spans")
	pf.StringVar(&flags.otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint for traces")
	pf.BoolVar(&flags.tolerateSyntaxErrors, "tolerate-syntax-errors", false, "Extract components from files with syntax errors")

	rootCmd.AddCommand(generateCmd, analyzeCmd, watchCmd, newCacheCmd(flags, std))
	return rootCmd
}
