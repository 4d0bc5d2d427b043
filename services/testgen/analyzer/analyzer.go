// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analyzer discovers source files, extracts their components and
// marks the ones that need tests.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/AleutianTestGen/services/testgen/ast"
	"github.com/AleutianAI/AleutianTestGen/services/testgen/triage"
)

// AnalysisResult holds the components of one file.
type AnalysisResult struct {
	FilePath   string          `json:"file_path"`
	FileKind   string          `json:"file_kind"`
	Language   string          `json:"language"`
	Components []ast.Component `json:"components"`
}

// FileFailure records a file that could not be analyzed.
type FileFailure struct {
	FilePath string `json:"file_path"`
	Err      error  `json:"-"`
}

// Error implements error.
func (f FileFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.FilePath, f.Err)
}

// Unwrap returns the underlying error.
func (f FileFailure) Unwrap() error {
	return f.Err
}

// Report is the outcome of a codebase analysis.
type Report struct {
	Root     string           `json:"root"`
	Results  []AnalysisResult `json:"results"`
	Failures []FileFailure    `json:"-"`
}

// ComponentCount returns the number of components across all results.
func (r *Report) ComponentCount() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Components)
	}
	return n
}

// CandidateCount returns the number of components needing tests.
func (r *Report) CandidateCount() int {
	n := 0
	for _, res := range r.Results {
		n += triage.Count(res.Components)
	}
	return n
}

// Options configures an Analyzer. Zero fields take defaults.
type Options struct {
	Discoverer Discoverer
	Registry   *ast.Registry
	Policy     *triage.Policy
	ReadFile   func(path string) ([]byte, error)
	Logger     *slog.Logger
}

// Analyzer turns a directory tree into AnalysisResults.
//
// Files are processed one at a time. A file that cannot be read or parsed
// is recorded as a FileFailure and never aborts the run.
type Analyzer struct {
	discoverer Discoverer
	registry   *ast.Registry
	policy     triage.Policy
	readFile   func(path string) ([]byte, error)
	logger     *slog.Logger
}

// New creates an Analyzer.
func New(opts Options) *Analyzer {
	a := &Analyzer{
		discoverer: opts.Discoverer,
		registry:   opts.Registry,
		policy:     triage.DefaultPolicy(),
		readFile:   opts.ReadFile,
		logger:     opts.Logger,
	}
	if opts.Policy != nil {
		a.policy = *opts.Policy
	}
	if a.discoverer == nil {
		a.discoverer = NewFSDiscoverer(nil, nil)
	}
	if a.registry == nil {
		a.registry = ast.DefaultRegistry()
	}
	if a.readFile == nil {
		a.readFile = os.ReadFile
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// AnalyzeCodebase analyzes every discovered file under root.
//
// Outputs:
//   - *Report: Results in discovery order, plus per-file failures.
//   - error: Non-nil only when discovery fails or ctx is canceled.
func (a *Analyzer) AnalyzeCodebase(ctx context.Context, root string) (*Report, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}

	files, err := a.discoverer.Discover(ctx, absRoot)
	if err != nil {
		return nil, err
	}
	a.logger.Info("discovered source files",
		slog.String("root", absRoot),
		slog.Int("count", len(files)))

	report := &Report{Root: absRoot, Results: make([]AnalysisResult, 0, len(files))}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		result, err := a.AnalyzeFile(ctx, path)
		if errors.Is(err, ast.ErrUnsupportedLanguage) {
			a.logger.Debug("skipping unsupported file", slog.String("file", path))
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			a.logger.Warn("skipping file",
				slog.String("file", path),
				slog.String("error", err.Error()))
			report.Failures = append(report.Failures, FileFailure{FilePath: path, Err: err})
			continue
		}
		report.Results = append(report.Results, *result)
	}
	return report, nil
}

// AnalyzeFile extracts and classifies the components of one file.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (*AnalysisResult, error) {
	extractor, ok := a.registry.ForPath(path)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ast.ErrUnsupportedLanguage)
	}

	content, err := a.readFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	components, err := extractor.Extract(ctx, content, path)
	if err != nil {
		return nil, err
	}
	a.policy.Apply(components)

	a.logger.Debug("analyzed file",
		slog.String("file", path),
		slog.Int("components", len(components)),
		slog.Int("candidates", triage.Count(components)))

	return &AnalysisResult{
		FilePath:   path,
		FileKind:   strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		Language:   extractor.Language(),
		Components: components,
	}, nil
}
