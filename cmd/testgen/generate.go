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
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianTestGen/services/testgen/analyzer"
	"github.com/AleutianAI/AleutianTestGen/services/testgen/ast"
	"github.com/AleutianAI/AleutianTestGen/services/testgen/pipeline"
)

func runGenerate(cmd *cobra.Command, f *cliFlags, std streams) error {
	ctx, stop := interruptContext(cmd.Context())
	defer stop()

	a, err := newGeneratingApp(ctx, cmd, f, std)
	if err != nil {
		return err
	}
	defer a.close()

	a.console.Title(fmt.Sprintf("testgen %s (%s)", version, a.cfg.Generation.Framework))
	if a.cfg.LLM.Offline {
		a.console.Warning("offline mode: writing placeholder tests")
	}
	if f.ultraQuota {
		a.console.Warning(fmt.Sprintf("ultra-quota-friendly mode: %s between requests, model %s",
			a.cfg.LLM.RequestDelay, a.cfg.LLM.Model))
	}

	var summary *pipeline.Summary
	if f.file != "" {
		summary, err = a.generateFile(ctx, f.file)
	} else {
		summary, err = a.generateCodebase(ctx)
	}
	if summary != nil {
		a.printSummary(summary)
	}
	if errors.Is(err, context.Canceled) {
		a.console.Warning("interrupted")
		return nil
	}
	return err
}

func (a *app) generateCodebase(ctx context.Context) (*pipeline.Summary, error) {
	a.console.Info("analyzing " + a.root)
	report, err := a.analyzer.AnalyzeCodebase(ctx, a.root)
	if err != nil && report == nil {
		return nil, err
	}
	if err != nil {
		return &pipeline.Summary{AnalyzedFiles: len(report.Results), FailedFiles: len(report.Failures)}, err
	}
	a.console.Info(fmt.Sprintf("found %d components, %d need tests",
		report.ComponentCount(), report.CandidateCount()))
	return a.pipeline.RunReport(ctx, report)
}

// generateFile runs the pipeline over one file. A relative path is taken
// from --path. A file that reads but cannot be extracted is counted as a
// failed file, the same as during a codebase run.
func (a *app) generateFile(ctx context.Context, file string) (*pipeline.Summary, error) {
	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.root, path)
	}
	result, err := a.analyzer.AnalyzeFile(ctx, path)
	if isExtractionFailure(err) {
		a.logger.Warn("skipping file",
			slog.String("file", path),
			slog.String("error", err.Error()))
		a.console.Warning(fmt.Sprintf("could not analyze %s: %v", path, err))
		return &pipeline.Summary{FailedFiles: 1}, nil
	}
	if err != nil {
		return nil, err
	}
	return a.pipeline.Run(ctx, []analyzer.AnalysisResult{*result})
}

func isExtractionFailure(err error) bool {
	var parseErr *ast.ParseError
	return errors.As(err, &parseErr) ||
		errors.Is(err, ast.ErrFileTooLarge) ||
		errors.Is(err, ast.ErrInvalidContent)
}
