// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline turns analysis results into saved test files.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianTestGen/services/llm"
	"github.com/AleutianAI/AleutianTestGen/services/testgen/analyzer"
	"github.com/AleutianAI/AleutianTestGen/services/testgen/ast"
	"github.com/AleutianAI/AleutianTestGen/services/testgen/prompt"
)

// PreviewLines is how many lines of each test a dry run shows.
const PreviewLines = 5

// ErrNoUsableCode means the model answered but no test code could be extracted.
var ErrNoUsableCode = errors.New("no usable test code in response")

// Generator produces raw model output for a prompt. *llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// PromptBuilder renders the prompt of one component.
type PromptBuilder interface {
	Build(c ast.Component, sourcePath string) (string, error)
}

// ResponseCache stores raw responses by key. *cache.ResponseCache satisfies it.
type ResponseCache interface {
	Load(ctx context.Context, key string) (string, bool, error)
	Save(ctx context.Context, key, model, response string) error
}

// Reporter receives progress events for display.
type Reporter interface {
	ComponentStarted(name, sourcePath string)
	TestSaved(name, testPath string)
	TestPreview(name, testPath string, lines []string)
	ComponentFailed(name string, err error)
}

// Options configures a Pipeline.
type Options struct {
	Root      string
	OutputDir string
	Framework prompt.Framework
	DryRun    bool

	Generator Generator
	Builder   PromptBuilder
	Writer    Writer
	Reporter  Reporter

	// Cache is optional. CacheKey derives the key of a prompt and must be
	// set together with Cache.
	Cache    ResponseCache
	CacheKey func(prompt string) string
	Model    string

	Logger *slog.Logger
}

// GeneratedTest is one accepted generation: the extracted code of a single
// component and the test file it belongs to.
type GeneratedTest struct {
	FilePath   string
	Content    string
	Component  ast.Component
	SourcePath string
	FromCache  bool
}

// Summary counts the outcome of a run.
type Summary struct {
	AnalyzedFiles int           `json:"analyzed_files"`
	FailedFiles   int           `json:"failed_files"`
	Candidates    int           `json:"candidates"`
	Generated     int           `json:"generated"`
	Saved         int           `json:"saved"`
	Failed        int           `json:"failed"`
	CacheHits     int           `json:"cache_hits"`
	Duration      time.Duration `json:"duration"`

	// Tests lists every accepted generation in processing order.
	Tests []GeneratedTest `json:"-"`
}

// Pipeline generates tests one component at a time.
type Pipeline struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Pipeline. Generator and Builder are required.
func New(opts Options) (*Pipeline, error) {
	if opts.Generator == nil {
		return nil, errors.New("pipeline: generator is required")
	}
	if opts.Builder == nil {
		return nil, errors.New("pipeline: prompt builder is required")
	}
	if opts.Cache != nil && opts.CacheKey == nil {
		return nil, errors.New("pipeline: cache requires a key function")
	}
	if opts.Framework == "" {
		opts.Framework = prompt.FrameworkJest
	}
	if opts.Writer == nil {
		opts.Writer = FSWriter{}
	}
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{opts: opts, logger: logger}, nil
}

// RunReport runs the pipeline over a codebase report, counting its
// per-file failures in the summary.
func (p *Pipeline) RunReport(ctx context.Context, report *analyzer.Report) (*Summary, error) {
	summary, err := p.Run(ctx, report.Results)
	summary.FailedFiles = len(report.Failures)
	return summary, err
}

// Run generates tests for every component marked NeedsTest.
//
// Description:
//
//	Components are processed strictly in order. A component that fails
//	(retries exhausted, no usable code) is counted and skipped. The run
//	stops early only on a fatal credential error or a canceled context.
//	Components of one source file share a test file: the first one
//	written in this run replaces it, later ones are appended.
//
// Outputs:
//   - *Summary: Always non-nil, even with an error.
//   - error: Fatal *llm.CredentialError or a context error.
func (p *Pipeline) Run(ctx context.Context, results []analyzer.AnalysisResult) (*Summary, error) {
	start := time.Now()
	summary := &Summary{AnalyzedFiles: len(results)}
	written := make(map[string]bool)
	defer func() { summary.Duration = time.Since(start) }()

	for _, result := range results {
		testPath := TestFilePath(p.opts.Root, p.opts.OutputDir, result.FilePath, p.opts.Framework)

		for _, c := range result.Components {
			if !c.NeedsTest {
				continue
			}
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			summary.Candidates++
			p.opts.Reporter.ComponentStarted(c.Name, result.FilePath)

			code, cached, err := p.generate(ctx, c, result.FilePath)
			if cached {
				summary.CacheHits++
			}
			if err != nil {
				var credErr *llm.CredentialError
				if errors.As(err, &credErr) && credErr.IsFatal() {
					return summary, err
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					return summary, ctxErr
				}
				summary.Failed++
				p.logger.Warn("skipping component",
					slog.String("component", c.Name),
					slog.String("file", result.FilePath),
					slog.String("error", llm.SafeLogString(err.Error())))
				p.opts.Reporter.ComponentFailed(c.Name, err)
				continue
			}
			summary.Generated++
			test := GeneratedTest{
				FilePath:   testPath,
				Content:    code,
				Component:  c,
				SourcePath: result.FilePath,
				FromCache:  cached,
			}
			summary.Tests = append(summary.Tests, test)

			if p.opts.DryRun {
				p.opts.Reporter.TestPreview(c.Name, testPath, preview(code, PreviewLines))
				continue
			}
			if err := p.opts.Writer.Write(test, written[testPath]); err != nil {
				p.logger.Warn("failed to save test",
					slog.String("path", testPath),
					slog.String("error", err.Error()))
				p.opts.Reporter.ComponentFailed(c.Name, err)
				continue
			}
			written[testPath] = true
			summary.Saved++
			p.opts.Reporter.TestSaved(c.Name, testPath)
		}
	}
	return summary, nil
}

// generate returns extracted test code for one component. The bool reports
// whether the response came from the cache.
func (p *Pipeline) generate(ctx context.Context, c ast.Component, sourcePath string) (string, bool, error) {
	text, err := p.opts.Builder.Build(c, sourcePath)
	if err != nil {
		return "", false, err
	}

	var key string
	if p.opts.Cache != nil {
		key = p.opts.CacheKey(text)
		raw, ok, err := p.opts.Cache.Load(ctx, key)
		if err != nil {
			p.logger.Warn("response cache unavailable", slog.String("error", err.Error()))
		} else if ok {
			if code := llm.ExtractCode(raw); code != "" {
				return code, true, nil
			}
		}
	}

	raw, err := p.opts.Generator.Generate(ctx, text)
	if err != nil {
		return "", false, err
	}
	code := llm.ExtractCode(raw)
	if code == "" {
		return "", false, fmt.Errorf("%s: %w", c.Name, ErrNoUsableCode)
	}

	if p.opts.Cache != nil {
		if err := p.opts.Cache.Save(ctx, key, p.opts.Model, raw); err != nil {
			p.logger.Warn("could not cache response", slog.String("error", err.Error()))
		}
	}
	return code, false, nil
}

func preview(code string, n int) []string {
	lines := strings.Split(code, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return lines
}

type nopReporter struct{}

func (nopReporter) ComponentStarted(string, string)      {}
func (nopReporter) TestSaved(string, string)             {}
func (nopReporter) TestPreview(string, string, []string) {}
func (nopReporter) ComponentFailed(string, error)        {}
