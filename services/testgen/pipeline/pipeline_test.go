// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianTestGen/services/llm"
	"github.com/AleutianAI/AleutianTestGen/services/testgen/analyzer"
	"github.com/AleutianAI/AleutianTestGen/services/testgen/ast"
	"github.com/AleutianAI/AleutianTestGen/services/testgen/prompt"
)

type stubBuilder struct{}

func (stubBuilder) Build(c ast.Component, sourcePath string) (string, error) {
	return "prompt for " + c.Name, nil
}

// scriptedGenerator answers by prompt; unknown prompts fail.
type scriptedGenerator struct {
	answers map[string]string
	errs    map[string]error
	calls   []string
}

func (g *scriptedGenerator) Generate(_ context.Context, p string) (string, error) {
	g.calls = append(g.calls, p)
	if err, ok := g.errs[p]; ok {
		return "", err
	}
	if a, ok := g.answers[p]; ok {
		return a, nil
	}
	return "", errors.New("unexpected prompt")
}

type recordingReporter struct {
	started  []string
	saved    []string
	previews map[string][]string
	failed   []string
}

func (r *recordingReporter) ComponentStarted(name, _ string) { r.started = append(r.started, name) }
func (r *recordingReporter) TestSaved(name, _ string)        { r.saved = append(r.saved, name) }
func (r *recordingReporter) TestPreview(name, _ string, lines []string) {
	if r.previews == nil {
		r.previews = map[string][]string{}
	}
	r.previews[name] = lines
}
func (r *recordingReporter) ComponentFailed(name string, _ error) { r.failed = append(r.failed, name) }

type recordingWriter struct {
	tests   []GeneratedTest
	appends []bool
}

func (w *recordingWriter) Write(t GeneratedTest, appendTo bool) error {
	w.tests = append(w.tests, t)
	w.appends = append(w.appends, appendTo)
	return nil
}

type memCache struct {
	data  map[string]string
	saves int
}

func (m *memCache) Load(_ context.Context, key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Save(_ context.Context, key, _, response string) error {
	m.saves++
	m.data[key] = response
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func component(name string, needs bool) ast.Component {
	return ast.Component{Name: name, Kind: ast.KindFunction, Span: ast.Span{StartLine: 1, EndLine: 1}, Complexity: 1, NeedsTest: needs}
}

func TestTestFilePath(t *testing.T) {
	root := filepath.FromSlash("/repo")
	tests := []struct {
		name      string
		outputDir string
		source    string
		framework prompt.Framework
		want      string
	}{
		{"jest mirrors dirs", "tests", "/repo/src/cart.ts", prompt.FrameworkJest, "/repo/tests/src/cart.test.ts"},
		{"vitest", "", "/repo/a.js", prompt.FrameworkVitest, "/repo/tests/a.test.js"},
		{"mocha spec", "out", "/repo/lib/x.jsx", prompt.FrameworkMocha, "/repo/out/lib/x.spec.jsx"},
		{"absolute output", "/tmp/gen", "/repo/src/a.ts", prompt.FrameworkJest, "/tmp/gen/src/a.test.ts"},
		{"outside root", "tests", "/elsewhere/b.ts", prompt.FrameworkJest, "/repo/tests/b.test.ts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TestFilePath(root, filepath.FromSlash(tt.outputDir), filepath.FromSlash(tt.source), tt.framework)
			assert.Equal(t, filepath.FromSlash(tt.want), got)
		})
	}
}

func TestRun_SavesAndAppendsPerSourceFile(t *testing.T) {
	root := t.TempDir()
	gen := &scriptedGenerator{answers: map[string]string{
		"prompt for a":     "```js\ntest('a', () => {});\n```",
		"prompt for b":     "```js\ntest('b', () => {});\n```",
		"prompt for other": "```js\ntest('o', () => {});\n```",
	}}
	reporter := &recordingReporter{}
	p, err := New(Options{Root: root, Generator: gen, Builder: stubBuilder{}, Reporter: reporter, Logger: quietLogger()})
	require.NoError(t, err)

	src := filepath.Join(root, "src", "util.js")
	results := []analyzer.AnalysisResult{
		{FilePath: src, Components: []ast.Component{component("a", true), component("skip", false), component("b", true)}},
		{FilePath: filepath.Join(root, "other.ts"), Components: []ast.Component{component("other", true)}},
	}

	// A stale file from an earlier run is replaced, not appended to.
	testPath := filepath.Join(root, "tests", "src", "util.test.js")
	require.NoError(t, os.MkdirAll(filepath.Dir(testPath), 0o755))
	require.NoError(t, os.WriteFile(testPath, []byte("stale"), 0o644))

	summary, err := p.Run(context.Background(), results)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.AnalyzedFiles)
	assert.Equal(t, 3, summary.Candidates)
	assert.Equal(t, 3, summary.Generated)
	assert.Equal(t, 3, summary.Saved)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, []string{"a", "b", "other"}, reporter.started)

	data, err := os.ReadFile(testPath)
	require.NoError(t, err)
	assert.Equal(t, "test('a', () => {});\n\ntest('b', () => {});\n", string(data))

	_, err = os.Stat(filepath.Join(root, "tests", "other.test.ts"))
	assert.NoError(t, err)
}

func TestRun_HandsGeneratedTestsToWriter(t *testing.T) {
	root := t.TempDir()
	gen := &scriptedGenerator{answers: map[string]string{
		"prompt for a": "```js\na();\n```",
		"prompt for b": "```js\nb();\n```",
	}}
	writer := &recordingWriter{}
	p, err := New(Options{Root: root, Generator: gen, Builder: stubBuilder{}, Writer: writer, Logger: quietLogger()})
	require.NoError(t, err)

	src := filepath.Join(root, "src", "cart.ts")
	a, b := component("a", true), component("b", true)
	summary, err := p.Run(context.Background(), []analyzer.AnalysisResult{{FilePath: src, Components: []ast.Component{a, b}}})
	require.NoError(t, err)

	testPath := filepath.Join(root, "tests", "src", "cart.test.ts")
	want := []GeneratedTest{
		{FilePath: testPath, Content: "a();", Component: a, SourcePath: src},
		{FilePath: testPath, Content: "b();", Component: b, SourcePath: src},
	}
	assert.Equal(t, want, writer.tests)
	assert.Equal(t, []bool{false, true}, writer.appends)
	assert.Equal(t, want, summary.Tests)
	assert.Equal(t, 2, summary.Saved)
}

func TestRun_FailuresAreSkipped(t *testing.T) {
	root := t.TempDir()
	gen := &scriptedGenerator{
		answers: map[string]string{
			"prompt for empty": "# just prose",
			"prompt for ok":    "```\nok();\n```",
		},
		errs: map[string]error{
			"prompt for broken": &llm.ExhaustedRetriesError{Attempts: 3, Last: errors.New("boom")},
		},
	}
	reporter := &recordingReporter{}
	p, err := New(Options{Root: root, Generator: gen, Builder: stubBuilder{}, Reporter: reporter, Logger: quietLogger()})
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), []analyzer.AnalysisResult{{
		FilePath:   filepath.Join(root, "a.js"),
		Components: []ast.Component{component("broken", true), component("empty", true), component("ok", true)},
	}})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 1, summary.Saved)
	assert.Equal(t, []string{"broken", "empty"}, reporter.failed)
}

func TestRun_FatalCredentialAborts(t *testing.T) {
	gen := &scriptedGenerator{errs: map[string]error{
		"prompt for a": &llm.CredentialError{State: llm.CredentialFatal, Message: "no key"},
	}}
	p, err := New(Options{Root: t.TempDir(), Generator: gen, Builder: stubBuilder{}, Logger: quietLogger()})
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), []analyzer.AnalysisResult{{
		FilePath:   "a.js",
		Components: []ast.Component{component("a", true), component("b", true)},
	}})
	var credErr *llm.CredentialError
	require.ErrorAs(t, err, &credErr)
	require.NotNil(t, summary)
	assert.Equal(t, []string{"prompt for a"}, gen.calls)
}

func TestRun_PendingCredentialIsPerComponent(t *testing.T) {
	gen := &scriptedGenerator{
		errs:    map[string]error{"prompt for a": &llm.CredentialError{State: llm.CredentialPendingInteractive}},
		answers: map[string]string{"prompt for b": "```\nb();\n```"},
	}
	p, err := New(Options{Root: t.TempDir(), Generator: gen, Builder: stubBuilder{}, DryRun: true, Logger: quietLogger()})
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), []analyzer.AnalysisResult{{
		FilePath:   "a.js",
		Components: []ast.Component{component("a", true), component("b", true)},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Generated)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	root := t.TempDir()
	gen := &scriptedGenerator{answers: map[string]string{
		"prompt for a": "```\n1\n2\n3\n4\n5\n6\n7\n```",
	}}
	reporter := &recordingReporter{}
	p, err := New(Options{Root: root, DryRun: true, Generator: gen, Builder: stubBuilder{}, Reporter: reporter, Logger: quietLogger()})
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), []analyzer.AnalysisResult{{
		FilePath:   filepath.Join(root, "a.js"),
		Components: []ast.Component{component("a", true)},
	}})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Generated)
	assert.Zero(t, summary.Saved)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, reporter.previews["a"])
	_, err = os.Stat(filepath.Join(root, "tests"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_UsesResponseCache(t *testing.T) {
	gen := &scriptedGenerator{answers: map[string]string{"prompt for a": "```\na();\n```"}}
	cache := &memCache{data: map[string]string{}}
	p, err := New(Options{
		Root:      t.TempDir(),
		DryRun:    true,
		Generator: gen,
		Builder:   stubBuilder{},
		Cache:     cache,
		CacheKey:  func(p string) string { return "k:" + p },
		Logger:    quietLogger(),
	})
	require.NoError(t, err)

	results := []analyzer.AnalysisResult{{FilePath: "a.js", Components: []ast.Component{component("a", true)}}}

	first, err := p.Run(context.Background(), results)
	require.NoError(t, err)
	assert.Zero(t, first.CacheHits)
	assert.Equal(t, 1, cache.saves)

	second, err := p.Run(context.Background(), results)
	require.NoError(t, err)
	assert.Equal(t, 1, second.CacheHits)
	assert.Len(t, gen.calls, 1)

	require.Len(t, first.Tests, 1)
	require.Len(t, second.Tests, 1)
	assert.False(t, first.Tests[0].FromCache)
	assert.True(t, second.Tests[0].FromCache)
	assert.Equal(t, "a();", second.Tests[0].Content)
	assert.Equal(t, "a.js", second.Tests[0].SourcePath)
}

func TestRun_CanceledContext(t *testing.T) {
	p, err := New(Options{Generator: &scriptedGenerator{}, Builder: stubBuilder{}, Logger: quietLogger()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Run(ctx, []analyzer.AnalysisResult{{FilePath: "a.js", Components: []ast.Component{component("a", true)}}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunReport_CountsFailedFiles(t *testing.T) {
	p, err := New(Options{Generator: &scriptedGenerator{}, Builder: stubBuilder{}, Logger: quietLogger()})
	require.NoError(t, err)

	summary, err := p.RunReport(context.Background(), &analyzer.Report{
		Failures: []analyzer.FileFailure{{FilePath: "bad.ts", Err: errors.New("x")}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FailedFiles)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Builder: stubBuilder{}})
	assert.Error(t, err)
	_, err = New(Options{Generator: &scriptedGenerator{}})
	assert.Error(t, err)
	_, err = New(Options{Generator: &scriptedGenerator{}, Builder: stubBuilder{}, Cache: &memCache{}})
	assert.Error(t, err)
}
