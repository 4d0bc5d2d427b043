// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prompt renders the generation prompt for a single component.
package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AleutianAI/AleutianTestGen/services/testgen/ast"
)

//go:embed prompt.tmpl
var promptTemplate string

// Framework is the target test framework.
type Framework string

const (
	FrameworkJest   Framework = "jest"
	FrameworkMocha  Framework = "mocha"
	FrameworkVitest Framework = "vitest"
)

// Style is the kind of tests requested.
type Style string

const (
	StyleUnit        Style = "unit"
	StyleIntegration Style = "integration"
	StyleBoth        Style = "both"
)

// DefaultCacheSize bounds the number of source files whose imports are kept.
const DefaultCacheSize = 256

// Options configures a Builder. Zero values take defaults.
type Options struct {
	Framework       Framework
	Style           Style
	Coverage        int
	IncludeSnapshot bool
	CacheSize       int
	ReadFile        func(path string) ([]byte, error)
	Logger          *slog.Logger
}

// Builder renders prompts.
//
// Thread Safety: Builder is safe for concurrent use.
type Builder struct {
	tmpl      *template.Template
	opts      Options
	readFile  func(path string) ([]byte, error)
	importsBy *lru.Cache[string, string]
	logger    *slog.Logger
}

type promptData struct {
	Style           Style
	Kind            string
	Framework       Framework
	Coverage        int
	IncludeSnapshot bool
	Name            string
	Language        string
	TypeScript      bool
	Code            string
	Imports         string
	SourcePath      string
}

// NewBuilder parses the prompt template.
func NewBuilder(opts Options) (*Builder, error) {
	if opts.Framework == "" {
		opts.Framework = FrameworkJest
	}
	if opts.Style == "" {
		opts.Style = StyleUnit
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	readFile := opts.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tmpl, err := template.New("prompt").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing prompt template: %w", err)
	}
	cache, err := lru.New[string, string](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating import cache: %w", err)
	}
	return &Builder{
		tmpl:      tmpl,
		opts:      opts,
		readFile:  readFile,
		importsBy: cache,
		logger:    logger,
	}, nil
}

// Framework returns the configured test framework.
func (b *Builder) Framework() Framework {
	return b.opts.Framework
}

// Build renders the prompt for component c from sourcePath.
func (b *Builder) Build(c ast.Component, sourcePath string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(sourcePath)), ".")
	typeScript := ext == "ts" || ext == "tsx" || ext == "mts" || ext == "cts"
	language := "javascript"
	if typeScript {
		language = "typescript"
	}

	data := promptData{
		Style:           b.opts.Style,
		Kind:            c.Kind.String(),
		Framework:       b.opts.Framework,
		Coverage:        b.opts.Coverage,
		IncludeSnapshot: b.opts.IncludeSnapshot,
		Name:            c.Name,
		Language:        language,
		TypeScript:      typeScript,
		Code:            c.SourceText,
		Imports:         b.imports(sourcePath, c.SourceText),
		SourcePath:      sourcePath,
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering prompt for %s: %w", c.Name, err)
	}
	return buf.String(), nil
}

// imports returns the import lines of sourcePath, reading the file once.
// An unreadable file falls back to the imports found in fallback.
func (b *Builder) imports(sourcePath, fallback string) string {
	if cached, ok := b.importsBy.Get(sourcePath); ok {
		return cached
	}
	content, err := b.readFile(sourcePath)
	if err != nil {
		b.logger.Warn("could not read source file for context",
			slog.String("file", sourcePath),
			slog.String("error", err.Error()))
		return ImportLines(fallback)
	}
	lines := ImportLines(string(content))
	b.importsBy.Add(sourcePath, lines)
	return lines
}

// Forget drops the cached imports of sourcePath, e.g. after it changed.
func (b *Builder) Forget(sourcePath string) {
	b.importsBy.Remove(sourcePath)
}

// ImportLines keeps the ES import lines and CommonJS require lines of source.
func ImportLines(source string) string {
	var kept []string
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import ") ||
			(strings.HasPrefix(trimmed, "const ") && strings.Contains(trimmed, " = require(")) {
			kept = append(kept, strings.TrimRight(line, "\r"))
		}
	}
	return strings.Join(kept, "\n")
}

// ValidFramework reports whether f is supported.
func ValidFramework(f Framework) bool {
	switch f {
	case FrameworkJest, FrameworkMocha, FrameworkVitest:
		return true
	}
	return false
}
