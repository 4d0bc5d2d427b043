// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ComponentExtractor is the contract the analyzer depends on.
type ComponentExtractor interface {
	// Extract returns the components of one file.
	Extract(ctx context.Context, content []byte, filePath string) ([]Component, error)

	// Language returns the canonical language name.
	Language() string

	// Extensions returns the lowercase file extensions handled, with dots.
	Extensions() []string
}

// Registry maps file extensions to extractors.
//
// Thread Safety: Safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	byExtension map[string]ComponentExtractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExtension: make(map[string]ComponentExtractor)}
}

// DefaultRegistry returns a registry with the TypeScript and JavaScript
// extractors registered, both built with opts.
func DefaultRegistry(opts ...ExtractorOption) *Registry {
	r := NewRegistry()
	r.Register(NewTypeScriptExtractor(opts...))
	r.Register(NewJavaScriptExtractor(opts...))
	return r
}

// Register adds an extractor for all of its extensions. A later
// registration for the same extension replaces the earlier one.
func (r *Registry) Register(extractor ComponentExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range extractor.Extensions() {
		r.byExtension[strings.ToLower(ext)] = extractor
	}
}

// ForPath returns the extractor for a file path's extension.
func (r *Registry) ForPath(path string) (ComponentExtractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	extractor, ok := r.byExtension[strings.ToLower(filepath.Ext(path))]
	return extractor, ok
}

// Extract dispatches to the extractor registered for filePath.
func (r *Registry) Extract(ctx context.Context, content []byte, filePath string) ([]Component, error) {
	extractor, ok := r.ForPath(filePath)
	if !ok {
		return nil, fmt.Errorf("%s: %w", filePath, ErrUnsupportedLanguage)
	}
	return extractor.Extract(ctx, content, filePath)
}

// Extensions returns every registered extension, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.byExtension))
	for ext := range r.byExtension {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
