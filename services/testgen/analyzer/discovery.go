// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analyzer

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar"
)

// DefaultIncludePatterns selects the source files analyzed when none are configured.
var DefaultIncludePatterns = []string{"**/*.js", "**/*.jsx", "**/*.ts", "**/*.tsx"}

// DefaultExcludePatterns are always applied in addition to user excludes.
var DefaultExcludePatterns = []string{"**/node_modules/**", "**/*.test.*", "**/*.spec.*"}

// prunedDirs are never descended into.
var prunedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
}

// Discoverer enumerates the source files under a root directory.
type Discoverer interface {
	Discover(ctx context.Context, root string) ([]string, error)
}

// FSDiscoverer walks the local filesystem and filters with glob patterns.
//
// Patterns are matched against slash-separated paths relative to the root.
// A file is kept when it matches any include pattern and no exclude pattern.
type FSDiscoverer struct {
	include []string
	exclude []string
}

// NewFSDiscoverer builds a discoverer. An empty include list selects
// DefaultIncludePatterns; DefaultExcludePatterns are appended to exclude.
func NewFSDiscoverer(include, exclude []string) *FSDiscoverer {
	if len(include) == 0 {
		include = DefaultIncludePatterns
	}
	allExclude := make([]string, 0, len(exclude)+len(DefaultExcludePatterns))
	allExclude = append(allExclude, exclude...)
	allExclude = append(allExclude, DefaultExcludePatterns...)
	return &FSDiscoverer{include: include, exclude: allExclude}
}

// Discover returns matching files as paths joined onto root, sorted.
func (d *FSDiscoverer) Discover(ctx context.Context, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			if path != root && prunedDirs[entry.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if d.Matches(filepath.ToSlash(rel)) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// Matches reports whether a slash-separated relative path is selected.
func (d *FSDiscoverer) Matches(rel string) bool {
	return matchAny(d.include, rel) && !matchAny(d.exclude, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
