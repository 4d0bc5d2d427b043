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
	"path/filepath"
	"strings"

	"github.com/AleutianAI/AleutianTestGen/services/testgen/prompt"
)

// DefaultOutputDir is where tests go when no output directory is set.
const DefaultOutputDir = "tests"

// TestFilePath maps a source file to its generated test file.
//
// The source directory relative to root is mirrored under outputDir, which
// is itself relative to root unless absolute. The file name gains ".spec"
// for mocha and ".test" otherwise, keeping the source extension. Sources
// outside root are placed directly in outputDir.
//
// Example:
//
//	TestFilePath("/repo", "tests", "/repo/src/cart.ts", "jest")
//	// Returns: "/repo/tests/src/cart.test.ts"
func TestFilePath(root, outputDir, sourcePath string, framework prompt.Framework) string {
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(root, outputDir)
	}

	rel, err := filepath.Rel(root, filepath.Dir(sourcePath))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = ""
	}

	ext := filepath.Ext(sourcePath)
	name := strings.TrimSuffix(filepath.Base(sourcePath), ext)
	marker := ".test"
	if framework == prompt.FrameworkMocha {
		marker = ".spec"
	}
	return filepath.Join(outputDir, rel, name+marker+ext)
}
