// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package triage decides which extracted components deserve generated tests.
package triage

import (
	"strings"

	"github.com/AleutianAI/AleutianTestGen/services/testgen/ast"
)

// Policy holds the thresholds of the test-worthiness rules.
type Policy struct {
	// MethodComplexityThreshold: methods need tests when complexity exceeds it.
	MethodComplexityThreshold int `yaml:"method_complexity_threshold" validate:"gte=0"`

	// LineThreshold: any component longer than this many lines needs tests.
	LineThreshold int `yaml:"line_threshold" validate:"gte=0"`
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MethodComplexityThreshold: 2,
		LineThreshold:             15,
	}
}

// NeedsTest applies the rules in order; the first match wins.
//
// Description:
//
//	Functions and classes always qualify. Methods qualify when their
//	complexity exceeds the method threshold. Anything else qualifies only
//	when its source text is longer than the line threshold.
//
// Thread Safety: Pure function of its arguments.
func (p Policy) NeedsTest(c ast.Component) bool {
	switch c.Kind {
	case ast.KindFunction, ast.KindClass:
		return true
	case ast.KindMethod:
		if c.Complexity > p.MethodComplexityThreshold {
			return true
		}
	}
	return LineCount(c.SourceText) > p.LineThreshold
}

// NeedsTest classifies with the default policy.
func NeedsTest(c ast.Component) bool {
	return DefaultPolicy().NeedsTest(c)
}

// Apply sets NeedsTest on every component in place.
func (p Policy) Apply(components []ast.Component) {
	for i := range components {
		components[i].NeedsTest = p.NeedsTest(components[i])
	}
}

// LineCount returns the number of lines in text. Empty text has zero lines.
func LineCount(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(text, "\n") + 1
}

// Count returns how many components are marked as needing tests.
func Count(components []ast.Component) int {
	n := 0
	for _, c := range components {
		if c.NeedsTest {
			n++
		}
	}
	return n
}
